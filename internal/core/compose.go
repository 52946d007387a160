package core

import (
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"vetchat/pkg"
)

// DefaultRecentWindow is how many regular turns are sent verbatim.
const DefaultRecentWindow = 15

// Window is the context for one request plus the turns that fell out of it.
type Window struct {
	Messages    []pkg.Message
	ToSummarize []pkg.StoredMessage
}

// ComposeWindow builds summaries ++ recent turns ++ incoming. When there are
// more than recent regular turns, only the last recent are kept and the rest
// are returned for summarization.
func ComposeWindow(conv Conversation, recent int, incoming []pkg.Message) Window {
	if recent <= 0 {
		recent = DefaultRecentWindow
	}
	regular := conv.Regular
	var w Window
	if n := len(regular); n > recent {
		w.ToSummarize = regular[:n-recent]
		regular = regular[n-recent:]
	}

	w.Messages = make([]pkg.Message, 0, len(conv.Summaries)+len(regular)+len(incoming))
	w.Messages = append(w.Messages, conv.Summaries...)
	for _, m := range regular {
		w.Messages = append(w.Messages, pkg.NewTextMessage(m.Role, m.Content))
	}
	w.Messages = append(w.Messages, incoming...)
	return w
}

var errNoUserMessage = errors.New("no user message to attach files to")

// FoldAttachments appends EMR files to the last user message. Images become
// image parts and everything else a text part. On error the input is
// returned unchanged along with the error.
func FoldAttachments(messages []pkg.Message, files []pkg.EmrFile) ([]pkg.Message, error) {
	if len(files) == 0 {
		return messages, nil
	}
	idx := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == pkg.RoleUser {
			idx = i
			break
		}
	}
	if idx < 0 {
		return messages, errNoUserMessage
	}

	parts := append([]pkg.Part(nil), messages[idx].Parts...)
	for _, f := range files {
		if isImageFile(f) {
			part, err := imagePart(f)
			if err != nil {
				return messages, fmt.Errorf("emr file %q: %w", f.Name, err)
			}
			parts = append(parts, part)
			continue
		}
		parts = append(parts, pkg.TextPart("\n\nEMR File: "+f.Name+"\n"+f.Content))
	}

	out := append([]pkg.Message(nil), messages...)
	out[idx].Parts = parts
	return out, nil
}

var imageExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
}

func isImageFile(f pkg.EmrFile) bool {
	if strings.HasPrefix(strings.ToLower(f.Type), "image/") {
		return true
	}
	if _, ok := imageExtensions[strings.ToLower(filepath.Ext(f.Name))]; ok {
		return true
	}
	return strings.HasPrefix(f.Content, "data:image/")
}

func imagePart(f pkg.EmrFile) (pkg.Part, error) {
	payload := f.Content
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 {
			return pkg.Part{}, errors.New("malformed data URL")
		}
		payload = payload[comma+1:]
	}
	if payload == "" {
		return pkg.Part{}, errors.New("empty image content")
	}
	if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
		return pkg.Part{}, fmt.Errorf("decode base64: %w", err)
	}
	return pkg.Part{Type: pkg.PartImage, Image: payload, MimeType: imageMimeType(f)}, nil
}

// imageMimeType prefers the data URL header, then the declared type, then
// the file extension, and finally image/jpeg.
func imageMimeType(f pkg.EmrFile) string {
	if strings.HasPrefix(f.Content, "data:image/") {
		semi := strings.IndexByte(f.Content, ';')
		comma := strings.IndexByte(f.Content, ',')
		if semi > len("data:") && (comma < 0 || semi < comma) {
			return f.Content[len("data:"):semi]
		}
	}
	if t := strings.ToLower(f.Type); strings.HasPrefix(t, "image/") && len(t) > len("image/") {
		return t
	}
	if mime, ok := imageExtensions[strings.ToLower(filepath.Ext(f.Name))]; ok {
		return mime
	}
	return "image/jpeg"
}
