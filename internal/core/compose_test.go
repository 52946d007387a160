package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vetchat/pkg"
)

func TestComposeWindowShortHistoryKeepsEverything(t *testing.T) {
	for _, n := range []int{0, 1, 14, 15} {
		conv := Split(append([]pkg.StoredMessage{summaryRow("s1", "sum")}, storedTurns(n)...))
		incoming := []pkg.Message{pkg.NewTextMessage(pkg.RoleUser, "new")}

		w := ComposeWindow(conv, 15, incoming)

		assert.Empty(t, w.ToSummarize, "n=%d", n)
		require.Len(t, w.Messages, n+2, "n=%d", n)
		assert.Equal(t, "sum", w.Messages[0].Text())
		for i := 0; i < n; i++ {
			assert.Equal(t, conv.Regular[i].Content, w.Messages[i+1].Text())
			assert.Equal(t, conv.Regular[i].Role, w.Messages[i+1].Role)
		}
		assert.Equal(t, "new", w.Messages[n+1].Text())
	}
}

func TestComposeWindowLongHistoryKeepsLast15(t *testing.T) {
	conv := Split(append([]pkg.StoredMessage{summaryRow("s1", "sum one"), summaryRow("s2", "sum two")}, storedTurns(20)...))
	incoming := []pkg.Message{
		pkg.NewTextMessage(pkg.RoleUser, "first new"),
		pkg.NewTextMessage(pkg.RoleUser, "second new"),
	}

	w := ComposeWindow(conv, 15, incoming)

	require.Len(t, w.ToSummarize, 5)
	for i, m := range w.ToSummarize {
		assert.Equal(t, pkg.FlexID("m"+string(rune('1'+i))), m.ID)
	}

	require.Len(t, w.Messages, 2+15+2)
	assert.Equal(t, "sum one", w.Messages[0].Text())
	assert.Equal(t, "sum two", w.Messages[1].Text())
	assert.Equal(t, "turn 6", w.Messages[2].Text())
	assert.Equal(t, "turn 20", w.Messages[16].Text())
	assert.Equal(t, "first new", w.Messages[17].Text())
	assert.Equal(t, "second new", w.Messages[18].Text())
}

func TestComposeWindowDefaultsRecent(t *testing.T) {
	w := ComposeWindow(Split(storedTurns(16)), 0, nil)
	assert.Len(t, w.ToSummarize, 1)
	assert.Len(t, w.Messages, 15)
}

func TestFoldAttachmentsImageDataURL(t *testing.T) {
	msgs := []pkg.Message{
		pkg.NewTextMessage(pkg.RoleUser, "first"),
		pkg.NewTextMessage(pkg.RoleAssistant, "reply"),
		pkg.NewTextMessage(pkg.RoleUser, "look at this x-ray"),
	}
	files := []pkg.EmrFile{{ID: "f1", Name: "xray", Type: "image/png", Content: "data:image/png;base64,iVBORw0KGgo="}}

	out, err := FoldAttachments(msgs, files)
	require.NoError(t, err)

	last := out[2]
	require.Len(t, last.Parts, 2)
	assert.Equal(t, pkg.PartImage, last.Parts[1].Type)
	assert.Equal(t, "image/png", last.Parts[1].MimeType)
	assert.Equal(t, "iVBORw0KGgo=", last.Parts[1].Image)
	assert.Len(t, msgs[2].Parts, 1, "input must not be mutated")
	assert.Len(t, out[0].Parts, 1)
}

func TestFoldAttachmentsTextFile(t *testing.T) {
	msgs := []pkg.Message{pkg.NewTextMessage(pkg.RoleUser, "summarize the labs")}
	files := []pkg.EmrFile{{Name: "labs.txt", Type: "text/plain", Content: "ALT 120 U/L"}}

	out, err := FoldAttachments(msgs, files)
	require.NoError(t, err)
	require.Len(t, out[0].Parts, 2)
	assert.Equal(t, pkg.PartText, out[0].Parts[1].Type)
	assert.Equal(t, "\n\nEMR File: labs.txt\nALT 120 U/L", out[0].Parts[1].Text)
}

func TestFoldAttachmentsImageMimeFallbacks(t *testing.T) {
	tests := []struct {
		name string
		file pkg.EmrFile
		want string
	}{
		{"extension", pkg.EmrFile{Name: "scan.webp", Content: "aGVsbG8="}, "image/webp"},
		{"declared type", pkg.EmrFile{Name: "scan", Type: "image/gif", Content: "aGVsbG8="}, "image/gif"},
		{"data url wins", pkg.EmrFile{Name: "scan.jpg", Type: "image/jpeg", Content: "data:image/png;base64,aGVsbG8="}, "image/png"},
		{"data url only", pkg.EmrFile{Name: "scan", Content: "data:image/bmp;base64,aGVsbG8="}, "image/bmp"},
		{"default", pkg.EmrFile{Name: "scan", Type: "image/", Content: "aGVsbG8="}, "image/jpeg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := FoldAttachments([]pkg.Message{pkg.NewTextMessage(pkg.RoleUser, "q")}, []pkg.EmrFile{tt.file})
			require.NoError(t, err)
			require.Len(t, out[0].Parts, 2)
			assert.Equal(t, tt.want, out[0].Parts[1].MimeType)
			assert.Equal(t, "aGVsbG8=", out[0].Parts[1].Image)
		})
	}
}

func TestFoldAttachmentsErrorsLeaveInputUntouched(t *testing.T) {
	tests := []struct {
		name  string
		msgs  []pkg.Message
		files []pkg.EmrFile
	}{
		{"no user message", []pkg.Message{pkg.NewTextMessage(pkg.RoleAssistant, "hi")}, []pkg.EmrFile{{Name: "a.txt", Content: "x"}}},
		{"bad base64", []pkg.Message{pkg.NewTextMessage(pkg.RoleUser, "q")}, []pkg.EmrFile{{Name: "a.png", Content: "not base64!!"}}},
		{"empty image", []pkg.Message{pkg.NewTextMessage(pkg.RoleUser, "q")}, []pkg.EmrFile{{Name: "a.png"}}},
		{"partial failure", []pkg.Message{pkg.NewTextMessage(pkg.RoleUser, "q")}, []pkg.EmrFile{{Name: "ok.txt", Content: "x"}, {Name: "a.png", Content: "data:image/png;base64"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := FoldAttachments(tt.msgs, tt.files)
			require.Error(t, err)
			assert.Equal(t, tt.msgs, out)
		})
	}
}

func TestFoldAttachmentsNoFiles(t *testing.T) {
	msgs := []pkg.Message{pkg.NewTextMessage(pkg.RoleAssistant, "only assistant")}
	out, err := FoldAttachments(msgs, nil)
	require.NoError(t, err)
	assert.Equal(t, msgs, out)
}
