package pkg

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Role describes who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the three chat roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem
}

// Part types understood by the model converter. Other part types sent by the
// chat client (step markers, reasoning) are carried but not forwarded.
const (
	PartText  = "text"
	PartImage = "image"
)

// Part is one piece of message content.
type Part struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Image    string `json:"image,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// TextPart wraps plain text in a Part.
func TextPart(text string) Part { return Part{Type: PartText, Text: text} }

// Message is a chat turn in its normalized form. Callers may send either the
// parts shape or the older {role, content} shape; both decode into Parts.
type Message struct {
	ID    string `json:"id,omitempty"`
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// NewTextMessage builds a single-part text message.
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Parts: []Part{TextPart(text)}}
}

// UnmarshalJSON normalizes the content/parts variants into Parts.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID      string  `json:"id"`
		Role    Role    `json:"role"`
		Content *string `json:"content"`
		Parts   []Part  `json:"parts"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.ID = raw.ID
	m.Role = raw.Role
	switch {
	case len(raw.Parts) > 0:
		m.Parts = raw.Parts
	case raw.Content != nil:
		m.Parts = []Part{TextPart(*raw.Content)}
	default:
		m.Parts = nil
	}
	return nil
}

// Text joins the text parts of the message.
func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// EmrFile is a client-supplied attachment: a base64 image (optionally a data
// URL) or raw text.
type EmrFile struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type,omitempty"`
	Content string `json:"content,omitempty"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Messages      []Message `json:"messages"`
	PatientID     string    `json:"patientId,omitempty"`
	EmrFiles      []EmrFile `json:"emrFiles,omitempty"`
	ScreenContext string    `json:"screenContext,omitempty"`
}

// FlexID accepts numeric or string identifiers from the backend.
type FlexID string

func (id *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = FlexID(n.String())
	return nil
}

// StoredMessage is a conversation row held by the backend.
type StoredMessage struct {
	ID        FlexID          `json:"id"`
	PatientID string          `json:"patientId,omitempty"`
	Role      Role            `json:"role"`
	Content   string          `json:"content"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt string          `json:"createdAt,omitempty"`
}

// SummaryType marks a system message as a conversation summary.
const SummaryType = "summary"

// SummaryMetadata is attached to summary messages.
type SummaryMetadata struct {
	Type                   string    `json:"type"`
	SummarizedMessageCount int       `json:"summarizedMessageCount"`
	CreatedAt              time.Time `json:"createdAt"`
}

// ParseMetadata decodes Metadata, which the backend returns either as a JSON
// encoded string or as an object.
func (m StoredMessage) ParseMetadata() (map[string]any, error) {
	raw := bytes.TrimSpace(m.Metadata)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("metadata: empty")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("metadata: %w", err)
		}
		raw = []byte(s)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	return out, nil
}

// IsSummary reports whether the row is a system summary. Rows whose metadata
// cannot be parsed are not summaries.
func (m StoredMessage) IsSummary() bool {
	if m.Role != RoleSystem {
		return false
	}
	meta, err := m.ParseMetadata()
	if err != nil {
		return false
	}
	t, _ := meta["type"].(string)
	return t == SummaryType
}

// Patient holds the demographics returned by the backend. Unknown fields are
// ignored.
type Patient struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Species           string `json:"species"`
	Breed             string `json:"breed"`
	Gender            string `json:"gender"`
	Color             string `json:"color"`
	DateOfBirth       string `json:"dateOfBirth"`
	Weight            any    `json:"weight"`
	MicrochipNumber   string `json:"microchipNumber"`
	IsActive          *bool  `json:"isActive"`
	ClientID          string `json:"clientId"`
	ClientFirstName   string `json:"clientFirstName"`
	ClientLastName    string `json:"clientLastName"`
	ClientEmail       string `json:"clientEmail"`
	ClientPhoneNumber string `json:"clientPhoneNumber"`
}

// OwnerName is the owner's full name, or "" when unknown.
func (p Patient) OwnerName() string {
	return strings.TrimSpace(p.ClientFirstName + " " + p.ClientLastName)
}

// SummarizationRun records the outcome of one background summarization pass.
type SummarizationRun struct {
	ID              string    `json:"id"`
	PatientID       string    `json:"patient_id"`
	Outcome         string    `json:"outcome"`
	SummarizedCount int       `json:"summarized_count"`
	DeletedCount    int       `json:"deleted_count"`
	Error           string    `json:"error,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
}
