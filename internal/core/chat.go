package core

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vetchat/internal/backend"
	"vetchat/internal/llm"
	"vetchat/internal/metrics"
	"vetchat/pkg"
	"vetchat/pkg/logging"
)

// ChatService orchestrates one assistant turn: it loads the patient's stored
// conversation, composes the context window, streams the model reply and
// persists both sides of the exchange.
type ChatService struct {
	LLM          llm.Client
	Backend      Backend
	Fetcher      *Fetcher
	Summarizer   *Summarizer
	Runner       *Runner
	Logger       *logging.Logger
	Metrics      *metrics.ChatMetrics
	RecentWindow int
}

// NewChatService wires a ChatService with default paging and window sizes.
// The summariser shares the service's runner and logger.
func NewChatService(client llm.Client, be Backend, logger *logging.Logger, m *metrics.ChatMetrics) *ChatService {
	if logger == nil {
		logger = logging.NewNop()
	}
	runner := NewRunner(logger)
	summarizer := NewSummarizer(client, be, runner, logger)
	summarizer.Metrics = m
	return &ChatService{
		LLM:     client,
		Backend: be,
		Fetcher: &Fetcher{
			Backend:  be,
			PageSize: 100,
			MaxPages: 100,
			Logger:   logger,
			Metrics:  m,
		},
		Summarizer:   summarizer,
		Runner:       runner,
		Logger:       logger,
		Metrics:      m,
		RecentWindow: DefaultRecentWindow,
	}
}

// Turn is a fully composed request, ready to stream.
type Turn struct {
	PatientID string
	System    string
	Messages  []pkg.Message
	// Summarizing is the number of turns handed to a background
	// summarization pass by this request.
	Summarizing int
}

// Prepare assembles the context for a chat request. The only error it
// returns is llm.ErrInvalidMessages; every upstream failure degrades the
// turn instead.
func (s *ChatService) Prepare(ctx context.Context, req pkg.ChatRequest) (*Turn, error) {
	turn := &Turn{PatientID: req.PatientID}

	var conv Conversation
	if req.PatientID != "" {
		conv = s.Fetcher.Fetch(ctx, req.PatientID)
	}
	window := ComposeWindow(conv, s.RecentWindow, req.Messages)

	attachmentsFailed := false
	msgs, err := FoldAttachments(window.Messages, req.EmrFiles)
	if err != nil {
		s.Logger.Warn("emr attachment processing failed",
			zap.String("patient_id", req.PatientID),
			zap.Int("files", len(req.EmrFiles)),
			zap.Error(err))
		s.Metrics.ObserveAttachmentFailure()
		attachmentsFailed = true
	}
	turn.Messages = msgs

	if _, err := llm.ConvertMessages("", turn.Messages); err != nil {
		return nil, err
	}

	if len(window.ToSummarize) > 0 {
		turn.Summarizing = len(window.ToSummarize)
		s.Summarizer.Schedule(ctx, req.PatientID, window.ToSummarize, conv.All)
	}

	var rec patientRecord
	if req.PatientID != "" {
		rec = s.loadPatientRecord(ctx, req.PatientID)
	}
	turn.System = BuildSystemPrompt(rec.Patient, rec.History, req.ScreenContext)
	if attachmentsFailed {
		turn.System += "\n\n" + AttachmentErrorNote
	}

	s.saveUserMessage(ctx, req)
	return turn, nil
}

// Respond streams the model reply for turn through onDelta and returns the
// full text. The assistant message is persisted in the background once the
// stream has finished.
func (s *ChatService) Respond(ctx context.Context, turn *Turn, onDelta func(string) error) (string, error) {
	start := time.Now()
	text, err := s.LLM.Stream(ctx, llm.Request{System: turn.System, Messages: turn.Messages}, onDelta)
	s.Metrics.ObserveStreamDuration(time.Since(start).Seconds())
	if err != nil {
		return text, err
	}

	if turn.PatientID != "" && strings.TrimSpace(text) != "" {
		bg := context.WithoutCancel(ctx)
		patientID := turn.PatientID
		s.Runner.Go("save_assistant_message", func() {
			err := s.Backend.SaveMessage(bg, backend.NewMessage{
				PatientID: patientID,
				Role:      pkg.RoleAssistant,
				Content:   text,
			})
			if err != nil {
				s.Logger.Warn("assistant message save failed", zap.String("patient_id", patientID), zap.Error(err))
				s.Metrics.ObserveUpstreamFailure("save_assistant_message")
			}
		})
	}
	return text, nil
}

// saveUserMessage persists the caller's latest user turn when the request is
// authenticated and the patient ID is a UUID. Failures are logged only.
func (s *ChatService) saveUserMessage(ctx context.Context, req pkg.ChatRequest) {
	if backend.TokenFromContext(ctx) == "" || !IsUUID(req.PatientID) {
		return
	}
	var last *pkg.Message
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == pkg.RoleUser {
			last = &req.Messages[i]
			break
		}
	}
	if last == nil {
		return
	}
	text := last.Text()
	if strings.TrimSpace(text) == "" {
		return
	}
	err := s.Backend.SaveMessage(ctx, backend.NewMessage{
		PatientID: req.PatientID,
		Role:      pkg.RoleUser,
		Content:   text,
	})
	if err != nil {
		s.Logger.Warn("user message save failed", zap.String("patient_id", req.PatientID), zap.Error(err))
		s.Metrics.ObserveUpstreamFailure("save_user_message")
	}
}

// IsUUID reports whether s is a hyphenated UUID.
func IsUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
