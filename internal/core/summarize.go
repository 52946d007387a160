package core

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"vetchat/internal/backend"
	"vetchat/internal/llm"
	"vetchat/internal/lock"
	"vetchat/internal/metrics"
	"vetchat/pkg"
	"vetchat/pkg/logging"
)

// Summarization outcomes, used for the journal and metrics.
const (
	OutcomeSaved     = "saved"
	OutcomeEmpty     = "empty"
	OutcomeLLMError  = "llm_error"
	OutcomeSaveError = "save_error"
	OutcomeLocked    = "skipped_locked"
)

// RunRecorder journals summarization passes.
type RunRecorder interface {
	RecordRun(ctx context.Context, run pkg.SummarizationRun) error
}

// SummaryNotifier announces that a patient has a new summary.
type SummaryNotifier interface {
	Notify(ctx context.Context, patientID string) error
}

// MessageStore is what a summarization pass writes to.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg backend.NewMessage) error
	DeleteMessage(ctx context.Context, messageID string) error
}

// Summarizer folds the oldest turns of a conversation into a single system
// summary message and removes the originals.
type Summarizer struct {
	LLM      llm.Client
	Store    MessageStore
	Locker   lock.Locker
	Journal  RunRecorder
	Notifier SummaryNotifier
	Runner   *Runner
	Logger   *logging.Logger
	Metrics  *metrics.ChatMetrics

	now func() time.Time
}

// NewSummarizer constructs a summariser. Journal and Notifier may be nil.
func NewSummarizer(client llm.Client, store MessageStore, runner *Runner, logger *logging.Logger) *Summarizer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Summarizer{
		LLM:    client,
		Store:  store,
		Locker: lock.Nop{},
		Runner: runner,
		Logger: logger,
		now:    time.Now,
	}
}

// Schedule starts a detached pass over toSummarize. It returns immediately;
// the pass outlives the request but keeps its values (the bearer token).
func (s *Summarizer) Schedule(ctx context.Context, patientID string, toSummarize, all []pkg.StoredMessage) {
	if len(toSummarize) == 0 {
		return
	}
	bg := context.WithoutCancel(ctx)
	s.Runner.Go("summarize", func() {
		s.Summarize(bg, patientID, toSummarize, all)
	})
}

// Summarize runs one pass synchronously. It never fails: every error is
// logged, counted and reflected in the returned run.
func (s *Summarizer) Summarize(ctx context.Context, patientID string, toSummarize, all []pkg.StoredMessage) pkg.SummarizationRun {
	run := pkg.SummarizationRun{
		PatientID:       patientID,
		SummarizedCount: len(toSummarize),
		StartedAt:       s.clock(),
	}
	log := s.Logger.With(zap.String("patient_id", patientID), zap.Int("messages", len(toSummarize)))

	key := "summary:" + patientID
	token, ok, err := s.Locker.TryAcquire(ctx, key)
	switch {
	case err != nil:
		log.Warn("summary lock unavailable, continuing unguarded", zap.Error(err))
	case !ok:
		log.Info("summary already in progress, skipping")
		run.Outcome = OutcomeLocked
		run.SummarizedCount = 0
		s.finish(ctx, &run)
		return run
	default:
		defer func() {
			if err := s.Locker.Release(ctx, key, token); err != nil {
				log.Warn("summary lock release failed", zap.Error(err))
			}
		}()
	}

	text, err := s.LLM.Summarize(ctx, SummarizationInstruction, BuildSummaryPrompt(toSummarize))
	if err != nil {
		log.Warn("summarization request failed", zap.Error(err))
		run.Outcome = OutcomeLLMError
		run.Error = err.Error()
		s.finish(ctx, &run)
		return run
	}
	text = strings.TrimSpace(text)
	if text == "" {
		log.Warn("summarization returned empty text")
		run.Outcome = OutcomeEmpty
		s.finish(ctx, &run)
		return run
	}

	meta, err := json.Marshal(pkg.SummaryMetadata{
		Type:                   pkg.SummaryType,
		SummarizedMessageCount: len(toSummarize),
		CreatedAt:              s.clock().UTC(),
	})
	if err != nil {
		run.Outcome = OutcomeSaveError
		run.Error = err.Error()
		s.finish(ctx, &run)
		return run
	}
	if err := s.Store.SaveMessage(ctx, backend.NewMessage{
		PatientID: patientID,
		Role:      pkg.RoleSystem,
		Content:   text,
		Metadata:  string(meta),
	}); err != nil {
		log.Warn("summary save failed", zap.Error(err))
		s.Metrics.ObserveUpstreamFailure("save_summary")
		run.Outcome = OutcomeSaveError
		run.Error = err.Error()
		s.finish(ctx, &run)
		return run
	}

	for _, id := range SummarizedIDs(toSummarize, all) {
		if err := s.Store.DeleteMessage(ctx, id); err != nil {
			log.Warn("summarized message delete failed", zap.String("message_id", id), zap.Error(err))
			s.Metrics.ObserveUpstreamFailure("delete_message")
			continue
		}
		run.DeletedCount++
	}

	run.Outcome = OutcomeSaved
	s.finish(ctx, &run)
	if s.Notifier != nil {
		if err := s.Notifier.Notify(ctx, patientID); err != nil {
			log.Warn("summary notify failed", zap.Error(err))
		}
	}
	log.Info("conversation summarized", zap.Int("deleted", run.DeletedCount))
	return run
}

func (s *Summarizer) finish(ctx context.Context, run *pkg.SummarizationRun) {
	run.FinishedAt = s.clock()
	s.Metrics.ObserveSummarization(run.Outcome)
	if s.Journal == nil {
		return
	}
	if err := s.Journal.RecordRun(ctx, *run); err != nil {
		s.Logger.Warn("summarization journal write failed", zap.String("patient_id", run.PatientID), zap.Error(err))
	}
}

func (s *Summarizer) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

// BuildSummaryPrompt renders the turns as "role: content" lines.
func BuildSummaryPrompt(turns []pkg.StoredMessage) string {
	var b strings.Builder
	b.WriteString(SummarizationPrompt)
	b.WriteString("\n\n")
	for i, m := range turns {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}

// SummarizedIDs resolves the backend IDs of the summarized turns. A turn
// without its own ID is matched by role and content against the fetched
// set; each stored row is claimed at most once, so an identical later turn
// is never deleted in its place.
func SummarizedIDs(toSummarize, all []pkg.StoredMessage) []string {
	claimed := make(map[int]bool, len(toSummarize))
	seen := make(map[string]bool, len(toSummarize))
	ids := make([]string, 0, len(toSummarize))
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		ids = append(ids, id)
	}

	for _, t := range toSummarize {
		if t.ID != "" {
			for i, m := range all {
				if m.ID == t.ID {
					claimed[i] = true
				}
			}
			add(string(t.ID))
			continue
		}
		for i, m := range all {
			if claimed[i] || m.Role == pkg.RoleSystem {
				continue
			}
			if m.Role == t.Role && m.Content == t.Content {
				claimed[i] = true
				add(string(m.ID))
				break
			}
		}
	}
	return ids
}
