package core

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"vetchat/internal/backend"
	"vetchat/internal/metrics"
	"vetchat/pkg"
	"vetchat/pkg/logging"
)

// Backend is the subset of the practice REST API the chat flow uses.
type Backend interface {
	GetPatient(ctx context.Context, patientID string) (*pkg.Patient, error)
	GetAppointmentHistory(ctx context.Context, patientID string) (json.RawMessage, error)
	ListMessages(ctx context.Context, patientID string, pageNumber, pageSize int) (backend.MessagePage, error)
	SaveMessage(ctx context.Context, msg backend.NewMessage) error
	DeleteMessage(ctx context.Context, messageID string) error
}

// Conversation is a patient's persisted history split into summaries and
// regular turns. All keeps every fetched row in order.
type Conversation struct {
	All       []pkg.StoredMessage
	Regular   []pkg.StoredMessage
	Summaries []pkg.Message
}

// Split separates summaries from regular turns. System rows that are not
// summaries belong to neither group.
func Split(all []pkg.StoredMessage) Conversation {
	conv := Conversation{All: all}
	for _, m := range all {
		if m.Role != pkg.RoleSystem {
			conv.Regular = append(conv.Regular, m)
			continue
		}
		if m.IsSummary() {
			conv.Summaries = append(conv.Summaries, pkg.NewTextMessage(pkg.RoleSystem, m.Content))
		}
	}
	return conv
}

// Fetcher pages through a patient's stored conversation.
type Fetcher struct {
	Backend  Backend
	PageSize int
	MaxPages int
	Logger   *logging.Logger
	Metrics  *metrics.ChatMetrics
}

// Fetch retrieves the whole history page by page. A failed page ends the walk
// and whatever was fetched so far is used.
func (f *Fetcher) Fetch(ctx context.Context, patientID string) Conversation {
	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	maxPages := f.MaxPages
	if maxPages <= 0 {
		maxPages = 100
	}

	var all []pkg.StoredMessage
	for page := 1; page <= maxPages; page++ {
		res, err := f.Backend.ListMessages(ctx, patientID, page, pageSize)
		if err != nil {
			f.Logger.Warn("conversation page fetch failed",
				zap.String("patient_id", patientID),
				zap.Int("page", page),
				zap.Error(err))
			f.Metrics.ObserveUpstreamFailure("list_messages")
			break
		}
		all = append(all, res.Items...)
		if len(res.Items) < pageSize || (res.HasNextPage != nil && !*res.HasNextPage) {
			break
		}
	}
	return Split(all)
}
