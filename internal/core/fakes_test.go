package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"vetchat/internal/backend"
	"vetchat/internal/llm"
	"vetchat/pkg"
)

type fakeBackend struct {
	mu sync.Mutex

	patient    *pkg.Patient
	patientErr error
	history    json.RawMessage
	historyErr error

	pages     [][]pkg.StoredMessage
	listErrAt int
	listFn    func(page, size int) (backend.MessagePage, error)
	listCalls int

	saved     []backend.NewMessage
	saveErr   error
	deleted   []string
	deleteErr error
	tokens    []string
}

func (f *fakeBackend) GetPatient(ctx context.Context, id string) (*pkg.Patient, error) {
	if f.patientErr != nil {
		return nil, f.patientErr
	}
	if f.patient == nil {
		return nil, &backend.StatusError{Op: "get_patient", StatusCode: 404}
	}
	return f.patient, nil
}

func (f *fakeBackend) GetAppointmentHistory(ctx context.Context, id string) (json.RawMessage, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history, nil
}

func (f *fakeBackend) ListMessages(ctx context.Context, id string, page, size int) (backend.MessagePage, error) {
	f.mu.Lock()
	f.listCalls++
	f.mu.Unlock()
	if f.listFn != nil {
		return f.listFn(page, size)
	}
	if page == f.listErrAt {
		return backend.MessagePage{}, errors.New("backend unavailable")
	}
	if page-1 < len(f.pages) {
		return backend.MessagePage{Items: f.pages[page-1]}, nil
	}
	return backend.MessagePage{}, nil
}

func (f *fakeBackend) SaveMessage(ctx context.Context, msg backend.NewMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, backend.TokenFromContext(ctx))
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, msg)
	return nil
}

func (f *fakeBackend) DeleteMessage(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeBackend) savedByRole(role pkg.Role) []backend.NewMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []backend.NewMessage
	for _, m := range f.saved {
		if m.Role == role {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeBackend) deletedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

type fakeLLM struct {
	mu sync.Mutex

	deltas    []string
	streamErr error
	requests  []llm.Request

	summary        string
	summaryErr     error
	summaryPrompts []string
}

func (f *fakeLLM) Stream(ctx context.Context, req llm.Request, onDelta func(string) error) (string, error) {
	if _, err := llm.ConvertMessages(req.System, req.Messages); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.streamErr != nil {
		return "", f.streamErr
	}
	for _, d := range f.deltas {
		if onDelta != nil {
			if err := onDelta(d); err != nil {
				return "", err
			}
		}
	}
	return strings.Join(f.deltas, ""), nil
}

func (f *fakeLLM) Summarize(ctx context.Context, system, prompt string) (string, error) {
	f.mu.Lock()
	f.summaryPrompts = append(f.summaryPrompts, prompt)
	f.mu.Unlock()
	return f.summary, f.summaryErr
}

func (f *fakeLLM) summarizeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.summaryPrompts)
}

// storedTurns returns n alternating user/assistant rows with IDs m1..mn.
func storedTurns(n int) []pkg.StoredMessage {
	out := make([]pkg.StoredMessage, 0, n)
	for i := 1; i <= n; i++ {
		role := pkg.RoleUser
		if i%2 == 0 {
			role = pkg.RoleAssistant
		}
		out = append(out, pkg.StoredMessage{
			ID:      pkg.FlexID(fmt.Sprintf("m%d", i)),
			Role:    role,
			Content: fmt.Sprintf("turn %d", i),
		})
	}
	return out
}

func summaryRow(id, content string) pkg.StoredMessage {
	return pkg.StoredMessage{
		ID:       pkg.FlexID(id),
		Role:     pkg.RoleSystem,
		Content:  content,
		Metadata: json.RawMessage(`"{\"type\":\"summary\",\"summarizedMessageCount\":5}"`),
	}
}

type fakeJournal struct {
	mu   sync.Mutex
	runs []pkg.SummarizationRun
	err  error
}

func (j *fakeJournal) RecordRun(ctx context.Context, run pkg.SummarizationRun) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.runs = append(j.runs, run)
	return j.err
}

type fakeNotifier struct {
	mu      sync.Mutex
	patient []string
}

func (n *fakeNotifier) Notify(ctx context.Context, patientID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.patient = append(n.patient, patientID)
	return nil
}
