package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vetchat/pkg"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL, 5*time.Second)
}

func TestGetPatientSendsBearerToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/Patient/p-1", r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"p-1","name":"Bella","species":"Canine","weight":12.5,"clientFirstName":"Ann","clientLastName":"Lee"}`)
	})

	ctx := WithToken(context.Background(), "tok-123")
	p, err := c.GetPatient(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Bella", p.Name)
	assert.Equal(t, "Ann Lee", p.OwnerName())
	assert.Equal(t, 12.5, p.Weight)
}

func TestGetPatientStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})

	_, err := c.GetPatient(context.Background(), "missing")
	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusNotFound, serr.StatusCode)
	assert.Equal(t, "get_patient", serr.Op)
}

func TestGetAppointmentHistoryReturnsRawArray(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/Patient/p-1/appointment-history", r.URL.Path)
		io.WriteString(w, `{"appointmentHistory":[{"id":"a1","reason":"Vaccination"}]}`)
	})

	raw, err := c.GetAppointmentHistory(context.Background(), "p-1")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"a1","reason":"Vaccination"}]`, string(raw))
}

func TestGetAppointmentHistoryMissingField(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	})

	raw, err := c.GetAppointmentHistory(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
}

func TestListMessagesQueryAndShapes(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantLen  int
		wantNext *bool
	}{
		{"bare array", `[{"id":1,"role":"user","content":"a"},{"id":2,"role":"assistant","content":"b"}]`, 2, nil},
		{"items", `{"items":[{"id":"x","role":"user","content":"a"}],"hasNextPage":true}`, 1, boolPtr(true)},
		{"messages", `{"messages":[{"id":"x","role":"user","content":"a"}]}`, 1, nil},
		{"empty object", `{}`, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/Conversation/patient/p-1/messages", r.URL.Path)
				q := r.URL.Query()
				assert.Equal(t, "2", q.Get("pageNumber"))
				assert.Equal(t, "100", q.Get("pageSize"))
				assert.Equal(t, "true", q.Get("paginationRequired"))
				io.WriteString(w, tt.body)
			})

			page, err := c.ListMessages(context.Background(), "p-1", 2, 100)
			require.NoError(t, err)
			assert.Len(t, page.Items, tt.wantLen)
			assert.Equal(t, tt.wantNext, page.HasNextPage)
		})
	}
}

func TestListMessagesRejectsGarbage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `"just a string"`)
	})
	_, err := c.ListMessages(context.Background(), "p-1", 1, 100)
	require.Error(t, err)
}

func TestSaveMessagePostsBody(t *testing.T) {
	var got NewMessage
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/Conversation/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	})

	err := c.SaveMessage(context.Background(), NewMessage{
		PatientID: "p-1",
		Role:      pkg.RoleSystem,
		Content:   "summary",
		Metadata:  `{"type":"summary"}`,
	})
	require.NoError(t, err)
	assert.Equal(t, pkg.RoleSystem, got.Role)
	assert.Equal(t, `{"type":"summary"}`, got.Metadata)
}

func TestDeleteMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/Conversation/messages/m-9", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, c.DeleteMessage(context.Background(), "m-9"))
}

func TestTransportError(t *testing.T) {
	c := New("http://127.0.0.1:1", time.Second)
	err := c.DeleteMessage(context.Background(), "m-9")
	require.Error(t, err)
	var serr *StatusError
	assert.False(t, errors.As(err, &serr))
}

func boolPtr(b bool) *bool { return &b }
