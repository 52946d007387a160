// Package backend is a typed client for the practice management REST API.
// Every call is authenticated with the caller's bearer token, which travels
// in the request context.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"vetchat/pkg"
)

type tokenKey struct{}

// WithToken returns a context carrying the bearer token for backend calls.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the bearer token stored by WithToken.
func TokenFromContext(ctx context.Context) string {
	tok, _ := ctx.Value(tokenKey{}).(string)
	return tok
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend: %s: status %d", e.Op, e.StatusCode)
}

// Client calls the backend REST API.
type Client struct {
	rest   *resty.Client
	tracer trace.Tracer
}

// New constructs a Client for the API rooted at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	rest := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)
	return &Client{
		rest:   rest,
		tracer: otel.Tracer("vetchat.internal.backend"),
	}
}

func (c *Client) request(ctx context.Context) *resty.Request {
	req := c.rest.R().SetContext(ctx)
	if tok := TokenFromContext(ctx); tok != "" {
		req.SetAuthToken(tok)
	}
	return req
}

// do executes fn inside a span and converts transport and status failures
// into errors.
func (c *Client) do(ctx context.Context, op string, attrs []attribute.KeyValue, fn func(ctx context.Context) (*resty.Response, error)) (*resty.Response, error) {
	ctx, span := c.tracer.Start(ctx, "backend."+op, trace.WithAttributes(attrs...))
	defer span.End()

	resp, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("backend: %s: %w", op, err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode()))
	if !resp.IsSuccess() {
		serr := &StatusError{Op: op, StatusCode: resp.StatusCode(), Body: resp.String()}
		span.RecordError(serr)
		span.SetStatus(codes.Error, serr.Error())
		return nil, serr
	}
	return resp, nil
}

// GetPatient fetches patient demographics.
func (c *Client) GetPatient(ctx context.Context, patientID string) (*pkg.Patient, error) {
	resp, err := c.do(ctx, "get_patient", []attribute.KeyValue{attribute.String("patient.id", patientID)},
		func(ctx context.Context) (*resty.Response, error) {
			return c.request(ctx).SetPathParam("id", patientID).Get("/api/Patient/{id}")
		})
	if err != nil {
		return nil, err
	}
	var p pkg.Patient
	if err := json.Unmarshal(resp.Body(), &p); err != nil {
		return nil, fmt.Errorf("backend: get_patient: decode: %w", err)
	}
	return &p, nil
}

// GetAppointmentHistory returns the patient's appointment history array
// exactly as the backend encoded it.
func (c *Client) GetAppointmentHistory(ctx context.Context, patientID string) (json.RawMessage, error) {
	resp, err := c.do(ctx, "get_appointment_history", []attribute.KeyValue{attribute.String("patient.id", patientID)},
		func(ctx context.Context) (*resty.Response, error) {
			return c.request(ctx).SetPathParam("id", patientID).Get("/api/Patient/{id}/appointment-history")
		})
	if err != nil {
		return nil, err
	}
	var body struct {
		AppointmentHistory json.RawMessage `json:"appointmentHistory"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("backend: get_appointment_history: decode: %w", err)
	}
	if len(body.AppointmentHistory) == 0 || bytes.Equal(body.AppointmentHistory, []byte("null")) {
		return json.RawMessage("[]"), nil
	}
	return body.AppointmentHistory, nil
}

// MessagePage is one page of stored conversation messages. HasNextPage is
// nil when the backend did not say.
type MessagePage struct {
	Items       []pkg.StoredMessage
	HasNextPage *bool
}

// ListMessages fetches one page of a patient's conversation. The backend
// answers with a bare array, {items, hasNextPage} or {messages}.
func (c *Client) ListMessages(ctx context.Context, patientID string, pageNumber, pageSize int) (MessagePage, error) {
	attrs := []attribute.KeyValue{
		attribute.String("patient.id", patientID),
		attribute.Int("page.number", pageNumber),
	}
	resp, err := c.do(ctx, "list_messages", attrs, func(ctx context.Context) (*resty.Response, error) {
		return c.request(ctx).
			SetPathParam("id", patientID).
			SetQueryParams(map[string]string{
				"pageNumber":         strconv.Itoa(pageNumber),
				"pageSize":           strconv.Itoa(pageSize),
				"paginationRequired": "true",
			}).
			Get("/api/Conversation/patient/{id}/messages")
	})
	if err != nil {
		return MessagePage{}, err
	}
	page, err := decodeMessagePage(resp.Body())
	if err != nil {
		return MessagePage{}, fmt.Errorf("backend: list_messages: %w", err)
	}
	return page, nil
}

func decodeMessagePage(body []byte) (MessagePage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return MessagePage{}, fmt.Errorf("empty body")
	}
	if body[0] == '[' {
		var items []pkg.StoredMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return MessagePage{}, fmt.Errorf("decode array: %w", err)
		}
		return MessagePage{Items: items}, nil
	}
	var obj struct {
		Items       []pkg.StoredMessage `json:"items"`
		HasNextPage *bool               `json:"hasNextPage"`
		Messages    []pkg.StoredMessage `json:"messages"`
	}
	if err := json.Unmarshal(body, &obj); err != nil {
		return MessagePage{}, fmt.Errorf("decode object: %w", err)
	}
	if obj.Items != nil {
		return MessagePage{Items: obj.Items, HasNextPage: obj.HasNextPage}, nil
	}
	if obj.Messages != nil {
		return MessagePage{Items: obj.Messages, HasNextPage: obj.HasNextPage}, nil
	}
	return MessagePage{HasNextPage: obj.HasNextPage}, nil
}

// NewMessage is the body of a conversation message create. Metadata is a JSON
// encoded string, as the backend stores it.
type NewMessage struct {
	PatientID string   `json:"patientId"`
	Role      pkg.Role `json:"role"`
	Content   string   `json:"content"`
	Metadata  string   `json:"metadata,omitempty"`
}

// SaveMessage persists one conversation message.
func (c *Client) SaveMessage(ctx context.Context, msg NewMessage) error {
	attrs := []attribute.KeyValue{
		attribute.String("patient.id", msg.PatientID),
		attribute.String("message.role", string(msg.Role)),
	}
	_, err := c.do(ctx, "save_message", attrs, func(ctx context.Context) (*resty.Response, error) {
		return c.request(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(msg).
			Post("/api/Conversation/messages")
	})
	return err
}

// DeleteMessage removes one conversation message.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	_, err := c.do(ctx, "delete_message", []attribute.KeyValue{attribute.String("message.id", messageID)},
		func(ctx context.Context) (*resty.Response, error) {
			return c.request(ctx).SetPathParam("id", messageID).Delete("/api/Conversation/messages/{id}")
		})
	return err
}
