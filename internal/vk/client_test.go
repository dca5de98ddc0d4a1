package vk

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"

	"rent_bot/internal/model"
)

type mockTransport struct {
	body       string
	statusCode int
	err        error

	gotMethod string
	gotParams url.Values
}

func (m *mockTransport) Do(req *http.Request) (*http.Response, error) {
	if m.err != nil {
		return nil, m.err
	}
	body, _ := io.ReadAll(req.Body)
	m.gotParams, _ = url.ParseQuery(string(body))
	m.gotMethod = req.URL.Path
	return &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func TestWallGet(t *testing.T) {
	tests := []struct {
		name      string
		transport *mockTransport
		want      []model.Post
		wantErr   bool
	}{
		{
			name: "successful fetch",
			transport: &mockTransport{
				statusCode: 200,
				body: `{"response":{"count":3,"items":[
					{"id":105,"text":"Район: Центр\nЦена: 30000","date":1717200000},
					{"id":104,"text":"просто пост","date":1717100000},
					{"id":103,"text":"Район: Север\nЦена: 15000","date":1717000000}
				]}}`,
			},
			want: []model.Post{
				{ID: 105, Text: "Район: Центр\nЦена: 30000", Date: 1717200000},
				{ID: 104, Text: "просто пост", Date: 1717100000},
				{ID: 103, Text: "Район: Север\nЦена: 15000", Date: 1717000000},
			},
		},
		{
			name: "api error envelope",
			transport: &mockTransport{
				statusCode: 200,
				body:       `{"error":{"error_code":15,"error_msg":"Access denied"}}`,
			},
			wantErr: true,
		},
		{
			name:      "http error status",
			transport: &mockTransport{statusCode: 503, body: "unavailable"},
			wantErr:   true,
		},
		{
			name:      "network error",
			transport: &mockTransport{err: io.ErrUnexpectedEOF},
			wantErr:   true,
		},
		{
			name:      "invalid json",
			transport: &mockTransport{statusCode: 200, body: "not json"},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewWithHTTPClient(tt.transport, "wall-token", "bot-token")
			got, err := c.WallGet(context.Background(), -12345, 10)

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("posts mismatch (-want +got):\n%s", diff)
			}

			if diff := cmp.Diff("-12345", tt.transport.gotParams.Get("owner_id")); diff != "" {
				t.Errorf("owner_id mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff("wall-token", tt.transport.gotParams.Get("access_token")); diff != "" {
				t.Errorf("wall.get must use the wall token (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWallGetAPIErrorType(t *testing.T) {
	transport := &mockTransport{
		statusCode: 200,
		body:       `{"error":{"error_code":5,"error_msg":"User authorization failed"}}`,
	}
	c := NewWithHTTPClient(transport, "w", "b")

	_, err := c.WallGet(context.Background(), -1, 10)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Code != 5 {
		t.Errorf("expected code 5, got %d", apiErr.Code)
	}
}

func TestSendMessage(t *testing.T) {
	transport := &mockTransport{statusCode: 200, body: `{"response":123}`}
	c := NewWithHTTPClient(transport, "wall-token", "bot-token")

	err := c.SendMessage(context.Background(), 42, "привет", "wall-12345_105", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if diff := cmp.Diff("42", transport.gotParams.Get("user_id")); diff != "" {
		t.Errorf("user_id mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("wall-12345_105", transport.gotParams.Get("attachment")); diff != "" {
		t.Errorf("attachment mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("bot-token", transport.gotParams.Get("access_token")); diff != "" {
		t.Errorf("messages.send must use the bot token (-want +got):\n%s", diff)
	}
	if transport.gotParams.Get("random_id") == "" {
		t.Error("expected random_id to be set")
	}
	if transport.gotParams.Has("keyboard") {
		t.Error("empty keyboard must be omitted")
	}
}

func TestSendMessageGatewayError(t *testing.T) {
	transport := &mockTransport{
		statusCode: 200,
		body:       `{"error":{"error_code":901,"error_msg":"Can't send messages for users without permission"}}`,
	}
	c := NewWithHTTPClient(transport, "w", "b")

	if err := c.SendMessage(context.Background(), 42, "hi", "", ""); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestIsGroupMember(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{name: "member", body: `{"response":1}`, want: true},
		{name: "not a member", body: `{"response":0}`, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &mockTransport{statusCode: 200, body: tt.body}
			c := NewWithHTTPClient(transport, "w", "b")

			got, err := c.IsGroupMember(context.Background(), 12345, 42)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("membership mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
