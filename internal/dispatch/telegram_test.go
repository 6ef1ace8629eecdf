package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/svyatogor45/marketmonitor/internal/model"
)

func TestChatBotAdapter_Send_OK(t *testing.T) {
	var captured sendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bot12345/sendMessage" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	a := NewChatBotAdapter(srv.URL, "12345")
	n := model.Notification{
		User: "chat-1", Message: "hi there",
		Metadata: model.NotificationMetadata{ParseMode: "HTML", DisableWebPagePreview: true},
	}
	if err := a.Send(context.Background(), n); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if captured.ChatID != "chat-1" || captured.Text != "hi there" || captured.ParseMode != "HTML" {
		t.Errorf("captured request = %+v, want matching fields", captured)
	}
}

func TestChatBotAdapter_Send_OKFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok": false}`))
	}))
	defer srv.Close()

	a := NewChatBotAdapter(srv.URL, "12345")
	n := model.Notification{User: "chat-1", Message: "hi"}
	if err := a.Send(context.Background(), n); err == nil {
		t.Fatal("Send() error = nil, want error for ok=false response")
	}
}

func TestChatBotAdapter_Send_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewChatBotAdapter(srv.URL, "12345")
	n := model.Notification{User: "chat-1", Message: "hi"}
	if err := a.Send(context.Background(), n); err == nil {
		t.Fatal("Send() error = nil, want error for a 500 response")
	}
}
