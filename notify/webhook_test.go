package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebhookPublish(t *testing.T) {
	var gotSubject, gotBody, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject = r.Header.Get(SubjectHeader)
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL).Publish(context.Background(), "automaton.child.spawned", []byte(`{"child_id":"c1"}`))
	if err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	if gotSubject != "automaton.child.spawned" {
		t.Errorf("subject header = %q", gotSubject)
	}
	if gotType != "application/json" {
		t.Errorf("content type = %q", gotType)
	}
	if gotBody != `{"child_id":"c1"}` {
		t.Errorf("body = %q", gotBody)
	}
}

func TestWebhookRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL).Publish(context.Background(), "s", []byte(`{}`))
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Errorf("Publish() error = %v, want the 503 status", err)
	}
}
