package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type project struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func newTestHTTP(t *testing.T, h http.HandlerFunc) *HTTP {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewHTTP(srv.URL, WithHeader("X-Client", "rawrsync"))
	if err != nil {
		t.Fatalf("NewHTTP: %v", err)
	}
	return c
}

func TestNewHTTP_RejectsBadScheme(t *testing.T) {
	if _, err := NewHTTP("ftp://example.com"); err == nil {
		t.Fatal("expected error for non-http scheme")
	}
}

func TestHTTP_CallDecodesJSON(t *testing.T) {
	c := newTestHTTP(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/projects/7" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("X-Client"); got != "rawrsync" {
			t.Errorf("default header: got %q", got)
		}
		_ = json.NewEncoder(w).Encode(project{ID: 7, Name: "Apollo"})
	})

	p, err := Call[project](t.Context(), c, &Request{Method: http.MethodGet, Path: "/api/projects/7"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != 7 || p.Name != "Apollo" {
		t.Fatalf("got %+v", p)
	}
}

func TestHTTP_SendsJSONBody(t *testing.T) {
	c := newTestHTTP(t, func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type: got %q", ct)
		}
		var p project
		_ = json.NewDecoder(r.Body).Decode(&p)
		p.ID = 11
		_ = json.NewEncoder(w).Encode(p)
	})

	p, err := Call[project](t.Context(), c, &Request{
		Method: http.MethodPost,
		Path:   "/api/projects",
		Body:   project{Name: "Gemini"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != 11 || p.Name != "Gemini" {
		t.Fatalf("got %+v", p)
	}
}

func TestHTTP_PlainText(t *testing.T) {
	c := newTestHTTP(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if ct := r.Header.Get("Content-Type"); ct != "text/plain; charset=utf-8" {
			t.Errorf("content type: got %q", ct)
		}
		if string(body) != "fix the login bug" {
			t.Errorf("body: got %q", body)
		}
		_, _ = io.WriteString(w, "HIGH")
	})

	got, err := CallText(t.Context(), c, &Request{
		Method: http.MethodPost,
		Path:   "/api/tasks/generate-priority",
		Body:   "fix the login bug",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "HIGH" {
		t.Fatalf("got %q, want %q", got, "HIGH")
	}
}

func TestHTTP_ErrorStatus(t *testing.T) {
	c := newTestHTTP(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message":"project 9 not found"}`)
	})

	_, err := Call[project](t.Context(), c, &Request{Method: http.MethodGet, Path: "/api/projects/9"})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError, got %T %v", err, err)
	}
	if te.Status != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", te.Status)
	}
	if te.Message != "project 9 not found" {
		t.Fatalf("got message %q", te.Message)
	}
	if !IsNotFound(err) {
		t.Fatal("IsNotFound should report true")
	}
	if ServerFault(err) {
		t.Fatal("404 is not a server fault")
	}
}

func TestHTTP_OversizedBodyFails(t *testing.T) {
	c := newTestHTTP(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write(bytes.Repeat([]byte("x"), maxBody+1))
	})

	_, err := CallText(t.Context(), c, &Request{Method: http.MethodGet, Path: "/api/tasks/export"})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError, got %T %v", err, err)
	}
	if te.Status != http.StatusOK {
		t.Fatalf("got status %d, want 200", te.Status)
	}
	if !strings.Contains(te.Message, "exceeds") {
		t.Fatalf("got message %q", te.Message)
	}
}

func TestHTTP_BodyAtLimitIsRead(t *testing.T) {
	c := newTestHTTP(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write(bytes.Repeat([]byte("x"), maxBody))
	})

	got, err := CallText(t.Context(), c, &Request{Method: http.MethodGet, Path: "/api/tasks/export"})
	if err != nil {
		t.Fatalf("CallText: %v", err)
	}
	if len(got) != maxBody {
		t.Fatalf("got %d bytes, want %d", len(got), maxBody)
	}
}

func TestHTTP_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c, err := NewHTTP(srv.URL)
	if err != nil {
		t.Fatalf("NewHTTP: %v", err)
	}
	srv.Close()

	err = Exec(t.Context(), c, &Request{Method: http.MethodDelete, Path: "/api/tasks/1"})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError, got %T %v", err, err)
	}
	if te.Status != 0 {
		t.Fatalf("network failure should carry status 0, got %d", te.Status)
	}
	if !ServerFault(err) {
		t.Fatal("network failure is a server fault")
	}
}

func TestHTTP_ContextCanceled(t *testing.T) {
	c := newTestHTTP(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	err := Exec(ctx, c, &Request{Method: http.MethodGet, Path: "/api/users"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in chain, got %v", err)
	}
}

type checkedPayload struct{ Name string }

func (p checkedPayload) Validate() error {
	if p.Name == "" {
		return Invalid("name", "required")
	}
	return nil
}

func TestCall_ValidatesBeforeSending(t *testing.T) {
	sent := false
	d := Handler(func(context.Context, *Request) (*Response, error) {
		sent = true
		return &Response{Status: http.StatusOK}, nil
	})

	err := Exec(t.Context(), d, &Request{Method: http.MethodPost, Path: "/x", Body: checkedPayload{}})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if ve.Field != "name" {
		t.Fatalf("got field %q", ve.Field)
	}
	if sent {
		t.Fatal("invalid payload must not be sent")
	}
}

func TestResponse_DecodeEmptyBody(t *testing.T) {
	resp := &Response{Status: http.StatusNoContent}
	p := project{ID: 1}
	if err := resp.Decode(&p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != 1 {
		t.Fatal("empty body must leave the target untouched")
	}
}
