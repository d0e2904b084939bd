package collector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestClientRetriesTransientFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client := NewClient(5 * time.Second)
	body, err := client.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if string(body) != "ok" {
		t.Fatalf("body = %q, want %q", body, "ok")
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 requests, got %d", got)
	}
}

func TestClientDoesNotRetry4xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(5 * time.Second)
	_, err := client.Get(context.Background(), srv.URL)

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.Kind != FetchBadStatus || fe.Status != http.StatusNotFound {
		t.Fatalf("got kind %v status %d, want bad_status 404", fe.Kind, fe.Status)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected a single request for a 404, got %d", got)
	}
}

func TestClientPersistentServerErrorGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(5 * time.Second)
	_, err := client.Get(context.Background(), srv.URL)

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.Kind != FetchBadStatus || fe.Status != http.StatusBadGateway {
		t.Fatalf("got kind %v status %d, want bad_status 502", fe.Kind, fe.Status)
	}
}

func TestClientClassifiesTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient(30 * time.Millisecond)
	_, err := client.Get(context.Background(), srv.URL)

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.Kind != FetchTimeout {
		t.Fatalf("got kind %v, want timeout", fe.Kind)
	}
}

func TestClientClassifiesUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead := srv.URL
	srv.Close()

	client := NewClient(time.Second)
	_, err := client.Get(context.Background(), dead)

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.Kind != FetchUnreachable {
		t.Fatalf("got kind %v, want unreachable", fe.Kind)
	}
}

func TestClientStopsWhenContextCancelled(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	client := NewClient(5 * time.Second)
	_, err := client.Get(ctx, srv.URL)
	if err == nil {
		t.Fatalf("expected an error after context deadline")
	}
	// no second attempt once the run's context is gone
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected 1 request, got %d", got)
	}
}

func TestGetDocumentParsesPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><h1>Colheita avança</h1></body></html>`))
	}))
	defer srv.Close()

	client := NewClient(5 * time.Second)
	doc, raw, err := client.GetDocument(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("GetDocument error: %v", err)
	}
	if len(raw) == 0 {
		t.Fatalf("expected raw bytes alongside the document")
	}
	if got := doc.Find("h1").Text(); got != "Colheita avança" {
		t.Fatalf("h1 = %q", got)
	}
}
