package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestPusher_EnqueueNoOpWhenURLEmpty(t *testing.T) {
	p := NewPusher("", 4, nil)
	p.Enqueue(Event{Type: EventTypeError})
	// inert Pusher: must not block or panic.
}

func TestPusher_RunPostsNdjsonLine(t *testing.T) {
	var (
		mu       sync.Mutex
		received []Event
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events" {
			t.Errorf("path = %s, want /events", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-ndjson" {
			t.Errorf("Content-Type = %q", ct)
		}
		scanner := bufio.NewScanner(r.Body)
		for scanner.Scan() {
			var ev Event
			if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
				t.Errorf("unmarshal: %v", err)
				continue
			}
			mu.Lock()
			received = append(received, ev)
			mu.Unlock()
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewPusher(srv.URL, 4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Enqueue(Event{Type: EventTypeError, ErrorEvent: &ErrorEvent{Operation: "fetch", Message: "boom"}})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("received %d events, want 1", len(received))
	}
	if received[0].Type != EventTypeError || received[0].ErrorEvent == nil || received[0].ErrorEvent.Operation != "fetch" {
		t.Errorf("received[0] = %+v", received[0])
	}
}

func TestPusher_EnqueueDropsWhenQueueFull(t *testing.T) {
	// No server needed: Run is never started, so the queue fills and the
	// next Enqueue must return immediately rather than block.
	p := NewPusher("http://example.invalid", 1, nil)
	p.Enqueue(Event{Type: EventTypeError})

	done := make(chan struct{})
	go func() {
		p.Enqueue(Event{Type: EventTypeError})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
}
