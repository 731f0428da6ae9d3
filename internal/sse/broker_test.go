package sse

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/autolink/internal/index"
)

// drain collects whatever is buffered for a subscriber right now.
func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func countEvents(msgs []string, typ string) int {
	n := 0
	for _, m := range msgs {
		if strings.Contains(m, "event: "+typ+"\n") {
			n++
		}
	}
	return n
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: EventRunCompleted, Data: RunSummary{ID: "r1", Notes: 3}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.HasPrefix(s, "id: 1\nevent: run.completed\n") {
			t.Errorf("unexpected frame header in %q", s)
		}
		if !strings.Contains(s, `"id":"r1"`) || !strings.Contains(s, `"notes":3`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishSync_ReferencesWindow(t *testing.T) {
	b := NewBroker(300 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishSync(index.Run{ID: "r1", References: 1}, nil)
	b.PublishSync(index.Run{ID: "r2", References: 2}, nil)
	b.PublishSync(index.Run{ID: "r3", References: 3}, nil)

	time.Sleep(50 * time.Millisecond)
	first := drain(ch)
	if n := countEvents(first, EventRunCompleted); n != 3 {
		t.Errorf("run events = %d, want 3", n)
	}
	if n := countEvents(first, EventReferencesUpdated); n != 1 {
		t.Fatalf("references events = %d, want 1 inside the window", n)
	}

	// r2 and r3 are folded into one update sent when the window ends.
	time.Sleep(400 * time.Millisecond)
	later := drain(ch)
	if n := countEvents(later, EventReferencesUpdated); n != 1 {
		t.Fatalf("references events after window = %d, want 1: %q", n, later)
	}
	if !strings.Contains(later[0], `"id":"r3"`) {
		t.Errorf("folded update = %q, want newest run r3", later[0])
	}
}

func TestPublishSync_Failure(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishSync(index.Run{}, errors.New("vault unreadable"))

	time.Sleep(50 * time.Millisecond)
	msgs := drain(ch)
	if len(msgs) != 1 {
		t.Fatalf("messages = %q, want exactly sync.failed", msgs)
	}
	if !strings.Contains(msgs[0], "event: sync.failed") || !strings.Contains(msgs[0], "vault unreadable") {
		t.Errorf("message = %q", msgs[0])
	}
}

func TestSubscribeFrom_ReplaysMissedFrames(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()

	for _, id := range []string{"a", "b", "c"} {
		b.Publish(Event{Type: EventRunCompleted, Data: RunSummary{ID: id}})
	}
	ch := b.SubscribeFrom(1)
	defer b.Unsubscribe(ch)
	// ClientCount is served after the replay finished.
	b.ClientCount()
	msgs := drain(ch)
	if len(msgs) != 2 {
		t.Fatalf("replayed = %q, want frames 2 and 3", msgs)
	}
	if !strings.HasPrefix(msgs[0], "id: 2\n") || !strings.HasPrefix(msgs[1], "id: 3\n") {
		t.Errorf("replayed = %q", msgs)
	}

	fresh := b.Subscribe()
	defer b.Unsubscribe(fresh)
	b.ClientCount()
	if got := drain(fresh); len(got) != 0 {
		t.Errorf("new client replayed %q", got)
	}
}

func TestBacklogIsBounded(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()

	for i := 0; i < backlog+10; i++ {
		b.Publish(Event{Type: "test", Data: i})
	}

	ch := b.SubscribeFrom(1)
	defer b.Unsubscribe(ch)
	b.ClientCount()
	msgs := drain(ch)
	if len(msgs) != backlog {
		t.Fatalf("replayed %d frames, want %d", len(msgs), backlog)
	}
	if !strings.HasPrefix(msgs[0], "id: 11\n") {
		t.Errorf("oldest replayed = %q", msgs[0])
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishSync(index.Run{ID: "r9"}, nil)
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: run.completed") || !strings.Contains(body, "event: references.updated") {
		t.Errorf("handler output missing events: %q", body)
	}
	if w.Header().Get("Content-Type") != "text/event-stream" {
		t.Errorf("content type = %q", w.Header().Get("Content-Type"))
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestSSEHandler_LastEventID(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	b.Publish(Event{Type: EventRunCompleted, Data: RunSummary{ID: "old"}})
	b.Publish(Event{Type: EventRunCompleted, Data: RunSummary{ID: "missed"}})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	req.Header.Set("Last-Event-ID", "1")
	w := httptest.NewRecorder()
	b.ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, `"id":"missed"`) || strings.Contains(body, `"id":"old"`) {
		t.Errorf("body = %q, want only the missed run", body)
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// The rest must be dropped, not block the loop.
	for i := 0; i < clientBuffer+6; i++ {
		b.Publish(Event{Type: "test", Data: i})
	}
	b.ClientCount()
	if got := len(drain(ch)); got != clientBuffer {
		t.Errorf("buffered = %d, want %d", got, clientBuffer)
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish(Event{Type: EventRunCompleted, Data: RunSummary{ID: "x"}})
	b.PublishSync(index.Run{}, nil)
}
