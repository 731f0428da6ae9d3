// Package sse streams resolution runs to connected clients as Server-Sent
// Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/starford/autolink/internal/index"
)

// Event types sent by the broker.
const (
	EventRunCompleted      = "run.completed"
	EventReferencesUpdated = "references.updated"
	EventSyncFailed        = "sync.failed"
)

const (
	// backlog is how many recent frames are replayed to a client that
	// reconnects with Last-Event-ID.
	backlog      = 32
	clientBuffer = 64
)

// Event is one message for the stream. Frame ids are assigned by the broker.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// RunSummary is the payload of run.completed and references.updated.
type RunSummary struct {
	ID         string `json:"id"`
	Notes      int    `json:"notes"`
	References int    `json:"references"`
	Failures   int    `json:"failures"`
}

func summarize(run index.Run) RunSummary {
	return RunSummary{ID: run.ID, Notes: run.Notes, References: run.References, Failures: run.Failures}
}

type frame struct {
	id  uint64
	raw []byte
}

type subscription struct {
	ch     chan []byte
	lastID uint64
}

type syncOutcome struct {
	run index.Run
	err error
}

// Broker fans run notifications out to SSE clients. One goroutine owns the
// client set, the replay backlog and the references.updated window; the
// exported methods talk to it over unbuffered channels, so calls are handled
// in the order they return.
type Broker struct {
	refsWindow time.Duration

	subscribe   chan subscription
	unsubscribe chan chan []byte
	events      chan Event
	syncs       chan syncOutcome
	count       chan chan int

	stop    chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker. references.updated is sent at most once per
// window; syncs inside the window are folded into one update carrying the
// newest run, sent when the window ends.
func NewBroker(window time.Duration) *Broker {
	if window <= 0 {
		window = 2 * time.Second
	}

	b := &Broker{
		refsWindow:  window,
		subscribe:   make(chan subscription),
		unsubscribe: make(chan chan []byte),
		events:      make(chan Event),
		syncs:       make(chan syncOutcome),
		count:       make(chan chan int),
		stop:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}

	go b.run()
	return b
}

// hub is the state owned by the broker goroutine.
type hub struct {
	clients map[chan []byte]struct{}
	seq     uint64
	recent  []frame

	window      time.Duration
	refsSentAt  time.Time
	pendingRefs *RunSummary
	flush       *time.Timer
}

func (b *Broker) run() {
	defer close(b.stopped)

	h := &hub{clients: make(map[chan []byte]struct{}), window: b.refsWindow}
	for {
		select {
		case <-b.stop:
			h.shutdown()
			return
		case sub := <-b.subscribe:
			h.add(sub)
		case ch := <-b.unsubscribe:
			h.remove(ch)
		case ev := <-b.events:
			h.send(ev)
		case out := <-b.syncs:
			h.sync(out)
		case <-h.flushC():
			h.flush = nil
			h.flushRefs()
		case resp := <-b.count:
			resp <- len(h.clients)
		}
	}
}

func (h *hub) add(sub subscription) {
	h.clients[sub.ch] = struct{}{}
	if sub.lastID == 0 {
		return
	}
	for _, f := range h.recent {
		if f.id <= sub.lastID {
			continue
		}
		select {
		case sub.ch <- f.raw:
		default:
			return
		}
	}
}

func (h *hub) remove(ch chan []byte) {
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
}

func (h *hub) shutdown() {
	if h.flush != nil {
		h.flush.Stop()
	}
	for ch := range h.clients {
		close(ch)
	}
}

// send frames ev, keeps it for replay and delivers it to every client.
// A client whose buffer is full misses the frame.
func (h *hub) send(ev Event) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return
	}
	h.seq++
	f := frame{id: h.seq, raw: []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", h.seq, ev.Type, payload))}

	h.recent = append(h.recent, f)
	if len(h.recent) > backlog {
		h.recent = h.recent[len(h.recent)-backlog:]
	}

	for ch := range h.clients {
		select {
		case ch <- f.raw:
		default:
		}
	}
}

func (h *hub) sync(out syncOutcome) {
	if out.err != nil {
		h.send(Event{Type: EventSyncFailed, Data: map[string]string{"error": out.err.Error()}})
		return
	}
	s := summarize(out.run)
	h.send(Event{Type: EventRunCompleted, Data: s})

	h.pendingRefs = &s
	since := time.Since(h.refsSentAt)
	if since >= h.window {
		h.flushRefs()
		return
	}
	if h.flush == nil {
		h.flush = time.NewTimer(h.window - since)
	}
}

func (h *hub) flushRefs() {
	if h.pendingRefs == nil {
		return
	}
	h.send(Event{Type: EventReferencesUpdated, Data: *h.pendingRefs})
	h.pendingRefs = nil
	h.refsSentAt = time.Now()
}

// flushC is nil, and so never ready, while no update is waiting.
func (h *hub) flushC() <-chan time.Time {
	if h.flush == nil {
		return nil
	}
	return h.flush.C
}

// Close stops the broker and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stop)
	}
	<-b.stopped
}

// Subscribe adds a client that receives frames published from now on.
func (b *Broker) Subscribe() chan []byte {
	return b.SubscribeFrom(0)
}

// SubscribeFrom adds a client and first replays the retained frames with an
// id above lastID.
func (b *Broker) SubscribeFrom(lastID uint64) chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribe <- subscription{ch: ch, lastID: lastID}:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribe <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.count <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.events <- event:
	case <-b.stopped:
	}
}

// PublishSync reports the outcome of a Sync: run.completed plus a windowed
// references.updated when err is nil, sync.failed otherwise.
func (b *Broker) PublishSync(run index.Run, err error) {
	if b.closed.Load() {
		return
	}
	select {
	case b.syncs <- syncOutcome{run: run, err: err}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). A Last-Event-ID
// header replays what the client missed, as far as the backlog reaches.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.SubscribeFrom(lastID)
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
