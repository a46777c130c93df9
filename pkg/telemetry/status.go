package telemetry

import (
	"sync"
	"time"
)

// Status is the current extraction status exposed by the telemetry
// surface (spec §4.H): "role, current_diocese, current_parish, processed,
// errors".
type Status struct {
	Role            string    `json:"role"`
	CurrentDiocese  int64     `json:"current_diocese,omitempty"`
	CurrentParish   int64     `json:"current_parish,omitempty"`
	Processed       int64     `json:"processed"`
	Errors          int64     `json:"errors"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ErrorEvent is one entry of the bounded error-event ring buffer (spec
// §4.H: "a bounded ring buffer of the last N error events").
type ErrorEvent struct {
	Time      time.Time `json:"time"`
	DioceseID int64     `json:"diocese_id,omitempty"`
	ParishID  int64     `json:"parish_id,omitempty"`
	Operation string    `json:"operation"`
	Message   string    `json:"message"`
}

// CompletionRecord is one per-extraction completion record (spec §4.H
// "(iv) per-extraction completion records").
type CompletionRecord struct {
	Time      time.Time `json:"time"`
	DioceseID int64     `json:"diocese_id"`
	Outcome   string    `json:"outcome"`
}

// ring is a fixed-capacity circular buffer of T, oldest entries dropped
// first once full.
type ring[T any] struct {
	mu   sync.RWMutex
	buf  []T
	cap  int
	next int
	full bool
}

func newRing[T any](capacity int) *ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring[T]{buf: make([]T, capacity), cap: capacity}
}

func (r *ring[T]) push(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = v
	r.next = (r.next + 1) % r.cap
	if r.next == 0 {
		r.full = true
	}
}

// snapshot returns the buffered entries in insertion order, oldest first.
func (r *ring[T]) snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.full {
		out := make([]T, r.next)
		copy(out, r.buf[:r.next])
		return out
	}
	out := make([]T, r.cap)
	copy(out, r.buf[r.next:])
	copy(out[r.cap-r.next:], r.buf[:r.next])
	return out
}

// Reporter accumulates the status, ring buffers, and completion records
// that the telemetry HTTP surface and push protocol read from. One
// Reporter is shared process-wide per worker, written to by the router's
// role loops and read by the HTTP server and the event pusher.
type Reporter struct {
	mu     sync.RWMutex
	status Status

	errors      *ring[ErrorEvent]
	logLines    *ring[string]
	completions []CompletionRecord

	pusher *Pusher
}

// NewReporter builds a Reporter with the given ring-buffer capacities
// (spec §4.H defaults: 20 error events, 100 log lines).
func NewReporter(errorRingSize, logRingSize int) *Reporter {
	if errorRingSize <= 0 {
		errorRingSize = 20
	}
	if logRingSize <= 0 {
		logRingSize = 100
	}
	return &Reporter{
		status:   Status{Role: "idle", UpdatedAt: time.Now()},
		errors:   newRing[ErrorEvent](errorRingSize),
		logLines: newRing[string](logRingSize),
	}
}

// AttachPusher wires a Pusher so RecordError, RecordCompletion and
// PushReport also enqueue an event for best-effort delivery to monitoring_url.
func (r *Reporter) AttachPusher(p *Pusher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pusher = p
}

// SetRole updates the current role and clears the in-flight
// diocese/parish (called at the top of each role loop iteration).
func (r *Reporter) SetRole(role string) {
	r.mu.Lock()
	r.status.Role = role
	r.status.CurrentDiocese = 0
	r.status.CurrentParish = 0
	r.status.UpdatedAt = time.Now()
	r.mu.Unlock()
}

// SetCurrent records which diocese/parish is presently being worked.
func (r *Reporter) SetCurrent(dioceseID, parishID int64) {
	r.mu.Lock()
	r.status.CurrentDiocese = dioceseID
	r.status.CurrentParish = parishID
	r.status.UpdatedAt = time.Now()
	r.mu.Unlock()
}

// IncrementProcessed bumps the processed counter.
func (r *Reporter) IncrementProcessed() {
	r.mu.Lock()
	r.status.Processed++
	r.status.UpdatedAt = time.Now()
	r.mu.Unlock()
}

// RecordError appends to the error ring buffer and bumps the error
// counter.
func (r *Reporter) RecordError(dioceseID, parishID int64, operation, message string) {
	ev := ErrorEvent{Time: time.Now(), DioceseID: dioceseID, ParishID: parishID, Operation: operation, Message: message}
	r.errors.push(ev)

	r.mu.Lock()
	r.status.Errors++
	r.status.UpdatedAt = time.Now()
	pusher := r.pusher
	r.mu.Unlock()

	if pusher != nil {
		pusher.Enqueue(Event{Type: EventTypeError, ErrorEvent: &ev})
	}
}

// RecordLogLine appends a formatted log line to the log ring buffer, for
// packages wired through Reporter's logrus.Hook (see Hook in hook.go).
func (r *Reporter) RecordLogLine(line string) {
	r.logLines.push(line)
}

// RecordCompletion appends a per-extraction completion record.
func (r *Reporter) RecordCompletion(dioceseID int64, outcome string) {
	rec := CompletionRecord{Time: time.Now(), DioceseID: dioceseID, Outcome: outcome}

	r.mu.Lock()
	r.completions = append(r.completions, rec)
	if len(r.completions) > 1000 {
		r.completions = r.completions[len(r.completions)-1000:]
	}
	pusher := r.pusher
	r.mu.Unlock()

	if pusher != nil {
		pusher.Enqueue(Event{Type: EventTypeCompletion, Completion: &rec})
	}
}

// PushReport enqueues snapshot as a reporting_snapshot Event, if a pusher
// is attached.
func (r *Reporter) PushReport(snapshot ReportingSnapshot) {
	r.mu.RLock()
	pusher := r.pusher
	r.mu.RUnlock()
	if pusher != nil {
		pusher.Enqueue(Event{Type: EventTypeReport, Report: &snapshot})
	}
}

// Snapshot returns the current status.
func (r *Reporter) Snapshot() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// ErrorEvents returns the buffered error events, oldest first.
func (r *Reporter) ErrorEvents() []ErrorEvent {
	return r.errors.snapshot()
}

// LogLines returns the buffered log lines, oldest first.
func (r *Reporter) LogLines() []string {
	return r.logLines.snapshot()
}

// Completions returns the completion records recorded so far (capped at
// the most recent 1000).
func (r *Reporter) Completions() []CompletionRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CompletionRecord, len(r.completions))
	copy(out, r.completions)
	return out
}
