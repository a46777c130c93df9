package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// EventType discriminates the telemetry push protocol's event shapes
// (spec §4.H).
type EventType string

const (
	EventTypeStatus     EventType = "status"
	EventTypeBreaker    EventType = "breaker_snapshot"
	EventTypeError      EventType = "error"
	EventTypeCompletion EventType = "completion"
	EventTypeReport     EventType = "reporting_snapshot"
)

// Event is the envelope pushed to monitoring_url/events, one per line of
// the newline-delimited JSON body (spec §6: "Telemetry push protocol").
type Event struct {
	Type       EventType                `json:"type"`
	Time       time.Time                `json:"time"`
	Status     *Status                  `json:"status,omitempty"`
	Breakers   map[string]BreakerState  `json:"breakers,omitempty"`
	ErrorEvent *ErrorEvent              `json:"error_event,omitempty"`
	Completion *CompletionRecord        `json:"completion,omitempty"`
	Report     *ReportingSnapshot       `json:"reporting_snapshot,omitempty"`
}

// BreakerState is the wire shape of one breaker's snapshot, defined here
// rather than reusing pkg/breaker's CircuitState so the event format is
// owned by telemetry.
type BreakerState struct {
	Name          string    `json:"name"`
	State         string    `json:"state"`
	FailureCount  int       `json:"failure_count"`
	SuccessCount  int       `json:"success_count"`
	LastFailureAt time.Time `json:"last_failure_at"`
	OpenedAt      time.Time `json:"opened_at"`
	TotalRequests int64     `json:"total_requests"`
	TotalBlocked  int64     `json:"total_blocked"`
}

// ReportingSnapshot is the lead-only aggregate emitted by the reporting
// role (SPEC_FULL.md §3: "Reporting role ... emits one ReportingSnapshot
// telemetry event plus an optional Slack message").
type ReportingSnapshot struct {
	WindowStart          time.Time `json:"window_start"`
	WindowEnd            time.Time `json:"window_end"`
	ParishesFound        int64     `json:"parishes_found"`
	SchedulesExtracted    int64     `json:"schedules_extracted"`
	BreakerTrips          int64     `json:"breaker_trips"`
	FetchErrorRate        float64   `json:"fetch_error_rate"`
	DiocesesReclaimed     int64     `json:"dioceses_reclaimed"`
}

// Pusher implements the best-effort, fire-and-forget push of Events to
// "<monitoring_url>/events" (spec §6): a bounded queue (default 1024) fed
// by Enqueue, drained by a background goroutine started by Run. A full
// queue drops the event rather than blocking the caller — "failure to
// push never blocks extraction."
type Pusher struct {
	url    string
	client *http.Client
	queue  chan Event
	logger *logrus.Entry
}

// NewPusher builds a Pusher that POSTs to baseURL+"/events". If baseURL
// is empty the Pusher is inert: Enqueue becomes a no-op and Run returns
// immediately.
func NewPusher(baseURL string, queueSize int, logger *logrus.Logger) *Pusher {
	if logger == nil {
		logger = logrus.New()
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Pusher{
		url:    strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: 10 * time.Second},
		queue:  make(chan Event, queueSize),
		logger: logger.WithField("component", "telemetry_pusher"),
	}
}

// Enqueue offers ev to the push queue without blocking. If the queue is
// full or pushing is disabled, ev is silently dropped.
func (p *Pusher) Enqueue(ev Event) {
	if p == nil || p.url == "" {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	select {
	case p.queue <- ev:
	default:
		p.logger.Warn("telemetry push queue full, dropping event")
	}
}

// Run drains the queue until ctx is cancelled, POSTing one event at a
// time as a single-line ndjson body. Each send is best-effort: a
// non-2xx response or transport error is logged and otherwise ignored.
func (p *Pusher) Run(ctx context.Context) {
	if p == nil || p.url == "" {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.queue:
			p.send(ctx, ev)
		}
	}
}

func (p *Pusher) send(ctx context.Context, ev Event) {
	line, err := json.Marshal(ev)
	if err != nil {
		p.logger.WithError(err).Warn("failed to marshal telemetry event")
		return
	}
	line = append(line, '\n')

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, p.url+"/events", bytes.NewReader(line))
	if err != nil {
		p.logger.WithError(err).Warn("failed to build telemetry push request")
		return
	}
	req.Header.Set("Content-Type", "application/x-ndjson")

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.WithError(err).Debug("telemetry push failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		p.logger.WithField("status", resp.StatusCode).Debug("telemetry push rejected")
	}
}
