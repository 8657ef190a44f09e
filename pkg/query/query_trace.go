package query

import (
	"sync"
	"time"

	"github.com/OFFIS-RIT/lineage/pkg/layout"
	"github.com/OFFIS-RIT/lineage/pkg/resolver"
)

type TraceEventKind string

const (
	TraceEventDispatched TraceEventKind = "dispatched"
	TraceEventResolved   TraceEventKind = "resolved"
	TraceEventFailed     TraceEventKind = "failed"
	TraceEventRendered   TraceEventKind = "rendered"
	TraceEventNoData     TraceEventKind = "no_data"
)

// TraceEvent is an extensible event envelope for dispatch tracing.
// Additive changes to this struct are backward compatible for implementers.
type TraceEvent struct {
	Kind TraceEventKind

	Query        string
	ResponseKind resolver.Kind
	Outcome      layout.Outcome
	Strategy     string
	Duration     time.Duration
	Error        string
}

// Tracer is a sink for dispatch tracing events.
//
// Implementers can forward events to logs, metrics, or tests.
type Tracer interface {
	Record(event TraceEvent)
}

// MultiTracer fan-outs trace events to multiple tracers.
type MultiTracer []Tracer

func (m MultiTracer) Record(event TraceEvent) {
	for _, t := range m {
		if t == nil {
			continue
		}
		t.Record(event)
	}
}

func RecordDispatched(t Tracer, query string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventDispatched, Query: query})
}

func RecordResolved(t Tracer, query string, kind resolver.Kind, d time.Duration) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventResolved, Query: query, ResponseKind: kind, Duration: d})
}

func RecordFailed(t Tracer, query string, d time.Duration, err error) {
	if t == nil || err == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventFailed, Query: query, Duration: d, Error: err.Error()})
}

func RecordRendered(t Tracer, res layout.Result) {
	if t == nil {
		return
	}
	ev := TraceEvent{Kind: TraceEventRendered, Outcome: res.Outcome, Strategy: res.Strategy}
	if res.Err != nil {
		ev.Error = res.Err.Error()
	}
	t.Record(ev)
}

func RecordNoData(t Tracer, query string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventNoData, Query: query})
}

// QueryTrace collects the events of dispatch runs. It is used to inspect
// what a session did, e.g. in tests or debug endpoints.
//
// QueryTrace is safe for concurrent use.
type QueryTrace struct {
	mu     sync.Mutex
	events []TraceEvent
}

type QueryTraceSnapshot struct {
	Events     []TraceEvent
	Dispatched int
	Failed     int
	Rendered   int
	NoData     int
}

func NewQueryTrace() *QueryTrace {
	return &QueryTrace{}
}

func (t *QueryTrace) Record(event TraceEvent) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
}

func (t *QueryTrace) Snapshot() QueryTraceSnapshot {
	if t == nil {
		return QueryTraceSnapshot{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s := QueryTraceSnapshot{Events: append([]TraceEvent(nil), t.events...)}
	for _, e := range t.events {
		switch e.Kind {
		case TraceEventDispatched:
			s.Dispatched++
		case TraceEventFailed:
			s.Failed++
		case TraceEventRendered:
			s.Rendered++
		case TraceEventNoData:
			s.NoData++
		}
	}
	return s
}
