// Package query routes user queries to the resolver and turns the replies
// into session updates, conversation entries and renders.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/OFFIS-RIT/lineage/pkg/common"
	"github.com/OFFIS-RIT/lineage/pkg/graph"
	"github.com/OFFIS-RIT/lineage/pkg/layout"
	"github.com/OFFIS-RIT/lineage/pkg/logger"
	"github.com/OFFIS-RIT/lineage/pkg/resolver"
	"github.com/OFFIS-RIT/lineage/pkg/session"
)

var tracer = otel.Tracer("github.com/OFFIS-RIT/lineage/pkg/query")

const (
	noDataMessage   = "No family tree data available to display."
	criticalMessage = "Critical error: Unable to display family tree."
)

// Resolver answers natural-language queries.
type Resolver interface {
	NaturalQuery(ctx context.Context, query string) (*resolver.Response, error)
}

// Renderer draws a family graph.
type Renderer interface {
	Render(ctx context.Context, g *common.FamilyGraph) layout.Result
}

// Request is one query to dispatch. Subject is set when the query was
// synthesized from a node interaction and names the person it is about.
type Request struct {
	Text    string
	Subject string
}

// Report summarizes what a dispatch or relayout did.
type Report struct {
	Query    string         `json:"query,omitempty"`
	Kind     resolver.Kind  `json:"kind,omitempty"`
	Person   string         `json:"person,omitempty"`
	Rendered bool           `json:"rendered"`
	Outcome  layout.Outcome `json:"outcome,omitempty"`
	Strategy string         `json:"strategy,omitempty"`
	NoData   bool           `json:"no_data,omitempty"`
	Error    string         `json:"error,omitempty"`
	Err      error          `json:"-"`
}

// Dispatcher owns the query lifecycle of one session. It is the only
// writer of the session state and only writes after a tree response was
// received and validated, before rendering it.
//
// Fetch may run concurrently with anything; Apply, Relayout and the tap
// helpers are meant to run on the session's event loop.
type Dispatcher struct {
	resolver   Resolver
	renderer   Renderer
	state      *session.State
	transcript *session.Transcript
	trace      Tracer
}

// NewDispatcherParams configures a Dispatcher. Tracer is optional.
type NewDispatcherParams struct {
	Resolver   Resolver
	Renderer   Renderer
	State      *session.State
	Transcript *session.Transcript
	Tracer     Tracer
}

func NewDispatcher(params NewDispatcherParams) *Dispatcher {
	return &Dispatcher{
		resolver:   params.Resolver,
		renderer:   params.Renderer,
		state:      params.State,
		transcript: params.Transcript,
		trace:      params.Tracer,
	}
}

// Fetch sends the query to the resolver. It touches neither the session
// state nor the surface.
func (d *Dispatcher) Fetch(ctx context.Context, req Request) (*resolver.Response, error) {
	ctx, span := tracer.Start(ctx, "query.Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("query.text", req.Text))

	RecordDispatched(d.trace, req.Text)
	start := time.Now()
	resp, err := d.resolver.NaturalQuery(ctx, req.Text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		RecordFailed(d.trace, req.Text, time.Since(start), err)
		return nil, err
	}
	RecordResolved(d.trace, req.Text, resp.Kind, time.Since(start))
	return resp, nil
}

// Apply handles the outcome of Fetch. Every path ends in a conversation
// entry; nothing is returned as a Go error.
func (d *Dispatcher) Apply(ctx context.Context, req Request, resp *resolver.Response, err error) Report {
	report := Report{Query: req.Text}

	if err == nil && resp == nil {
		err = errors.New("empty response")
	}
	if err != nil {
		logger.Error("Query failed", "query", req.Text, "err", err)
		if req.Subject != "" {
			d.transcript.Error(fmt.Sprintf("Sorry, I couldn't visualize %s's family tree: %s", req.Subject, err))
		} else {
			d.transcript.Error("Sorry, I encountered an error: " + err.Error())
		}
		report.Err = err
		report.Error = err.Error()
		return report
	}

	report.Kind = resp.Kind
	if resp.IsTree() {
		d.transcript.Bot(treeIntro(resp))
		return d.applyTree(ctx, report, resp)
	}

	switch resp.Kind {
	case resolver.KindMessage:
		d.transcript.Bot(resp.Message)
	default:
		if req.Subject != "" {
			d.transcript.Bot(fmt.Sprintf("Visualized family tree for %s", req.Subject))
		} else {
			d.transcript.Bot(prettyRaw(resp.Raw))
		}
	}
	return report
}

func treeIntro(resp *resolver.Response) string {
	switch resp.Kind {
	case resolver.KindAncestors:
		return fmt.Sprintf("Found %d ancestor paths for %s. Building family tree visualization...",
			len(resp.Ancestors), resp.Person)
	case resolver.KindDescendants:
		return fmt.Sprintf("Found %d descendant paths for %s. Building family tree visualization...",
			len(resp.Descendants), resp.Person)
	}
	return fmt.Sprintf(
		"Building complete family tree for %s with %d ancestor paths and %d descendant paths...",
		resp.Person, len(resp.Ancestors), len(resp.Descendants),
	)
}

// Dispatch runs Fetch and Apply back to back.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Report {
	resp, err := d.Fetch(ctx, req)
	return d.Apply(ctx, req, resp, err)
}

func (d *Dispatcher) applyTree(ctx context.Context, report Report, resp *resolver.Response) Report {
	person := strings.TrimSpace(resp.Person)
	report.Person = person
	if person == "" {
		logger.Warn("Tree response without a person", "kind", resp.Kind)
		RecordNoData(d.trace, report.Query)
		d.transcript.Error(noDataMessage)
		report.NoData = true
		return report
	}

	d.state.Set(person, resp.Ancestors, resp.Descendants)
	return d.render(ctx, report)
}

// Relayout redraws the stored tree without asking the resolver. It does
// nothing when no focal person is set.
func (d *Dispatcher) Relayout(ctx context.Context) Report {
	snap := d.state.Get()
	if !snap.HasFocus() {
		return Report{NoData: true}
	}
	return d.render(ctx, Report{Person: snap.CurrentPerson})
}

func (d *Dispatcher) render(ctx context.Context, report Report) Report {
	ctx, span := tracer.Start(ctx, "query.Render")
	defer span.End()

	snap := d.state.Get()
	g, err := graph.Synthesize(snap.CurrentPerson, snap.Tree.Ancestors, snap.Tree.Descendants)
	if err != nil {
		logger.Debug("Nothing to render", "person", snap.CurrentPerson, "err", err)
		RecordNoData(d.trace, report.Query)
		d.transcript.Error(noDataMessage)
		report.NoData = true
		return report
	}

	res := d.renderer.Render(ctx, g)
	RecordRendered(d.trace, res)
	report.Outcome = res.Outcome
	report.Strategy = res.Strategy
	span.SetAttributes(attribute.String("query.outcome", string(res.Outcome)))

	switch {
	case res.Outcome == layout.OutcomeSuccess || res.Outcome == layout.OutcomeDegraded:
		report.Rendered = true
		d.transcript.Toast("Family tree loaded for " + snap.CurrentPerson)
	case errors.Is(res.Err, layout.ErrNoData):
		report.NoData = true
		d.transcript.Error(noDataMessage)
	default:
		report.Err = res.Err
		if res.Err != nil {
			report.Error = res.Err.Error()
			d.transcript.Error("Error building tree: " + res.Err.Error())
		}
		if res.Emergency {
			report.Rendered = true
		} else {
			d.transcript.Error(criticalMessage)
		}
	}
	return report
}

// TapQuery returns the query a tap on the named node triggers. No query is
// produced for the focal person or an unnamed node.
func (d *Dispatcher) TapQuery(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" || d.state.IsCurrent(name) {
		return "", false
	}
	return fmt.Sprintf("Visualize %s's family tree", name), true
}

// DoubleTapQuery returns the query a double tap on the named node
// triggers, under the same rules as TapQuery.
func (d *Dispatcher) DoubleTapQuery(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" || d.state.IsCurrent(name) {
		return "", false
	}
	return fmt.Sprintf("Show me the ancestors of %s", name), true
}

func prettyRaw(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(out)
}
