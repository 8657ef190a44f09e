// Package kb adds and removes parent relationships in the knowledge base.
package kb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator"

	"github.com/OFFIS-RIT/lineage/internal/util"
	"github.com/OFFIS-RIT/lineage/pkg/common"
	"github.com/OFFIS-RIT/lineage/pkg/logger"
	"github.com/OFFIS-RIT/lineage/pkg/resolver"
	"github.com/OFFIS-RIT/lineage/pkg/session"
)

// ErrInvalidInput is returned when names or sexes are missing or malformed.
var ErrInvalidInput = errors.New("invalid relationship input")

// Service is the part of the knowledge service the mutation flow needs.
type Service interface {
	NaturalQuery(ctx context.Context, query string) (*resolver.Response, error)
	AddFacts(ctx context.Context, facts []string) (string, error)
	RemoveFact(ctx context.Context, fact string) (string, error)
}

// Relationship is a parent/child pair. Sexes are only needed for adding.
type Relationship struct {
	Parent    string `json:"parent" validate:"required,max=100"`
	Child     string `json:"child" validate:"required,max=100"`
	ParentSex string `json:"parent_sex" validate:"omitempty,oneof=male female Male Female"`
	ChildSex  string `json:"child_sex" validate:"omitempty,oneof=male female Male Female"`
}

// Outcome reports what a mutation did.
type Outcome struct {
	Fact    string   `json:"fact"`
	Facts   []string `json:"facts,omitempty"`
	Skipped bool     `json:"skipped"`
	Message string   `json:"message"`
}

// Mutator runs relationship mutations and reports them in the session
// transcript.
type Mutator struct {
	service    Service
	transcript *session.Transcript
	validate   *validator.Validate
}

func NewMutator(service Service, transcript *session.Transcript) *Mutator {
	return &Mutator{
		service:    service,
		transcript: transcript,
		validate:   validator.New(),
	}
}

// ParentFact renders the (Parent P C) fact for two already formatted names.
func ParentFact(parent, child string) string {
	return fmt.Sprintf("(Parent %s %s)", parent, child)
}

// SexFact renders the (Male X) or (Female X) fact.
func SexFact(sex common.Sex, name string) string {
	return fmt.Sprintf("(%s %s)", util.CapitalizeFirst(string(sex)), name)
}

// AddRelationship asserts that parent is a parent of child, together with
// the sex of both.
//
// The knowledge base is asked first whether the relationship already holds;
// an answer starting with "yes" ends the flow without any mutation. A
// failing check is logged and ignored. Otherwise the three facts are sent in
// one request.
func (m *Mutator) AddRelationship(ctx context.Context, rel Relationship) (Outcome, error) {
	parent, child, err := m.names(rel)
	if err != nil {
		return Outcome{}, err
	}
	parentSex, childSex := common.ParseSex(rel.ParentSex), common.ParseSex(rel.ChildSex)
	if parentSex == common.SexUnknown || childSex == common.SexUnknown {
		m.transcript.Error("Please select the sex of both the parent and the child.")
		return Outcome{}, fmt.Errorf("%w: sex must be male or female", ErrInvalidInput)
	}

	fact := ParentFact(parent, child)
	if m.exists(ctx, parent, child) {
		msg := fmt.Sprintf("Relationship %s already exists.", fact)
		m.transcript.Bot(msg)
		m.transcript.Toast("Relationship already in knowledge base.")
		return Outcome{Fact: fact, Skipped: true, Message: msg}, nil
	}

	facts := []string{fact, SexFact(parentSex, parent), SexFact(childSex, child)}
	m.transcript.User(fmt.Sprintf("Attempting to add relationship: %s...", fact))

	msg, err := m.service.AddFacts(ctx, facts)
	if err != nil {
		return Outcome{}, m.fail("add", fact, err)
	}
	if msg == "" {
		msg = fmt.Sprintf("Successfully added relationship and gender facts for %s and %s.", parent, child)
	}
	m.succeed(msg)
	return Outcome{Fact: fact, Facts: facts, Message: msg}, nil
}

// RemoveRelationship retracts the (Parent P C) fact.
func (m *Mutator) RemoveRelationship(ctx context.Context, rel Relationship) (Outcome, error) {
	parent, child, err := m.names(rel)
	if err != nil {
		return Outcome{}, err
	}

	fact := ParentFact(parent, child)
	m.transcript.User(fmt.Sprintf("Attempting to remove relationship: %s...", fact))

	msg, err := m.service.RemoveFact(ctx, fact)
	if err != nil {
		return Outcome{}, m.fail("remove", fact, err)
	}
	if msg == "" {
		msg = fmt.Sprintf("Successfully removed relationship: %s.", fact)
	}
	m.succeed(msg)
	return Outcome{Fact: fact, Facts: []string{fact}, Message: msg}, nil
}

// names validates and formats both names. Names become single atoms of the
// fact syntax, so whitespace and parentheses are rejected.
func (m *Mutator) names(rel Relationship) (string, string, error) {
	rel.Parent = util.SanitizeText(rel.Parent)
	rel.Child = util.SanitizeText(rel.Child)
	if rel.Parent == "" || rel.Child == "" {
		m.transcript.Error("Please enter both a parent and child name.")
		return "", "", fmt.Errorf("%w: parent and child are required", ErrInvalidInput)
	}
	if err := m.validate.Struct(rel); err != nil {
		m.transcript.Error("Error: " + err.Error())
		return "", "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	for _, n := range []string{rel.Parent, rel.Child} {
		if strings.ContainsAny(n, "() \t\n") {
			m.transcript.Error(fmt.Sprintf("Error: %q is not a valid name.", n))
			return "", "", fmt.Errorf("%w: %q contains whitespace or parentheses", ErrInvalidInput, n)
		}
	}
	return util.CapitalizeFirst(rel.Parent), util.CapitalizeFirst(rel.Child), nil
}

func (m *Mutator) exists(ctx context.Context, parent, child string) bool {
	resp, err := m.service.NaturalQuery(ctx, fmt.Sprintf("Is %s a parent of %s?", parent, child))
	if err != nil {
		logger.Warn("Could not verify relationship before adding", "parent", parent, "child", child, "err", err)
		return false
	}
	if resp == nil || resp.Kind != resolver.KindMessage {
		return false
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(resp.Message)), "yes")
}

func (m *Mutator) succeed(msg string) {
	m.transcript.Bot(msg)
	m.transcript.Toast(msg)
}

func (m *Mutator) fail(action, fact string, err error) error {
	logger.Error("Knowledge base update failed", "action", action, "fact", fact, "err", err)
	m.transcript.Error("Error: " + err.Error())
	return fmt.Errorf("%s %s: %w", action, fact, err)
}
