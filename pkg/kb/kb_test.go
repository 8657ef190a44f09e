package kb

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OFFIS-RIT/lineage/pkg/common"
	"github.com/OFFIS-RIT/lineage/pkg/resolver"
	"github.com/OFFIS-RIT/lineage/pkg/session"
)

type fakeService struct {
	answer     string
	queryErr   error
	mutateErr  error
	mutateMsg  string
	queries    []string
	addCalls   [][]string
	removeCall []string
}

func (f *fakeService) NaturalQuery(_ context.Context, query string) (*resolver.Response, error) {
	f.queries = append(f.queries, query)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &resolver.Response{Kind: resolver.KindMessage, Message: f.answer}, nil
}

func (f *fakeService) AddFacts(_ context.Context, facts []string) (string, error) {
	f.addCalls = append(f.addCalls, facts)
	return f.mutateMsg, f.mutateErr
}

func (f *fakeService) RemoveFact(_ context.Context, fact string) (string, error) {
	f.removeCall = append(f.removeCall, fact)
	return f.mutateMsg, f.mutateErr
}

func lastText(t *testing.T, tr *session.Transcript, role session.Role) string {
	t.Helper()
	entries := tr.Since(0)
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Role == role {
			return entries[i].Text
		}
	}
	t.Fatalf("no %s entry", role)
	return ""
}

func TestAddRelationship(t *testing.T) {
	svc := &fakeService{answer: "No, Tom is not a parent of Kevin."}
	tr := session.NewTranscript(0)
	m := NewMutator(svc, tr)

	out, err := m.AddRelationship(context.Background(), Relationship{
		Parent: "tom", Child: "kevin", ParentSex: "male", ChildSex: "Male",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Is Tom a parent of Kevin?"}, svc.queries)
	require.Len(t, svc.addCalls, 1, "all facts go out in one request")
	assert.Equal(t, []string{"(Parent Tom Kevin)", "(Male Tom)", "(Male Kevin)"}, svc.addCalls[0])
	assert.False(t, out.Skipped)
	assert.Equal(t, "(Parent Tom Kevin)", out.Fact)
	assert.Equal(t, "Successfully added relationship and gender facts for Tom and Kevin.", out.Message)

	assert.Equal(t, "Attempting to add relationship: (Parent Tom Kevin)...", lastText(t, tr, session.RoleUser))
	assert.Equal(t, out.Message, lastText(t, tr, session.RoleToast))
}

func TestAddRelationshipAlreadyExists(t *testing.T) {
	svc := &fakeService{answer: "Yes, Tom is a parent of Kevin."}
	tr := session.NewTranscript(0)
	m := NewMutator(svc, tr)

	out, err := m.AddRelationship(context.Background(), Relationship{
		Parent: "Tom", Child: "Kevin", ParentSex: "male", ChildSex: "male",
	})
	require.NoError(t, err)

	assert.True(t, out.Skipped)
	assert.Empty(t, svc.addCalls, "no mutation request is sent")
	assert.Equal(t, "Relationship (Parent Tom Kevin) already exists.", lastText(t, tr, session.RoleBot))
	assert.Equal(t, "Relationship already in knowledge base.", lastText(t, tr, session.RoleToast))
}

func TestAddRelationshipCheckFailureIsIgnored(t *testing.T) {
	svc := &fakeService{queryErr: errors.New("resolver down"), mutateMsg: "Facts added."}
	m := NewMutator(svc, session.NewTranscript(0))

	out, err := m.AddRelationship(context.Background(), Relationship{
		Parent: "Ann", Child: "Kevin", ParentSex: "female", ChildSex: "male",
	})
	require.NoError(t, err)
	assert.Equal(t, "Facts added.", out.Message)
	assert.Equal(t, []string{"(Parent Ann Kevin)", "(Female Ann)", "(Male Kevin)"}, svc.addCalls[0])
}

func TestAddRelationshipServiceError(t *testing.T) {
	svc := &fakeService{answer: "no", mutateErr: &resolver.APIError{Status: 500, Message: "MeTTa exploded"}}
	tr := session.NewTranscript(0)
	m := NewMutator(svc, tr)

	_, err := m.AddRelationship(context.Background(), Relationship{
		Parent: "Ann", Child: "Kevin", ParentSex: "female", ChildSex: "male",
	})

	var apiErr *resolver.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Error: MeTTa exploded", lastText(t, tr, session.RoleError))
	assert.Len(t, svc.addCalls, 1, "no retries")
}

func TestInvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		rel     Relationship
		message string
	}{
		{
			name:    "missing child",
			rel:     Relationship{Parent: "Tom", ParentSex: "male", ChildSex: "male"},
			message: "Please enter both a parent and child name.",
		},
		{
			name:    "blank parent",
			rel:     Relationship{Parent: "   ", Child: "Kevin", ParentSex: "male", ChildSex: "male"},
			message: "Please enter both a parent and child name.",
		},
		{
			name:    "unknown sex",
			rel:     Relationship{Parent: "Tom", Child: "Kevin", ParentSex: "robot", ChildSex: "male"},
			message: "",
		},
		{
			name:    "missing sex",
			rel:     Relationship{Parent: "Tom", Child: "Kevin", ParentSex: "male"},
			message: "Please select the sex of both the parent and the child.",
		},
		{
			name:    "name with spaces",
			rel:     Relationship{Parent: "Tom Jr", Child: "Kevin", ParentSex: "male", ChildSex: "male"},
			message: `Error: "Tom Jr" is not a valid name.`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{}
			tr := session.NewTranscript(0)
			m := NewMutator(svc, tr)

			_, err := m.AddRelationship(context.Background(), tt.rel)

			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Empty(t, svc.queries)
			assert.Empty(t, svc.addCalls)
			if tt.message != "" {
				assert.Equal(t, tt.message, lastText(t, tr, session.RoleError))
			}
		})
	}
}

func TestRemoveRelationship(t *testing.T) {
	svc := &fakeService{}
	tr := session.NewTranscript(0)
	m := NewMutator(svc, tr)

	out, err := m.RemoveRelationship(context.Background(), Relationship{Parent: "tom", Child: "kevin"})
	require.NoError(t, err)

	assert.Equal(t, []string{"(Parent Tom Kevin)"}, svc.removeCall)
	assert.Empty(t, svc.queries, "removal does not check first")
	assert.Equal(t, "Successfully removed relationship: (Parent Tom Kevin).", out.Message)
	assert.Equal(t, "Attempting to remove relationship: (Parent Tom Kevin)...", lastText(t, tr, session.RoleUser))
}

func TestRemoveRelationshipNotFound(t *testing.T) {
	svc := &fakeService{mutateErr: &resolver.APIError{Status: 404, Message: "Fact not found in knowledge base."}}
	tr := session.NewTranscript(0)
	m := NewMutator(svc, tr)

	_, err := m.RemoveRelationship(context.Background(), Relationship{Parent: "Tom", Child: "Kevin"})
	require.Error(t, err)
	assert.Equal(t, "Error: Fact not found in knowledge base.", lastText(t, tr, session.RoleError))
}

func TestSexFact(t *testing.T) {
	assert.Equal(t, "(Female Ann)", SexFact(common.SexFemale, "Ann"))
	assert.Equal(t, "(Male Tom)", SexFact(common.SexMale, "Tom"))
}
