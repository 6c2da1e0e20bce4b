package graph

import (
	"testing"

	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msgs(contents ...string) []domain.Message {
	out := make([]domain.Message, len(contents))
	for i, c := range contents {
		out[i] = domain.HumanMessage(c)
	}
	return out
}

func TestConcatMessages_Associative(t *testing.T) {
	a, b, c := msgs("a1", "a2"), msgs("b1"), msgs("c1", "c2")

	left := ConcatMessages(ConcatMessages(a, b), c)
	right := ConcatMessages(a, ConcatMessages(b, c))
	assert.Equal(t, left, right)
	assert.Equal(t, msgs("a1", "a2", "b1", "c1", "c2"), left)
}

func TestConcatMessages_DoesNotAlias(t *testing.T) {
	base := make([]domain.Message, 1, 8)
	base[0] = domain.HumanMessage("x")

	first := ConcatMessages(base, msgs("y"))
	second := ConcatMessages(base, msgs("z"))
	assert.Equal(t, "y", first[1].Content)
	assert.Equal(t, "z", second[1].Content)
}

func TestSumCallCount(t *testing.T) {
	total := 0
	for _, inc := range []int{1, 0, 2, 1} {
		var err error
		total, err = SumCallCount(total, inc)
		require.NoError(t, err)
	}
	assert.Equal(t, 4, total)

	_, err := SumCallCount(4, -1)
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, FieldCallCount, fe.Field)
}

func TestTypedReducers(t *testing.T) {
	appendStrings := Append[string]()
	got, err := appendStrings(nil, []string{"a"})
	require.NoError(t, err)
	got, err = appendStrings(got, []string{"b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, got)

	sum := Sum()
	n, err := sum(nil, 3)
	require.NoError(t, err)
	n, err = sum(n, 4)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = sum(n, "four")
	assert.Error(t, err)

	lww := LastWriteWins()
	v, err := lww("old", "new")
	require.NoError(t, err)
	assert.Equal(t, "new", v)
}

func TestGraph_Merge(t *testing.T) {
	notes := domain.NewKey[[]string]("notes")
	status := domain.NewKey[string]("status")

	b := New("merge").AddNode("a", noop).AddEdge("a", END).SetEntry("a")
	DeclareKey(b, notes, Append[string]())
	DeclareKey(b, status, LastWriteWins())
	g, err := b.Compile()
	require.NoError(t, err)
	assert.Equal(t, []string{"notes", "status"}, g.Fields())

	s := domain.NewState(domain.HumanMessage("start"))
	s, err = g.Merge(s, status.Set(notes.Update([]string{"n1"}), "open"))
	require.NoError(t, err)
	s, err = g.Merge(s, domain.Update{
		Messages:  []domain.Message{domain.AssistantMessage("thinking")},
		CallCount: 1,
		Values:    map[string]any{"notes": []string{"n2"}, "status": "closed"},
	})
	require.NoError(t, err)

	assert.Len(t, s.Messages, 2)
	assert.Equal(t, 1, s.CallCount)
	gotNotes, _ := notes.Get(s)
	assert.Equal(t, []string{"n1", "n2"}, gotNotes)
	gotStatus, _ := status.Get(s)
	assert.Equal(t, "closed", gotStatus)
}

func TestGraph_MergeRejectsUndeclaredField(t *testing.T) {
	g, err := New("strict").AddNode("a", noop).AddEdge("a", END).SetEntry("a").Compile()
	require.NoError(t, err)

	before := domain.NewState(domain.HumanMessage("hi"))
	after, err := g.Merge(before, domain.Update{Values: map[string]any{"mystery": 1}})

	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "mystery", fe.Field)
	assert.Equal(t, before, after)
}
