package reconcile_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/vetassist/internal/app/reconcile"
	"github.com/PabloGalante/vetassist/internal/domain"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func pending(id domain.RequestID) reconcile.State {
	s := reconcile.NewState(t0)
	s = s.AddEntry(domain.ConversationEntry{
		ID:        domain.UserEntryID(id),
		Role:      domain.RoleUser,
		Content:   "Symptoms reported: Vomiting",
		CreatedAt: t0,
		RequestID: id,
	})
	return s.AddProcessing(id, reconcile.WaitingText(true), t0)
}

func answered(id domain.RequestID, text string) domain.RequestRecord {
	return domain.RequestRecord{ID: id, PetID: "rex", CreatedAt: t0, Response: text}
}

func countRole(s reconcile.State, id domain.RequestID, role domain.Role) int {
	n := 0
	for _, e := range s.Messages.Entries() {
		if e.RequestID == id && e.Role == role {
			n++
		}
	}
	return n
}

func TestReconcileReplacesProcessing(t *testing.T) {
	s := pending("r1")
	require.Equal(t, 1, s.PendingCount())

	s, out := reconcile.Reconcile(s, answered("r1", "Likely mild gastritis"), t0.Add(time.Minute))

	assert.Equal(t, reconcile.OutcomeReplaced, out)
	assert.Equal(t, 0, countRole(s, "r1", domain.RoleProcessing))
	assert.Equal(t, 1, countRole(s, "r1", domain.RoleAssistant))
	assert.Equal(t, 0, s.PendingCount())

	got := s.Messages.Entries()
	require.Len(t, got, 2)
	assert.Equal(t, domain.RoleUser, got[0].Role)
	assert.Equal(t, "Likely mild gastritis", got[1].Content)
}

func TestReconcileIsIdempotent(t *testing.T) {
	for _, times := range []int{1, 2, 3} {
		s := pending("r1")
		s = s.AddProcessing("r2", "waiting", t0)

		for i := 0; i < times; i++ {
			s, _ = reconcile.Reconcile(s, answered("r1", "answer one"), t0)
			s, _ = reconcile.Reconcile(s, answered("r2", "answer two"), t0)
		}

		assert.Equal(t, 1, countRole(s, "r1", domain.RoleAssistant), "deliveries=%d", times)
		assert.Equal(t, 1, countRole(s, "r2", domain.RoleAssistant), "deliveries=%d", times)
		assert.Equal(t, 0, s.PendingCount())
	}
}

func TestReconcileDuplicateLeavesStateUntouched(t *testing.T) {
	s, _ := reconcile.Reconcile(pending("r1"), answered("r1", "same"), t0)
	before, _ := s.Messages.Lookup(domain.AssistantEntryID("r1"))

	s2, out := reconcile.Reconcile(s, answered("r1", "same"), t0.Add(time.Hour))
	after, _ := s2.Messages.Lookup(domain.AssistantEntryID("r1"))

	assert.Equal(t, reconcile.OutcomeDuplicate, out)
	assert.False(t, out.Changed())
	assert.Same(t, before, after)
}

func TestReconcileRevisesExistingAnswer(t *testing.T) {
	s, _ := reconcile.Reconcile(pending("r1"), answered("r1", "draft"), t0)
	s, out := reconcile.Reconcile(s, answered("r1", "final"), t0.Add(time.Minute))

	assert.Equal(t, reconcile.OutcomeRevised, out)
	e, ok := s.Messages.Lookup(domain.AssistantEntryID("r1"))
	require.True(t, ok)
	assert.Equal(t, "final", e.Content)
	assert.Equal(t, t0.Add(time.Minute), e.CreatedAt)
	assert.Equal(t, 1, countRole(s, "r1", domain.RoleAssistant))
}

func TestReconcileInsertsWhenNothingExists(t *testing.T) {
	s, out := reconcile.Reconcile(reconcile.NewState(t0), answered("r9", "early answer"), t0)

	assert.Equal(t, reconcile.OutcomeInserted, out)
	assert.Equal(t, 1, countRole(s, "r9", domain.RoleAssistant))
}

func TestReconcileIgnoresMalformedOrUnanswered(t *testing.T) {
	s := pending("r1")

	cases := []domain.RequestRecord{
		{Response: "answer without id"},
		{ID: "r1"},
		{ID: "r1", AIResponse: "", Response: ""},
	}
	for _, rec := range cases {
		next, out := reconcile.Reconcile(s, rec, t0)
		assert.Equal(t, reconcile.OutcomeIgnored, out)
		assert.Equal(t, s.Messages.Entries(), next.Messages.Entries())
		assert.Equal(t, 1, next.PendingCount())
	}
}

func TestReconcilePrefersFirstAnswerField(t *testing.T) {
	rec := domain.RequestRecord{ID: "r1", CreatedAt: t0, AIResponse: "from A", Response: "from B"}
	s, _ := reconcile.Reconcile(pending("r1"), rec, t0)

	e, ok := s.Messages.Lookup(domain.AssistantEntryID("r1"))
	require.True(t, ok)
	assert.Equal(t, "from A", e.Content)
}

func TestReconcileAcceptsWhitespaceAnswer(t *testing.T) {
	rec := domain.RequestRecord{ID: "r1", CreatedAt: t0, AIResponse: "  ", Response: "from B"}
	s, out := reconcile.Reconcile(pending("r1"), rec, t0)

	assert.Equal(t, reconcile.OutcomeReplaced, out)
	e, ok := s.Messages.Lookup(domain.AssistantEntryID("r1"))
	require.True(t, ok)
	assert.Equal(t, "  ", e.Content)
	assert.Zero(t, s.PendingCount())
}

func TestProcessingNeverReturnsAfterAnswer(t *testing.T) {
	s, _ := reconcile.Reconcile(pending("r1"), answered("r1", "done"), t0)

	s = s.AddProcessing("r1", "waiting again", t0)
	s = s.AddEntry(domain.ConversationEntry{
		ID:        domain.ProcessingEntryID("r1"),
		Role:      domain.RoleProcessing,
		Content:   "waiting again",
		RequestID: "r1",
	})
	s = s.Track("r1")

	assert.Equal(t, 0, countRole(s, "r1", domain.RoleProcessing))
	assert.Equal(t, 0, s.PendingCount())

	// A stale reload that still shows the request unanswered.
	s = reconcile.ApplyHistory(s, reconcile.LoadHistory([]domain.RequestRecord{
		{ID: "r1", PetID: "rex", Symptoms: []string{"Vomiting"}, CreatedAt: t0},
	}))
	assert.Equal(t, 0, countRole(s, "r1", domain.RoleProcessing))
	assert.Equal(t, 1, countRole(s, "r1", domain.RoleAssistant))
	assert.Equal(t, 0, s.PendingCount())
}

func TestAddEntryKeysRequestEntriesByRole(t *testing.T) {
	s := reconcile.NewState(t0)
	s = s.AddEntry(domain.ConversationEntry{ID: "local-user", Role: domain.RoleUser, Content: "Coughing", RequestID: "r1"})
	s = s.AddEntry(domain.ConversationEntry{ID: "tmp-1", Role: domain.RoleProcessing, Content: "waiting", CreatedAt: t0, RequestID: "r1"})

	_, ok := s.Messages.Lookup(domain.UserEntryID("r1"))
	assert.True(t, ok)
	_, ok = s.Messages.Lookup(domain.ProcessingEntryID("r1"))
	assert.True(t, ok)
	_, ok = s.Messages.Lookup("tmp-1")
	assert.False(t, ok)
	assert.Equal(t, []domain.RequestID{"r1"}, s.Outstanding())

	s, out := reconcile.Reconcile(s, answered("r1", "done"), t0)
	assert.Equal(t, reconcile.OutcomeReplaced, out)
	assert.Equal(t, 0, countRole(s, "r1", domain.RoleProcessing))
	assert.Equal(t, 1, countRole(s, "r1", domain.RoleAssistant))
	assert.Zero(t, s.PendingCount())
}

func TestAddEntryAnswerGoesThroughReconcile(t *testing.T) {
	s := pending("r1")

	s = s.AddEntry(domain.ConversationEntry{
		ID:        "assistant-copy",
		Role:      domain.RoleAssistant,
		Content:   "Offer small amounts of water",
		CreatedAt: t0,
		RequestID: "r1",
	})

	assert.Equal(t, 0, countRole(s, "r1", domain.RoleProcessing))
	assert.Equal(t, 1, countRole(s, "r1", domain.RoleAssistant))
	assert.True(t, s.IsAnswered("r1"))
	assert.Zero(t, s.PendingCount())

	e, ok := s.Messages.Lookup(domain.AssistantEntryID("r1"))
	require.True(t, ok)
	assert.Equal(t, "Offer small amounts of water", e.Content)
}

func TestOrderOfDeliveryDoesNotMatter(t *testing.T) {
	rec := answered("r1", "Likely mild gastritis...")
	deliveries := map[string][]domain.RequestRecord{
		"primary":           {rec},
		"backup":            {rec},
		"poll":              {rec},
		"primary+backup":    {rec, rec},
		"primary+poll+more": {rec, rec, rec},
	}

	var want []domain.ConversationEntry
	for name, seq := range deliveries {
		s := pending("r1")
		for _, r := range seq {
			s, _ = reconcile.Reconcile(s, r, t0)
		}
		got := s.Messages.Entries()
		if want == nil {
			want = got
			continue
		}
		assert.Equal(t, want, got, name)
	}
}

func TestStalledIsClearedByAnswer(t *testing.T) {
	s := pending("r1").MarkStalled("r1", "unknown")
	require.True(t, s.IsStalled("r1"))
	assert.False(t, s.HasLiveOutstanding())

	s, _ = reconcile.Reconcile(s, answered("r1", "late"), t0)
	assert.False(t, s.IsStalled("r1"))
	assert.Empty(t, s.Stalled())
}

func TestRollbackRemovesOptimisticEntries(t *testing.T) {
	s := pending("r1").Rollback("r1")

	assert.Equal(t, 0, s.Messages.Len())
	assert.Equal(t, 0, s.PendingCount())
}

func TestTouchNeverMovesBackwards(t *testing.T) {
	s := reconcile.NewState(t0).Touch(t0.Add(time.Minute)).Touch(t0)
	assert.Equal(t, t0.Add(time.Minute), s.LastActivity)
}
