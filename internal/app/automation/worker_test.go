package automation_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/PabloGalante/vetassist/internal/adapters/llm"
	"github.com/PabloGalante/vetassist/internal/adapters/storage/memory"
	"github.com/PabloGalante/vetassist/internal/app/automation"
	"github.com/PabloGalante/vetassist/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingResponder struct {
	calls atomic.Int32
	err   error
}

func (r *countingResponder) Respond(_ context.Context, rec domain.RequestRecord) (string, error) {
	r.calls.Add(1)
	if r.err != nil {
		return "", r.err
	}
	return "answer for " + string(rec.ID), nil
}

func start(t *testing.T, w *automation.Worker) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, w.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
}

func TestWorkerAnswersNewRequests(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRequestStore()
	w := automation.NewWorker(store, llm.NewMockResponder(), automation.Options{Rate: 1000})
	start(t, w)

	require.Eventually(t, func() bool { return store.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	rec, err := store.CreateRequest(ctx, &domain.RequestRecord{PetID: "rex", Symptoms: []string{"Vomiting"}})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := store.FetchByIDs(ctx, []domain.RequestID{rec.ID})
		if err != nil || len(got) != 1 {
			return false
		}
		_, ok := got[0].Answer()
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestWorkerSkipsAnsweredInserts(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRequestStore()
	responder := &countingResponder{}
	w := automation.NewWorker(store, responder, automation.Options{Rate: 1000})
	start(t, w)

	require.Eventually(t, func() bool { return store.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	_, err := store.CreateRequest(ctx, &domain.RequestRecord{PetID: "rex", Notes: "x", AIResponse: "already"})
	require.NoError(t, err)
	pending, err := store.CreateRequest(ctx, &domain.RequestRecord{PetID: "rex", Notes: "y"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, _ := store.FetchByIDs(ctx, []domain.RequestID{pending.ID})
		return len(got) == 1 && got[0].Response == "answer for "+string(pending.ID)
	}, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, responder.calls.Load())
}

func TestWorkerSurvivesResponderErrors(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRequestStore()
	responder := &countingResponder{err: errors.New("model overloaded")}
	w := automation.NewWorker(store, responder, automation.Options{Rate: 1000})
	start(t, w)

	require.Eventually(t, func() bool { return store.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	for i := 0; i < 3; i++ {
		_, err := store.CreateRequest(ctx, &domain.RequestRecord{PetID: "rex", Notes: "z"})
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return responder.calls.Load() == 3 }, time.Second, 5*time.Millisecond)

	pending, err := store.Pending(ctx, "rex")
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}
