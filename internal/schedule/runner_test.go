package schedule

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStore struct {
	mu    sync.Mutex
	state State
	saves int
}

func (m *memStore) Load(context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := State{}
	for k, v := range m.state {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) Save(_ context.Context, s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
	m.saves++
	return nil
}

func disabled() *bool {
	b := false
	return &b
}

func testJobs() []Job {
	return []Job{
		{ID: "morning", Type: "echo", Schedule: Spec{Frequency: Daily, Time: "09:00"}},
		{ID: "evening", Type: "echo", Schedule: Spec{Frequency: Daily, Time: "18:00"}},
		{ID: "paused", Type: "echo", Enabled: disabled()},
		{ID: "mystery", Type: "missing"},
		{ID: "broken", Type: "boom"},
	}
}

func newTestRunner(store StateStore) (*Runner, *[]string) {
	var ran []string
	r := NewRunner(Static(testJobs()), store, zap.NewNop(), WithClock(func() time.Time { return fixedNow }))
	r.Register("echo", ExecutorFunc(func(_ context.Context, job Job) (Output, error) {
		ran = append(ran, job.ID)
		return Output{"type": "echo", "id": job.ID}, nil
	}))
	r.Register("boom", ExecutorFunc(func(_ context.Context, job Job) (Output, error) {
		ran = append(ran, job.ID)
		return nil, errors.New(strings.Repeat("失败", 400))
	}))
	return r, &ran
}

func TestRunDue(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	r, ran := newTestRunner(store)

	results, err := r.RunDue(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"morning", "broken"}, *ran)
	require.Len(t, results, 2)

	assert.Equal(t, "morning", results[0].JobID)
	assert.Equal(t, StatusSuccess, results[0].Status)
	assert.Equal(t, "echo", results[0].Type)
	assert.Equal(t, "morning", results[0].Output["id"])
	assert.NotEmpty(t, results[0].RunID)

	assert.Equal(t, StatusError, results[1].Status)
	assert.Len(t, []rune(results[1].Error), 800)

	state := store.state
	assert.Equal(t, "2024-01-03T10:30:00", state["morning"].LastRun)
	assert.Equal(t, StatusSuccess, state["morning"].LastStatus)
	assert.Empty(t, state["morning"].LastError)
	assert.Equal(t, StatusError, state["broken"].LastStatus)
	assert.Len(t, []rune(state["broken"].LastError), maxErrorLen)
	assert.NotContains(t, state, "mystery")
	assert.NotContains(t, state, "paused")

	// both ran today
	*ran = nil
	results, err = r.RunDue(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, *ran)
	assert.Equal(t, 2, store.saves)
}

func TestRunDueForce(t *testing.T) {
	ctx := context.Background()
	r, ran := newTestRunner(&memStore{})

	results, err := r.RunDue(ctx, "evening")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"evening"}, *ran)

	// disabled jobs stay skipped when forced
	results, err = r.RunDue(ctx, "paused")
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = r.RunDue(ctx, "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestRunUnknownType(t *testing.T) {
	r, _ := newTestRunner(&memStore{})
	_, err := r.Run(context.Background(), Job{ID: "x", Type: "missing"})
	assert.ErrorIs(t, err, ErrUnknownJobType)
}

func TestStatus(t *testing.T) {
	store := &memStore{state: State{"morning": ranAt(fixedNow.Add(-time.Hour))}}
	r, _ := newTestRunner(store)

	statuses, err := r.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 5)

	due := map[string]bool{}
	for _, s := range statuses {
		due[s.Job.ID] = s.Due
	}
	assert.Equal(t, map[string]bool{
		"morning": false,
		"evening": false,
		"paused":  false,
		"mystery": true,
		"broken":  true,
	}, due)
	assert.Equal(t, StatusSuccess, statuses[0].State.LastStatus)
}

func TestTypes(t *testing.T) {
	r, _ := newTestRunner(&memStore{})
	assert.Equal(t, []string{"boom", "echo"}, r.Types())
}

func TestTruncateAndTail(t *testing.T) {
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "报告", tail("周报告", 2))
	assert.Equal(t, "x", tail("x", 2))
}
