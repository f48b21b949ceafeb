package app

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

type quorumRecorder struct {
	mu   sync.Mutex
	keys []AggregatorKey
}

func (r *quorumRecorder) fire(key AggregatorKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
}

func (r *quorumRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

func TestQuorumReached(t *testing.T) {
	cases := []struct {
		count, participants int
		want                bool
	}{
		{0, 0, false},
		{3, 0, false},
		{1, 2, false},
		{2, 2, true},
		{3, 2, true},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, QuorumReached(tc.count, tc.participants), "count=%d participants=%d", tc.count, tc.participants)
	}
}

func TestAggregatorFiresOnceAfterSettle(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &quorumRecorder{}
	agg := NewAggregator(clock, 500*time.Millisecond, rec.fire)
	key := AggregatorKey{SessionID: "s1", Generation: 1, QuestionIndex: 0}

	require.Equal(t, 1, agg.Record(key, "alice", 2))
	require.Equal(t, 1, agg.Record(key, "alice", 2), "repeat answers are counted once")
	require.Equal(t, 2, agg.Record(key, "bob", 2))
	agg.Evaluate(key, 2)

	clock.Advance(499 * time.Millisecond)
	require.Equal(t, 0, rec.count())
	clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	clock.Advance(time.Second)
	require.Never(t, func() bool { return rec.count() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
}

func (a *Aggregator) answered(key AggregatorKey) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.answers[key])
}

func TestAggregatorGenerationsAreIndependent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	agg := NewAggregator(clock, time.Second, func(AggregatorKey) {})
	first := AggregatorKey{SessionID: "s1", Generation: 1}
	second := AggregatorKey{SessionID: "s1", Generation: 2}

	agg.Record(first, "alice", 5)
	agg.Record(first, "bob", 5)
	require.Equal(t, 2, agg.answered(first))
	require.Equal(t, 0, agg.answered(second))

	agg.Forget("s1")
	require.Equal(t, 0, agg.answered(first))
}

func TestAggregatorForgetCancelsPendingQuorum(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &quorumRecorder{}
	agg := NewAggregator(clock, time.Second, rec.fire)
	key := AggregatorKey{SessionID: "s1", Generation: 1}

	agg.Record(key, "alice", 1)
	agg.Forget("s1")
	clock.Advance(2 * time.Second)
	require.Never(t, func() bool { return rec.count() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestAggregatorReevaluatesAfterLeave(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &quorumRecorder{}
	agg := NewAggregator(clock, 10*time.Millisecond, rec.fire)
	key := AggregatorKey{SessionID: "s1", Generation: 1}

	agg.Record(key, "alice", 2)
	clock.Advance(time.Second)
	require.Equal(t, 0, rec.count())

	agg.Evaluate(key, 1)
	clock.Advance(10 * time.Millisecond)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
}
