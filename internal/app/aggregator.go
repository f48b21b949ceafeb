package app

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// AggregatorKey scopes answer counts to one playthrough of one question.
type AggregatorKey struct {
	SessionID     string
	Generation    int64
	QuestionIndex int
}

// Aggregator counts distinct answering participants per question instance and
// fires onQuorum once, after a settle delay, when every connected participant answered.
type Aggregator struct {
	clock    clockwork.Clock
	settle   time.Duration
	onQuorum func(AggregatorKey)

	mu      sync.Mutex
	answers map[AggregatorKey]map[string]struct{}
	pending map[AggregatorKey]clockwork.Timer
}

func NewAggregator(clock clockwork.Clock, settle time.Duration, onQuorum func(AggregatorKey)) *Aggregator {
	return &Aggregator{
		clock:    clock,
		settle:   settle,
		onQuorum: onQuorum,
		answers:  make(map[AggregatorKey]map[string]struct{}),
		pending:  make(map[AggregatorKey]clockwork.Timer),
	}
}

// Record counts userID for key and evaluates quorum against participants. It returns the
// number of distinct answers so far.
func (a *Aggregator) Record(key AggregatorKey, userID string, participants int) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	users, ok := a.answers[key]
	if !ok {
		users = make(map[string]struct{})
		a.answers[key] = users
	}
	users[userID] = struct{}{}
	count := len(users)
	a.evaluateLocked(key, count, participants)
	return count
}

// Evaluate re-checks quorum, e.g. after a participant left mid-question.
func (a *Aggregator) Evaluate(key AggregatorKey, participants int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.evaluateLocked(key, len(a.answers[key]), participants)
}

// Forget drops every counter and pending trigger of a session.
func (a *Aggregator) Forget(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key := range a.answers {
		if key.SessionID == sessionID {
			delete(a.answers, key)
		}
	}
	for key, timer := range a.pending {
		if key.SessionID == sessionID {
			timer.Stop()
			delete(a.pending, key)
		}
	}
}

func QuorumReached(count, participants int) bool {
	return participants > 0 && count >= participants
}

func (a *Aggregator) evaluateLocked(key AggregatorKey, count, participants int) {
	if !QuorumReached(count, participants) {
		return
	}
	if _, scheduled := a.pending[key]; scheduled {
		return
	}
	a.pending[key] = a.clock.AfterFunc(a.settle, func() {
		a.mu.Lock()
		delete(a.pending, key)
		a.mu.Unlock()
		a.onQuorum(key)
	})
}
