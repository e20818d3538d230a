package schedule

import (
	"context"
	"sync"
)

// agentLocks hands out one mutual-exclusion lock per agent id. Entries are
// reference counted and dropped once nobody holds or waits for them.
type agentLocks struct {
	mu    sync.Mutex
	locks map[int64]*agentLock
}

type agentLock struct {
	ch   chan struct{}
	refs int
}

func newAgentLocks() *agentLocks {
	return &agentLocks{locks: make(map[int64]*agentLock)}
}

// acquire blocks until the agent's lock is held or ctx is done. The returned
// func releases the lock.
func (l *agentLocks) acquire(ctx context.Context, agentID int64) (func(), error) {
	l.mu.Lock()
	al, ok := l.locks[agentID]
	if !ok {
		al = &agentLock{ch: make(chan struct{}, 1)}
		l.locks[agentID] = al
	}
	al.refs++
	l.mu.Unlock()

	select {
	case al.ch <- struct{}{}:
		return func() {
			<-al.ch
			l.unref(agentID, al)
		}, nil
	case <-ctx.Done():
		l.unref(agentID, al)
		return nil, ctx.Err()
	}
}

func (l *agentLocks) unref(agentID int64, al *agentLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	al.refs--
	if al.refs == 0 {
		delete(l.locks, agentID)
	}
}

// size returns the number of agents with a holder or waiter.
func (l *agentLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
