package mailbox

import (
	"context"
	"sync"
)

// AgentLocks provides one mutex per agent. Acquire waits until the agent's
// lock is free or ctx is done; locks of different agents are independent.
type AgentLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewAgentLocks() *AgentLocks {
	return &AgentLocks{
		slots: make(map[string]chan struct{}),
	}
}

func (l *AgentLocks) Acquire(ctx context.Context, agent string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[agent]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[agent] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-slot })
	}, nil
}
