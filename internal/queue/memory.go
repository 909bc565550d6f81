package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codezest-academy/codezest-notifications/internal/model"
)

type memoryItem struct {
	env         *model.Envelope
	seq         uint64
	visibleAt   time.Time
	leasedUntil time.Time
	failedAt    time.Time
}

// Memory is an in-process Queue used by tests and local development.
// It mirrors the postgres implementation's semantics: priority-then-FIFO
// ordering, lease-based invisibility and lazy lease expiry.
type Memory struct {
	cfg Config

	mu        sync.Mutex
	seq       uint64
	active    map[uuid.UUID]*memoryItem
	dead      map[uuid.UUID]*memoryItem
	delivered map[uuid.UUID]struct{}

	now func() time.Time
}

var _ Queue = (*Memory)(nil)

func NewMemory(cfg Config) *Memory {
	return &Memory{
		cfg:       cfg,
		active:    make(map[uuid.UUID]*memoryItem),
		dead:      make(map[uuid.UUID]*memoryItem),
		delivered: make(map[uuid.UUID]struct{}),
		now:       time.Now,
	}
}

func (m *Memory) Enqueue(ctx context.Context, env *model.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	cp := *env
	m.active[env.ID] = &memoryItem{
		env:       &cp,
		seq:       m.seq,
		visibleAt: m.now(),
	}
	return nil
}

func (m *Memory) Dequeue(ctx context.Context) (*model.Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	// Lazy lease expiry: abandoned IN_FLIGHT envelopes go back to PENDING
	// and are retried as if they had failed retryably.
	for _, it := range m.active {
		if it.env.Status == model.StatusInFlight && !it.leasedUntil.After(now) {
			it.env.Status = model.StatusPending
			it.visibleAt = now
		}
	}

	var best *memoryItem
	for _, it := range m.active {
		if it.env.Status != model.StatusPending || it.visibleAt.After(now) {
			continue
		}
		if best == nil ||
			it.env.Priority < best.env.Priority ||
			(it.env.Priority == best.env.Priority && it.seq < best.seq) {
			best = it
		}
	}
	if best == nil {
		return nil, ErrEmpty
	}

	attemptAt := now
	best.env.Status = model.StatusInFlight
	best.env.AttemptCount++
	best.env.LastAttemptAt = &attemptAt
	best.leasedUntil = now.Add(m.cfg.Lease)

	cp := *best.env
	return &cp, nil
}

func (m *Memory) Acknowledge(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.delivered[id]; ok {
		return nil // already acknowledged
	}
	it, ok := m.active[id]
	if !ok {
		return ErrNotFound
	}
	it.env.Status = model.StatusDelivered
	delete(m.active, id)
	m.delivered[id] = struct{}{}
	return nil
}

func (m *Memory) Fail(ctx context.Context, id uuid.UUID, retryable bool, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.active[id]
	if !ok {
		if _, dead := m.dead[id]; dead {
			return nil // already dead-lettered
		}
		return ErrNotFound
	}

	it.env.FailureReason = reason

	if retryable && it.env.AttemptCount < m.cfg.MaxAttempts {
		it.env.Status = model.StatusPending
		it.visibleAt = m.now().Add(m.cfg.Backoff(it.env.AttemptCount))
		return nil
	}

	it.env.Status = model.StatusFailedTerminal
	it.failedAt = m.now()
	delete(m.active, id)
	m.dead[id] = it
	return nil
}

func (m *Memory) Cancel(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.active[id]
	if !ok {
		return ErrNotFound
	}
	if it.env.Status != model.StatusPending {
		return ErrNotCancelable
	}
	delete(m.active, id)
	return nil
}

func (m *Memory) DeadLetters(ctx context.Context, limit int) ([]*model.Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := make([]*memoryItem, 0, len(m.dead))
	for _, it := range m.dead {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].failedAt.After(items[j].failedAt)
	})

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	out := make([]*model.Envelope, 0, len(items))
	for _, it := range items {
		cp := *it.env
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) Replay(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.dead[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.dead, id)

	it.env.Status = model.StatusPending
	it.env.AttemptCount = 0
	it.env.FailureReason = ""
	it.visibleAt = m.now()
	m.seq++
	it.seq = m.seq
	m.active[id] = it
	return nil
}
