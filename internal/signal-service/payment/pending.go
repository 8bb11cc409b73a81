package payment

import (
	"context"
	"sync"
	"time"
)

// PendingStore holds issued links until they are credited or swept.
type PendingStore interface {
	Put(ctx context.Context, p PendingPayment) error
	ByExternalID(ctx context.Context, externalID string) (PendingPayment, error)
	ByLinkID(ctx context.Context, linkID string) (PendingPayment, error)
	// Settle removes a credited entry but remembers its link until the sweep drops it,
	// so a late poll can still be resolved.
	Settle(ctx context.Context, p PendingPayment) error
	// SettledExternalID returns the external id behind a settled link.
	SettledExternalID(ctx context.Context, linkID string) (string, error)
	// DeleteCreatedBefore removes every entry created before cutoff and returns how many.
	// Settled links expire on roughly the same schedule.
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// MemoryPending keeps pending payments in process. Lost on restart.
type MemoryPending struct {
	mu      sync.Mutex
	byLink  map[string]PendingPayment
	byExt   map[string]string
	settled map[string]PendingPayment
}

func NewMemoryPending() *MemoryPending {
	return &MemoryPending{
		byLink:  map[string]PendingPayment{},
		byExt:   map[string]string{},
		settled: map[string]PendingPayment{},
	}
}

func (m *MemoryPending) Put(_ context.Context, p PendingPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byLink[p.LinkID] = p
	m.byExt[p.ExternalID] = p.LinkID
	return nil
}

func (m *MemoryPending) ByExternalID(_ context.Context, externalID string) (PendingPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.byExt[externalID]
	if !ok {
		return PendingPayment{}, ErrNotFound
	}
	return m.byLink[link], nil
}

func (m *MemoryPending) ByLinkID(_ context.Context, linkID string) (PendingPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byLink[linkID]
	if !ok {
		return PendingPayment{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryPending) Settle(_ context.Context, p PendingPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byLink, p.LinkID)
	delete(m.byExt, p.ExternalID)
	m.settled[p.LinkID] = p
	return nil
}

func (m *MemoryPending) SettledExternalID(_ context.Context, linkID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.settled[linkID]
	if !ok {
		return "", ErrNotFound
	}
	return p.ExternalID, nil
}

func (m *MemoryPending) DeleteCreatedBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for link, p := range m.settled {
		if p.CreatedAt.Before(cutoff) {
			delete(m.settled, link)
		}
	}
	n := 0
	for link, p := range m.byLink {
		if p.CreatedAt.Before(cutoff) {
			delete(m.byLink, link)
			delete(m.byExt, p.ExternalID)
			n++
		}
	}
	return n, nil
}
