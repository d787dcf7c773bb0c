// Package memory provides in-process repository implementations used when no
// database is configured and in tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ignite/referral-tracker/internal/domain"
	"github.com/ignite/referral-tracker/internal/service/referral"
)

type entry struct {
	r   domain.Referral
	seq int64
}

// ReferralRepo implements referral.Repository in memory. A single RWMutex
// serializes writes, so every Update and MarkResent is atomic and
// StatusCounts sees one consistent snapshot.
type ReferralRepo struct {
	mu      sync.RWMutex
	byID    map[string]*entry
	byEmail map[string]string
	seq     int64
}

// NewReferralRepo creates an empty in-memory referral repository.
func NewReferralRepo() *ReferralRepo {
	return &ReferralRepo{
		byID:    make(map[string]*entry),
		byEmail: make(map[string]string),
	}
}

func clone(r domain.Referral) *domain.Referral {
	cp := r
	if r.JoinedDate != nil {
		jd := *r.JoinedDate
		cp.JoinedDate = &jd
	}
	return &cp
}

func (m *ReferralRepo) Get(_ context.Context, id string) (*domain.Referral, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byID[id]
	if !ok {
		return nil, referral.ErrNotFound
	}
	return clone(e.r), nil
}

func (m *ReferralRepo) List(_ context.Context, f referral.ListFilter) ([]domain.Referral, error) {
	m.mu.RLock()
	matches := make([]*entry, 0, len(m.byID))
	for _, e := range m.byID {
		if f.Status != "" && e.r.Status != f.Status {
			continue
		}
		matches = append(matches, e)
	}
	out := make([]domain.Referral, 0, len(matches))
	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if !a.r.ReferredDate.Equal(b.r.ReferredDate) {
			return a.r.ReferredDate.After(b.r.ReferredDate)
		}
		return a.seq > b.seq
	})
	for _, e := range matches {
		out = append(out, *clone(e.r))
	}
	m.mu.RUnlock()

	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Offset >= len(out) {
		return []domain.Referral{}, nil
	}
	end := len(out)
	if f.Limit > 0 && f.Limit < end-f.Offset {
		end = f.Offset + f.Limit
	}
	return out[f.Offset:end], nil
}

func (m *ReferralRepo) Create(_ context.Context, r *domain.Referral) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.byEmail[r.Email]; taken {
		return referral.ErrDuplicateEmail
	}
	m.seq++
	m.byID[r.ID] = &entry{r: *clone(*r), seq: m.seq}
	m.byEmail[r.Email] = r.ID
	return nil
}

func (m *ReferralRepo) Update(_ context.Context, id string, mutate func(r *domain.Referral) error) (*domain.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok {
		return nil, referral.ErrNotFound
	}

	next := clone(e.r)
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = e.r.ID

	if next.Email != e.r.Email {
		if owner, taken := m.byEmail[next.Email]; taken && owner != id {
			return nil, referral.ErrDuplicateEmail
		}
		delete(m.byEmail, e.r.Email)
		m.byEmail[next.Email] = id
	}
	e.r = *next
	return clone(e.r), nil
}

func (m *ReferralRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok {
		return referral.ErrNotFound
	}
	delete(m.byEmail, e.r.Email)
	delete(m.byID, id)
	return nil
}

func (m *ReferralRepo) MarkResent(_ context.Context, id string, observed, sentAt time.Time) (*domain.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok {
		return nil, referral.ErrNotFound
	}
	if e.r.Status != domain.StatusInvitationSent || !e.r.LastSentAt.Equal(observed) {
		return nil, referral.ErrResendConflict
	}
	e.r.LastSentAt = sentAt
	return clone(e.r), nil
}

func (m *ReferralRepo) StatusCounts(_ context.Context) (map[domain.ReferralStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[domain.ReferralStatus]int)
	for _, e := range m.byID {
		counts[e.r.Status]++
	}
	return counts, nil
}
