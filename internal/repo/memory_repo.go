package repo

import (
	"context"
	"sync"

	"github.com/xxxsen/likegate/internal/model"
	appErr "github.com/xxxsen/likegate/internal/pkg/errors"
)

// MemVerificationRepo keeps verification records in process memory. All
// state transitions happen under one lock, which gives the same conditional
// update semantics as the postgres repo.
type MemVerificationRepo struct {
	mu     sync.Mutex
	byID   map[string]*model.Verification
	byHash map[string]string
	order  []string
}

func NewMemVerificationRepo() *MemVerificationRepo {
	return &MemVerificationRepo{
		byID:   make(map[string]*model.Verification),
		byHash: make(map[string]string),
	}
}

func (r *MemVerificationRepo) Create(_ context.Context, v *model.Verification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[v.ID]; ok {
		return appErr.ErrConflict
	}
	if _, ok := r.byHash[v.CodeHash]; ok {
		return appErr.ErrConflict
	}
	item := *v
	r.byID[v.ID] = &item
	r.byHash[v.CodeHash] = v.ID
	r.order = append(r.order, v.ID)
	return nil
}

func (r *MemVerificationRepo) GetByCode(_ context.Context, code model.VerificationCode) (*model.Verification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byHash[code.Hash()]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	item := *r.byID[id]
	return &item, nil
}

func (r *MemVerificationRepo) LatestByUserTarget(_ context.Context, userID int64, targetID string) (*model.Verification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.order) - 1; i >= 0; i-- {
		v, ok := r.byID[r.order[i]]
		if !ok {
			continue
		}
		if v.UserID == userID && v.TargetID == targetID {
			item := *v
			return &item, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (r *MemVerificationRepo) MarkVerified(_ context.Context, code model.VerificationCode, now int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byHash[code.Hash()]
	if !ok {
		return false, nil
	}
	v := r.byID[id]
	if v.Verified || now > v.ExpiresAt {
		return false, nil
	}
	v.Verified = true
	v.VerifiedAt = now
	return true, nil
}

func (r *MemVerificationRepo) MarkProcessed(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.byID[id]
	if !ok {
		return appErr.ErrNotFound
	}
	v.Processed = true
	return nil
}

func (r *MemVerificationRepo) ExpireNow(_ context.Context, id string, now int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.byID[id]; ok && !v.Verified {
		v.ExpiresAt = now - 1
	}
	return nil
}

func (r *MemVerificationRepo) DeleteExpiredUnverified(_ context.Context, before int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	kept := r.order[:0]
	for _, id := range r.order {
		v := r.byID[id]
		if !v.Verified && v.ExpiresAt < before {
			delete(r.byID, id)
			delete(r.byHash, v.CodeHash)
			deleted++
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
	return deleted, nil
}

type MemProfileRepo struct {
	mu       sync.Mutex
	profiles map[int64]*model.Profile
}

func NewMemProfileRepo() *MemProfileRepo {
	return &MemProfileRepo{profiles: make(map[int64]*model.Profile)}
}

func (r *MemProfileRepo) Get(_ context.Context, userID int64) (*model.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	item := *p
	return &item, nil
}

func (r *MemProfileRepo) SetPrivileged(_ context.Context, userID int64, privileged bool, now int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.getOrCreateLocked(userID, now)
	p.Privileged = privileged
	p.Mtime = now
	return nil
}

func (r *MemProfileRepo) ClaimAction(_ context.Context, userID, expectedLast, claimAt, staleBefore int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		p = r.getOrCreateLocked(userID, claimAt)
		p.ActionClaimedAt = claimAt
		return true, nil
	}
	if p.LastActionAt != expectedLast {
		return false, nil
	}
	if p.ActionClaimedAt != 0 && p.ActionClaimedAt >= staleBefore {
		return false, nil
	}
	p.ActionClaimedAt = claimAt
	p.Mtime = claimAt
	return true, nil
}

func (r *MemProfileRepo) CompleteAction(_ context.Context, userID, claimAt, now int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return appErr.ErrNotFound
	}
	if now > p.LastActionAt {
		p.LastActionAt = now
	}
	if p.ActionClaimedAt == claimAt {
		p.ActionClaimedAt = 0
	}
	p.Mtime = now
	return nil
}

func (r *MemProfileRepo) ReleaseAction(_ context.Context, userID, claimAt int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.profiles[userID]; ok && p.ActionClaimedAt == claimAt {
		p.ActionClaimedAt = 0
	}
	return nil
}

func (r *MemProfileRepo) getOrCreateLocked(userID, now int64) *model.Profile {
	p, ok := r.profiles[userID]
	if !ok {
		p = &model.Profile{UserID: userID, Ctime: now, Mtime: now}
		r.profiles[userID] = p
	}
	return p
}
