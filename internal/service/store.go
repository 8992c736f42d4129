package service

import (
	"context"

	"github.com/xxxsen/likegate/internal/likeapi"
	"github.com/xxxsen/likegate/internal/model"
)

type VerificationStore interface {
	Create(ctx context.Context, v *model.Verification) error
	GetByCode(ctx context.Context, code model.VerificationCode) (*model.Verification, error)
	LatestByUserTarget(ctx context.Context, userID int64, targetID string) (*model.Verification, error)
	MarkVerified(ctx context.Context, code model.VerificationCode, now int64) (bool, error)
	MarkProcessed(ctx context.Context, id string) error
	ExpireNow(ctx context.Context, id string, now int64) error
	DeleteExpiredUnverified(ctx context.Context, before int64) (int64, error)
}

type ProfileStore interface {
	Get(ctx context.Context, userID int64) (*model.Profile, error)
	SetPrivileged(ctx context.Context, userID int64, privileged bool, now int64) error
	ClaimAction(ctx context.Context, userID, expectedLast, claimAt, staleBefore int64) (bool, error)
	CompleteAction(ctx context.Context, userID, claimAt, now int64) error
	ReleaseAction(ctx context.Context, userID, claimAt int64) error
}

type LikeAPI interface {
	SendLike(ctx context.Context, region, uid string) (*likeapi.LikeResult, error)
}

type Shortener interface {
	Shorten(ctx context.Context, longURL string) (string, error)
}

// Notifier delivers a text message to a chat outside the request/reply flow.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}
