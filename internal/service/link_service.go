package service

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/likegate/internal/model"
	appErr "github.com/xxxsen/likegate/internal/pkg/errors"
)

// VerifyPathPrefix is the callback route; the code is the final path segment.
const VerifyPathPrefix = "/api/v1/verify/"

const maxIssueAttempt = 2

type IssueInput struct {
	UserID   int64
	TargetID string
	Region   string
	ChatID   int64
}

type IssuedLink struct {
	Record *model.Verification
	Code   model.VerificationCode
	URL    string
}

// LinkService issues verification codes. A pending (unverified, unexpired)
// code for the same user and target is superseded: it is expired before the
// new one is stored, so at most one live code exists per pair.
type LinkService struct {
	store     VerificationStore
	shortener Shortener
	publicURL string
	ttl       time.Duration
	now       func() time.Time
}

func NewLinkService(store VerificationStore, shortener Shortener, publicURL string, ttl time.Duration) *LinkService {
	return &LinkService{
		store:     store,
		shortener: shortener,
		publicURL: strings.TrimRight(publicURL, "/"),
		ttl:       ttl,
		now:       time.Now,
	}
}

func (s *LinkService) Issue(ctx context.Context, in IssueInput) (*IssuedLink, error) {
	if in.UserID == 0 || strings.TrimSpace(in.TargetID) == "" {
		return nil, appErr.ErrInvalid
	}
	logger := logutil.GetLogger(ctx).With(zap.Int64("user_id", in.UserID), zap.String("target_id", in.TargetID))
	now := s.now().Unix()

	latest, err := s.store.LatestByUserTarget(ctx, in.UserID, in.TargetID)
	if err != nil && !appErr.IsNotFound(err) {
		return nil, err
	}
	if latest != nil && !latest.Verified && !latest.IsExpired(now) {
		if err := s.store.ExpireNow(ctx, latest.ID, now); err != nil {
			return nil, err
		}
		logger.Info("pending verification superseded", zap.String("verification_id", latest.ID))
	}

	var (
		code model.VerificationCode
		rec  *model.Verification
	)
	for attempt := 0; attempt < maxIssueAttempt; attempt++ {
		code, rec, err = s.create(ctx, in, now)
		if err == nil || !appErr.IsConflict(err) {
			break
		}
		logger.Warn("verification id or code collided, regenerating", zap.Int("attempt", attempt))
	}
	if err != nil {
		return nil, err
	}
	link := s.publicURL + VerifyPathPrefix + code.Reveal()
	if s.shortener != nil {
		short, err := s.shortener.Shorten(ctx, link)
		if err != nil {
			logger.Warn("shorten verification link failed, using direct link", zap.String("error", redactCode(err.Error(), code)))
		} else {
			link = short
		}
	}
	logger.Info("verification issued", zap.String("verification_id", rec.ID), zap.Stringer("code", code))
	return &IssuedLink{Record: rec, Code: code, URL: link}, nil
}

func (s *LinkService) create(ctx context.Context, in IssueInput, now int64) (model.VerificationCode, *model.Verification, error) {
	code, err := model.NewVerificationCode()
	if err != nil {
		return "", nil, err
	}
	rec := &model.Verification{
		ID:        newID(),
		CodeHash:  code.Hash(),
		UserID:    in.UserID,
		TargetID:  in.TargetID,
		Region:    in.Region,
		ChatID:    in.ChatID,
		Ctime:     now,
		ExpiresAt: now + int64(s.ttl/time.Second),
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return "", nil, err
	}
	return code, rec, nil
}

// redactCode replaces the plain and query-escaped code in text with its
// redacted form.
func redactCode(text string, code model.VerificationCode) string {
	raw := code.Reveal()
	for _, form := range []string{raw, url.QueryEscape(raw)} {
		text = strings.ReplaceAll(text, form, code.String())
	}
	return text
}
