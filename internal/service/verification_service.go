package service

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/likegate/internal/model"
	appErr "github.com/xxxsen/likegate/internal/pkg/errors"
)

type VerifyOutcome int

const (
	VerifyNotFound VerifyOutcome = iota
	VerifyAlreadyUsed
	VerifyExpired
	VerifySuccess
)

func (o VerifyOutcome) String() string {
	switch o {
	case VerifyNotFound:
		return "not_found"
	case VerifyAlreadyUsed:
		return "already_used"
	case VerifyExpired:
		return "expired"
	case VerifySuccess:
		return "success"
	default:
		return "unknown"
	}
}

func (o VerifyOutcome) Message() string {
	switch o {
	case VerifyAlreadyUsed:
		return "❌ This link has already been used."
	case VerifyExpired:
		return "❌ Link expired. Please generate a new like request."
	case VerifySuccess:
		return "✅ Verification successful. Return to the chat and send the /like command again."
	default:
		return "❌ Link not found or already used."
	}
}

type VerificationService struct {
	store VerificationStore
	now   func() time.Time
}

func NewVerificationService(store VerificationStore) *VerificationService {
	return &VerificationService{store: store, now: time.Now}
}

// Verify consumes a code from an inbound callback. Only the conditional
// store update can produce VerifySuccess, so concurrent callbacks for one
// code yield exactly one success.
func (s *VerificationService) Verify(ctx context.Context, raw string) (VerifyOutcome, error) {
	code, err := model.ParseVerificationCode(raw)
	if err != nil {
		return VerifyNotFound, nil
	}
	logger := logutil.GetLogger(ctx).With(zap.Stringer("code", code))
	now := s.now().Unix()

	rec, err := s.store.GetByCode(ctx, code)
	if err != nil {
		if appErr.IsNotFound(err) {
			return VerifyNotFound, nil
		}
		return VerifyNotFound, err
	}
	if outcome, done := classify(rec, now); done {
		logger.Info("verification rejected", zap.Stringer("outcome", outcome))
		return outcome, nil
	}
	ok, err := s.store.MarkVerified(ctx, code, now)
	if err != nil {
		return VerifyNotFound, err
	}
	if ok {
		logger.Info("verification succeeded", zap.Int64("user_id", rec.UserID), zap.String("target_id", rec.TargetID))
		return VerifySuccess, nil
	}
	// lost a race: re-read and report what the winner left behind
	rec, err = s.store.GetByCode(ctx, code)
	if err != nil {
		return VerifyNotFound, err
	}
	outcome, done := classify(rec, now)
	if !done {
		outcome = VerifyExpired
	}
	logger.Info("verification lost race", zap.Stringer("outcome", outcome))
	return outcome, nil
}

func classify(rec *model.Verification, now int64) (VerifyOutcome, bool) {
	if rec.Verified {
		return VerifyAlreadyUsed, true
	}
	if rec.IsExpired(now) {
		return VerifyExpired, true
	}
	return VerifySuccess, false
}
