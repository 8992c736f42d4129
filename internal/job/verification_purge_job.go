package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const defaultRetention = 7 * 24 * time.Hour

type expiredVerificationDeleter interface {
	DeleteExpiredUnverified(ctx context.Context, before int64) (int64, error)
}

// VerificationPurgeJob drops codes that expired without ever being verified.
// Verified records are kept since they back the freshness check.
type VerificationPurgeJob struct {
	store     expiredVerificationDeleter
	retention time.Duration
	now       func() time.Time
}

func NewVerificationPurgeJob(store expiredVerificationDeleter, retention time.Duration) *VerificationPurgeJob {
	return &VerificationPurgeJob{store: store, retention: retention, now: time.Now}
}

func (j *VerificationPurgeJob) Name() string {
	return "verification_purge"
}

func (j *VerificationPurgeJob) Run(ctx context.Context) error {
	if j.store == nil {
		return nil
	}
	retention := j.retention
	if retention <= 0 {
		retention = defaultRetention
	}
	cutoff := j.now().Add(-retention).Unix()
	deleted, err := j.store.DeleteExpiredUnverified(ctx, cutoff)
	if err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("expired verifications purged", zap.Int64("deleted", deleted), zap.Int64("cutoff", cutoff))
	return nil
}
