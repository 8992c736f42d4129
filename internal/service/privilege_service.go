package service

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/xxxsen/likegate/internal/pkg/errors"
)

type PrivilegeService struct {
	profiles ProfileStore
	admins   map[int64]struct{}
	now      func() time.Time
}

func NewPrivilegeService(profiles ProfileStore, adminIDs []int64) *PrivilegeService {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &PrivilegeService{profiles: profiles, admins: admins, now: time.Now}
}

func (s *PrivilegeService) IsAdmin(userID int64) bool {
	_, ok := s.admins[userID]
	return ok
}

func (s *PrivilegeService) Grant(ctx context.Context, callerID, targetUserID int64) error {
	return s.set(ctx, callerID, targetUserID, true)
}

func (s *PrivilegeService) Revoke(ctx context.Context, callerID, targetUserID int64) error {
	return s.set(ctx, callerID, targetUserID, false)
}

func (s *PrivilegeService) set(ctx context.Context, callerID, targetUserID int64, privileged bool) error {
	logger := logutil.GetLogger(ctx).With(zap.Int64("caller_id", callerID), zap.Int64("target_user_id", targetUserID), zap.Bool("privileged", privileged))
	if !s.IsAdmin(callerID) {
		logger.Warn("privilege change rejected: caller is not an admin")
		return appErr.ErrForbidden
	}
	if targetUserID <= 0 {
		return appErr.ErrInvalid
	}
	if err := s.profiles.SetPrivileged(ctx, targetUserID, privileged, s.now().Unix()); err != nil {
		return err
	}
	logger.Info("privilege updated")
	return nil
}
