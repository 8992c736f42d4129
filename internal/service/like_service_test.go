package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/likegate/internal/model"
	"github.com/xxxsen/likegate/internal/repo"
	appErr "github.com/xxxsen/likegate/internal/pkg/errors"
)

const (
	testUser   = int64(7)
	testTarget = "12345678"
	groupChat  = int64(-100)
)

func likeReq(chatID int64, chatType string) LikeRequest {
	return LikeRequest{Region: "IND", TargetID: testTarget, UserID: testUser, ChatID: chatID, ChatType: chatType}
}

func TestLikeUsage(t *testing.T) {
	f := newFixture(t)
	for _, req := range []LikeRequest{
		{TargetID: testTarget, UserID: testUser},
		{Region: "ind", UserID: testUser},
		{Region: "ind", TargetID: "12 34", UserID: testUser},
	} {
		res, err := f.svc.Handle(context.Background(), req)
		require.NoError(t, err)
		require.Equal(t, OutcomeUsage, res.Outcome)
		require.Contains(t, res.Text, "/like <region> <uid>")
	}
	_, err := f.verifications.LatestByUserTarget(context.Background(), testUser, testTarget)
	require.ErrorIs(t, err, appErr.ErrNotFound)
	require.Zero(t, f.likes.callCount())
}

func TestLikeNeedsVerificationIssuesLink(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Handle(context.Background(), likeReq(groupChat, "supergroup"))
	require.NoError(t, err)
	require.Equal(t, OutcomeNeedsVerification, res.Outcome)
	require.Contains(t, res.Text, res.Link)
	require.Contains(t, res.Text, "https://t.me/howto")
	require.Zero(t, f.likes.callCount())

	rec, err := f.verifications.GetByCode(context.Background(), model.VerificationCode(codeFromLink(t, res.Link)))
	require.NoError(t, err)
	require.Equal(t, groupChat, rec.ChatID)
	require.Equal(t, "ind", rec.Region)
}

func TestLikeFullFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Handle(ctx, likeReq(groupChat, "group"))
	require.NoError(t, err)
	require.Equal(t, OutcomeNeedsVerification, res.Outcome)

	outcome, err := f.verifier.Verify(ctx, codeFromLink(t, res.Link))
	require.NoError(t, err)
	require.Equal(t, VerifySuccess, outcome)

	f.advance(time.Minute)
	res, err = f.svc.Handle(ctx, likeReq(groupChat, "group"))
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, res.Outcome)
	require.Equal(t, "Neo", res.PlayerName)
	require.Contains(t, res.Text, "Like Sent Successfully")
	require.Zero(t, res.MirrorChatID)
	require.Equal(t, f.now.Unix(), f.lastAction(t, testUser))

	rec, err := f.verifications.LatestByUserTarget(ctx, testUser, testTarget)
	require.NoError(t, err)
	require.True(t, rec.Processed)

	f.advance(time.Hour)
	res, err = f.svc.Handle(ctx, likeReq(groupChat, "group"))
	require.NoError(t, err)
	require.Equal(t, OutcomeRateLimited, res.Outcome)
	require.Equal(t, 23*time.Hour, res.RetryAfter)
	require.Contains(t, res.Text, "23h 0m")
	require.Equal(t, 1, f.likes.callCount())
}

func TestLikeCooldownWindow(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		outcome LikeOutcome
		retry   time.Duration
	}{
		{name: "inside cooldown", elapsed: 23 * time.Hour, outcome: OutcomeRateLimited, retry: time.Hour},
		{name: "cooldown passed", elapsed: 25 * time.Hour, outcome: OutcomeSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.verifiedFor(t, testUser, testTarget, groupChat)
			f.setLastAction(t, testUser, f.now.Add(-tt.elapsed))

			res, err := f.svc.Handle(context.Background(), likeReq(groupChat, "group"))
			require.NoError(t, err)
			require.Equal(t, tt.outcome, res.Outcome)
			require.Equal(t, tt.retry, res.RetryAfter)
		})
	}
}

func TestLikePrivilegedIgnoresCooldown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.verifiedFor(t, testUser, testTarget, groupChat)
	require.NoError(t, f.privileges.Grant(ctx, 1, testUser))
	f.setLastAction(t, testUser, f.now.Add(-time.Minute))

	res, err := f.svc.Handle(ctx, likeReq(groupChat, "group"))
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, res.Outcome)
	require.Equal(t, f.now.Unix(), f.lastAction(t, testUser))
}

func TestLikeStaleVerificationNeedsNewLink(t *testing.T) {
	f := newFixture(t)
	f.verifiedFor(t, testUser, testTarget, groupChat)
	f.advance(6*time.Hour + time.Minute)

	res, err := f.svc.Handle(context.Background(), likeReq(groupChat, "group"))
	require.NoError(t, err)
	require.Equal(t, OutcomeNeedsVerification, res.Outcome)
	require.Zero(t, f.likes.callCount())
}

func TestLikeReusesFreshVerification(t *testing.T) {
	f := newFixture(t)
	f.verifiedFor(t, testUser, testTarget, groupChat)
	res, err := f.svc.Handle(context.Background(), likeReq(groupChat, "group"))
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, res.Outcome)

	require.NoError(t, f.privileges.Grant(context.Background(), 1, testUser))
	f.advance(5 * time.Hour)
	res, err = f.svc.Handle(context.Background(), likeReq(groupChat, "group"))
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, res.Outcome)
	require.Equal(t, 2, f.likes.callCount())
}

func TestLikeZeroAddedLeavesProfile(t *testing.T) {
	f := newFixture(t)
	f.verifiedFor(t, testUser, testTarget, groupChat)
	f.likes.result.LikesAdded = 0
	previous := f.now.Add(-30 * time.Hour)
	f.setLastAction(t, testUser, previous)

	res, err := f.svc.Handle(context.Background(), likeReq(groupChat, "group"))
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, res.Outcome)
	require.Contains(t, res.Text, "Like Failed")
	require.Equal(t, previous.Unix(), f.lastAction(t, testUser))

	p, err := f.profiles.Get(context.Background(), testUser)
	require.NoError(t, err)
	require.Zero(t, p.ActionClaimedAt)

	rec, err := f.verifications.LatestByUserTarget(context.Background(), testUser, testTarget)
	require.NoError(t, err)
	require.False(t, rec.Processed)

	f.likes.result.LikesAdded = 5
	res, err = f.svc.Handle(context.Background(), likeReq(groupChat, "group"))
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, res.Outcome)
	require.Equal(t, f.now.Unix(), f.lastAction(t, testUser))
}

func TestLikeAPIErrorLeavesProfile(t *testing.T) {
	f := newFixture(t)
	f.verifiedFor(t, testUser, testTarget, groupChat)
	f.likes.err = fmt.Errorf("like api: %w: context deadline exceeded", appErr.ErrExternal)

	res, err := f.svc.Handle(context.Background(), likeReq(groupChat, "group"))
	require.NoError(t, err)
	require.Equal(t, OutcomeAPIError, res.Outcome)
	require.Contains(t, res.Text, "context deadline exceeded")
	require.Contains(t, res.Text, testTarget)
	require.Zero(t, f.lastAction(t, testUser))
}

func TestLikePlayerInfoFailureUsesPlaceholder(t *testing.T) {
	f := newFixture(t)
	f.verifiedFor(t, testUser, testTarget, groupChat)
	f.players.err = errors.New("player api down")

	res, err := f.svc.Handle(context.Background(), likeReq(groupChat, "group"))
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, res.Outcome)
	require.Equal(t, "Player-5678", res.PlayerName)
	require.Contains(t, res.Text, "Player-5678")
}

func TestLikePrefersNicknameFromLikeAPI(t *testing.T) {
	f := newFixture(t)
	f.verifiedFor(t, testUser, testTarget, groupChat)
	f.likes.result.PlayerNickname = "Morpheus"
	f.players.err = errors.New("should not be needed")

	res, err := f.svc.Handle(context.Background(), likeReq(groupChat, "group"))
	require.NoError(t, err)
	require.Equal(t, "Morpheus", res.PlayerName)
}

func TestLikeMirrorsPrivateResultToGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.verifiedFor(t, testUser, testTarget, groupChat)

	res, err := f.svc.Handle(ctx, likeReq(testUser, ChatTypePrivate))
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, res.Outcome)
	require.Equal(t, groupChat, res.MirrorChatID)

	f.svc.Mirror(ctx, res)
	require.Len(t, f.notifier.sent, 1)
	require.Equal(t, groupChat, f.notifier.sent[0].chatID)
	require.Equal(t, res.Text, f.notifier.sent[0].text)

	f.notifier.err = errors.New("bot was kicked")
	f.svc.Mirror(ctx, res)
	require.Len(t, f.notifier.sent, 2)

	f.svc.Mirror(ctx, &LikeResult{Text: "no mirror"})
	require.Len(t, f.notifier.sent, 2)
}

func TestLikeConcurrentRequestsSendOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.verifiedFor(t, testUser, testTarget, groupChat)
	gate := make(chan struct{})
	f.likes.gate = gate

	done := make(chan *LikeResult, 1)
	go func() {
		res, err := f.svc.Handle(ctx, likeReq(groupChat, "group"))
		if err != nil {
			done <- nil
			return
		}
		done <- res
	}()
	require.Eventually(t, func() bool { return f.likes.callCount() == 1 }, time.Second, 5*time.Millisecond)

	res, err := f.svc.Handle(ctx, likeReq(groupChat, "group"))
	require.NoError(t, err)
	require.Equal(t, OutcomeInProgress, res.Outcome)

	close(gate)
	first := <-done
	require.NotNil(t, first)
	require.Equal(t, OutcomeSuccess, first.Outcome)
	require.Equal(t, 1, f.likes.callCount())

	res, err = f.svc.Handle(ctx, likeReq(groupChat, "group"))
	require.NoError(t, err)
	require.Equal(t, OutcomeRateLimited, res.Outcome)
}

func TestPlaceholderName(t *testing.T) {
	require.Equal(t, "Player-5678", placeholderName("12345678"))
	require.Equal(t, "Player-42", placeholderName("42"))
}

// flakyProfiles fails the first failures CompleteAction calls.
type flakyProfiles struct {
	*repo.MemProfileRepo
	failures  int
	completes int
}

func (p *flakyProfiles) CompleteAction(ctx context.Context, userID, claimAt, now int64) error {
	p.completes++
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.completes <= p.failures {
		return errors.New("connection reset")
	}
	return p.MemProfileRepo.CompleteAction(ctx, userID, claimAt, now)
}

func TestLikeRecordsActionAfterTransientFailure(t *testing.T) {
	f := newFixture(t)
	store := &flakyProfiles{MemProfileRepo: f.profiles, failures: maxRecordAttempt - 1}
	f.svc.profiles = store
	f.verifiedFor(t, testUser, testTarget, groupChat)

	res, err := f.svc.Handle(context.Background(), likeReq(groupChat, "group"))
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, res.Outcome)
	require.Equal(t, maxRecordAttempt, store.completes)
	require.Equal(t, f.now.Unix(), f.lastAction(t, testUser))

	res, err = f.svc.Handle(context.Background(), likeReq(groupChat, "group"))
	require.NoError(t, err)
	require.Equal(t, OutcomeRateLimited, res.Outcome)
	require.Equal(t, 1, f.likes.callCount())
}

func TestLikeKeepsClaimWhenRecordingFails(t *testing.T) {
	f := newFixture(t)
	store := &flakyProfiles{MemProfileRepo: f.profiles, failures: maxRecordAttempt}
	f.svc.profiles = store
	f.verifiedFor(t, testUser, testTarget, groupChat)

	res, err := f.svc.Handle(context.Background(), likeReq(groupChat, "group"))
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, res.Outcome)
	require.Equal(t, maxRecordAttempt, store.completes)
	require.Zero(t, f.lastAction(t, testUser))

	f.advance(actionClaimTTL / 2)
	res, err = f.svc.Handle(context.Background(), likeReq(groupChat, "group"))
	require.NoError(t, err)
	require.Equal(t, OutcomeInProgress, res.Outcome)
	require.Equal(t, 1, f.likes.callCount())
}

func TestRecordActionIgnoresCallerCancel(t *testing.T) {
	f := newFixture(t)
	store := &flakyProfiles{MemProfileRepo: f.profiles}
	f.svc.profiles = store
	claimAt := f.now.Unix()
	ok, err := f.profiles.ClaimAction(context.Background(), testUser, 0, claimAt, 0)
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, f.svc.recordAction(ctx, testUser, claimAt, claimAt))
	require.Equal(t, claimAt, f.lastAction(t, testUser))
}
