package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/likegate/internal/likeapi"
	"github.com/xxxsen/likegate/internal/model"
	appErr "github.com/xxxsen/likegate/internal/pkg/errors"
)

const (
	ChatTypePrivate = "private"

	// a claim older than this is treated as abandoned (crashed request)
	actionClaimTTL  = 2 * time.Minute
	maxClaimAttempt = 2
	// a delivered like must reach the profile even if the caller gave up
	maxRecordAttempt = 3
	recordTimeout    = 5 * time.Second
)

var (
	regionPattern = regexp.MustCompile(`^[a-z]{2,10}$`)
	targetPattern = regexp.MustCompile(`^[0-9A-Za-z_-]{1,32}$`)
)

type LikeOutcome int

const (
	OutcomeUsage LikeOutcome = iota
	OutcomeNeedsVerification
	OutcomeRateLimited
	OutcomeInProgress
	OutcomeSuccess
	OutcomeFailed
	OutcomeAPIError
)

func (o LikeOutcome) String() string {
	switch o {
	case OutcomeUsage:
		return "usage"
	case OutcomeNeedsVerification:
		return "needs_verification"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeInProgress:
		return "in_progress"
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	case OutcomeAPIError:
		return "api_error"
	default:
		return "unknown"
	}
}

type LikeRequest struct {
	Region   string
	TargetID string
	UserID   int64
	ChatID   int64
	ChatType string
}

type LikeResult struct {
	Outcome    LikeOutcome
	Text       string
	RetryAfter time.Duration
	Link       string
	PlayerName string
	Likes      *likeapi.LikeResult
	// MirrorChatID is the group chat that should also see the result, 0 if none.
	MirrorChatID int64
}

type LikeServiceDeps struct {
	Verifications  VerificationStore
	Profiles       ProfileStore
	Links          *LinkService
	Policy         Policy
	Likes          LikeAPI
	Players        likeapi.PlayerLookup
	Notifier       Notifier
	HowToVerifyURL string
	VIPAccessURL   string
}

type LikeService struct {
	verifications  VerificationStore
	profiles       ProfileStore
	links          *LinkService
	policy         Policy
	likes          LikeAPI
	players        likeapi.PlayerLookup
	notifier       Notifier
	howToVerifyURL string
	vipAccessURL   string
	now            func() time.Time
}

func NewLikeService(deps LikeServiceDeps) *LikeService {
	return &LikeService{
		verifications:  deps.Verifications,
		profiles:       deps.Profiles,
		links:          deps.Links,
		policy:         deps.Policy,
		likes:          deps.Likes,
		players:        deps.Players,
		notifier:       deps.Notifier,
		howToVerifyURL: deps.HowToVerifyURL,
		vipAccessURL:   deps.VIPAccessURL,
		now:            time.Now,
	}
}

// Handle runs one like request end to end. Domain outcomes (usage errors,
// missing verification, cooldown, upstream failures) come back as a result;
// the error return is reserved for storage failures.
func (s *LikeService) Handle(ctx context.Context, req LikeRequest) (*LikeResult, error) {
	req.Region = strings.ToLower(strings.TrimSpace(req.Region))
	req.TargetID = strings.TrimSpace(req.TargetID)
	if !regionPattern.MatchString(req.Region) || !targetPattern.MatchString(req.TargetID) {
		return &LikeResult{Outcome: OutcomeUsage, Text: usageText()}, nil
	}
	if req.UserID == 0 {
		return nil, appErr.ErrInvalid
	}
	logger := logutil.GetLogger(ctx).With(
		zap.Int64("user_id", req.UserID),
		zap.String("target_id", req.TargetID),
		zap.String("region", req.Region),
	)
	now := s.now()

	rec, err := s.verifications.LatestByUserTarget(ctx, req.UserID, req.TargetID)
	if err != nil && !appErr.IsNotFound(err) {
		return nil, err
	}
	profile, err := s.profile(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	decision := s.policy.Decide(rec, profile, now)
	logger.Info("entitlement decided", zap.Stringer("decision", decision.Kind), zap.Duration("retry_after", decision.RetryAfter))

	switch decision.Kind {
	case DecisionAuthorized:
		return s.act(ctx, req, rec, profile, now)
	case DecisionRateLimited:
		return rateLimitedResult(decision.RetryAfter), nil
	default:
		return s.requireVerification(ctx, req, decision.Kind)
	}
}

// Mirror copies an action result to the group chat recorded with the
// verification. Delivery is best effort.
func (s *LikeService) Mirror(ctx context.Context, result *LikeResult) {
	if result == nil || result.MirrorChatID == 0 || s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, result.MirrorChatID, result.Text); err != nil {
		logutil.GetLogger(ctx).Warn("mirror like result failed", zap.Int64("chat_id", result.MirrorChatID), zap.Error(err))
	}
}

func (s *LikeService) requireVerification(ctx context.Context, req LikeRequest, kind DecisionKind) (*LikeResult, error) {
	link, err := s.links.Issue(ctx, IssueInput{
		UserID:   req.UserID,
		TargetID: req.TargetID,
		Region:   req.Region,
		ChatID:   req.ChatID,
	})
	if err != nil {
		return nil, err
	}
	return &LikeResult{
		Outcome: OutcomeNeedsVerification,
		Text:    needsVerificationText(link.URL, kind == DecisionExpired, s.howToVerifyURL, s.vipAccessURL),
		Link:    link.URL,
	}, nil
}

func (s *LikeService) act(ctx context.Context, req LikeRequest, rec *model.Verification, profile *model.Profile, now time.Time) (*LikeResult, error) {
	logger := logutil.GetLogger(ctx).With(zap.Int64("user_id", req.UserID), zap.String("target_id", req.TargetID))
	claimAt := now.Unix()
	staleBefore := now.Add(-actionClaimTTL).Unix()

	claimed := false
	for attempt := 0; attempt < maxClaimAttempt && !claimed; attempt++ {
		expected := int64(0)
		if profile != nil {
			expected = profile.LastActionAt
		}
		ok, err := s.profiles.ClaimAction(ctx, req.UserID, expected, claimAt, staleBefore)
		if err != nil {
			return nil, err
		}
		if ok {
			claimed = true
			break
		}
		// someone else moved the profile since it was read; decide again on fresh state
		profile, err = s.profile(ctx, req.UserID)
		if err != nil {
			return nil, err
		}
		decision := s.policy.Decide(rec, profile, now)
		if decision.Kind == DecisionRateLimited {
			return rateLimitedResult(decision.RetryAfter), nil
		}
		if decision.Kind != DecisionAuthorized || (profile != nil && profile.ActionClaimedAt >= staleBefore) {
			logger.Info("like request already in flight")
			return &LikeResult{Outcome: OutcomeInProgress, Text: inProgressText()}, nil
		}
	}
	if !claimed {
		return &LikeResult{Outcome: OutcomeInProgress, Text: inProgressText()}, nil
	}

	result := s.callLike(ctx, req, now)
	if result.Outcome == OutcomeSuccess {
		if err := s.recordAction(ctx, req.UserID, claimAt, now.Unix()); err != nil {
			// claim stays held, blocking new likes until it goes stale
			logger.Error("record last action failed, claim kept until stale",
				zap.Duration("claim_ttl", actionClaimTTL), zap.Error(err))
		}
		if err := s.verifications.MarkProcessed(ctx, rec.ID); err != nil {
			logger.Error("mark verification processed failed", zap.String("verification_id", rec.ID), zap.Error(err))
		}
	} else if err := s.profiles.ReleaseAction(ctx, req.UserID, claimAt); err != nil {
		logger.Error("release action claim failed", zap.Error(err))
	}
	if req.ChatType == ChatTypePrivate && rec.ChatID != 0 && rec.ChatID != req.ChatID {
		result.MirrorChatID = rec.ChatID
	}
	logger.Info("like request finished", zap.Stringer("outcome", result.Outcome))
	return result, nil
}

// recordAction stamps the cooldown after a delivered like. It runs detached
// from ctx cancellation and retries, since the like cannot be taken back.
func (s *LikeService) recordAction(ctx context.Context, userID, claimAt, at int64) error {
	ctx = context.WithoutCancel(ctx)
	var err error
	for attempt := 0; attempt < maxRecordAttempt; attempt++ {
		rctx, cancel := context.WithTimeout(ctx, recordTimeout)
		err = s.profiles.CompleteAction(rctx, userID, claimAt, at)
		cancel()
		if err == nil || appErr.IsNotFound(err) {
			return err
		}
	}
	return err
}

func (s *LikeService) callLike(ctx context.Context, req LikeRequest, now time.Time) *LikeResult {
	resp, err := s.likes.SendLike(ctx, req.Region, req.TargetID)
	if err != nil {
		logutil.GetLogger(ctx).Warn("like api call failed", zap.String("target_id", req.TargetID), zap.Error(err))
		return &LikeResult{Outcome: OutcomeAPIError, Text: apiErrorText(req.TargetID, err)}
	}
	if resp.LikesAdded <= 0 {
		return &LikeResult{Outcome: OutcomeFailed, Text: likeFailedText(), Likes: resp}
	}
	name := s.playerName(ctx, req, resp)
	return &LikeResult{
		Outcome:    OutcomeSuccess,
		Text:       likeSuccessText(name, req.TargetID, resp, now),
		PlayerName: name,
		Likes:      resp,
	}
}

func (s *LikeService) playerName(ctx context.Context, req LikeRequest, resp *likeapi.LikeResult) string {
	if name := strings.TrimSpace(resp.PlayerNickname); name != "" {
		return name
	}
	if s.players != nil {
		name, err := s.players.PlayerName(ctx, req.Region, req.TargetID)
		if err == nil {
			return name
		}
		logutil.GetLogger(ctx).Warn("player info lookup failed, using placeholder", zap.String("target_id", req.TargetID), zap.Error(err))
	}
	return placeholderName(req.TargetID)
}

func (s *LikeService) profile(ctx context.Context, userID int64) (*model.Profile, error) {
	profile, err := s.profiles.Get(ctx, userID)
	if err != nil {
		if appErr.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return profile, nil
}

func placeholderName(targetID string) string {
	suffix := targetID
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	return "Player-" + suffix
}
