package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/likegate/internal/likeapi"
	"github.com/xxxsen/likegate/internal/repo"
)

const testPublicURL = "https://likes.example.com"

type fakeLikeAPI struct {
	mu     sync.Mutex
	calls  int
	result likeapi.LikeResult
	err    error
	gate   chan struct{}
}

func (f *fakeLikeAPI) SendLike(_ context.Context, _, _ string) (*likeapi.LikeResult, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if f.err != nil {
		return nil, f.err
	}
	res := f.result
	return &res, nil
}

func (f *fakeLikeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePlayers struct {
	name string
	err  error
}

func (f *fakePlayers) PlayerName(_ context.Context, _, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.name, nil
}

type sentMessage struct {
	chatID int64
	text   string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text})
	return f.err
}

type fakeShortener struct {
	err error
}

func (f *fakeShortener) Shorten(_ context.Context, longURL string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://short.example/" + longURL[len(longURL)-6:], nil
}

type fixture struct {
	now           time.Time
	verifications *repo.MemVerificationRepo
	profiles      *repo.MemProfileRepo
	links         *LinkService
	verifier      *VerificationService
	privileges    *PrivilegeService
	likes         *fakeLikeAPI
	players       *fakePlayers
	notifier      *fakeNotifier
	svc           *LikeService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		now:           time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC),
		verifications: repo.NewMemVerificationRepo(),
		profiles:      repo.NewMemProfileRepo(),
		likes:         &fakeLikeAPI{result: likeapi.LikeResult{LikesBefore: 10, LikesAfter: 110, LikesAdded: 100}},
		players:       &fakePlayers{name: "Neo"},
		notifier:      &fakeNotifier{},
	}
	clock := func() time.Time { return f.now }
	f.links = NewLinkService(f.verifications, nil, testPublicURL, time.Hour)
	f.links.now = clock
	f.verifier = NewVerificationService(f.verifications)
	f.verifier.now = clock
	f.privileges = NewPrivilegeService(f.profiles, []int64{1})
	f.privileges.now = clock
	f.svc = NewLikeService(LikeServiceDeps{
		Verifications:  f.verifications,
		Profiles:       f.profiles,
		Links:          f.links,
		Policy:         NewPolicy(24*time.Hour, 6*time.Hour),
		Likes:          f.likes,
		Players:        f.players,
		Notifier:       f.notifier,
		HowToVerifyURL: "https://t.me/howto",
	})
	f.svc.now = clock
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func codeFromLink(t *testing.T, link string) string {
	t.Helper()
	prefix := testPublicURL + VerifyPathPrefix
	require.True(t, strings.HasPrefix(link, prefix), link)
	return strings.TrimPrefix(link, prefix)
}

// verifiedFor issues and verifies a code for the pair, returning the code.
func (f *fixture) verifiedFor(t *testing.T, userID int64, target string, chatID int64) string {
	t.Helper()
	link, err := f.links.Issue(context.Background(), IssueInput{UserID: userID, TargetID: target, Region: "ind", ChatID: chatID})
	require.NoError(t, err)
	code := codeFromLink(t, link.URL)
	outcome, err := f.verifier.Verify(context.Background(), code)
	require.NoError(t, err)
	require.Equal(t, VerifySuccess, outcome)
	return code
}

func (f *fixture) setLastAction(t *testing.T, userID int64, at time.Time) {
	t.Helper()
	ctx := context.Background()
	p, err := f.profiles.Get(ctx, userID)
	expected := int64(0)
	if err == nil {
		expected = p.LastActionAt
	}
	ok, err := f.profiles.ClaimAction(ctx, userID, expected, at.Unix(), 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, f.profiles.CompleteAction(ctx, userID, at.Unix(), at.Unix()))
}

func (f *fixture) lastAction(t *testing.T, userID int64) int64 {
	t.Helper()
	p, err := f.profiles.Get(context.Background(), userID)
	if err != nil {
		return 0
	}
	return p.LastActionAt
}
