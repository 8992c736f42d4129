package likeapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/likegate/internal/pkg/errors"
)

func TestSendLike(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/like" || r.URL.Query().Get("uid") != "12345678" || r.URL.Query().Get("server_name") != "ind" {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		_, _ = fmt.Fprint(w, `{"LikesbeforeCommand": 10, "LikesafterCommand": 110, "LikesGivenByAPI": 100, "PlayerNickname": "Neo"}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/like?uid={uid}&server_name={region}", time.Second, "", time.Second)
	res, err := client.SendLike(context.Background(), "ind", "12345678")
	require.NoError(t, err)
	require.Equal(t, int64(10), res.LikesBefore)
	require.Equal(t, int64(110), res.LikesAfter)
	require.Equal(t, int64(100), res.LikesAdded)
	require.Equal(t, "Neo", res.PlayerNickname)
}

func TestSendLikeErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/down":
			http.Error(w, "maintenance", http.StatusBadGateway)
		case "/garbage":
			_, _ = fmt.Fprint(w, "<html>")
		case "/slow":
			time.Sleep(200 * time.Millisecond)
			_, _ = fmt.Fprint(w, `{}`)
		}
	}))
	defer srv.Close()

	for _, path := range []string{"/down", "/garbage"} {
		client := NewClient(srv.URL+path, time.Second, "", time.Second)
		_, err := client.SendLike(context.Background(), "ind", "1")
		require.Error(t, err)
		require.True(t, errors.Is(err, appErr.ErrExternal), path)
	}

	client := NewClient(srv.URL+"/slow", 50*time.Millisecond, "", time.Second)
	_, err := client.SendLike(context.Background(), "ind", "1")
	require.ErrorIs(t, err, appErr.ErrExternal)
}

func TestPlayerName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("uid") == "404" {
			http.NotFound(w, r)
			return
		}
		_, _ = fmt.Fprint(w, `{"name": " Trinity "}`)
	}))
	defer srv.Close()

	client := NewClient("", time.Second, srv.URL+"/info?uid={uid}&region={region}", time.Second)
	name, err := client.PlayerName(context.Background(), "ind", "1")
	require.NoError(t, err)
	require.Equal(t, "Trinity", name)

	_, err = client.PlayerName(context.Background(), "ind", "404")
	require.ErrorIs(t, err, appErr.ErrExternal)

	_, err = NewClient("", time.Second, "", time.Second).PlayerName(context.Background(), "ind", "1")
	require.ErrorIs(t, err, appErr.ErrExternal)
}

type countingLookup struct {
	calls int
	err   error
}

func (c *countingLookup) PlayerName(_ context.Context, _, uid string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return "name-" + uid, nil
}

func TestLruPlayerLookup(t *testing.T) {
	next := &countingLookup{}
	lookup := WrapLruCacheToPlayerLookup(next, 8, time.Minute)

	for i := 0; i < 3; i++ {
		name, err := lookup.PlayerName(context.Background(), "ind", "7")
		require.NoError(t, err)
		require.Equal(t, "name-7", name)
	}
	require.Equal(t, 1, next.calls)

	failing := &countingLookup{err: errors.New("boom")}
	lookup = WrapLruCacheToPlayerLookup(failing, 8, time.Minute)
	_, err := lookup.PlayerName(context.Background(), "ind", "7")
	require.Error(t, err)
	_, err = lookup.PlayerName(context.Background(), "ind", "7")
	require.Error(t, err)
	require.Equal(t, 2, failing.calls)

	require.Same(t, next, WrapLruCacheToPlayerLookup(next, 0, time.Minute))
}
