package likeapi

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type PlayerLookup interface {
	PlayerName(ctx context.Context, region, uid string) (string, error)
}

// WrapLruCacheToPlayerLookup memoizes successful name lookups. Failures are
// not cached so a recovering upstream is picked up on the next request.
func WrapLruCacheToPlayerLookup(next PlayerLookup, size int, ttl time.Duration) PlayerLookup {
	if next == nil || size <= 0 || ttl <= 0 {
		return next
	}
	return &lruPlayerLookup{
		next:  next,
		cache: expirable.NewLRU[string, string](size, nil, ttl),
	}
}

type lruPlayerLookup struct {
	next  PlayerLookup
	cache *expirable.LRU[string, string]
}

func (l *lruPlayerLookup) PlayerName(ctx context.Context, region, uid string) (string, error) {
	key := region + "|" + uid
	if name, ok := l.cache.Get(key); ok {
		logutil.GetLogger(ctx).Debug("player name cache hit", zap.String("uid", uid))
		return name, nil
	}
	name, err := l.next.PlayerName(ctx, region, uid)
	if err != nil {
		return "", err
	}
	l.cache.Add(key, name)
	return name, nil
}
