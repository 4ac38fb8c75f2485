package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkgmirror/core/internal/ports"
)

const rateLimitCounterTTLSeconds = 3600

// EnforceRateLimit implements spec.md §4.1 step 5: key
// "rate_limit:<token_id>:<hour>" where hour = floor(now_ms/3600000). GET,
// compare to max, PUT count+1 with TTL 3600s. Unlimited if max<=0;
// unenforced (allowed) if kv is nil. The sequence is not atomic: overshoot
// by up to the number of concurrent requests is acceptable. Any KVCache
// error is logged by the caller and treated as allowed (fail-open) — this
// function itself returns the error so the caller can log it before
// falling back to allowed.
func EnforceRateLimit(ctx context.Context, kv ports.KVCache, clock ports.Clock, tokenID string, maxPerHour int64) (bool, error) {
	if maxPerHour <= 0 {
		return true, nil
	}
	if kv == nil {
		return true, nil
	}

	hour := clock.NowUnixMs() / 3_600_000
	key := fmt.Sprintf("rate_limit:%s:%d", tokenID, hour)

	raw, err := kv.Get(ctx, key)
	if err != nil {
		return true, err
	}

	var count int64
	if raw != "" {
		count, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			count = 0
		}
	}
	if count >= maxPerHour {
		return false, nil
	}

	if err := kv.Put(ctx, key, strconv.FormatInt(count+1, 10), rateLimitCounterTTLSeconds*time.Second); err != nil {
		return true, err
	}
	return true, nil
}
