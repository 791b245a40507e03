// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"context"
	"errors"
	"time"
)

// DefaultPollInterval is how often blocking waits re-query the server.
const DefaultPollInterval = 100 * time.Millisecond

// pollUntil calls cond every interval until it reports true. A timeout of
// zero waits until ctx is done; otherwise reaching it returns an ErrTimeout
// carrying timeoutMsg.
func pollUntil(ctx context.Context, interval, timeout time.Duration, timeoutMsg string, cond func(context.Context) (bool, error)) error {
	var deadline time.Time
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
		deadline, _ = ctx.Deadline()
	}
	// gRPC fails a call whose deadline has passed before the context timer
	// fires, so ctx.Err() can still be nil here.
	expired := func(err error) bool {
		if timeout <= 0 {
			return false
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return true
		}
		return !time.Now().Before(deadline) && (err == nil || errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		ok, err := cond(ctx)
		if err != nil {
			if expired(err) {
				return newError(KindTimeout, "%s", timeoutMsg)
			}
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			if expired(nil) {
				return newError(KindTimeout, "%s", timeoutMsg)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
