// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
)

func Test_ExecutorCorrelatesResults(t *testing.T) {
	e := NewExecutor(nil)
	defer e.Shutdown()

	const callers = 50
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := e.submit(t.Context(), func(context.Context) (any, error) { return i, nil })
			if err != nil {
				errs <- err
				return
			}
			if v.(int) != i {
				errs <- errors.New("result delivered to the wrong caller")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func Test_ExecutorShutdownClosesChannels(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	e := NewExecutor(nil)
	ch, err := e.CreateChannel(t.Context(), ConnectionDetails{Host: "127.0.0.1", Port: 1})
	require.NoError(t, err)

	again, err := e.CreateChannel(t.Context(), ConnectionDetails{Host: "127.0.0.1", Port: 1})
	require.NoError(t, err)
	require.Same(t, ch, again)

	require.NoError(t, e.Shutdown())
	require.Equal(t, connectivity.Shutdown, ch.conn.GetState())
	require.NoError(t, e.Shutdown())

	_, err = e.CreateChannel(t.Context(), ConnectionDetails{Host: "127.0.0.1", Port: 2})
	require.ErrorIs(t, err, ErrClosed)
	_, err = e.Submit(t.Context(), ch, func(context.Context, grpc.ClientConnInterface) (any, error) { return nil, nil })
	require.ErrorIs(t, err, ErrClosed)
}

func Test_ExecutorCrashIsFatal(t *testing.T) {
	e := NewExecutor(nil)
	defer e.Shutdown()

	_, err := e.submit(t.Context(), func(context.Context) (any, error) { panic("boom") })
	require.ErrorIs(t, err, ErrExecutor)
	require.ErrorContains(t, err, "boom")
	require.ErrorIs(t, e.Err(), ErrExecutor)

	_, err = e.submit(t.Context(), func(context.Context) (any, error) { return 1, nil })
	require.ErrorIs(t, err, ErrExecutor)
}

func Test_ExecutorRejectsReentrantCalls(t *testing.T) {
	e := NewExecutor(nil)
	defer e.Shutdown()

	v, err := e.submit(t.Context(), func(ctx context.Context) (any, error) {
		_, inner := e.submit(ctx, func(context.Context) (any, error) { return nil, nil })
		return inner, nil
	})
	require.NoError(t, err)
	require.ErrorIs(t, v.(error), ErrExecutor)
}

func Test_ExecutorCanceledContext(t *testing.T) {
	e := NewExecutor(nil)
	defer e.Shutdown()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := e.submit(ctx, func(context.Context) (any, error) { return 1, nil })
	require.ErrorIs(t, err, context.Canceled)
}

func Test_ExecutorStreamingStopsEarly(t *testing.T) {
	e := NewExecutor(nil)
	defer e.Shutdown()

	items := []int{10, 20, 30, 40}
	call := func(context.Context, grpc.ClientConnInterface) (Receiver, error) {
		i := 0
		return func() (any, error) {
			if i == len(items) {
				return nil, io.EOF
			}
			i++
			return items[i-1], nil
		}, nil
	}

	var seen []int
	out, err := e.SubmitStreaming(t.Context(), &Channel{}, call, func(item any) bool {
		seen = append(seen, item.(int))
		return item.(int) < 30
	})
	require.NoError(t, err)
	require.Equal(t, []int{10, 20, 30}, seen)
	require.Equal(t, StreamOutcome{Items: 3, Stopped: true, Iteration: 2}, out)

	seen = nil
	out, err = e.SubmitStreaming(t.Context(), &Channel{}, call, func(item any) bool {
		seen = append(seen, item.(int))
		return true
	})
	require.NoError(t, err)
	require.Equal(t, items, seen)
	require.Equal(t, StreamOutcome{Items: 4}, out)
}
