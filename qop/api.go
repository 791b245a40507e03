// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

var httpStatusRe = regexp.MustCompile(`unexpected HTTP status code received from server: (\d+)`)

// BaseApi is the synchronous surface every service wrapper is built on. It
// routes each call through the Executor on the Channel for its connection
// details and translates transport failures into this package's errors.
type BaseApi struct {
	service  string
	details  ConnectionDetails
	executor *Executor
	channel  *Channel
	timeout  time.Duration
	hook     CallHook
	log      *slog.Logger
}

// NewBaseApi obtains the Channel for details from executor, dialing it on
// first use, and returns a BaseApi calling methods of service on it.
func NewBaseApi(ctx context.Context, executor *Executor, service string, details ConnectionDetails, logger *slog.Logger) (*BaseApi, error) {
	details = details.withDefaults()
	ch, err := executor.CreateChannel(ctx, details)
	if err != nil {
		return nil, err
	}
	return &BaseApi{
		service:  service,
		details:  details,
		executor: executor,
		channel:  ch,
		timeout:  details.Timeout,
		hook:     details.Hook,
		log:      loggerOrDefault(logger).With("component", "api", "service", service),
	}, nil
}

// Details returns the connection details the api was built from.
func (a *BaseApi) Details() ConnectionDetails { return a.details }

// Channel returns the channel handle calls are submitted against.
func (a *BaseApi) Channel() *Channel { return a.channel }

// callError carries the response header and trailer of a failed call back
// across the executor boundary.
type callError struct {
	err    error
	header metadata.MD
}

func (e *callError) Error() string { return e.err.Error() }

func (e *callError) Unwrap() error { return e.err }

// Call performs the unary method with req and decodes the reply into resp.
func (a *BaseApi) Call(ctx context.Context, method string, req, resp any) error {
	info := CallInfo{Service: a.service, Method: method, CallType: CallTypeUnary, Target: a.channel.target}
	ctx, token := a.hookStart(ctx, info)
	stats := &CallStatistics{}

	_, err := a.executor.Submit(ctx, a.channel, func(ctx context.Context, conn grpc.ClientConnInterface) (any, error) {
		ctx, cancel := context.WithTimeout(withCallStatistics(ctx, stats), a.timeout)
		defer cancel()
		var header, trailer metadata.MD
		if err := conn.Invoke(ctx, info.FullMethod(), req, resp, grpc.Header(&header), grpc.Trailer(&trailer)); err != nil {
			return nil, &callError{err: err, header: metadata.Join(header, trailer)}
		}
		return nil, nil
	})
	err = translateError(method, err)
	a.hookEnd(ctx, token, info, stats, err)
	return err
}

// CallStreaming opens the server-streaming method with req. Every item is
// decoded into a value from newMsg and handed to onItem on the executor
// goroutine; returning false stops the stream early.
func (a *BaseApi) CallStreaming(ctx context.Context, method string, req any, newMsg func() any, onItem func(item any) bool) (StreamOutcome, error) {
	info := CallInfo{Service: a.service, Method: method, CallType: CallTypeStream, Target: a.channel.target}
	ctx, token := a.hookStart(ctx, info)
	stats := &CallStatistics{}

	out, err := a.executor.SubmitStreaming(ctx, a.channel, func(ctx context.Context, conn grpc.ClientConnInterface) (Receiver, error) {
		ctx, cancel := context.WithTimeout(withCallStatistics(ctx, stats), a.timeout)
		cs, err := conn.NewStream(ctx, &grpc.StreamDesc{ServerStreams: true}, info.FullMethod())
		if err != nil {
			cancel()
			return nil, &callError{err: err}
		}
		if err := cs.SendMsg(req); err != nil && !errors.Is(err, io.EOF) {
			cancel()
			return nil, &callError{err: err}
		}
		if err := cs.CloseSend(); err != nil {
			cancel()
			return nil, &callError{err: err}
		}
		return func() (any, error) {
			msg := newMsg()
			if err := cs.RecvMsg(msg); err != nil {
				cancel()
				if errors.Is(err, io.EOF) {
					return nil, io.EOF
				}
				header, _ := cs.Header()
				return nil, &callError{err: err, header: metadata.Join(header, cs.Trailer())}
			}
			return msg, nil
		}, nil
	}, onItem)
	err = translateError(method, err)
	a.hookEnd(ctx, token, info, stats, err)
	return out, err
}

// callStream is the typed form of CallStreaming.
func callStream[T any](ctx context.Context, a *BaseApi, method string, req any, onItem func(*T) bool) (StreamOutcome, error) {
	return a.CallStreaming(ctx, method, req,
		func() any { return new(T) },
		func(item any) bool { return onItem(item.(*T)) })
}

func (a *BaseApi) hookStart(ctx context.Context, info CallInfo) (context.Context, HookToken) {
	if a.hook == nil {
		return ctx, nil
	}
	var token HookToken
	func() {
		defer func() {
			if rv := recover(); rv != nil {
				a.log.Error("call hook start panic", "err", rv)
			}
		}()
		hookCtx, tok := a.hook.OnCallStart(ctx, info)
		if hookCtx != nil {
			ctx = hookCtx
		}
		token = tok
	}()
	return ctx, token
}

func (a *BaseApi) hookEnd(ctx context.Context, token HookToken, info CallInfo, stats *CallStatistics, err error) {
	if a.hook == nil {
		return
	}
	defer func() {
		if rv := recover(); rv != nil {
			a.log.Error("call hook end panic", "err", rv)
		}
	}()
	a.hook.OnCallEnd(ctx, token, info, stats, err)
}

// translateError maps a transport failure of op onto the error taxonomy.
// Errors already produced by this package pass through unchanged.
func translateError(op string, err error) error {
	if err == nil {
		return nil
	}
	var header metadata.MD
	var ce *callError
	if errors.As(err, &ce) {
		header = ce.header
		err = ce.err
	}
	if errors.Is(err, ErrQop) {
		return err
	}

	st, isStatus := status.FromError(err)
	if errors.Is(err, context.DeadlineExceeded) || (isStatus && st.Code() == codes.DeadlineExceeded) {
		return &TimeoutError{Op: op, Err: err}
	}
	if locs := header.Get(HeaderLocation); len(locs) > 0 {
		if redirect, perr := newRedirectError(locs[0]); perr == nil {
			return redirect
		}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if isStatus && st.Code() == codes.Canceled {
		return fmt.Errorf("%s: %w", op, context.Canceled)
	}

	connErr := &ConnectionError{Message: err.Error(), Code: codes.Unknown, Headers: header, Err: err}
	if isStatus {
		connErr.Message = st.Message()
		connErr.Code = st.Code()
	}
	if m := httpStatusRe.FindStringSubmatch(connErr.Message); m != nil {
		connErr.HTTPStatus = m[1]
	}
	return connErr
}
