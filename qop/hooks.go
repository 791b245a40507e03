// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"context"
	"sync/atomic"

	"google.golang.org/grpc/stats"
)

// Call type string constants for CallInfo.CallType.
const (
	CallTypeUnary  = "unary"
	CallTypeStream = "stream"
)

// CallHook provides observability callpoints around every gateway call.
// Implementations must be safe for concurrent use.
type CallHook interface {
	OnCallStart(ctx context.Context, info CallInfo) (context.Context, HookToken)
	OnCallEnd(ctx context.Context, token HookToken, info CallInfo, stats *CallStatistics, err error)
}

// HookToken is an opaque value returned by OnCallStart and passed back to
// OnCallEnd. Only meaningful to the CallHook that created it.
type HookToken interface{}

// CallInfo carries call metadata passed to hooks.
type CallInfo struct {
	Service  string // gRPC service name
	Method   string // method name relative to Service
	CallType string // CallTypeUnary or CallTypeStream
	Target   string // host:port the call was sent to
}

// FullMethod returns the gRPC path of the call.
func (i CallInfo) FullMethod() string { return FullMethod(i.Service, i.Method) }

// CallStatistics holds per-call counters of received messages.
type CallStatistics struct {
	Messages     int64
	PayloadBytes int64
}

// RecordMessage records one received message of the given size.
func (s *CallStatistics) RecordMessage(payloadBytes int64) {
	atomic.AddInt64(&s.Messages, 1)
	atomic.AddInt64(&s.PayloadBytes, payloadBytes)
}

// MultiHook fans every callpoint out to each hook in order.
type MultiHook []CallHook

func (m MultiHook) OnCallStart(ctx context.Context, info CallInfo) (context.Context, HookToken) {
	tokens := make([]HookToken, len(m))
	for i, h := range m {
		next, tok := h.OnCallStart(ctx, info)
		if next != nil {
			ctx = next
		}
		tokens[i] = tok
	}
	return ctx, tokens
}

func (m MultiHook) OnCallEnd(ctx context.Context, token HookToken, info CallInfo, stats *CallStatistics, err error) {
	tokens, _ := token.([]HookToken)
	for i, h := range m {
		var t HookToken
		if i < len(tokens) {
			t = tokens[i]
		}
		h.OnCallEnd(ctx, t, info, stats, err)
	}
}

type callStatsKey struct{}

func withCallStatistics(ctx context.Context, s *CallStatistics) context.Context {
	return context.WithValue(ctx, callStatsKey{}, s)
}

// payloadCounter is a stats.Handler that feeds received payload sizes into
// the CallStatistics carried by the call context.
type payloadCounter struct{}

func (payloadCounter) TagRPC(ctx context.Context, _ *stats.RPCTagInfo) context.Context { return ctx }

func (payloadCounter) HandleRPC(ctx context.Context, s stats.RPCStats) {
	in, ok := s.(*stats.InPayload)
	if !ok {
		return
	}
	if cs, _ := ctx.Value(callStatsKey{}).(*CallStatistics); cs != nil {
		cs.RecordMessage(int64(in.Length))
	}
}

func (payloadCounter) TagConn(ctx context.Context, _ *stats.ConnTagInfo) context.Context { return ctx }

func (payloadCounter) HandleConn(context.Context, stats.ConnStats) {}
