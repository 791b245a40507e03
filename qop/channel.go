// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const (
	// DefaultMaxMessageSize bounds sent and received messages.
	DefaultMaxMessageSize = 100 * 1024 * 1024
	// DefaultTimeout is the per-call deadline.
	DefaultTimeout = 60 * time.Second

	initialWindowSize     = 1 << 24
	initialConnWindowSize = 1 << 24
)

// ConnectionDetails identifies one gateway endpoint and how to talk to it.
type ConnectionDetails struct {
	Host           string
	Port           int
	TLS            *tls.Config // nil dials in plaintext
	UserToken      string
	MaxMessageSize int
	Headers        map[string]string
	Timeout        time.Duration
	DebugData      *DebugData
	Compression    string // "" or CompressorName
	Hook           CallHook
}

// Target returns host:port.
func (d ConnectionDetails) Target() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

func (d ConnectionDetails) withDefaults() ConnectionDetails {
	if d.MaxMessageSize <= 0 {
		d.MaxMessageSize = DefaultMaxMessageSize
	}
	if d.Timeout <= 0 {
		d.Timeout = DefaultTimeout
	}
	return d
}

// key identifies the transport a ConnectionDetails needs. Hooks and timeouts
// are applied per call and do not take part.
func (d ConnectionDetails) key() string {
	var b strings.Builder
	b.WriteString(d.Target())
	fmt.Fprintf(&b, "|tls=%t|max=%d|zip=%s|debug=%p", d.TLS != nil, d.MaxMessageSize, d.Compression, d.DebugData)
	if d.TLS != nil {
		fmt.Fprintf(&b, "|tlsconf=%p", d.TLS)
	}
	for _, k := range sortedKeys(d.Headers) {
		fmt.Fprintf(&b, "|%s=%s", k, d.Headers[k])
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Channel is a transport connection owned by an Executor. Callers hold it as
// a handle and submit work against it; they never use the connection
// directly.
type Channel struct {
	target    string
	conn      *grpc.ClientConn
	closeOnce sync.Once
	closeErr  error
}

// Target returns the host:port the channel is connected to.
func (c *Channel) Target() string { return c.target }

func (c *Channel) close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func dialChannel(d ConnectionDetails) (*Channel, error) {
	conn, err := grpc.NewClient(d.Target(), dialOptions(d)...)
	if err != nil {
		return nil, &ConnectionError{
			Message: fmt.Sprintf("create channel to %s: %v", d.Target(), err),
			Err:     err,
		}
	}
	return &Channel{target: d.Target(), conn: conn}, nil
}

func dialOptions(d ConnectionDetails) []grpc.DialOption {
	var creds credentials.TransportCredentials = insecure.NewCredentials()
	if d.TLS != nil {
		creds = credentials.NewTLS(d.TLS)
	}
	callOpts := []grpc.CallOption{
		grpc.CallContentSubtype(CodecName),
		grpc.MaxCallRecvMsgSize(d.MaxMessageSize),
		grpc.MaxCallSendMsgSize(d.MaxMessageSize),
	}
	if d.Compression == CompressorName {
		callOpts = append(callOpts, grpc.UseCompressor(CompressorName))
	}
	unary := []grpc.UnaryClientInterceptor{headerUnaryInterceptor(d.Headers)}
	stream := []grpc.StreamClientInterceptor{headerStreamInterceptor(d.Headers)}
	if d.DebugData != nil {
		unary = append(unary, debugUnaryInterceptor(d.DebugData))
		stream = append(stream, debugStreamInterceptor(d.DebugData))
	}
	return []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(callOpts...),
		grpc.WithInitialWindowSize(initialWindowSize),
		grpc.WithInitialConnWindowSize(initialConnWindowSize),
		grpc.WithChainUnaryInterceptor(unary...),
		grpc.WithChainStreamInterceptor(stream...),
		grpc.WithStatsHandler(payloadCounter{}),
	}
}

func appendHeaders(ctx context.Context, headers map[string]string) context.Context {
	if len(headers) == 0 {
		return ctx
	}
	kv := make([]string, 0, 2*len(headers))
	for _, k := range sortedKeys(headers) {
		kv = append(kv, k, headers[k])
	}
	return metadata.AppendToOutgoingContext(ctx, kv...)
}

func headerUnaryInterceptor(headers map[string]string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return invoker(appendHeaders(ctx, headers), method, req, reply, cc, opts...)
	}
}

func headerStreamInterceptor(headers map[string]string) grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		return streamer(appendHeaders(ctx, headers), desc, cc, method, opts...)
	}
}

func debugUnaryInterceptor(sink *DebugData) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		var md metadata.MD
		err := invoker(ctx, method, req, reply, cc, append(opts, grpc.Header(&md))...)
		if md != nil {
			sink.Append(md)
		}
		return err
	}
}

func debugStreamInterceptor(sink *DebugData) grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		cs, err := streamer(ctx, desc, cc, method, opts...)
		if err != nil {
			return nil, err
		}
		return &debugStream{ClientStream: cs, sink: sink}, nil
	}
}

// debugStream records the stream's header metadata after the first receive.
type debugStream struct {
	grpc.ClientStream
	sink *DebugData
	once sync.Once
}

func (s *debugStream) RecvMsg(m any) error {
	err := s.ClientStream.RecvMsg(m)
	s.once.Do(func() {
		if md, herr := s.ClientStream.Header(); herr == nil && md != nil {
			s.sink.Append(md)
		}
	})
	return err
}
