// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
)

// DefaultPorts are probed after the configured port when the caller gives
// none.
var DefaultPorts = []int{80, 9510}

const maxRedirects = 5

// DetectOptions configures DetectServer.
type DetectOptions struct {
	Host        string
	ConfigPort  int // port from the user config, 0 when unset
	UserPort    int // port given by the caller, 0 when unset
	ClusterName string
	UserToken   string
	TLS         *tls.Config
	Timeout     time.Duration
	// MaxMessageSize defaults to DefaultMaxMessageSize.
	MaxMessageSize int
	Headers        map[string]string
	DebugData      bool
	Compression    string
	Hook           CallHook
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// ServerCapabilities are the optional features a gateway advertises.
type ServerCapabilities struct {
	JobStreamingState bool
	InputStream       bool
	NewGrpcStructure  bool
}

func capabilitiesOf(info ServerInfo) ServerCapabilities {
	return ServerCapabilities{
		JobStreamingState: info.Has(CapabilityJobStreamingState),
		InputStream:       info.Has(CapabilityInputStream),
		NewGrpcStructure:  info.Has(CapabilityNewGrpcStructure),
	}
}

// ServerDetails describes a gateway found by DetectServer. Host and Port are
// the probed address; after a redirect, Connection carries the target calls
// are actually sent to.
type ServerDetails struct {
	Host         string
	Port         int
	QOPVersion   string
	Info         ServerInfo
	Capabilities ServerCapabilities
	Connection   ConnectionDetails
	Octaves      map[string]Location
}

// DetectServer probes the candidate ports of opts.Host and returns the first
// gateway that answers. Redirects announced by the gateway are followed.
func DetectServer(ctx context.Context, executor *Executor, opts DetectOptions) (*ServerDetails, error) {
	log := loggerOrDefault(opts.Logger).With("component", "discovery")
	ports := candidatePorts(opts.ConfigPort, opts.UserPort)
	headers := gatewayHeaders(opts.Headers, opts.ClusterName, opts.UserToken)
	client := opts.HTTPClient
	if client == nil {
		client = newRedirectClient(opts.TLS, opts.Timeout)
	}

	for _, port := range ports {
		details := ConnectionDetails{
			Host:           opts.Host,
			Port:           port,
			TLS:            opts.TLS,
			UserToken:      opts.UserToken,
			MaxMessageSize: opts.MaxMessageSize,
			Headers:        headers,
			Timeout:        opts.Timeout,
			Compression:    opts.Compression,
			Hook:           opts.Hook,
		}
		if opts.DebugData {
			details.DebugData = NewDebugData()
		}
		log.DebugContext(ctx, "Probing gateway", "target", details.Target())

		sd, err := tryConnection(ctx, executor, client, details.withDefaults(), log, maxRedirects)
		if err == nil {
			sd.Host, sd.Port = opts.Host, port
			log.DebugContext(ctx, "Gateway discovered", "target", sd.Connection.Target())
			return sd, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, ErrConnection) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrRedirect) {
			log.DebugContext(ctx, "Connection error", "target", details.Target(), "err", err)
			continue
		}
		return nil, err
	}

	targets := make([]string, len(ports))
	for i, p := range ports {
		targets[i] = net.JoinHostPort(opts.Host, strconv.Itoa(p))
	}
	err := newError(KindDetection, "Failed to detect to QuantumMachines server. Tried connecting to %s.", strings.Join(targets, ","))
	log.ErrorContext(ctx, err.Message)
	return nil, err
}

func tryConnection(ctx context.Context, executor *Executor, client *http.Client, details ConnectionDetails, log *slog.Logger, redirects int) (*ServerDetails, error) {
	loc, octaves, err := checkRedirect(ctx, client, details, log)
	if err != nil {
		return nil, err
	}
	details.Host, details.Port = loc.Host, loc.Port

	frontend, err := NewFrontendApi(ctx, executor, details, log)
	if err != nil {
		return nil, err
	}
	infoApi, err := NewInfoServiceApi(ctx, executor, details, log)
	if err != nil {
		return nil, err
	}

	version, err := frontend.GetVersion(ctx)
	var info ServerInfo
	if err == nil {
		info, err = infoApi.GetInfo(ctx)
	}
	var redirect *RedirectError
	if errors.As(err, &redirect) {
		if redirects <= 0 {
			return nil, err
		}
		log.DebugContext(ctx, "Connection redirected", "target", net.JoinHostPort(redirect.Host, strconv.Itoa(redirect.Port)))
		details.Host, details.Port = redirect.Host, redirect.Port
		return tryConnection(ctx, executor, client, details, log, redirects-1)
	}
	if err != nil {
		return nil, err
	}

	log.DebugContext(ctx, "Established connection", "target", details.Target())
	return &ServerDetails{
		Host:         details.Host,
		Port:         details.Port,
		QOPVersion:   version,
		Info:         info,
		Capabilities: capabilitiesOf(info),
		Connection:   details,
		Octaves:      octaves,
	}, nil
}

func candidatePorts(configPort, userPort int) []int {
	if userPort != 0 {
		return []int{userPort}
	}
	ports := slices.Clone(DefaultPorts)
	if configPort != 0 && !slices.Contains(ports, configPort) {
		ports = append(ports, configPort)
	}
	slices.Sort(ports)
	return ports
}

func gatewayHeaders(base map[string]string, clusterName, userToken string) map[string]string {
	headers := make(map[string]string, len(base)+4)
	for k, v := range base {
		headers[k] = v
	}
	headers[HeaderService] = GatewayServiceName
	if userToken != "" {
		headers[HeaderAuthorization] = "Bearer " + userToken
	}
	if clusterName != "" {
		headers[HeaderClusterName] = clusterName
	} else {
		headers[HeaderClusterName] = AnyClusterName
		headers[HeaderAnyCluster] = "true"
	}
	return headers
}

// newRedirectClient returns an HTTP client speaking HTTP/2 only, over TLS
// when tlsConf is set and with prior knowledge otherwise.
func newRedirectClient(tlsConf *tls.Config, timeout time.Duration) *http.Client {
	var protocols http.Protocols
	protocols.SetHTTP2(true)
	protocols.SetUnencryptedHTTP2(true)
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Transport: &http.Transport{TLSClientConfig: tlsConf, Protocols: &protocols},
		Timeout:   timeout,
	}
}

// checkRedirect posts an empty message to the gateway and returns the
// location to talk to. A 302 answer names a different location. HTTP
// failures are not errors: the original location is kept.
func checkRedirect(ctx context.Context, client *http.Client, details ConnectionDetails, log *slog.Logger) (Location, map[string]Location, error) {
	orig := Location{Host: details.Host, Port: details.Port}
	body, err := proto.Marshal(&emptypb.Empty{})
	if err != nil {
		return orig, nil, fmt.Errorf("marshal redirect check body: %w", err)
	}
	scheme := "http"
	if details.TLS != nil {
		scheme = "https"
	}
	if client.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, client.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, scheme+"://"+details.Target(), bytes.NewReader(body))
	if err != nil {
		return orig, nil, fmt.Errorf("build redirect check: %w", err)
	}
	req.Header.Set("content-type", "application/grpc")
	req.Header.Set("te", "trailers")
	for _, k := range sortedKeys(details.Headers) {
		req.Header.Set(k, details.Headers[k])
	}

	// The location header is "host:port", not a URL, so redirects are never
	// followed by the HTTP stack.
	rt := client.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	resp, err := rt.RoundTrip(req)
	if err != nil {
		log.DebugContext(ctx, "redirect check failed", "target", details.Target(), "err", err)
		return orig, nil, nil
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	var octaves map[string]Location
	if h := resp.Header.Get(HeaderOctaves); h != "" {
		if octaves, err = ParseOctaves(h); err != nil {
			return orig, nil, err
		}
	}
	if resp.StatusCode != http.StatusFound {
		return orig, octaves, nil
	}
	loc, err := ParseLocation(resp.Header.Get(HeaderLocation))
	if err != nil {
		return orig, octaves, nil
	}
	return loc, octaves, nil
}
