// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// DefaultHost is used when neither the caller nor the user config names one.
const DefaultHost = "127.0.0.1"

// Option configures NewManager.
type Option func(*managerConfig)

type managerConfig struct {
	port        int
	timeout     time.Duration
	headers     map[string]string
	debugData   bool
	tls         *tls.Config
	cluster     string
	token       string
	userConfig  *UserConfig
	logger      *slog.Logger
	hook        CallHook
	httpClient  *http.Client
	compression string
	strict      *bool
}

// WithPort probes only port instead of the default candidates.
func WithPort(port int) Option { return func(c *managerConfig) { c.port = port } }

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option { return func(c *managerConfig) { c.timeout = d } }

// WithHeaders adds metadata sent with every call.
func WithHeaders(h map[string]string) Option { return func(c *managerConfig) { c.headers = h } }

// WithDebugData records the response headers of every call.
func WithDebugData() Option { return func(c *managerConfig) { c.debugData = true } }

// WithTLS connects over TLS.
func WithTLS(conf *tls.Config) Option { return func(c *managerConfig) { c.tls = conf } }

// WithClusterName targets a named cluster behind the gateway.
func WithClusterName(name string) Option { return func(c *managerConfig) { c.cluster = name } }

// WithUserToken authenticates with a bearer token.
func WithUserToken(token string) Option { return func(c *managerConfig) { c.token = token } }

// WithUserConfig uses cfg instead of reading ~/.qm/config.json.
func WithUserConfig(cfg *UserConfig) Option { return func(c *managerConfig) { c.userConfig = cfg } }

func WithLogger(l *slog.Logger) Option { return func(c *managerConfig) { c.logger = l } }

// WithCallHook observes every gateway call.
func WithCallHook(h CallHook) Option { return func(c *managerConfig) { c.hook = h } }

// WithHTTPClient replaces the client of the redirect check.
func WithHTTPClient(client *http.Client) Option {
	return func(c *managerConfig) { c.httpClient = client }
}

// WithCompression compresses requests with the named gRPC compressor.
func WithCompression(name string) Option { return func(c *managerConfig) { c.compression = name } }

// WithStrictHealthCheck overrides the strictness from the user config.
func WithStrictHealthCheck(strict bool) Option {
	return func(c *managerConfig) { c.strict = &strict }
}

// QMVersion pairs the client and server versions.
type QMVersion struct {
	Client string
	Server string
}

// Manager is a session with one gateway. It owns the executor every call
// runs on.
type Manager struct {
	executor   *Executor
	server     *ServerDetails
	frontend   *FrontendApi
	simulation *SimulationApi
	jobManager *JobManagerApi
	results    *JobResultApi
	log        *slog.Logger
}

// NewManager discovers the gateway at host and checks its health. An empty
// host falls back to the user config, then to DefaultHost.
func NewManager(ctx context.Context, host string, opts ...Option) (*Manager, error) {
	var cfg managerConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	log := loggerOrDefault(cfg.logger)

	uc := cfg.userConfig
	if uc == nil {
		path, err := DefaultUserConfigPath()
		if err != nil {
			return nil, err
		}
		if uc, err = LoadUserConfig(path); err != nil {
			return nil, err
		}
	}
	if host == "" {
		host = uc.HostOr(DefaultHost)
	}
	token := cfg.token
	if token == "" {
		token = uc.UserToken
	}

	executor := NewExecutor(log)
	server, err := DetectServer(ctx, executor, DetectOptions{
		Host:        host,
		ConfigPort:  uc.PortOr(0),
		UserPort:    cfg.port,
		ClusterName: cfg.cluster,
		UserToken:   token,
		TLS:         cfg.tls,
		Timeout:     cfg.timeout,
		Headers:     cfg.headers,
		DebugData:   cfg.debugData,
		Compression: cfg.compression,
		Hook:        cfg.hook,
		HTTPClient:  cfg.httpClient,
		Logger:      log,
	})
	if err != nil {
		return nil, errors.Join(err, executor.Shutdown())
	}

	m, err := newManager(ctx, executor, server, log)
	if err != nil {
		return nil, errors.Join(err, executor.Shutdown())
	}
	strict := uc.Strict()
	if cfg.strict != nil {
		strict = *cfg.strict
	}
	if err := m.PerformHealthCheck(ctx, strict); err != nil {
		return nil, errors.Join(err, executor.Shutdown())
	}
	return m, nil
}

func newManager(ctx context.Context, executor *Executor, server *ServerDetails, log *slog.Logger) (*Manager, error) {
	m := &Manager{executor: executor, server: server, log: log.With("component", "manager")}
	var err error
	if m.frontend, err = NewFrontendApi(ctx, executor, server.Connection, log); err != nil {
		return nil, err
	}
	if m.simulation, err = NewSimulationApi(ctx, executor, server.Connection, log); err != nil {
		return nil, err
	}
	if m.jobManager, err = NewJobManagerApi(ctx, executor, server.Connection, log); err != nil {
		return nil, err
	}
	if m.results, err = NewJobResultApi(ctx, executor, server.Connection, log); err != nil {
		return nil, err
	}
	return m, nil
}

// Server returns what discovery learned about the gateway.
func (m *Manager) Server() *ServerDetails { return m.server }

// Capabilities returns the optional features of the gateway.
func (m *Manager) Capabilities() ServerCapabilities { return m.server.Capabilities }

func (m *Manager) Version() QMVersion {
	return QMVersion{Client: Version, Server: m.server.QOPVersion}
}

// DebugData returns the recorded response headers, or nil when recording
// is off.
func (m *Manager) DebugData() *DebugData { return m.server.Connection.DebugData }

// PerformHealthCheck asks the gateway for its health. When strict, a failed
// check is an ErrHealthCheck error; otherwise it is only logged.
func (m *Manager) PerformHealthCheck(ctx context.Context, strict bool) error {
	return m.frontend.HealthCheck(ctx, strict)
}

func (m *Manager) ResetDataProcessing(ctx context.Context) error {
	return m.frontend.ResetDataProcessing(ctx)
}

// OpenQM opens a quantum machine. With closeOthers set, machines using the
// same resources are closed.
func (m *Manager) OpenQM(ctx context.Context, config map[string]any, closeOthers bool) (*QuantumMachine, error) {
	id, err := m.frontend.OpenQM(ctx, config, closeOthers)
	if err != nil {
		return nil, err
	}
	return m.machine(id, config), nil
}

func (m *Manager) ListOpenQMs(ctx context.Context) ([]string, error) {
	return m.frontend.ListOpenQMs(ctx)
}

// GetQM returns an open machine by id.
func (m *Manager) GetQM(ctx context.Context, machineID string) (*QuantumMachine, error) {
	resp, err := m.frontend.GetQM(ctx, machineID)
	if err != nil {
		return nil, err
	}
	return m.machine(resp.MachineID, resp.Config), nil
}

func (m *Manager) CloseAllQMs(ctx context.Context) error {
	return m.frontend.CloseAllQMs(ctx)
}

func (m *Manager) GetControllers(ctx context.Context) ([]Controller, error) {
	return m.frontend.GetControllers(ctx)
}

func (m *Manager) ClearAllJobResults(ctx context.Context) error {
	return m.frontend.ClearAllJobResults(ctx)
}

// SendDebugCommand runs a debug command on a controller and returns its
// output.
func (m *Manager) SendDebugCommand(ctx context.Context, controller, command string) (string, error) {
	return m.frontend.SendDebugCommand(ctx, controller, command)
}

// Simulate runs program against config on the server-side simulator.
func (m *Manager) Simulate(ctx context.Context, config map[string]any, program Program, opts SimulateOptions, connections ...InterOpxConnection) (*SimulatedJob, error) {
	id, err := m.simulation.Simulate(ctx, config, program, opts, connections)
	if err != nil {
		return nil, err
	}
	return &SimulatedJob{Job: m.job(id, "")}, nil
}

// Job returns a handle to an existing job.
func (m *Manager) Job(jobID string) *Job { return m.job(jobID, "") }

// Close shuts the executor down and closes every connection.
func (m *Manager) Close() error {
	return m.executor.Shutdown()
}

func (m *Manager) machine(id string, config map[string]any) *QuantumMachine {
	return &QuantumMachine{id: id, config: config, m: m, log: m.log.With("machine_id", id)}
}

func (m *Manager) job(id, machineID string) *Job {
	return &Job{id: id, machineID: machineID, m: m, log: m.log.With("job_id", id)}
}
