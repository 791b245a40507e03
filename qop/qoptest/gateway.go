// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package qoptest provides an in-process QOP gateway for tests and local
// development. It serves the frontend, job manager, job results and info
// services over gRPC together with the HTTP redirect check, all on one
// plaintext HTTP/2 port.
//
// Usage:
//
//	gw := qoptest.New(qoptest.WithResults(func() []*qoptest.Result {
//		return []*qoptest.Result{qoptest.SingleInt64("answer", 42)}
//	}))
//	if err := gw.Start("127.0.0.1:0"); err != nil {
//		return err
//	}
//	defer gw.Close()
package qoptest

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Query-farm/qop-go/qop"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// DefaultVersion is the QOP version reported by a Gateway.
const DefaultVersion = "2.60-mock"

// RedirectPath is where the redirect check is served.
const RedirectPath = "/"

// Job is the gateway-side state of one job.
type Job struct {
	ID          string
	MachineID   string
	Status      qop.JobStatus
	AddedBy     string
	TimeAdded   time.Time
	Results     []*Result
	Done        bool
	Closed      bool
	DataLoss    bool
	Paused      bool
	Simulated   bool
	Errors      []qop.ExecutionError
	Metadata    qop.ProgramStreamMetadata
	Corrections map[string]qop.Matrix
	// Inputs records every insert into an input stream, by stream name.
	Inputs map[string][]any
}

func (j *Job) result(name string) *Result {
	for _, r := range j.Results {
		if r.Name == name {
			return r
		}
	}
	return nil
}

type fault struct {
	err    error
	header metadata.MD
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithVersion sets the reported QOP version.
func WithVersion(v string) Option { return func(g *Gateway) { g.version = v } }

// WithCapabilities sets the capabilities reported by the info service.
func WithCapabilities(caps ...string) Option {
	return func(g *Gateway) { g.info.Capabilities = caps }
}

// WithHealth sets the health check response.
func WithHealth(resp qop.HealthCheckResponse) Option { return func(g *Gateway) { g.health = resp } }

// WithResults sets the results every queued or simulated job starts with.
func WithResults(fn func() []*Result) Option { return func(g *Gateway) { g.results = fn } }

// WithSamples sets the simulated controller samples.
func WithSamples(s *Samples) Option { return func(g *Gateway) { g.samples = s } }

// WithControllers sets the controllers attached to the gateway.
func WithControllers(cs ...qop.Controller) Option {
	return func(g *Gateway) { g.controllers = cs }
}

func WithLogger(l *slog.Logger) Option { return func(g *Gateway) { g.log = l } }

// Gateway is an in-process QOP gateway.
type Gateway struct {
	mu          sync.Mutex
	version     string
	info        qop.GetInfoResponse
	health      qop.HealthCheckResponse
	controllers []qop.Controller
	results     func() []*Result
	samples     *Samples
	machines    map[string]map[string]any
	ioValues    map[string][2]qop.IOValues
	programs    map[string]string
	jobs        map[string]*Job
	qmRequests  []qop.HighQmApiRequest
	redirect    string
	octaves     string
	faults      map[string]fault
	calls       map[string]int
	headers     []metadata.MD
	seq         int
	log         *slog.Logger

	grpc *grpc.Server
	http *http.Server
	lis  net.Listener
	wg   sync.WaitGroup
}

// New returns a Gateway that reports a healthy server.
func New(opts ...Option) *Gateway {
	g := &Gateway{
		version: DefaultVersion,
		info: qop.GetInfoResponse{
			Implementation: qop.ImplementationDetails{Name: "qoptest", Version: DefaultVersion, URL: "https://query.farm"},
		},
		health:      qop.HealthCheckResponse{Ok: true, Message: "healthy"},
		controllers: []qop.Controller{{Name: "con1", Hostname: "127.0.0.1", Type: "opx1000"}},
		machines:    map[string]map[string]any{},
		ioValues:    map[string][2]qop.IOValues{},
		programs:    map[string]string{},
		jobs:        map[string]*Job{},
		faults:      map[string]fault{},
		calls:       map[string]int{},
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}

	g.grpc = grpc.NewServer(
		grpc.ChainUnaryInterceptor(g.unaryInterceptor),
		grpc.ChainStreamInterceptor(g.streamInterceptor),
	)
	g.grpc.RegisterService(&frontendDesc, g)
	g.grpc.RegisterService(&jobManagerDesc, g)
	g.grpc.RegisterService(&jobResultsDesc, g)
	g.grpc.RegisterService(&infoDesc, g)
	return g
}

// Start listens on addr and serves until Close.
func (g *Gateway) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("qoptest: listen %s: %w", addr, err)
	}
	g.Serve(lis)
	return nil
}

// Serve serves on lis in the background until Close.
func (g *Gateway) Serve(lis net.Listener) {
	var protocols http.Protocols
	protocols.SetHTTP1(true)
	protocols.SetUnencryptedHTTP2(true)
	g.lis = lis
	g.http = &http.Server{
		Handler:           g,
		Protocols:         &protocols,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := g.http.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.log.Error("qoptest: serve failed", "err", err)
		}
	}()
}

// Close stops serving and closes every connection.
func (g *Gateway) Close() error {
	if g.http == nil {
		return nil
	}
	err := g.http.Close()
	g.grpc.Stop()
	g.wg.Wait()
	return err
}

// Addr returns the listening address.
func (g *Gateway) Addr() string { return g.lis.Addr().String() }

// Host returns the listening host.
func (g *Gateway) Host() string {
	host, _, _ := net.SplitHostPort(g.Addr())
	return host
}

// Port returns the listening port.
func (g *Gateway) Port() int {
	_, port, _ := net.SplitHostPort(g.Addr())
	n, _ := strconv.Atoi(port)
	return n
}

// ServeHTTP routes gRPC calls to the gRPC server and answers the redirect
// check on RedirectPath.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	isCheck := r.URL.Path == RedirectPath || r.URL.Path == ""
	if r.ProtoMajor == 2 && !isCheck && strings.HasPrefix(r.Header.Get("Content-Type"), "application/grpc") {
		g.grpc.ServeHTTP(w, r)
		return
	}
	g.mu.Lock()
	g.calls["redirect"]++
	location, octaves := g.redirect, g.octaves
	g.mu.Unlock()

	if octaves != "" {
		w.Header().Set(qop.HeaderOctaves, octaves)
	}
	if location != "" {
		w.Header().Set(qop.HeaderLocation, location)
		w.WriteHeader(http.StatusFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// SetRedirect makes the redirect check answer 302 with location. An empty
// location turns redirects off.
func (g *Gateway) SetRedirect(location string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.redirect = location
}

// SetOctaves sets the octaves header of the redirect check.
func (g *Gateway) SetOctaves(header string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.octaves = header
}

// SetHealth replaces the health check response.
func (g *Gateway) SetHealth(resp qop.HealthCheckResponse) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.health = resp
}

// Fail makes every call of method fail with err until ClearFailures. header
// is sent as response metadata with the failure.
func (g *Gateway) Fail(method string, err error, header metadata.MD) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.faults[method] = fault{err: err, header: header}
}

func (g *Gateway) ClearFailures() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.faults = map[string]fault{}
}

// Calls returns how often method was called. The redirect check counts as
// "redirect".
func (g *Gateway) Calls(method string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[method]
}

// Headers returns the request metadata of every call received so far.
func (g *Gateway) Headers() []metadata.MD {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]metadata.MD, len(g.headers))
	for i, md := range g.headers {
		out[i] = md.Copy()
	}
	return out
}

// QmRequests returns every setter request received so far.
func (g *Gateway) QmRequests() []qop.HighQmApiRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]qop.HighQmApiRequest(nil), g.qmRequests...)
}

// MachineIDs returns the ids of the open machines in sorted order.
func (g *Gateway) MachineIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.machineIDs()
}

func (g *Gateway) machineIDs() []string {
	ids := make([]string, 0, len(g.machines))
	for id := range g.machines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AddJob registers a job, as if it had been queued.
func (g *Gateway) AddJob(j *Job) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addJob(j)
}

func (g *Gateway) addJob(j *Job) {
	if j.Corrections == nil {
		j.Corrections = map[string]qop.Matrix{}
	}
	if j.Inputs == nil {
		j.Inputs = map[string][]any{}
	}
	if j.TimeAdded.IsZero() {
		j.TimeAdded = time.Now().UTC()
	}
	if j.AddedBy == "" {
		j.AddedBy = "qoptest"
	}
	g.jobs[j.ID] = j
}

// UpdateJob runs fn on the job with id under the gateway lock. It reports
// whether the job exists.
func (g *Gateway) UpdateJob(id string, fn func(*Job)) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	j, ok := g.jobs[id]
	if ok {
		fn(j)
	}
	return ok
}

// JobIDs returns the ids of every known job in sorted order.
func (g *Gateway) JobIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]string, 0, len(g.jobs))
	for id := range g.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (g *Gateway) nextID(prefix string) string {
	g.seq++
	return prefix + "-" + strconv.Itoa(g.seq)
}

func (g *Gateway) newJob(machineID string, simulated bool) *Job {
	j := &Job{
		ID:        g.nextID("job"),
		MachineID: machineID,
		Status:    qop.JobStatusCompleted,
		Done:      true,
		Simulated: simulated,
	}
	if g.results != nil {
		j.Results = g.results()
	}
	g.addJob(j)
	return j
}

// record counts a call and returns the failure configured for it, if any.
func (g *Gateway) record(fullMethod string, md metadata.MD) (fault, bool) {
	method := path.Base(fullMethod)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[method]++
	g.headers = append(g.headers, md.Copy())
	f, ok := g.faults[method]
	return f, ok
}
