// Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package qop is a Go client for the Quantum Machines Operating Platform
// (QOP) gateway. It opens quantum machines, queues and simulates programs,
// and streams job results into typed in-memory arrays.
//
// # Executor
//
// Every gateway call runs on a single goroutine owned by an [Executor].
// Callers block on their own goroutine until the executor posts the result
// for their work item, correlated by a UUID. gRPC connections are created,
// used and closed on the executor goroutine only; callers hold them as
// opaque [*Channel] handles. A panic inside a work item is fatal to the
// session: every pending and later call fails with [ErrExecutor].
//
// # Sessions
//
// [NewManager] reads the user config (~/.qm/config.json), discovers the
// gateway and checks its health:
//
//	m, err := qop.NewManager(ctx, "qop.example.com", qop.WithClusterName("lab"))
//	if err != nil {
//		return err
//	}
//	defer m.Close()
//
//	qm, err := m.OpenQM(ctx, config, true)
//	job, err := qm.Execute(ctx, program)
//	results, err := job.Results(ctx)
//
// # Discovery
//
// [DetectServer] probes the candidate ports of a host: the port given by the
// caller, or the configured port together with [DefaultPorts]. Each probe
// first posts an empty message over HTTP/2 to learn whether the gateway
// redirects the client elsewhere, then asks for the server version and
// capabilities. Redirects returned by gRPC calls restart the probe on the
// new target.
//
// # Results
//
// A job declares named result streams. Single-value streams are read with a
// [SingleResult], append-only streams with a [MultiResult]. Each fetch
// re-reads the stream header, resolves the requested range against the
// number of items received so far, pulls the raw bytes in chunks and decodes
// them into an [NDArray] in one step:
//
//	res, err := results.Multi("I")
//	if err := res.WaitForValues(ctx, 100, 10*time.Second); err != nil {
//		return err
//	}
//	arr, err := res.Fetch(ctx, qop.Span(0, 100))
//	values, err := arr.Float64s()
//
// The final shape follows one rule: a single received item keeps the
// declared shape, a declared shape of (1,) becomes (count,), and any other
// shape gains count as a new leading dimension.
//
// Fetched arrays can be written with SaveTo as an Arrow IPC stream and read
// back with [ReadSavedResult].
//
// # Errors
//
// Every error returned by this package matches [ErrQop] and the sentinel of
// its kind with errors.Is. Transport failures are [*ConnectionError],
// deadlines [*TimeoutError], gateway redirects [*RedirectError] and
// semantic failures of job manager calls [*ServerError].
package qop

// Version is the client version reported by [Manager.Version].
const Version = "0.1.0"
