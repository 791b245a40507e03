// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/grpc"
)

// Call performs one unary RPC on conn. It runs on the executor goroutine.
type Call func(ctx context.Context, conn grpc.ClientConnInterface) (any, error)

// Receiver returns the next item of a server stream, or io.EOF at its end.
type Receiver func() (any, error)

// StreamCall opens a server stream on conn. It runs on the executor goroutine.
type StreamCall func(ctx context.Context, conn grpc.ClientConnInterface) (Receiver, error)

// WorkItem is one unit of work handed to the executor. It is consumed exactly
// once.
type WorkItem struct {
	ID  string
	run func() (any, error)
}

// WorkResult is the outcome of a WorkItem, delivered to the submitter with
// the same ID.
type WorkResult struct {
	ID    string
	Value any
	Err   error
}

// StreamOutcome summarizes a streaming call. Stopped is set when the item
// callback returned false; Iteration is then the index of that item.
type StreamOutcome struct {
	Items     int
	Stopped   bool
	Iteration int
}

const workQueueSize = 128

// Executor runs every gateway call on one goroutine, which also owns every
// Channel. Calls from any number of goroutines are queued in FIFO order and
// each caller blocks for its own result.
type Executor struct {
	log  *slog.Logger
	work chan WorkItem
	stop chan struct{}
	done chan struct{}

	mu       sync.Mutex
	pending  map[string]chan WorkResult
	closed   bool
	crashErr error

	// channels is only touched on the executor goroutine.
	channels map[string]*Channel

	shutdownOnce sync.Once
	closeErr     error
}

type executorKey struct{}

// NewExecutor starts the executor goroutine. A nil logger uses slog.Default().
func NewExecutor(logger *slog.Logger) *Executor {
	e := &Executor{
		log:      loggerOrDefault(logger).With("component", "executor"),
		work:     make(chan WorkItem, workQueueSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		pending:  make(map[string]chan WorkResult),
		channels: make(map[string]*Channel),
	}
	go e.loop()
	return e
}

func (e *Executor) loop() {
	defer close(e.done)
	defer e.closeChannels()
	for {
		select {
		case <-e.stop:
			return
		case item := <-e.work:
			if crashed := e.runItem(item); crashed {
				return
			}
		}
	}
}

func (e *Executor) runItem(item WorkItem) (crashed bool) {
	defer func() {
		if rv := recover(); rv != nil {
			e.log.Error("work item panic", "id", item.ID, "err", rv)
			e.crash(&Error{Kind: KindExecutor, Message: fmt.Sprintf("executor goroutine failed: %v", rv)})
			crashed = true
		}
	}()
	v, err := item.run()
	e.post(WorkResult{ID: item.ID, Value: v, Err: err})
	return false
}

func (e *Executor) post(res WorkResult) {
	e.mu.Lock()
	ch, ok := e.pending[res.ID]
	delete(e.pending, res.ID)
	e.mu.Unlock()
	if !ok {
		e.log.Debug("dropping result of abandoned work item", "id", res.ID)
		return
	}
	ch <- res
}

// crash stores err and hands it to every waiter, present and future.
func (e *Executor) crash(err error) {
	e.mu.Lock()
	e.crashErr = err
	e.closed = true
	e.mu.Unlock()
	e.failPending(err)
}

func (e *Executor) failPending(err error) {
	e.mu.Lock()
	pending := e.pending
	e.pending = make(map[string]chan WorkResult)
	e.mu.Unlock()
	for id, ch := range pending {
		ch <- WorkResult{ID: id, Err: err}
	}
}

func (e *Executor) closeChannels() {
	var errs []error
	for key, ch := range e.channels {
		if err := ch.close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel %s: %w", ch.target, err))
		}
		delete(e.channels, key)
	}
	e.closeErr = errors.Join(errs...)
}

// Err returns the error that crashed the executor goroutine, if any.
func (e *Executor) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.crashErr
}

func (e *Executor) unavailable() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.crashErr != nil {
		return e.crashErr
	}
	return newError(KindClosed, "executor is shut down")
}

func (e *Executor) register(id string) (chan WorkResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.crashErr != nil {
		return nil, e.crashErr
	}
	if e.closed {
		return nil, newError(KindClosed, "executor is shut down")
	}
	ch := make(chan WorkResult, 1)
	e.pending[id] = ch
	return ch, nil
}

func (e *Executor) abandon(id string) {
	e.mu.Lock()
	delete(e.pending, id)
	e.mu.Unlock()
}

func onExecutor(ctx context.Context, e *Executor) bool {
	owner, _ := ctx.Value(executorKey{}).(*Executor)
	return owner == e
}

// submit enqueues run and blocks until its result arrives, ctx is done, or
// the executor stops.
func (e *Executor) submit(ctx context.Context, run func(ctx context.Context) (any, error)) (any, error) {
	if onExecutor(ctx, e) {
		return nil, newError(KindExecutor, "called from the executor goroutine")
	}
	id := uuid.NewString()
	resCh, err := e.register(id)
	if err != nil {
		return nil, err
	}
	runCtx := context.WithValue(ctx, executorKey{}, e)
	item := WorkItem{ID: id, run: func() (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return run(runCtx)
	}}

	select {
	case e.work <- item:
	case <-ctx.Done():
		e.abandon(id)
		return nil, ctx.Err()
	case <-e.done:
		e.abandon(id)
		return nil, e.unavailable()
	}

	select {
	case res := <-resCh:
		return e.collect(id, res)
	case <-ctx.Done():
		e.abandon(id)
		return nil, ctx.Err()
	case <-e.done:
		select {
		case res := <-resCh:
			return e.collect(id, res)
		default:
		}
		e.abandon(id)
		return nil, e.unavailable()
	}
}

func (e *Executor) collect(id string, res WorkResult) (any, error) {
	if res.ID != id {
		e.log.Warn("work result id mismatch", "expected", id, "got", res.ID)
	}
	return res.Value, res.Err
}

// CreateChannel returns the Channel for details, dialing it on first use.
// Channels are deduplicated by connection details.
func (e *Executor) CreateChannel(ctx context.Context, details ConnectionDetails) (*Channel, error) {
	details = details.withDefaults()
	v, err := e.submit(ctx, func(context.Context) (any, error) {
		key := details.key()
		if ch, ok := e.channels[key]; ok {
			return ch, nil
		}
		ch, err := dialChannel(details)
		if err != nil {
			return nil, err
		}
		e.channels[key] = ch
		e.log.Debug("channel created", "target", ch.target)
		return ch, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Channel), nil
}

// Submit runs call against ch on the executor goroutine and returns its result.
func (e *Executor) Submit(ctx context.Context, ch *Channel, call Call) (any, error) {
	return e.submit(ctx, func(runCtx context.Context) (any, error) {
		return call(runCtx, ch.conn)
	})
}

// SubmitStreaming opens a server stream and invokes onItem for every item on
// the executor goroutine. Returning false from onItem cancels the stream and
// reports Stopped without an error.
func (e *Executor) SubmitStreaming(ctx context.Context, ch *Channel, call StreamCall, onItem func(item any) bool) (StreamOutcome, error) {
	v, err := e.submit(ctx, func(runCtx context.Context) (any, error) {
		streamCtx, cancel := context.WithCancel(runCtx)
		defer cancel()
		recv, err := call(streamCtx, ch.conn)
		if err != nil {
			return StreamOutcome{}, err
		}
		var out StreamOutcome
		for {
			item, err := recv()
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			if err != nil {
				return out, err
			}
			idx := out.Items
			out.Items++
			if !onItem(item) {
				out.Stopped = true
				out.Iteration = idx
				return out, nil
			}
		}
	})
	out, _ := v.(StreamOutcome)
	return out, err
}

// Shutdown closes every Channel once, stops the executor goroutine and waits
// for it. Pending and later calls fail with ErrClosed. It must not be called
// from a work item.
func (e *Executor) Shutdown() error {
	e.shutdownOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()
		close(e.stop)
		<-e.done
		e.failPending(newError(KindClosed, "executor is shut down"))
	})
	return e.closeErr
}
