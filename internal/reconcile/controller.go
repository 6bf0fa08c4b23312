package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-cart/internal/cart"
	"github.com/angelmondragon/storefront-cart/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
	"github.com/angelmondragon/storefront-cart/pkg/metrics"
)

const defaultPersistTimeout = 15 * time.Second

// Adapter is a durable cart location.
type Adapter interface {
	Name() string
	Load(ctx context.Context) (cart.State, error)
	Save(ctx context.Context, state cart.State) error
}

// Identity is polled on every authority decision.
type Identity interface {
	IsAuthenticated() bool
	UserID() (uuid.UUID, bool)
}

type Options struct {
	PersistTimeout time.Duration
	Notifier       cart.Notifier
	Metrics        *metrics.CartSyncMetrics
	Logger         *logger.Logger
}

type waiter struct {
	target uint64
	ch     chan struct{}
}

// Controller picks the authoritative adapter and mirrors cart snapshots to it
// from a single background writer.
type Controller struct {
	identity Identity
	local    Adapter
	remote   Adapter
	notifier cart.Notifier
	metrics  *metrics.CartSyncMetrics
	logger   *logger.Logger
	timeout  time.Duration

	transition sync.Mutex

	mu           sync.Mutex
	authority    enums.CartAuthority
	userID       uuid.UUID
	pending      *cart.State
	queued       uint64
	written      uint64
	dropped      uint64
	inflight     bool
	waiters      []waiter
	closed       bool
	onTransition func(ctx context.Context)

	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
}

// New starts the writer goroutine. Call Close to stop it.
func New(identity Identity, local, remote Adapter, opts Options) (*Controller, error) {
	if identity == nil {
		return nil, fmt.Errorf("identity required")
	}
	if local == nil {
		return nil, fmt.Errorf("local adapter required")
	}
	if remote == nil {
		return nil, fmt.Errorf("remote adapter required")
	}
	timeout := opts.PersistTimeout
	if timeout <= 0 {
		timeout = defaultPersistTimeout
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = cart.NotifierFunc(nil)
	}

	c := &Controller{
		identity: identity,
		local:    local,
		remote:   remote,
		notifier: notifier,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		timeout:  timeout,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	c.authority, c.userID = c.resolveIdentity()
	go c.run()
	return c, nil
}

// SetTransitionHandler registers the callback fired when the writer notices
// the identity no longer matches the current authority.
func (c *Controller) SetTransitionHandler(fn func(ctx context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTransition = fn
}

// Authority reports the adapter currently receiving writes.
func (c *Controller) Authority() enums.CartAuthority {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authority
}

// Hydrate performs the session's initial read.
//
// Signed in: a non-empty remote cart wins. Otherwise a non-empty local cart is
// adopted and seeded to the remote once, without its discount.
// Anonymous: the local cart is adopted as-is.
func (c *Controller) Hydrate(ctx context.Context) (cart.State, error) {
	authority, userID := c.resolveIdentity()
	c.mu.Lock()
	c.authority, c.userID = authority, userID
	c.mu.Unlock()

	ctx = c.logger.WithCartAuthority(ctx, authority.String())
	if authority == enums.CartAuthorityLocal {
		state, err := c.local.Load(ctx)
		if err != nil {
			c.metrics.IncHydration(c.local.Name(), "failed")
			return cart.State{}, err
		}
		c.metrics.IncHydration(c.local.Name(), outcome(state, "adopted"))
		return state, nil
	}
	state, _, err := c.adoptRemote(ctx, nil)
	return state, err
}

// Reconcile re-runs hydration after an identity transition. On logout the
// current state is kept and mirrored to the local adapter. On login the remote
// cart wins wholesale unless it is empty, in which case current (or the local
// cart) seeds it. A snapshot still queued for the previous authority is
// dropped: current supersedes it and the new authority must not receive it.
func (c *Controller) Reconcile(ctx context.Context, current cart.State) (cart.Transition, error) {
	c.transition.Lock()
	defer c.transition.Unlock()

	authority, userID := c.resolveIdentity()
	c.mu.Lock()
	prevAuthority, prevUser := c.authority, c.userID
	if authority == prevAuthority && userID == prevUser {
		c.mu.Unlock()
		return cart.Transition{State: current}, nil
	}
	c.authority, c.userID = authority, userID
	c.dropPendingLocked()
	c.mu.Unlock()

	c.metrics.IncTransition(prevAuthority.String(), authority.String())
	c.notifier.Notify(cart.Event{Kind: enums.SyncEventAuthorityChanged})
	ctx = c.logger.WithFields(ctx, map[string]any{
		"cart_authority": authority.String(),
		"from_authority": prevAuthority.String(),
	})
	c.logger.Info(ctx, "cart.authority_changed")

	if authority == enums.CartAuthorityLocal {
		if err := c.save(ctx, c.local, current); err != nil {
			return cart.Transition{State: current}, err
		}
		return cart.Transition{State: current}, nil
	}

	// A different user signed in: the in-memory cart belongs to someone else.
	if prevAuthority == enums.CartAuthorityRemote {
		state, err := c.remote.Load(ctx)
		if err != nil {
			c.notifier.Notify(cart.Event{Kind: enums.SyncEventHydrateFailed, Err: asPersistence(err, c.remote.Name())})
			return cart.Transition{Adopted: true}, nil
		}
		return cart.Transition{State: state.WithoutDiscount(), Adopted: true}, nil
	}

	state, adopted, err := c.adoptRemote(ctx, &current)
	if err != nil {
		// Keep writing to the previous adapter; the next persist notices the
		// mismatch and retries the transition.
		c.mu.Lock()
		c.authority, c.userID = prevAuthority, prevUser
		c.mu.Unlock()
		return cart.Transition{State: current}, err
	}
	return cart.Transition{State: state, Adopted: adopted}, nil
}

// adoptRemote loads the remote cart; when it is empty it is seeded from seed,
// or from the local cart when seed is nil. adopted reports whether the result
// was read from an adapter rather than carried over from seed.
func (c *Controller) adoptRemote(ctx context.Context, seed *cart.State) (cart.State, bool, error) {
	remoteState, err := c.remote.Load(ctx)
	if err != nil {
		c.metrics.IncHydration(c.remote.Name(), "failed")
		return cart.State{}, false, err
	}
	if !remoteState.IsEmpty() {
		c.metrics.IncHydration(c.remote.Name(), "adopted")
		return remoteState.WithoutDiscount(), true, nil
	}

	var source cart.State
	adopted := false
	if seed != nil && !seed.IsEmpty() {
		source = seed.WithoutDiscount()
	} else {
		localState, err := c.local.Load(ctx)
		if err != nil {
			c.logger.Warn(c.logger.WithField(ctx, "error", err.Error()), "cart.local_read_failed")
			c.notifier.Notify(cart.Event{Kind: enums.SyncEventHydrateFailed, Err: asPersistence(err, c.local.Name())})
		}
		source = localState.WithoutDiscount()
		adopted = !source.IsEmpty()
	}

	if source.IsEmpty() {
		c.metrics.IncHydration(c.remote.Name(), "empty")
		return cart.State{}, false, nil
	}

	if err := c.save(ctx, c.remote, source); err != nil {
		c.notifier.Notify(cart.Event{Kind: enums.SyncEventSeedFailed, Err: asPersistence(err, c.remote.Name())})
		c.metrics.IncHydration(c.local.Name(), "seed_failed")
		return source, adopted, nil
	}
	c.metrics.IncHydration(c.local.Name(), "seeded")
	return source, adopted, nil
}

// Persist queues state for the writer and returns immediately. Only the newest
// queued snapshot is written.
func (c *Controller) Persist(state cart.State) {
	snapshot := state.Clone()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.Warn(context.Background(), "cart.persist_after_close")
		return
	}
	c.pending = &snapshot
	c.queued++
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Flush blocks until every snapshot queued before the call has been handled.
func (c *Controller) Flush(ctx context.Context) error {
	c.mu.Lock()
	if c.written >= c.queued {
		c.mu.Unlock()
		return nil
	}
	w := waiter{target: c.queued, ch: make(chan struct{})}
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()

	select {
	case <-w.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting snapshots and waits for the writer to finish the last one.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	close(c.done)

	select {
	case <-c.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) run() {
	defer close(c.stopped)
	for {
		select {
		case <-c.wake:
			c.drain()
		case <-c.done:
			c.drain()
			return
		}
	}
}

func (c *Controller) drain() {
	for {
		c.mu.Lock()
		if c.pending == nil {
			c.mu.Unlock()
			return
		}
		state := *c.pending
		seq := c.queued
		c.pending = nil
		c.inflight = true
		authority, userID := c.resolveIdentity()
		mismatch := authority != c.authority || userID != c.userID
		handler := c.onTransition
		c.mu.Unlock()

		if mismatch {
			c.logger.Info(c.logger.WithCartAuthority(context.Background(), authority.String()), "cart.identity_transition_detected")
			if handler != nil {
				go handler(context.Background())
			}
		} else {
			c.write(authority, state)
		}
		c.markWritten(seq)
	}
}

func (c *Controller) write(authority enums.CartAuthority, state cart.State) {
	adapter := c.local
	if authority == enums.CartAuthorityRemote {
		adapter = c.remote
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	ctx = c.logger.WithCartAuthority(ctx, authority.String())

	if err := c.save(ctx, adapter, state); err != nil {
		c.logger.Error(ctx, "cart.persist_failed", err)
		c.notifier.Notify(cart.Event{Kind: enums.SyncEventPersistFailed, Err: asPersistence(err, adapter.Name())})
	}
}

func (c *Controller) save(ctx context.Context, adapter Adapter, state cart.State) error {
	started := time.Now()
	err := adapter.Save(ctx, state)
	c.metrics.ObservePersist(adapter.Name(), time.Since(started), err)
	return err
}

// dropPendingLocked discards the queued snapshot. Its waiters are released now,
// or once an in-flight write finishes.
func (c *Controller) dropPendingLocked() {
	if c.pending == nil {
		return
	}
	c.pending = nil
	c.logger.Debug(context.Background(), "cart.persist_dropped")
	if c.inflight {
		c.dropped = c.queued
		return
	}
	c.releaseLocked(c.queued)
}

func (c *Controller) markWritten(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight = false
	if c.dropped > seq {
		seq = c.dropped
	}
	c.releaseLocked(seq)
}

func (c *Controller) releaseLocked(seq uint64) {
	if seq > c.written {
		c.written = seq
	}
	remaining := c.waiters[:0]
	for _, w := range c.waiters {
		if w.target <= c.written {
			close(w.ch)
			continue
		}
		remaining = append(remaining, w)
	}
	c.waiters = remaining
}

func (c *Controller) resolveIdentity() (enums.CartAuthority, uuid.UUID) {
	if !c.identity.IsAuthenticated() {
		return enums.CartAuthorityLocal, uuid.Nil
	}
	userID, ok := c.identity.UserID()
	if !ok {
		return enums.CartAuthorityLocal, uuid.Nil
	}
	return enums.CartAuthorityRemote, userID
}

func outcome(state cart.State, nonEmpty string) string {
	if state.IsEmpty() {
		return "empty"
	}
	return nonEmpty
}

func asPersistence(err error, adapter string) error {
	if pkgerrors.HasCode(err, pkgerrors.CodePersistence) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "cart could not be saved").
		WithDetails(map[string]any{"adapter": adapter})
}
