package cart

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-cart/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
)

// ErrNotReady is returned for operations issued before hydration finished.
var ErrNotReady = pkgerrors.New(pkgerrors.CodeStateConflict, "cart is not ready")

const maxApplyAttempts = 3

// Evaluator resolves a discount code against a cart snapshot.
type Evaluator interface {
	Evaluate(ctx context.Context, code string, state State) (Discount, error)
}

// Transition is the outcome of re-running hydration after an identity change.
type Transition struct {
	State State
	// Adopted is set when State was read from an adapter and replaces memory
	// wholesale. Otherwise State is the in-memory cart carried over to the new
	// authority.
	Adopted bool
}

// Synchronizer loads and mirrors cart state to the authoritative adapter.
// Persist must not block the caller.
type Synchronizer interface {
	Hydrate(ctx context.Context) (State, error)
	Reconcile(ctx context.Context, current State) (Transition, error)
	Persist(state State)
}

// Store owns the cart state for one session.
type Store struct {
	resyncMu sync.Mutex

	mu        sync.Mutex
	status    enums.StoreStatus
	state     State
	version   uint64
	resyncing bool
	dirty     bool
	sync      Synchronizer
	evaluator Evaluator
	notifier  Notifier
	logger    *logger.Logger
}

// NewStore builds an uninitialized store. Call Hydrate before mutating.
func NewStore(syncer Synchronizer, evaluator Evaluator, notifier Notifier, logg *logger.Logger) (*Store, error) {
	if syncer == nil {
		return nil, fmt.Errorf("cart synchronizer required")
	}
	if evaluator == nil {
		return nil, fmt.Errorf("discount evaluator required")
	}
	if notifier == nil {
		notifier = NotifierFunc(nil)
	}
	return &Store{
		status:    enums.StoreStatusUninitialized,
		sync:      syncer,
		evaluator: evaluator,
		notifier:  notifier,
		logger:    logg,
	}, nil
}

// Hydrate performs the single hydration read. A failed read leaves the store
// Ready with an empty cart and reports the failure on the notifier.
func (s *Store) Hydrate(ctx context.Context) error {
	s.mu.Lock()
	if s.status != enums.StoreStatusUninitialized {
		status := s.status
		s.mu.Unlock()
		return pkgerrors.New(pkgerrors.CodeStateConflict, "cart already hydrated").
			WithDetails(map[string]any{"status": status.String()})
	}
	s.status = enums.StoreStatusLoading
	s.mu.Unlock()

	state, err := s.sync.Hydrate(ctx)

	s.mu.Lock()
	if err != nil {
		state = State{}
	}
	s.state = state.Normalize()
	s.status = enums.StoreStatusReady
	s.version++
	s.mu.Unlock()

	if err != nil {
		s.logger.Error(ctx, "cart.hydrate_failed", err)
		s.notifier.Notify(Event{Kind: enums.SyncEventHydrateFailed, Err: asPersistence(err, "cart hydration failed")})
		return nil
	}
	s.logger.Debug(ctx, "cart.hydrated")
	return nil
}

// Resync re-runs hydration after an identity transition without leaving Ready.
// Mutations made while the transition is in flight are held back from the
// synchronizer. Afterwards an adopted cart replaces them; a carried-over cart
// keeps them and the newer memory is persisted to the new authority.
func (s *Store) Resync(ctx context.Context) error {
	s.resyncMu.Lock()
	defer s.resyncMu.Unlock()

	s.mu.Lock()
	if s.status != enums.StoreStatusReady {
		s.mu.Unlock()
		return ErrNotReady
	}
	current := s.state.Clone()
	s.resyncing, s.dirty = true, false
	s.mu.Unlock()

	next, err := s.sync.Reconcile(ctx, current)

	s.mu.Lock()
	dirty := s.dirty
	s.resyncing, s.dirty = false, false
	if err != nil {
		snapshot := s.state.Clone()
		s.mu.Unlock()
		s.logger.Error(ctx, "cart.resync_failed", err)
		s.notifier.Notify(Event{Kind: enums.SyncEventHydrateFailed, Err: asPersistence(err, "cart reconciliation failed")})
		s.sync.Persist(snapshot)
		return nil
	}
	if !dirty || next.Adopted {
		s.state = next.State.Normalize()
		s.version++
		s.mu.Unlock()
		if dirty {
			s.logger.Warn(ctx, "cart.resync_discarded_changes")
		}
		return nil
	}

	// Memory moved on while it was carried over. Keep it, minus a discount the
	// transition stripped, and mirror it to the new authority.
	if current.Discount != nil && next.State.Discount == nil {
		s.state.Discount = nil
	}
	s.version++
	snapshot := s.state.Clone()
	s.mu.Unlock()
	s.logger.Warn(ctx, "cart.resync_superseded")
	s.sync.Persist(snapshot)
	return nil
}

func (s *Store) Status() enums.StoreStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// AddItem adds qty of product, incrementing an existing line. qty <= 0 is a no-op.
func (s *Store) AddItem(product ProductSnapshot, qty int) error {
	if product.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	return s.mutate(func(state *State) bool {
		if qty <= 0 {
			return false
		}
		if i := state.indexOf(product.ID); i >= 0 {
			state.Items[i].Quantity += qty
			return true
		}
		state.Items = append(state.Items, LineItem{ProductID: product.ID, Product: product, Quantity: qty})
		return true
	})
}

// RemoveItem drops the line for productID. Missing ids are a no-op.
func (s *Store) RemoveItem(productID uuid.UUID) error {
	return s.mutate(func(state *State) bool {
		return removeLine(state, productID)
	})
}

// UpdateQuantity sets the quantity of an existing line; qty < 1 removes it.
func (s *Store) UpdateQuantity(productID uuid.UUID, qty int) error {
	return s.mutate(func(state *State) bool {
		i := state.indexOf(productID)
		if i < 0 {
			return false
		}
		if qty < 1 {
			return removeLine(state, productID)
		}
		if state.Items[i].Quantity == qty {
			return false
		}
		state.Items[i].Quantity = qty
		return true
	})
}

// ApplyDiscount evaluates code against the current cart and locks in the amount.
// On rejection the existing discount is left untouched and the typed error is returned.
func (s *Store) ApplyDiscount(ctx context.Context, code string) error {
	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		s.mu.Lock()
		if s.status != enums.StoreStatusReady {
			s.mu.Unlock()
			return ErrNotReady
		}
		snapshot := s.state.Clone()
		seen := s.version
		s.mu.Unlock()

		discount, err := s.evaluator.Evaluate(ctx, code, snapshot)
		if err != nil {
			return err
		}

		s.mu.Lock()
		if s.version != seen {
			s.mu.Unlock()
			continue
		}
		s.state.Discount = &discount
		s.commitLocked()
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "cart changed while applying discount").
		WithDetails(map[string]any{"code": strings.TrimSpace(code)})
}

func (s *Store) RemoveDiscount() error {
	return s.mutate(func(state *State) bool {
		if state.Discount == nil {
			return false
		}
		state.Discount = nil
		return true
	})
}

// Clear empties the cart and drops any discount.
func (s *Store) Clear() error {
	return s.mutate(func(state *State) bool {
		if state.IsEmpty() && state.Discount == nil {
			return false
		}
		*state = State{}
		return true
	})
}

func (s *Store) mutate(fn func(state *State) bool) error {
	s.mu.Lock()
	if s.status != enums.StoreStatusReady {
		s.mu.Unlock()
		return ErrNotReady
	}
	if !fn(&s.state) {
		s.mu.Unlock()
		return nil
	}
	s.commitLocked()
	return nil
}

// commitLocked bumps the version, releases s.mu and hands the snapshot to the
// synchronizer unless a resync is in flight.
func (s *Store) commitLocked() {
	s.version++
	if s.resyncing {
		s.dirty = true
		s.mu.Unlock()
		return
	}
	snapshot := s.state.Clone()
	s.mu.Unlock()
	s.sync.Persist(snapshot)
}

func removeLine(state *State, productID uuid.UUID) bool {
	i := state.indexOf(productID)
	if i < 0 {
		return false
	}
	state.Items = append(state.Items[:i], state.Items[i+1:]...)
	return true
}

func asPersistence(err error, message string) error {
	if pkgerrors.HasCode(err, pkgerrors.CodePersistence) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodePersistence, err, message)
}
