package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/angelmondragon/storefront-cart/internal/apiclient"
	"github.com/angelmondragon/storefront-cart/internal/cart"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
)

const (
	cartPath = "/api/v1/cart"

	// Name identifies the adapter in logs and metrics.
	Name = "remote"
)

// TokenSource supplies the bearer token of the signed-in user.
type TokenSource interface {
	CurrentUserToken() (string, bool)
}

// BreakerSettings bounds how long the adapter keeps calling a failing API.
type BreakerSettings struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

// ReplaceRequest is the PUT body: the full item list, no discount.
type ReplaceRequest struct {
	Items []cart.ItemRef `json:"items" validate:"max=500,dive"`
}

// Store reads and replaces the signed-in user's server-side cart.
type Store struct {
	api     *apiclient.Client
	tokens  TokenSource
	breaker *gobreaker.CircuitBreaker[cart.State]
	logger  *logger.Logger
}

func New(api *apiclient.Client, tokens TokenSource, settings BreakerSettings, logg *logger.Logger) (*Store, error) {
	if api == nil {
		return nil, fmt.Errorf("api client required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token source required")
	}
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 5
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = 30 * time.Second
	}

	s := &Store{api: api, tokens: tokens, logger: logg}
	s.breaker = gobreaker.NewCircuitBreaker[cart.State](gobreaker.Settings{
		Name:        "remote-cart",
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !pkgerrors.HasCode(err, pkgerrors.CodeDependency)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			ctx := logg.WithFields(context.Background(), map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			logg.Warn(ctx, "remote_cart.breaker_state_changed")
		},
	})
	return s, nil
}

func (s *Store) Name() string {
	return Name
}

// Load fetches the expanded server cart. Remote carts never carry a discount.
func (s *Store) Load(ctx context.Context) (cart.State, error) {
	return s.execute(func(token string) (cart.State, error) {
		var state cart.State
		err := s.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: cartPath, Token: token}, &state)
		return state, err
	})
}

// Save replaces the server cart with state's items.
func (s *Store) Save(ctx context.Context, state cart.State) error {
	_, err := s.Replace(ctx, state)
	return err
}

// Replace sends the full item list and returns the cart as the server stored it.
func (s *Store) Replace(ctx context.Context, state cart.State) (cart.State, error) {
	body := ReplaceRequest{Items: state.Refs()}
	return s.execute(func(token string) (cart.State, error) {
		var stored cart.State
		err := s.api.Do(ctx, apiclient.Request{Method: http.MethodPut, Path: cartPath, Token: token, Body: body}, &stored)
		return stored, err
	})
}

func (s *Store) execute(call func(token string) (cart.State, error)) (cart.State, error) {
	token, ok := s.tokens.CurrentUserToken()
	if !ok {
		return cart.State{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "remote cart requires a signed-in user")
	}

	state, err := s.breaker.Execute(func() (cart.State, error) {
		return call(token)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return cart.State{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remote cart temporarily unavailable")
	}
	if err != nil {
		return cart.State{}, err
	}
	state.Discount = nil
	return state.Normalize(), nil
}
