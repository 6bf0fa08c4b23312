package identity

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-cart/pkg/auth"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
)

// Provider holds the signed-in user's access token for a client session.
// An expired token reads as signed out.
type Provider struct {
	mu     sync.RWMutex
	token  string
	claims *auth.AccessTokenClaims
	now    func() time.Time
}

func NewProvider(clock func() time.Time) *Provider {
	if clock == nil {
		clock = time.Now
	}
	return &Provider{now: clock}
}

// Login stores token after checking it carries a user id and has not expired.
func (p *Provider) Login(token string) error {
	trimmed := strings.TrimSpace(token)
	claims, err := auth.InspectAccessToken(trimmed)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid access token")
	}
	if claims.Expired(p.now()) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "access token expired")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = trimmed
	p.claims = claims
	return nil
}

func (p *Provider) Logout() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = ""
	p.claims = nil
}

// CurrentUserToken returns the bearer token when a valid session exists.
func (p *Provider) CurrentUserToken() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.token == "" || p.claims.Expired(p.now()) {
		return "", false
	}
	return p.token, true
}

func (p *Provider) IsAuthenticated() bool {
	_, ok := p.CurrentUserToken()
	return ok
}

// UserID returns the signed-in user, or uuid.Nil and false.
func (p *Provider) UserID() (uuid.UUID, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.token == "" || p.claims.Expired(p.now()) {
		return uuid.Nil, false
	}
	return p.claims.UserID, true
}
