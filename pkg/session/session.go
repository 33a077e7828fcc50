// Package session keeps the per-browser state of the payment journey in a
// signed cookie. The cookie carries an HS256 JWT listing the charges the
// browser is allowed to act on.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/coder/quartz"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// CookieName is the name of the session cookie.
const CookieName = "frontend_state"

const claimChargeIDs = "charge_ids"

// MinKeyLength is the minimum signing key length in bytes.
const MinKeyLength = 32

// ErrInvalidSession is returned when a cookie value cannot be verified.
var ErrInvalidSession = errors.New("invalid session")

// State is the session content.
type State struct {
	ChargeIDs []string
}

// Has reports whether the session owns chargeID.
func (s *State) Has(chargeID string) bool {
	return slices.Contains(s.ChargeIDs, chargeID)
}

// Add grants the session access to chargeID.
func (s *State) Add(chargeID string) {
	if !s.Has(chargeID) {
		s.ChargeIDs = append(s.ChargeIDs, chargeID)
	}
}

// Config holds the session cookie settings.
type Config struct {
	Key    []byte
	MaxAge time.Duration
	Secure bool
}

// Store reads and writes session cookies.
type Store struct {
	key    []byte
	maxAge time.Duration
	secure bool

	// Used for tests.
	clock quartz.Clock
}

// NewStore creates a cookie store.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Key) < MinKeyLength {
		return nil, fmt.Errorf("session key must be at least %d bytes", MinKeyLength)
	}
	if cfg.MaxAge <= 0 {
		return nil, errors.New("session max age must be positive")
	}
	return &Store{
		key:    cfg.Key,
		maxAge: cfg.MaxAge,
		secure: cfg.Secure,
		clock:  quartz.NewReal(),
	}, nil
}

// Encode signs state into a compact JWT.
func (s *Store) Encode(state *State) (string, error) {
	now := s.clock.Now()
	ids := state.ChargeIDs
	if ids == nil {
		ids = []string{}
	}

	tok, err := jwt.NewBuilder().
		IssuedAt(now).
		Expiration(now.Add(s.maxAge)).
		Claim(claimChargeIDs, ids).
		Build()
	if err != nil {
		return "", fmt.Errorf("build session token: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, s.key))
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return string(signed), nil
}

// Decode verifies value and returns the state it carries.
func (s *Store) Decode(value string) (*State, error) {
	tok, err := jwt.Parse([]byte(value),
		jwt.WithKey(jwa.HS256, s.key),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return s.clock.Now() })),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	state := &State{}
	raw, ok := tok.Get(claimChargeIDs)
	if !ok {
		return state, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s claim has type %T", ErrInvalidSession, claimChargeIDs, raw)
	}
	for _, item := range items {
		id, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%w: non-string charge id", ErrInvalidSession)
		}
		state.ChargeIDs = append(state.ChargeIDs, id)
	}
	return state, nil
}

// Load returns the session carried by r. A missing, tampered or expired
// cookie yields an empty session.
func (s *Store) Load(r *http.Request) *State {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return &State{}
	}
	state, err := s.Decode(cookie.Value)
	if err != nil {
		return &State{}
	}
	return state
}

// Save writes state to the response as the session cookie.
func (s *Store) Save(w http.ResponseWriter, state *State) error {
	value, err := s.Encode(state)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(s.maxAge.Seconds()),
		Expires:  s.clock.Now().Add(s.maxAge),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
