package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-social-api/internal/middleware"
	"github.com/noah-isme/gema-social-api/internal/models"
	"github.com/noah-isme/gema-social-api/internal/observability"
	"github.com/noah-isme/gema-social-api/internal/repository"
)

const defaultAuthTimeout = 3 * time.Second

// RoleService marks machine callers that may submit social facts.
const RoleService = "service"

var (
	// ErrAuthenticationFailed wraps every credential rejection.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrSessionClosed indicates the session has already been torn down.
	ErrSessionClosed = errors.New("session closed")
	// ErrSessionAlreadyBound indicates the session was authenticated before.
	ErrSessionAlreadyBound = errors.New("session already authenticated")
)

// SessionState is the lifecycle stage of a realtime connection.
type SessionState int

// Session states.
const (
	SessionUnauthenticated SessionState = iota
	SessionAuthenticated
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionUnauthenticated:
		return "unauthenticated"
	case SessionAuthenticated:
		return "authenticated"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one live connection. It starts unauthenticated and never resumes after Close.
type Session struct {
	ID string

	mu     sync.Mutex
	state  SessionState
	userID uint
}

// NewSession creates an unauthenticated session with a fresh identifier.
func NewSession() *Session {
	return &Session{ID: uuid.NewString()}
}

// State returns the current lifecycle stage.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UserID returns the bound user, if any.
func (s *Session) UserID() (uint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.state == SessionAuthenticated
}

// AuthGate verifies credentials and keeps the presence registry in step with session lifecycles.
type AuthGate struct {
	secret   string
	users    repository.UserRepository
	presence *PresenceRegistry
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewAuthGate constructs an auth gate.
func NewAuthGate(secret string, users repository.UserRepository, presence *PresenceRegistry, timeout time.Duration, logger zerolog.Logger) *AuthGate {
	if timeout <= 0 {
		timeout = defaultAuthTimeout
	}
	return &AuthGate{
		secret:   secret,
		users:    users,
		presence: presence,
		timeout:  timeout,
		logger:   logger.With().Str("component", "auth_gate").Logger(),
	}
}

// Resolve verifies token and loads the user it names. Lookups are bounded by the gate timeout.
func (g *AuthGate) Resolve(ctx context.Context, token string) (models.User, error) {
	claims, err := middleware.ParseToken(g.secret, token)
	if err != nil {
		return models.User{}, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	lookupCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var user models.User
	if claims.UserID != nil {
		user, err = g.users.FindByID(lookupCtx, *claims.UserID)
	} else {
		user, err = g.users.FindByEmail(lookupCtx, claims.Email)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, fmt.Errorf("%w: identity not found", ErrAuthenticationFailed)
		}
		return models.User{}, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	return user, nil
}

// ResolveIdentity implements middleware.IdentityResolver. Service tokens skip the user lookup.
func (g *AuthGate) ResolveIdentity(ctx context.Context, token string) (middleware.Identity, error) {
	claims, err := middleware.ParseToken(g.secret, token)
	if err != nil {
		return middleware.Identity{}, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	if claims.Role == RoleService {
		identity := middleware.Identity{Role: RoleService}
		if claims.UserID != nil {
			identity.UserID = *claims.UserID
		}
		return identity, nil
	}

	user, err := g.Resolve(ctx, token)
	if err != nil {
		return middleware.Identity{}, err
	}
	return middleware.Identity{UserID: user.ID, Role: claims.Role}, nil
}

// Bind moves an unauthenticated session to Authenticated and registers it in presence.
func (g *AuthGate) Bind(session *Session, userID uint) error {
	session.mu.Lock()
	defer session.mu.Unlock()

	switch session.state {
	case SessionClosed:
		return ErrSessionClosed
	case SessionAuthenticated:
		return ErrSessionAlreadyBound
	}

	session.state = SessionAuthenticated
	session.userID = userID
	g.presence.Connect(userID, session.ID)
	observability.RealtimeConnectionsActive().Inc()

	g.logger.Debug().Str("session_id", session.ID).Uint("user_id", userID).Msg("session authenticated")
	return nil
}

// Authenticate resolves token and binds the session. On failure nothing is registered.
func (g *AuthGate) Authenticate(ctx context.Context, session *Session, token string) (models.User, error) {
	user, err := g.Resolve(ctx, token)
	if err != nil {
		observability.RealtimeConnections().WithLabelValues("rejected").Inc()
		return models.User{}, err
	}

	if err := g.Bind(session, user.ID); err != nil {
		return models.User{}, err
	}

	observability.RealtimeConnections().WithLabelValues("accepted").Inc()
	return user, nil
}

// Close tears the session down from any state. Repeated calls are no-ops.
func (g *AuthGate) Close(session *Session) DisconnectResult {
	session.mu.Lock()
	previous := session.state
	session.state = SessionClosed
	session.mu.Unlock()

	if previous == SessionClosed {
		return DisconnectResult{}
	}

	result := g.presence.Disconnect(session.ID)
	if previous == SessionAuthenticated {
		observability.RealtimeConnectionsActive().Dec()
	}

	g.logger.Debug().
		Str("session_id", session.ID).
		Str("previous_state", previous.String()).
		Bool("went_offline", result.WentOffline).
		Msg("session closed")
	return result
}
