package auth

import (
	"context"

	"github.com/goliatone/go-router"

	"github.com/goliatone/go-bakery-auth/middleware/jwtware"
)

// GateMode selects how a gate validates access tokens
type GateMode int

const (
	// GateStrict checks signature and expiry only. It never reads the
	// session store, so a terminated session keeps working on strict
	// routes until its access token expires.
	GateStrict GateMode = iota
	// GateSessionAware also requires the bound session to be live and
	// the user to be active, and records activity on the session.
	GateSessionAware
)

// Gate builds the router middleware protecting routes
type Gate struct {
	manager     *SessionManager
	issuer      TokenIssuer
	contextKey  string
	tokenLookup string
	authScheme  string
	listeners   []ValidationListener
	logger      Logger
}

// NewGate returns a Gate that validates through manager
func NewGate(manager *SessionManager, opts Config) *Gate {
	g := &Gate{
		manager:    manager,
		issuer:     manager.Issuer(),
		contextKey: DefaultContextKey,
		logger:     defLogger{},
	}

	if opts != nil {
		if key := opts.GetContextKey(); key != "" {
			g.contextKey = key
		}
		g.tokenLookup = opts.GetTokenLookup()
		g.authScheme = opts.GetAuthScheme()
	}

	return g
}

func (g *Gate) WithLogger(logger Logger) *Gate {
	g.logger = normalizeLogger(logger)
	return g
}

// WithValidationListeners adds listeners run by every handler built after
// this call, e.g. to reject tokens from a blocked origin
func (g *Gate) WithValidationListeners(listeners ...ValidationListener) *Gate {
	g.listeners = append(g.listeners, listeners...)
	return g
}

// ContextKey is the request locals key holding the *RequestAuth
func (g *Gate) ContextKey() string {
	return g.contextKey
}

// Strict rejects requests without a valid access token. Validation is
// signature and expiry only, see GateStrict.
func (g *Gate) Strict() router.MiddlewareFunc {
	return jwtware.New(g.config(GateStrict, false, nil))
}

// SessionAware rejects requests whose token or session is not valid
func (g *Gate) SessionAware() router.MiddlewareFunc {
	return jwtware.New(g.config(GateSessionAware, false, nil))
}

// Optional attaches the identity when the request carries a valid token
// and lets every other request through anonymously.
func (g *Gate) Optional() router.MiddlewareFunc {
	return jwtware.New(g.config(GateSessionAware, true, nil))
}

// RequireRoles wraps the given gate mode with a role check. Identities
// whose role is not in roles get 403.
func (g *Gate) RequireRoles(mode GateMode, roles ...UserRole) router.MiddlewareFunc {
	return jwtware.New(g.config(mode, false, func(p jwtware.Principal) error {
		ra, ok := p.(*RequestAuth)
		if !ok || !ra.Role().In(roles...) {
			return ErrForbidden
		}
		return nil
	}))
}

func (g *Gate) config(mode GateMode, optional bool, authorizer func(jwtware.Principal) error) jwtware.Config {
	validator := g.validateSessionAware
	if mode == GateStrict {
		validator = g.validateStrict
	}

	cfg := jwtware.Config{
		ContextKey:     g.contextKey,
		TokenLookup:    g.tokenLookup,
		AuthScheme:     g.authScheme,
		TokenValidator: jwtware.TokenValidatorFunc(validator),
		Optional:       optional,
		Authorizer:     authorizer,
		ErrorHandler:   g.errorHandler,
		ContextEnricher: func(ctx context.Context, p jwtware.Principal) context.Context {
			if ra, ok := p.(*RequestAuth); ok {
				return WithRequestAuth(ctx, ra)
			}
			return ctx
		},
	}

	RegisterValidationListeners(&cfg, g.listeners...)

	return cfg
}

func (g *Gate) validateStrict(_ context.Context, token string) (jwtware.Principal, error) {
	claims, err := g.issuer.DecodeAndVerify(token, TokenTypeAccess)
	if err != nil {
		return nil, err
	}

	return &RequestAuth{
		Identity: IdentityFromClaims(claims),
		Claims:   claims,
	}, nil
}

func (g *Gate) validateSessionAware(ctx context.Context, token string) (jwtware.Principal, error) {
	ra, err := g.manager.ValidateRequest(ctx, token)
	if err != nil {
		return nil, err
	}
	return ra, nil
}

// errorHandler collapses every auth failure into the same response, the
// reason is only logged
func (g *Gate) errorHandler(ctx router.Context, err error) error {
	switch {
	case IsForbidden(err):
		g.logger.Info("gate denied request", "path", ctx.Path(), "error", err)
		return ctx.JSON(router.StatusForbidden, map[string]string{"error": "forbidden"})
	case IsStorageUnavailable(err):
		g.logger.Error("gate storage failure", "path", ctx.Path(), "error", err)
		return ctx.JSON(router.StatusInternalServerError, map[string]string{"error": "internal server error"})
	default:
		g.logger.Info("gate rejected request", "path", ctx.Path(), "error", err)
		return ctx.JSON(router.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
}
