package auth

import (
	"github.com/goliatone/go-router"

	"github.com/goliatone/go-bakery-auth/middleware/jwtware"
)

// ValidationListener runs after a gate validated the token and before the
// role check. Returning an error rejects the request.
type ValidationListener func(ctx router.Context, ra *RequestAuth) error

// RegisterValidationListeners appends listeners to a jwtware.Config in a safe, reusable way.
func RegisterValidationListeners(cfg *jwtware.Config, listeners ...ValidationListener) {
	if cfg == nil || len(listeners) == 0 {
		return
	}

	for _, listener := range listeners {
		if listener == nil {
			continue
		}
		cfg.ValidationListeners = append(cfg.ValidationListeners, adaptListener(listener))
	}
}

func adaptListener(listener ValidationListener) jwtware.ValidationListener {
	return func(ctx router.Context, p jwtware.Principal) error {
		ra, ok := p.(*RequestAuth)
		if !ok {
			return ErrTokenMalformed
		}
		return listener(ctx, ra)
	}
}
