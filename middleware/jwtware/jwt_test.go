package jwtware_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-bakery-auth/middleware/jwtware"
)

type principal struct {
	id   string
	role string
}

func (p principal) UserID() string { return p.id }

type ctxKey struct{}

var errBadToken = errors.New("bad token")

func validator(valid string) jwtware.TokenValidatorFunc {
	return func(ctx context.Context, token string) (jwtware.Principal, error) {
		if token != valid {
			return nil, errBadToken
		}
		return principal{id: "user-1", role: "store"}, nil
	}
}

func newApp(cfg jwtware.Config) *fiber.App {
	var app *fiber.App
	var srv router.Server[*fiber.App] = router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		app = router.DefaultFiberOptions(fiber.New())
		return app
	})

	srv.Router().Get("/", func(ctx router.Context) error {
		p, ok := ctx.Locals("auth").(jwtware.Principal)
		if !ok {
			return ctx.SendString("anonymous")
		}
		if fromCtx, ok := ctx.Context().Value(ctxKey{}).(string); ok {
			return ctx.SendString(p.UserID() + ":" + fromCtx)
		}
		return ctx.SendString(p.UserID())
	}, jwtware.New(cfg))

	// adapters that register routes lazily do it on Init
	if initer, ok := srv.(interface{ Init() }); ok {
		initer.Init()
	}

	return app
}

func do(t *testing.T, app *fiber.App, req *http.Request) (int, string) {
	t.Helper()
	res, err := app.Test(req)
	require.NoError(t, err)
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, string(body)
}

func TestJWTWare_BasicHeaderExtraction(t *testing.T) {
	app := newApp(jwtware.Config{TokenValidator: validator("good")})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	status, body := do(t, app, req)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "user-1", body)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	status, _ = do(t, app, req)
	assert.Equal(t, http.StatusUnauthorized, status)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer bad")
	status, body = do(t, app, req)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.JSONEq(t, `{"error":"unauthorized"}`, body)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic good")
	status, _ = do(t, app, req)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestJWTWare_CustomTokenLookup(t *testing.T) {
	app := newApp(jwtware.Config{
		TokenValidator: validator("good"),
		TokenLookup:    "header:Authorization,cookie:access,query:token",
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "access", Value: "good"})
	status, _ := do(t, app, req)
	assert.Equal(t, http.StatusOK, status)

	req = httptest.NewRequest(http.MethodGet, "/?token=good", nil)
	status, _ = do(t, app, req)
	assert.Equal(t, http.StatusOK, status)

	req = httptest.NewRequest(http.MethodGet, "/?token=nope", nil)
	status, _ = do(t, app, req)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestJWTWare_FilterFunction(t *testing.T) {
	app := newApp(jwtware.Config{
		TokenValidator: validator("good"),
		Filter: func(c router.Context) bool {
			return c.Query("skip", "") == "1"
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/?skip=1", nil)
	status, body := do(t, app, req)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "anonymous", body)
}

func TestJWTWare_Optional(t *testing.T) {
	app := newApp(jwtware.Config{
		TokenValidator: validator("good"),
		Optional:       true,
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	status, body := do(t, app, req)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "anonymous", body)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer bad")
	status, body = do(t, app, req)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "anonymous", body)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	status, body = do(t, app, req)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "user-1", body)
}

func TestJWTWare_AuthorizerAndErrorHandler(t *testing.T) {
	errDenied := errors.New("denied")
	app := newApp(jwtware.Config{
		TokenValidator: validator("good"),
		Authorizer: func(p jwtware.Principal) error {
			if p.(principal).role != "admin" {
				return errDenied
			}
			return nil
		},
		ErrorHandler: func(c router.Context, err error) error {
			if errors.Is(err, errDenied) {
				return c.Status(router.StatusForbidden).SendString("forbidden")
			}
			return c.Status(router.StatusUnauthorized).SendString("unauthorized")
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	status, body := do(t, app, req)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", body)
}

func TestJWTWare_ContextEnricherAndListeners(t *testing.T) {
	var seen []string
	app := newApp(jwtware.Config{
		TokenValidator: validator("good"),
		ContextEnricher: func(ctx context.Context, p jwtware.Principal) context.Context {
			return context.WithValue(ctx, ctxKey{}, "enriched")
		},
		ValidationListeners: []jwtware.ValidationListener{
			nil,
			func(c router.Context, p jwtware.Principal) error {
				seen = append(seen, p.UserID())
				return nil
			},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	status, body := do(t, app, req)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "user-1:enriched", body)
	assert.Equal(t, []string{"user-1"}, seen)
}

func TestJWTWare_MockContext(t *testing.T) {
	var nextCalled bool
	next := func(ctx router.Context) error {
		nextCalled = true
		return nil
	}

	middleware := jwtware.New(jwtware.Config{
		TokenValidator: validator("good"),
		ErrorHandler: func(ctx router.Context, err error) error {
			return err
		},
	})

	ctx := router.NewMockContext()
	ctx.On("GetString", "Authorization", "").Return("Bearer good")
	ctx.On("Context").Return(context.Background())
	ctx.On("Locals", "auth", mock.Anything).Return(nil)

	err := middleware(next)(ctx)
	require.NoError(t, err)
	assert.True(t, nextCalled)

	nextCalled = false
	ctx = router.NewMockContext()
	ctx.On("GetString", "Authorization", "").Return("")
	ctx.On("Context").Return(context.Background())

	err = middleware(next)(ctx)
	assert.ErrorIs(t, err, jwtware.ErrJWTMissingOrMalformed)
	assert.False(t, nextCalled)
}

func TestJWTWare_RequiresValidator(t *testing.T) {
	assert.Panics(t, func() {
		jwtware.New(jwtware.Config{})
	})
}

func TestGetExtractors(t *testing.T) {
	extractors := jwtware.GetExtractors("header:Authorization, cookie:jwt ,query:t,param:token,bogus", "Bearer")
	assert.Len(t, extractors, 4)
}
