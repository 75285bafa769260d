package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

const (
	defaultRefreshCookieName = "bakery_refresh"
	defaultRefreshCookiePath = "/auth/refresh"
)

// RegisterAuthRoutes mounts the auth endpoints on the router, usually a
// group such as srv.Router().Group("/auth").
func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(opts...)
	gate := controller.Gate

	app.Post(controller.Routes.Login, controller.LoginPost).SetName("auth.login")
	app.Post(controller.Routes.Refresh, controller.RefreshPost).SetName("auth.refresh")

	app.Post(controller.Routes.Logout, controller.LogoutPost, gate.SessionAware()).SetName("auth.logout")
	app.Post(controller.Routes.LogoutAll, controller.LogoutAllPost, gate.SessionAware()).SetName("auth.logout-all")

	app.Post(controller.Routes.Sweep, controller.SweepPost, gate.RequireRoles(GateStrict, RoleAdmin)).
		SetName("auth.sessions.sweep")
	app.Get(controller.Routes.Sessions, controller.SessionsList, gate.SessionAware()).
		SetName("auth.sessions.list")
	app.Delete(controller.Routes.Sessions+"/:id", controller.SessionRevoke, gate.SessionAware()).
		SetName("auth.sessions.revoke")
	app.Post(controller.Routes.Sessions+"/:id/extend", controller.SessionExtend, gate.SessionAware()).
		SetName("auth.sessions.extend")

	app.Get(controller.Routes.Me, controller.MeGet, gate.Optional()).SetName("auth.me")

	return controller
}

type AuthControllerRoutes struct {
	Login     string
	Refresh   string
	Logout    string
	LogoutAll string
	Sessions  string
	Sweep     string
	Me        string
}

// RefreshCookie controls the cookie carrying the refresh token
type RefreshCookie struct {
	Name   string
	Path   string
	Secure bool
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Manager      *SessionManager
	Gate         *Gate
	Routes       *AuthControllerRoutes
	Cookie       RefreshCookie
	ErrorHandler router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

// WithSessionManager sets the manager and builds a gate from the config
func WithSessionManager(manager *SessionManager, cfg Config) AuthControllerOption {
	return func(a *AuthController) *AuthController {
		a.Manager = manager
		if a.Gate == nil {
			a.Gate = NewGate(manager, cfg).WithLogger(a.Logger)
		}
		if cfg != nil {
			if name := cfg.GetRefreshCookieName(); name != "" {
				a.Cookie.Name = name
			}
			if path := cfg.GetRefreshCookiePath(); path != "" {
				a.Cookie.Path = path
			}
			a.Cookie.Secure = cfg.GetCookieSecure()
		}
		return a
	}
}

// WithGate overrides the gate protecting the session routes
func WithGate(gate *Gate) AuthControllerOption {
	return func(a *AuthController) *AuthController {
		a.Gate = gate
		return a
	}
}

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(a *AuthController) *AuthController {
		a.Logger = normalizeLogger(logger)
		return a
	}
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(a *AuthController) *AuthController {
		a.Debug = debug
		return a
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Routes: &AuthControllerRoutes{
			Login:     "/login",
			Refresh:   "/refresh",
			Logout:    "/logout",
			LogoutAll: "/logout-all",
			Sessions:  "/sessions",
			Sweep:     "/sessions/sweep",
			Me:        "/me",
		},
		Cookie: RefreshCookie{
			Name: defaultRefreshCookieName,
			Path: defaultRefreshCookiePath,
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Manager == nil {
		panic("Missing SessionManager in auth controller...")
	}

	if c.Gate == nil {
		panic("Missing Gate in auth controller...")
	}

	return c
}

// LoginPayload is the login request body
type LoginPayload struct {
	Identifier string            `json:"identifier"`
	Password   string            `json:"password"`
	RememberMe bool              `json:"remember_me"`
	Device     map[string]string `json:"device,omitempty"`
}

// Validate will run validation rules
func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Identifier,
			validation.Required,
			validation.Length(1, 255),
		),
		validation.Field(
			&r.Password,
			validation.Required,
			validation.Length(1, 1024),
		),
		validation.Field(
			&r.Device,
			validation.Length(0, 16),
		),
	)
}

// ExtendPayload is the session extension request body
type ExtendPayload struct {
	Hours int `json:"hours"`
}

// Validate will run validation rules
func (r ExtendPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Hours,
			validation.Required,
			validation.Min(1),
			validation.Max(24*30),
		),
	)
}

// SessionView is the public representation of a session
type SessionView struct {
	ID             string     `json:"id"`
	DeviceInfo     DeviceInfo `json:"device_info,omitempty"`
	OriginAddress  string     `json:"origin_address,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	Current        bool       `json:"current"`
}

func newSessionView(s *Session, currentID string) SessionView {
	return SessionView{
		ID:             s.ID.String(),
		DeviceInfo:     s.DeviceInfo,
		OriginAddress:  s.OriginAddress,
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivityAt,
		ExpiresAt:      s.ExpiresAt,
		Current:        s.ID.String() == currentID,
	}
}

// IdentityView is the public representation of an identity
type IdentityView struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
}

func newIdentityView(identity Identity) IdentityView {
	return IdentityView{
		ID:       identity.ID(),
		Username: identity.Username(),
		Email:    identity.Email(),
		Role:     identity.Role(),
	}
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid login payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, goerrors.FromOzzoValidation(err, "invalid login payload"))
	}

	if a.Debug {
		redacted := *payload
		redacted.Password = "********"
		fmt.Println("======= AUTH LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(redacted))
		fmt.Println("=========================")
	}

	result, err := a.Manager.Login(ctx.Context(), LoginRequest{
		Identifier:    payload.Identifier,
		Password:      payload.Password,
		DeviceInfo:    deviceInfo(ctx, payload.Device),
		OriginAddress: ctx.IP(),
		RememberMe:    payload.RememberMe,
	})
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	a.setRefreshCookie(ctx, result.RefreshToken, result.RefreshTokenExpiresAt)

	return ctx.JSON(router.StatusOK, map[string]any{
		"access_token": result.AccessToken,
		"token_type":   "Bearer",
		"expires_at":   result.AccessTokenExpiresAt,
		"session":      newSessionView(result.Session, result.Session.ID.String()),
		"user":         newIdentityView(result.Identity),
	})
}

func (a *AuthController) RefreshPost(ctx router.Context) error {
	token := ctx.Cookies(a.Cookie.Name)
	if token == "" {
		return a.ErrorHandler(ctx, ErrTokenMalformed)
	}

	result, err := a.Manager.Refresh(ctx.Context(), token)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"access_token": result.AccessToken,
		"token_type":   "Bearer",
		"expires_at":   result.ExpiresAt,
		"session_id":   result.SessionID,
	})
}

func (a *AuthController) LogoutPost(ctx router.Context) error {
	ra, err := a.requestAuth(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if sid := ra.SessionID(); sid != "" {
		if err := a.Manager.Logout(ctx.Context(), sid); err != nil {
			return a.ErrorHandler(ctx, err)
		}
	}

	a.clearRefreshCookie(ctx)
	return ctx.NoContent(http.StatusNoContent)
}

func (a *AuthController) LogoutAllPost(ctx router.Context) error {
	ra, err := a.requestAuth(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	count, err := a.Manager.LogoutAll(ctx.Context(), ra.UserID())
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	a.clearRefreshCookie(ctx)
	return ctx.JSON(router.StatusOK, map[string]any{"terminated": count})
}

func (a *AuthController) SessionsList(ctx router.Context) error {
	ra, err := a.requestAuth(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	sessions, err := a.Manager.ListSessions(ctx.Context(), ra.UserID())
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	views := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, newSessionView(s, ra.SessionID()))
	}

	return ctx.JSON(router.StatusOK, map[string]any{"sessions": views})
}

func (a *AuthController) SessionRevoke(ctx router.Context) error {
	ra, err := a.requestAuth(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := a.Manager.TerminateOwnedSession(ctx.Context(), ra.UserID(), ctx.Param("id")); err != nil {
		return a.ErrorHandler(ctx, targetSessionError(err))
	}

	return ctx.NoContent(http.StatusNoContent)
}

func (a *AuthController) SessionExtend(ctx router.Context) error {
	ra, err := a.requestAuth(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload := new(ExtendPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid extend payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, goerrors.FromOzzoValidation(err, "invalid extend payload"))
	}

	expiresAt, err := a.Manager.ExtendOwnedSession(ctx.Context(), ra.UserID(), ctx.Param("id"), payload.Hours)
	if err != nil {
		return a.ErrorHandler(ctx, targetSessionError(err))
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"id":         ctx.Param("id"),
		"expires_at": expiresAt,
	})
}

func (a *AuthController) SweepPost(ctx router.Context) error {
	count, err := a.Manager.Sweep(ctx.Context())
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}
	return ctx.JSON(router.StatusOK, map[string]any{"terminated": count})
}

func (a *AuthController) MeGet(ctx router.Context) error {
	ra, ok := GetRequestAuth(ctx, a.Gate.ContextKey())
	if !ok || ra.Identity == nil {
		return ctx.JSON(router.StatusOK, map[string]any{"authenticated": false})
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"authenticated": true,
		"user":          newIdentityView(ra.Identity),
		"session_id":    ra.SessionID(),
	})
}

func (a *AuthController) requestAuth(ctx router.Context) (*RequestAuth, error) {
	ra, ok := GetRequestAuth(ctx, a.Gate.ContextKey())
	if !ok || ra.Identity == nil {
		return nil, ErrTokenMalformed
	}
	return ra, nil
}

func (a *AuthController) setRefreshCookie(ctx router.Context, token string, expiresAt time.Time) {
	ctx.Cookie(&router.Cookie{
		Name:     a.Cookie.Name,
		Value:    token,
		Path:     a.Cookie.Path,
		Expires:  expiresAt,
		Secure:   a.Cookie.Secure,
		HTTPOnly: true,
		SameSite: "Strict",
	})
}

func (a *AuthController) clearRefreshCookie(ctx router.Context) {
	ctx.Cookie(&router.Cookie{
		Name:     a.Cookie.Name,
		Value:    "",
		Path:     a.Cookie.Path,
		Expires:  time.Unix(0, 0),
		Secure:   a.Cookie.Secure,
		HTTPOnly: true,
		SameSite: "Strict",
	})
}

func deviceInfo(ctx router.Context, extra map[string]string) DeviceInfo {
	info := DeviceInfo{}
	if ua := strings.TrimSpace(ctx.GetString("User-Agent", "")); ua != "" {
		info["user_agent"] = ua
	}
	for k, v := range extra {
		if k == "user_agent" {
			continue
		}
		info[k] = v
	}
	if len(info) == 0 {
		return nil
	}
	return info
}

var errSessionTargetNotFound = goerrors.New("session not found", goerrors.CategoryNotFound).
	WithCode(goerrors.CodeNotFound).
	WithTextCode(TextCodeSessionNotFound)

// targetSessionError reports a session named in the URL as missing
// instead of unauthorized, the caller is authenticated at this point
func targetSessionError(err error) error {
	if IsSessionError(err) {
		return errSessionTargetNotFound
	}
	return err
}

func defaultErrHandler(ctx router.Context, err error) error {
	var richErr *goerrors.Error
	if !errors.As(err, &richErr) {
		return ctx.JSON(router.StatusInternalServerError, map[string]any{"error": "internal server error"})
	}

	switch {
	case IsStorageUnavailable(err):
		return ctx.JSON(router.StatusInternalServerError, map[string]any{"error": "internal server error"})
	case IsForbidden(err):
		return ctx.JSON(router.StatusForbidden, map[string]any{"error": "forbidden"})
	case richErr.Category == goerrors.CategoryValidation:
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": richErr.ValidationMap(),
		})
	case richErr.Category == goerrors.CategoryBadInput:
		return ctx.JSON(router.StatusBadRequest, map[string]any{"error": richErr.Message})
	case richErr.Category == goerrors.CategoryNotFound:
		return ctx.JSON(http.StatusNotFound, map[string]any{"error": "not found"})
	case richErr.Category == goerrors.CategoryConflict:
		return ctx.JSON(http.StatusConflict, map[string]any{"error": "conflict"})
	case richErr.Category == goerrors.CategoryAuth:
		return ctx.JSON(router.StatusUnauthorized, map[string]any{"error": "unauthorized"})
	default:
		return ctx.JSON(router.StatusInternalServerError, map[string]any{"error": "internal server error"})
	}
}
