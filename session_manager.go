package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// LoginRequest carries everything Login needs from the transport
type LoginRequest struct {
	Identifier    string
	Password      string
	DeviceInfo    DeviceInfo
	OriginAddress string
	RememberMe    bool
}

// LoginResult is returned by a successful Login
type LoginResult struct {
	Identity              Identity
	Session               *Session
	AccessToken           string
	AccessTokenExpiresAt  time.Time
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
}

// RefreshResult is returned by a successful Refresh
type RefreshResult struct {
	AccessToken string
	ExpiresAt   time.Time
	SessionID   string
}

// SessionManager orchestrates the session lifecycle:
//
//	(none)  --login-------------> ACTIVE
//	ACTIVE  --logout------------> TERMINATED (manual)
//	ACTIVE  --logout all/revoke-> TERMINATED (forced)
//	ACTIVE  --sweep-------------> TERMINATED (timeout)
//
// TERMINATED is absorbing.
type SessionManager struct {
	verifier     IdentityVerifier
	issuer       TokenIssuer
	store        SessionStore
	users        UserRepository
	activitySink ActivitySink
	logger       Logger
	now          func() time.Time
}

// NewSessionManager wires the lifecycle manager to its collaborators
func NewSessionManager(verifier IdentityVerifier, issuer TokenIssuer, store SessionStore, users UserRepository) *SessionManager {
	return &SessionManager{
		verifier:     verifier,
		issuer:       issuer,
		store:        store,
		users:        users,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
		now:          time.Now,
	}
}

func (m *SessionManager) WithLogger(logger Logger) *SessionManager {
	m.logger = normalizeLogger(logger)
	return m
}

// WithActivitySink configures an ActivitySink for emitting session events.
func (m *SessionManager) WithActivitySink(sink ActivitySink) *SessionManager {
	m.activitySink = normalizeActivitySink(sink)
	return m
}

// WithClock replaces the time source used for liveness checks and sweeps
func (m *SessionManager) WithClock(now func() time.Time) *SessionManager {
	if now != nil {
		m.now = now
	}
	return m
}

// Issuer returns the token issuer used by the manager
func (m *SessionManager) Issuer() TokenIssuer {
	return m.issuer
}

// Login verifies the credentials, opens a session and issues both tokens.
// If issuing fails the new session is terminated before returning.
func (m *SessionManager) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	identity, err := m.verifier.Verify(ctx, req.Identifier, req.Password)
	if err == nil && identity == nil {
		err = ErrInvalidCredentials
	}

	if err != nil {
		m.logger.Info("Login verify identity error", "error", err)
		m.emit(ctx, ActivityEventLoginFailure, "", "", map[string]any{
			"identifier": req.Identifier,
			"origin":     req.OriginAddress,
			"error":      err.Error(),
		})
		return nil, err
	}

	session, err := m.store.Create(ctx, identity.ID(), req.DeviceInfo, req.OriginAddress, m.issuer.RefreshTTL(req.RememberMe))
	if err != nil {
		m.logger.Error("Login create session error", "user_id", identity.ID(), "error", err)
		m.emit(ctx, ActivityEventLoginFailure, identity.ID(), "", map[string]any{
			"identifier": req.Identifier,
			"error":      err.Error(),
		})
		return nil, err
	}

	sid := session.ID.String()

	accessToken, accessExp, err := m.issuer.IssueAccessToken(identity, sid)
	if err != nil {
		return nil, m.abortLogin(ctx, identity, session, err)
	}

	refreshToken, refreshExp, err := m.issuer.IssueRefreshToken(identity, sid, req.RememberMe)
	if err != nil {
		return nil, m.abortLogin(ctx, identity, session, err)
	}

	m.emit(ctx, ActivityEventLoginSuccess, identity.ID(), sid, map[string]any{
		"identifier":  req.Identifier,
		"origin":      req.OriginAddress,
		"remember_me": req.RememberMe,
	})

	return &LoginResult{
		Identity:              identity,
		Session:               session,
		AccessToken:           accessToken,
		AccessTokenExpiresAt:  accessExp,
		RefreshToken:          refreshToken,
		RefreshTokenExpiresAt: refreshExp,
	}, nil
}

func (m *SessionManager) abortLogin(ctx context.Context, identity Identity, session *Session, cause error) error {
	sid := session.ID.String()
	m.logger.Error("Login token issuance failed, terminating session", "session_id", sid, "error", cause)

	// the request may already be cancelled, the cleanup must still run
	if err := m.store.Terminate(context.WithoutCancel(ctx), sid, TerminationForced); err != nil {
		m.logger.Error("Login failed to terminate orphaned session", "session_id", sid, "error", err)
	}

	m.emit(ctx, ActivityEventLoginFailure, identity.ID(), sid, map[string]any{
		"error": cause.Error(),
	})

	return cause
}

// ValidateRequest resolves an access token into the request identity.
// Tokens bound to a session also require the session to be live, and
// a successful check records activity on it.
func (m *SessionManager) ValidateRequest(ctx context.Context, accessToken string) (*RequestAuth, error) {
	claims, err := m.issuer.DecodeAndVerify(accessToken, TokenTypeAccess)
	if err != nil {
		m.logger.Debug("ValidateRequest token rejected", "error", err)
		return nil, err
	}

	ra := &RequestAuth{Claims: claims}

	if sid := claims.SessionID(); sid != "" {
		session, err := m.liveSession(ctx, claims.UserID(), sid)
		if err != nil {
			return nil, err
		}
		ra.Session = session
	}

	identity, err := m.loadIdentity(ctx, claims.UserID())
	if err != nil {
		return nil, err
	}
	ra.Identity = identity

	if ra.Session != nil {
		if err := m.store.TouchActivity(ctx, ra.Session.ID.String()); err != nil {
			m.logger.Warn("ValidateRequest touch activity failed", "session_id", ra.Session.ID.String(), "error", err)
			return nil, err
		}
	}

	return ra, nil
}

// Refresh issues a new access token for the session named in the refresh
// token. The refresh token itself is not rotated.
func (m *SessionManager) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	claims, err := m.issuer.DecodeAndVerify(refreshToken, TokenTypeRefresh)
	if err != nil {
		m.logger.Debug("Refresh token rejected", "error", err)
		return nil, err
	}

	identity, err := m.loadIdentity(ctx, claims.UserID())
	if err != nil {
		return nil, err
	}

	sid := claims.SessionID()
	if _, err := m.liveSession(ctx, claims.UserID(), sid); err != nil {
		return nil, err
	}

	accessToken, expiresAt, err := m.issuer.IssueAccessToken(identity, sid)
	if err != nil {
		m.logger.Error("Refresh failed to issue access token", "session_id", sid, "error", err)
		return nil, err
	}

	if err := m.store.TouchActivity(ctx, sid); err != nil {
		m.logger.Warn("Refresh touch activity failed", "session_id", sid, "error", err)
	}

	m.emit(ctx, ActivityEventTokenRefreshed, identity.ID(), sid, nil)

	return &RefreshResult{
		AccessToken: accessToken,
		ExpiresAt:   expiresAt,
		SessionID:   sid,
	}, nil
}

// Logout terminates one session
func (m *SessionManager) Logout(ctx context.Context, sessionID string) error {
	if err := m.store.Terminate(ctx, sessionID, TerminationManual); err != nil {
		return err
	}
	m.emit(ctx, ActivityEventLogout, "", sessionID, nil)
	return nil
}

// LogoutAll terminates every active session of the owner, including the
// one the request came from.
func (m *SessionManager) LogoutAll(ctx context.Context, ownerID string) (int, error) {
	count, err := m.store.TerminateAllForOwner(ctx, ownerID, TerminationForced)
	if err != nil {
		return 0, err
	}
	m.emit(ctx, ActivityEventLogoutAll, ownerID, "", map[string]any{
		"terminated": count,
	})
	return count, nil
}

// Extend pushes the session expiry forward. Tokens are not re-issued.
func (m *SessionManager) Extend(ctx context.Context, sessionID string, hours int) (time.Time, error) {
	if hours <= 0 {
		return time.Time{}, goerrors.New("extension hours must be positive", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"hours": hours})
	}

	expiresAt, err := m.store.Extend(ctx, sessionID, time.Duration(hours)*time.Hour)
	if err != nil {
		return time.Time{}, err
	}

	m.emit(ctx, ActivityEventSessionExtended, "", sessionID, map[string]any{
		"hours":      hours,
		"expires_at": expiresAt,
	})
	return expiresAt, nil
}

// ExtendOwnedSession extends a session only if ownerID owns it
func (m *SessionManager) ExtendOwnedSession(ctx context.Context, ownerID, sessionID string, hours int) (time.Time, error) {
	if _, err := m.ownedSession(ctx, ownerID, sessionID); err != nil {
		return time.Time{}, err
	}
	return m.Extend(ctx, sessionID, hours)
}

// ListSessions returns the owner's live sessions, most recently used first
func (m *SessionManager) ListSessions(ctx context.Context, ownerID string) ([]*Session, error) {
	sessions, err := m.store.ListActiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	live := make([]*Session, 0, len(sessions))
	for _, s := range sessions {
		if s.IsLive(now) {
			live = append(live, s)
		}
	}
	return live, nil
}

// TerminateOwnedSession revokes one of the owner's sessions, e.g. a lost
// device. Sessions of other owners are reported as not found.
func (m *SessionManager) TerminateOwnedSession(ctx context.Context, ownerID, sessionID string) error {
	if _, err := m.ownedSession(ctx, ownerID, sessionID); err != nil {
		return err
	}

	if err := m.store.Terminate(ctx, sessionID, TerminationForced); err != nil {
		return err
	}

	m.emit(ctx, ActivityEventSessionRevoked, ownerID, sessionID, nil)
	return nil
}

// Sweep terminates every expired session that is still flagged active
func (m *SessionManager) Sweep(ctx context.Context) (int, error) {
	count, err := m.store.SweepExpired(ctx, m.now())
	if err != nil {
		m.logger.Error("Sweep failed", "error", err)
		return 0, err
	}

	if count > 0 {
		m.logger.Info("Sweep terminated expired sessions", "count", count)
		m.emit(ctx, ActivityEventSessionsSwept, "", "", map[string]any{
			"terminated": count,
		})
	}
	return count, nil
}

// Purge deletes sessions terminated longer than retention ago
func (m *SessionManager) Purge(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, goerrors.New("purge retention must be positive", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	count, err := m.store.PurgeTerminated(ctx, m.now().Add(-retention))
	if err != nil {
		m.logger.Error("Purge failed", "error", err)
		return 0, err
	}

	if count > 0 {
		m.logger.Info("Purge deleted terminated sessions", "count", count)
		m.emit(ctx, ActivityEventSessionsPurged, "", "", map[string]any{
			"deleted":   count,
			"retention": retention.String(),
		})
	}
	return count, nil
}

// liveSession loads sid and checks that it belongs to ownerID and can
// still authorize requests
func (m *SessionManager) liveSession(ctx context.Context, ownerID, sid string) (*Session, error) {
	session, err := m.ownedSession(ctx, ownerID, sid)
	if err != nil {
		return nil, err
	}

	if err := session.liveness(m.now()); err != nil {
		m.logger.Debug("session is not live", "session_id", sid, "error", err)
		return nil, err
	}

	return session, nil
}

func (m *SessionManager) ownedSession(ctx context.Context, ownerID, sid string) (*Session, error) {
	session, err := m.store.Get(ctx, sid)
	if err != nil {
		return nil, err
	}

	if session.OwnerID.String() != ownerID {
		m.logger.Warn("session owner mismatch", "session_id", sid, "owner_id", ownerID)
		return nil, ErrSessionNotFound
	}

	return session, nil
}

func (m *SessionManager) loadIdentity(ctx context.Context, userID string) (Identity, error) {
	user, err := m.users.FindActiveByID(ctx, userID)
	if err != nil {
		if isRecordNotFound(err) || goerrors.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		m.logger.Error("failed to load identity", "user_id", userID, "error", err)
		return nil, storageError(err, "find_active_user")
	}

	if user == nil {
		return nil, ErrInvalidCredentials
	}

	return NewIdentityFromUser(user), nil
}

func (m *SessionManager) emit(ctx context.Context, eventType ActivityEventType, userID, sessionID string, metadata map[string]any) {
	sink := normalizeActivitySink(m.activitySink)
	event := ActivityEvent{
		Type:      eventType,
		UserID:    userID,
		SessionID: sessionID,
		Metadata:  metadata,
		At:        m.now(),
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if err := sink.Record(ctx, event); err != nil {
		m.logger.Warn("activity sink record error", "error", err)
	}
}
