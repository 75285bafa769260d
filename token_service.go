package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	defaultAccessTokenHours          = 24
	defaultRefreshTokenHours         = 24
	defaultExtendedRefreshTokenHours = 720
)

// TokenServiceImpl implements the TokenIssuer interface with HS256 tokens.
// Access and refresh tokens are signed with different keys so one can
// never be replayed as the other.
type TokenServiceImpl struct {
	accessKey       []byte
	refreshKey      []byte
	issuer          string
	accessTTL       time.Duration
	refreshTTL      time.Duration
	extendedTTL     time.Duration
	now             func() time.Time
	logger          Logger
	parserMethods   []string
	requireIssuerOn bool
}

var _ TokenIssuer = (*TokenServiceImpl)(nil)

// NewTokenService creates a new token service from the auth config
func NewTokenService(opts Config) (*TokenServiceImpl, error) {
	if opts == nil {
		return nil, goerrors.New("token service config is required", goerrors.CategoryInternal)
	}

	accessKey := opts.GetAccessSigningKey()
	refreshKey := opts.GetRefreshSigningKey()

	if accessKey == "" || refreshKey == "" {
		return nil, goerrors.New("access and refresh signing keys are required", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	if accessKey == refreshKey {
		return nil, goerrors.New("access and refresh signing keys must differ", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	return &TokenServiceImpl{
		accessKey:       []byte(accessKey),
		refreshKey:      []byte(refreshKey),
		issuer:          opts.GetIssuer(),
		accessTTL:       hoursOr(opts.GetAccessTokenExpiration(), defaultAccessTokenHours),
		refreshTTL:      hoursOr(opts.GetRefreshTokenExpiration(), defaultRefreshTokenHours),
		extendedTTL:     hoursOr(opts.GetExtendedRefreshTokenExpiration(), defaultExtendedRefreshTokenHours),
		now:             time.Now,
		logger:          defLogger{},
		parserMethods:   []string{jwt.SigningMethodHS256.Alg()},
		requireIssuerOn: opts.GetIssuer() != "",
	}, nil
}

// WithLogger sets the logger
func (ts *TokenServiceImpl) WithLogger(logger Logger) *TokenServiceImpl {
	ts.logger = normalizeLogger(logger)
	return ts
}

// WithTokenClock replaces the time source used to stamp and verify tokens
func (ts *TokenServiceImpl) WithTokenClock(now func() time.Time) *TokenServiceImpl {
	if now != nil {
		ts.now = now
	}
	return ts
}

// RefreshTTL is the lifetime of a refresh token and of the session behind it
func (ts *TokenServiceImpl) RefreshTTL(rememberMe bool) time.Duration {
	if rememberMe {
		return ts.extendedTTL
	}
	return ts.refreshTTL
}

// IssueAccessToken mints a short lived access token. sessionID may be
// empty for tokens that are not bound to a session.
func (ts *TokenServiceImpl) IssueAccessToken(identity Identity, sessionID string) (string, time.Time, error) {
	if identity == nil || identity.ID() == "" {
		return "", time.Time{}, goerrors.New("identity is required", goerrors.CategoryBadInput)
	}

	claims := ts.newClaims(identity, sessionID, TokenTypeAccess, ts.accessTTL)
	claims.UserRole = identity.Role()

	token, err := ts.sign(claims, ts.accessKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, claims.Expires(), nil
}

// IssueRefreshToken mints a refresh token bound to sessionID
func (ts *TokenServiceImpl) IssueRefreshToken(identity Identity, sessionID string, rememberMe bool) (string, time.Time, error) {
	if identity == nil || identity.ID() == "" {
		return "", time.Time{}, goerrors.New("identity is required", goerrors.CategoryBadInput)
	}

	if sessionID == "" {
		return "", time.Time{}, goerrors.New("refresh token requires a session", goerrors.CategoryBadInput)
	}

	claims := ts.newClaims(identity, sessionID, TokenTypeRefresh, ts.RefreshTTL(rememberMe))

	token, err := ts.sign(claims, ts.refreshKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, claims.Expires(), nil
}

// DecodeAndVerify checks the token signature, expiry and type.
// It returns ErrTokenMalformed, ErrSignatureInvalid or ErrTokenExpired.
func (ts *TokenServiceImpl) DecodeAndVerify(tokenString string, expected TokenType) (*JWTClaims, error) {
	if tokenString == "" {
		return nil, ErrTokenMalformed
	}

	// the type decides which key verifies the token, so read it first
	unverified := &JWTClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, unverified); err != nil {
		ts.logger.Debug("TokenService decode failed", "error", err)
		return nil, ErrTokenMalformed
	}

	if unverified.Type() != expected {
		ts.logger.Debug("TokenService unexpected token type", "expected", expected, "got", unverified.Type())
		return nil, ErrTokenMalformed
	}

	key := ts.accessKey
	if expected == TokenTypeRefresh {
		key = ts.refreshKey
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods(ts.parserMethods),
		jwt.WithTimeFunc(ts.now),
		jwt.WithExpirationRequired(),
	}

	if ts.requireIssuerOn {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return key, nil
	}, parserOptions...)

	if err != nil {
		return nil, ts.mapParseError(err)
	}

	if !token.Valid || claims.UserID() == "" {
		return nil, ErrTokenMalformed
	}

	if expected == TokenTypeRefresh && claims.SessionID() == "" {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

func (ts *TokenServiceImpl) mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		ts.logger.Warn("TokenService rejected token signature", "error", err)
		return ErrSignatureInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		ts.logger.Debug("TokenService rejected token claims", "error", err)
		return ErrTokenMalformed
	}
}

func (ts *TokenServiceImpl) newClaims(identity Identity, sessionID string, typ TokenType, ttl time.Duration) *JWTClaims {
	now := ts.now()
	return &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   identity.ID(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UID:       identity.ID(),
		SID:       sessionID,
		TokenType: typ,
	}
}

func (ts *TokenServiceImpl) sign(claims *JWTClaims, key []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(key)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

func hoursOr(hours, def int) time.Duration {
	if hours <= 0 {
		hours = def
	}
	return time.Duration(hours) * time.Hour
}
