package admin

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const opaqueTokenBytes = 20

// TokenPayload is the claims payload carried by a session token.
type TokenPayload struct {
	ID uuid.UUID `json:"id"`
}

// DecodedToken is the fail-closed result of decoding a session token. When
// IsValid is false the payload is zero and no failure detail is exposed.
type DecodedToken struct {
	IsValid bool
	Payload TokenPayload
}

// SessionClaims is the JWT claims set used for admin session tokens.
type SessionClaims struct {
	jwt.RegisteredClaims
	UID uuid.UUID `json:"id"`
}

// TokenService issues and validates signed stateless session tokens, and
// generates the unrelated opaque single-use tokens for registration and
// password reset flows.
type TokenService interface {
	CreateToken(payload TokenPayload) (string, error)
	DecodeToken(token string) DecodedToken
	RenewToken(token string) (string, error)
	CreateOpaqueToken() (string, error)
}

// TokenServiceImpl implements TokenService with HS256 JWTs.
type TokenServiceImpl struct {
	signingKey      []byte
	tokenExpiration int
	issuer          string
	audience        jwt.ClaimStrings
	logger          Logger
}

// NewTokenService creates a new TokenService from config.
func NewTokenService(cfg Config, logger Logger) *TokenServiceImpl {
	return &TokenServiceImpl{
		signingKey:      []byte(cfg.GetSigningKey()),
		tokenExpiration: cfg.GetTokenExpiration(),
		issuer:          cfg.GetIssuer(),
		audience:        cfg.GetAudience(),
		logger:          normalizeLogger(logger),
	}
}

// CreateToken signs a session token carrying the payload, issuance time and
// the configured TTL.
func (ts *TokenServiceImpl) CreateToken(payload TokenPayload) (string, error) {
	now := time.Now()
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   payload.ID.String(),
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ts.tokenExpiration) * time.Hour)),
		},
		UID: payload.ID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign session token")
	}

	return signed, nil
}

// DecodeToken parses and validates a session token. Malformed, expired or
// signature-mismatched tokens yield IsValid=false; the cause is logged but
// never returned to the caller.
func (ts *TokenServiceImpl) DecodeToken(tokenString string) DecodedToken {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		ts.logger.Debug("token decode rejected: %v", err)
		return DecodedToken{}
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return DecodedToken{}
	}

	return DecodedToken{
		IsValid: true,
		Payload: TokenPayload{ID: claims.UID},
	}
}

// RenewToken exchanges a still-valid session token for a fresh one carrying
// the same payload.
func (ts *TokenServiceImpl) RenewToken(tokenString string) (string, error) {
	decoded := ts.DecodeToken(tokenString)
	if !decoded.IsValid {
		return "", ErrInvalidToken
	}
	return ts.CreateToken(decoded.Payload)
}

// CreateOpaqueToken generates a cryptographically random URL-safe single-use
// string for registration and reset flows. It shares nothing with session
// tokens and cannot be derived from public information.
func (ts *TokenServiceImpl) CreateOpaqueToken() (string, error) {
	buf := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to generate opaque token")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

var _ TokenService = (*TokenServiceImpl)(nil)
