package tokens

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const TokenTypeAccess = "access"

// AccessClaims carries the permission snapshot taken at issuance. It is not
// re-resolved until the token is refreshed.
type AccessClaims struct {
	TenantCode  string   `json:"tid"`
	Permissions []string `json:"perms"`
	Type        string   `json:"typ"`
	jwt.RegisteredClaims
}

func (c *AccessClaims) AccountID() (uint64, error) {
	return strconv.ParseUint(c.Subject, 10, 64)
}

// Signer issues and verifies HS256 access tokens.
type Signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func (s *Signer) TTL() time.Duration {
	return s.ttl
}

func (s *Signer) Sign(accountID uint64, tenantCode string, permissions []string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	if permissions == nil {
		permissions = []string{}
	}
	claims := AccessClaims{
		TenantCode:  tenantCode,
		Permissions: permissions,
		Type:        TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strconv.FormatUint(accountID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse verifies the signature, issuer and expiry of an access token.
func (s *Signer) Parse(tokenStr string) (*AccessClaims, error) {
	var claims AccessClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != TokenTypeAccess || claims.TenantCode == "" {
		return nil, ErrInvalidToken
	}
	if _, err := claims.AccountID(); err != nil {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

func NewSigner(secret string, issuer string, ttl time.Duration) *Signer {
	return &Signer{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}
