package identity

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/spf13/cast"
)

type idTokenClaims struct {
	Email         string      `json:"email"`
	EmailVerified interface{} `json:"email_verified"`
}

type keyFetchFailureKey struct{}

type keyFetchFailure struct {
	err error
}

// fetchTrackingKeySet records remote key fetch failures on the request
// context. The ID token verifier only reports key set errors as text.
type fetchTrackingKeySet struct {
	keySet oidc.KeySet
}

func (k *fetchTrackingKeySet) VerifySignature(ctx context.Context, jwt string) ([]byte, error) {
	payload, err := k.keySet.VerifySignature(ctx, jwt)
	if err != nil && strings.HasPrefix(err.Error(), "fetching keys") {
		if failure, ok := ctx.Value(keyFetchFailureKey{}).(*keyFetchFailure); ok {
			failure.err = err
		}
	}
	return payload, err
}

// OIDCVerifier verifies OpenID Connect ID tokens. A token is accepted when
// its audience contains one of the configured client IDs.
type OIDCVerifier struct {
	provider   string
	verifier   *oidc.IDTokenVerifier
	clientIDs  []string
	trustEmail bool
}

func (v *OIDCVerifier) Verify(ctx context.Context, token string) (*VerifiedIdentity, error) {
	failure := &keyFetchFailure{}
	idToken, err := v.verifier.Verify(context.WithValue(ctx, keyFetchFailureKey{}, failure), token)
	if err != nil {
		if ctx.Err() != nil || failure.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidProviderToken, err)
	}
	if !slices.ContainsFunc(idToken.Audience, func(aud string) bool { return slices.Contains(v.clientIDs, aud) }) {
		return nil, fmt.Errorf("%w: unexpected audience %v", ErrInvalidProviderToken, idToken.Audience)
	}

	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProviderToken, err)
	}
	if idToken.Subject == "" || claims.Email == "" {
		return nil, fmt.Errorf("%w: missing subject or email", ErrInvalidProviderToken)
	}
	verified := v.trustEmail || cast.ToBool(claims.EmailVerified)
	if !verified {
		return nil, ErrEmailNotVerified
	}
	return &VerifiedIdentity{
		Provider:      v.provider,
		Subject:       idToken.Subject,
		Email:         claims.Email,
		EmailVerified: verified,
	}, nil
}

var supportedSigningAlgs = []string{
	oidc.RS256, oidc.RS384, oidc.RS512,
	oidc.ES256, oidc.ES384, oidc.ES512,
	oidc.PS256, oidc.PS384, oidc.PS512,
	oidc.EdDSA,
}

type discoveryClaims struct {
	JWKSURL     string   `json:"jwks_uri"`
	SigningAlgs []string `json:"id_token_signing_alg_values_supported"`
}

// NewOIDCVerifier builds a verifier for issuerURL. With a jwksURL the signing
// keys are fetched from it directly, otherwise the issuer's discovery document
// is loaded first. ctx bounds the key set's lifetime.
func NewOIDCVerifier(ctx context.Context, provider string, issuerURL string, jwksURL string, clientIDs []string, trustEmail bool) (*OIDCVerifier, error) {
	if len(clientIDs) == 0 {
		return nil, fmt.Errorf("provider %s: at least one client ID is required", provider)
	}
	config := &oidc.Config{SkipClientIDCheck: true}
	if jwksURL == "" {
		discovered, err := oidc.NewProvider(ctx, issuerURL)
		if err != nil {
			return nil, fmt.Errorf("failed to discover OIDC provider %s: %w", provider, err)
		}
		var claims discoveryClaims
		if err := discovered.Claims(&claims); err != nil {
			return nil, fmt.Errorf("failed to read OIDC discovery document of %s: %w", provider, err)
		}
		if claims.JWKSURL == "" {
			return nil, fmt.Errorf("provider %s: discovery document has no jwks_uri", provider)
		}
		jwksURL = claims.JWKSURL
		config.SupportedSigningAlgs = slices.DeleteFunc(claims.SigningAlgs, func(alg string) bool {
			return !slices.Contains(supportedSigningAlgs, alg)
		})
	}
	keySet := &fetchTrackingKeySet{keySet: oidc.NewRemoteKeySet(ctx, jwksURL)}
	return newOIDCVerifier(provider, oidc.NewVerifier(issuerURL, keySet, config), clientIDs, trustEmail), nil
}

func newOIDCVerifier(provider string, verifier *oidc.IDTokenVerifier, clientIDs []string, trustEmail bool) *OIDCVerifier {
	return &OIDCVerifier{
		provider:   provider,
		verifier:   verifier,
		clientIDs:  clientIDs,
		trustEmail: trustEmail,
	}
}
