package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/khanghh/tenantauth/internal/config"
	"github.com/khanghh/tenantauth/params"
)

const (
	ProviderGoogle    = "GOOGLE"
	ProviderMicrosoft = "MICROSOFT"
	ProviderKakao     = "KAKAO"
	ProviderNaver     = "NAVER"

	ProviderTypeOIDC     = "oidc"
	ProviderTypeUserInfo = "userinfo"
)

var providerDefaults = map[string]config.ProviderConfig{
	ProviderGoogle: {
		Type:      ProviderTypeOIDC,
		IssuerURL: "https://accounts.google.com",
		JWKSURL:   "https://www.googleapis.com/oauth2/v3/certs",
	},
	ProviderMicrosoft: {
		Type: ProviderTypeOIDC,
	},
	ProviderKakao: {
		Type:         ProviderTypeUserInfo,
		UserInfoURL:  KakaoUserInfoURL,
		TokenInfoURL: KakaoTokenInfoURL,
	},
	ProviderNaver: {
		Type:        ProviderTypeUserInfo,
		UserInfoURL: NaverUserInfoURL,
	},
}

var providerFields = map[string]UserInfoFields{
	ProviderKakao: KakaoUserInfoFields,
	ProviderNaver: NaverUserInfoFields,
}

// Registry holds the verifier of every configured provider, keyed by the
// upper-cased provider name.
type Registry struct {
	verifiers map[string]Verifier
}

func (r *Registry) Register(provider string, verifier Verifier) {
	r.verifiers[strings.ToUpper(provider)] = verifier
}

func (r *Registry) Get(provider string) (Verifier, error) {
	verifier, ok := r.verifiers[strings.ToUpper(strings.TrimSpace(provider))]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return verifier, nil
}

// Verify verifies token with the named provider's verifier, bounding the
// round trip by params.ProviderVerifyTimeout.
func (r *Registry) Verify(ctx context.Context, provider string, token string) (*VerifiedIdentity, error) {
	verifier, err := r.Get(provider)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, params.ProviderVerifyTimeout)
	defer cancel()
	return verifier.Verify(ctx, token)
}

func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.verifiers))
	for name := range r.verifiers {
		names = append(names, name)
	}
	return names
}

func mergeProviderConfig(name string, cfg config.ProviderConfig) config.ProviderConfig {
	defaults, ok := providerDefaults[name]
	if !ok {
		return cfg
	}
	if cfg.Type == "" {
		cfg.Type = defaults.Type
	}
	if cfg.IssuerURL == "" {
		cfg.IssuerURL = defaults.IssuerURL
	}
	if cfg.JWKSURL == "" && cfg.IssuerURL == defaults.IssuerURL {
		cfg.JWKSURL = defaults.JWKSURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = defaults.UserInfoURL
	}
	if cfg.TokenInfoURL == "" && !cfg.TrustAudience {
		cfg.TokenInfoURL = defaults.TokenInfoURL
	}
	return cfg
}

// NewRegistry builds verifiers for the configured providers. ctx must outlive
// the registry since remote key sets are refreshed with it.
func NewRegistry(ctx context.Context, providers map[string]config.ProviderConfig, httpClient *http.Client) (*Registry, error) {
	registry := &Registry{verifiers: make(map[string]Verifier)}
	for name, cfg := range providers {
		name = strings.ToUpper(name)
		cfg = mergeProviderConfig(name, cfg)
		switch cfg.Type {
		case ProviderTypeOIDC:
			if cfg.IssuerURL == "" {
				return nil, fmt.Errorf("provider %s: issuerURL is required", name)
			}
			verifier, err := NewOIDCVerifier(ctx, name, cfg.IssuerURL, cfg.JWKSURL, cfg.ClientIDs, cfg.TrustEmail)
			if err != nil {
				return nil, err
			}
			registry.Register(name, verifier)
		case ProviderTypeUserInfo:
			if cfg.UserInfoURL == "" {
				return nil, fmt.Errorf("provider %s: userInfoURL is required", name)
			}
			if cfg.TrustAudience {
				cfg.TokenInfoURL = ""
			} else if cfg.TokenInfoURL == "" {
				return nil, fmt.Errorf("provider %s: tokenInfoURL is required unless trustAudience is set", name)
			} else if len(cfg.ClientIDs) == 0 {
				return nil, fmt.Errorf("provider %s: at least one client ID is required", name)
			}
			fields, ok := providerFields[name]
			if !ok {
				fields = DefaultUserInfoFields
			}
			registry.Register(name, NewUserInfoVerifier(UserInfoVerifierConfig{
				Provider:     name,
				UserInfoURL:  cfg.UserInfoURL,
				TokenInfoURL: cfg.TokenInfoURL,
				Fields:       fields,
				ClientIDs:    cfg.ClientIDs,
				TrustEmail:   cfg.TrustEmail,
			}, httpClient))
		default:
			return nil, fmt.Errorf("provider %s: unsupported type %q", name, cfg.Type)
		}
	}
	return registry, nil
}
