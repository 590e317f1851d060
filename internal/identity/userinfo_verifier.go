package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/spf13/cast"
	"golang.org/x/oauth2"
)

// UserInfoFields are dot-separated paths into a provider's userinfo JSON.
// An empty EmailVerified path means the provider only returns verified
// emails. Audience is read from the token info response instead.
type UserInfoFields struct {
	Subject       string
	Email         string
	EmailVerified string
	Audience      string
}

var (
	KakaoUserInfoURL  = "https://kapi.kakao.com/v2/user/me"
	KakaoTokenInfoURL = "https://kapi.kakao.com/v1/user/access_token_info"
	NaverUserInfoURL  = "https://openapi.naver.com/v1/nid/me"

	KakaoUserInfoFields = UserInfoFields{
		Subject:       "id",
		Email:         "kakao_account.email",
		EmailVerified: "kakao_account.is_email_verified",
		Audience:      "app_id",
	}
	NaverUserInfoFields = UserInfoFields{
		Subject: "response.id",
		Email:   "response.email",
	}
	DefaultUserInfoFields = UserInfoFields{
		Subject:       "sub",
		Email:         "email",
		EmailVerified: "email_verified",
		Audience:      "aud",
	}
)

// UserInfoVerifierConfig configures a UserInfoVerifier. When TokenInfoURL is
// set the access token must have been issued to one of ClientIDs; leaving it
// empty trusts any token the provider accepts.
type UserInfoVerifierConfig struct {
	Provider     string
	UserInfoURL  string
	TokenInfoURL string
	Fields       UserInfoFields
	ClientIDs    []string
	TrustEmail   bool
}

// UserInfoVerifier verifies an OAuth2 access token by calling the provider's
// userinfo endpoint with it.
type UserInfoVerifier struct {
	provider     string
	userInfoURL  string
	tokenInfoURL string
	fields       UserInfoFields
	clientIDs    []string
	trustEmail   bool
	httpClient   *http.Client
}

func (v *UserInfoVerifier) fetch(ctx context.Context, endpoint string, token string) (map[string]interface{}, error) {
	if v.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, v.httpClient)
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s returned status %d", ErrInvalidProviderToken, endpoint, resp.StatusCode)
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: %s returned status %d", ErrProviderUnavailable, endpoint, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s returned status %d: %s", ErrInvalidProviderToken, endpoint, resp.StatusCode, body)
	}

	var data map[string]interface{}
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: failed to decode %s response: %v", ErrProviderUnavailable, endpoint, err)
	}
	return data, nil
}

// verifyAudience rejects access tokens the provider issued to another
// application.
func (v *UserInfoVerifier) verifyAudience(ctx context.Context, token string) error {
	tokenInfo, err := v.fetch(ctx, v.tokenInfoURL, token)
	if err != nil {
		return err
	}
	audience := cast.ToString(lookupPath(tokenInfo, v.fields.Audience))
	if audience == "" || !slices.Contains(v.clientIDs, audience) {
		return fmt.Errorf("%w: unexpected audience %q", ErrInvalidProviderToken, audience)
	}
	return nil
}

func (v *UserInfoVerifier) Verify(ctx context.Context, token string) (*VerifiedIdentity, error) {
	if token == "" {
		return nil, ErrInvalidProviderToken
	}
	if v.tokenInfoURL != "" {
		if err := v.verifyAudience(ctx, token); err != nil {
			return nil, err
		}
	}
	userInfo, err := v.fetch(ctx, v.userInfoURL, token)
	if err != nil {
		return nil, err
	}

	subject := cast.ToString(lookupPath(userInfo, v.fields.Subject))
	email := cast.ToString(lookupPath(userInfo, v.fields.Email))
	if subject == "" || email == "" {
		return nil, fmt.Errorf("%w: missing subject or email", ErrInvalidProviderToken)
	}
	verified := v.trustEmail || v.fields.EmailVerified == "" || cast.ToBool(lookupPath(userInfo, v.fields.EmailVerified))
	if !verified {
		return nil, ErrEmailNotVerified
	}
	return &VerifiedIdentity{
		Provider:      v.provider,
		Subject:       subject,
		Email:         email,
		EmailVerified: verified,
	}, nil
}

func lookupPath(data map[string]interface{}, path string) interface{} {
	if path == "" {
		return nil
	}
	var current interface{} = data
	for _, key := range strings.Split(path, ".") {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current = obj[key]
	}
	return current
}

// NewUserInfoVerifier returns a verifier for cfg. A nil httpClient uses
// http.DefaultClient.
func NewUserInfoVerifier(cfg UserInfoVerifierConfig, httpClient *http.Client) *UserInfoVerifier {
	return &UserInfoVerifier{
		provider:     cfg.Provider,
		userInfoURL:  cfg.UserInfoURL,
		tokenInfoURL: cfg.TokenInfoURL,
		fields:       cfg.Fields,
		clientIDs:    cfg.ClientIDs,
		trustEmail:   cfg.TrustEmail,
		httpClient:   httpClient,
	}
}
