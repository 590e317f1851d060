package identity

import "context"

// VerifiedIdentity is what a provider vouches for after a token was verified.
type VerifiedIdentity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
}

// Verifier verifies a token issued by one external identity provider.
// Implementations return ErrInvalidProviderToken for tokens the provider
// rejects and ErrProviderUnavailable when the provider cannot be reached.
type Verifier interface {
	Verify(ctx context.Context, token string) (*VerifiedIdentity, error)
}
