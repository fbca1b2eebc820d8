package fake

import (
	"context"

	"github.com/go-webauthn/webauthn/protocol"
	stepauth "github.com/stepauth/stepauth-go"
)

// Authenticator is an in-memory stepauth.Authenticator that replays a
// canned credential response, for driving ceremony.Client in tests.
type Authenticator struct {
	// Unavailable makes Available report false.
	Unavailable bool

	// Response is returned from Get and Create when Err is nil.
	Response []byte

	// Err fails both ceremonies, e.g. stepauth.ErrAuthenticatorCancelled.
	Err error

	// GetCalls and CreateCalls count invocations.
	GetCalls    int
	CreateCalls int
}

var _ stepauth.Authenticator = (*Authenticator)(nil)

// Available reports whether a platform authenticator is present.
func (a *Authenticator) Available() bool { return !a.Unavailable }

// Get replays the canned assertion response.
func (a *Authenticator) Get(ctx context.Context, assertion *protocol.CredentialAssertion) ([]byte, error) {
	a.GetCalls++
	if a.Err != nil {
		return nil, a.Err
	}
	if a.Response != nil {
		return a.Response, nil
	}
	return []byte(`{"id":"fake-credential"}`), nil
}

// Create replays the canned attestation response.
func (a *Authenticator) Create(ctx context.Context, creation *protocol.CredentialCreation) ([]byte, error) {
	a.CreateCalls++
	if a.Err != nil {
		return nil, a.Err
	}
	if a.Response != nil {
		return a.Response, nil
	}
	return []byte(`{"id":"fake-credential"}`), nil
}
