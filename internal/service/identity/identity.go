// Package identity holds the current bearer credential. Reads happen from
// request goroutines, so access is synchronized.
package identity

import "sync"

// Identity is the signed-in state.
type Identity struct {
	mu    sync.RWMutex
	token string
}

// New returns a signed-out identity.
func New() *Identity {
	return &Identity{}
}

// SignIn stores token. An empty token signs out.
func (i *Identity) SignIn(token string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.token = token
}

// SignOut clears the credential.
func (i *Identity) SignOut() {
	i.SignIn("")
}

// Authenticated reports whether a credential is present.
func (i *Identity) Authenticated() bool {
	return i.Token() != ""
}

// Token returns the bearer credential, or "" when signed out.
func (i *Identity) Token() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.token
}
