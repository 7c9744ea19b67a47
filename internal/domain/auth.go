package domain

// AuthContext is the host-enforced authorization capability. The execution
// environment proves control of identities before an invocation reaches the
// engine; the engine only asserts that the required identity is among them.
type AuthContext interface {
	// Require returns ErrUnauthorized unless the current invocation was
	// authorized by id.
	Require(id string) error
}

// AuthorizedIdentities is the standard AuthContext: the set of identities
// the current invocation has proven control of.
type AuthorizedIdentities map[string]struct{}

// Authorize builds an AuthContext covering the given identities.
func Authorize(ids ...string) AuthorizedIdentities {
	set := make(AuthorizedIdentities, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Require implements AuthContext.
func (a AuthorizedIdentities) Require(id string) error {
	if _, ok := a[id]; !ok {
		return ErrUnauthorized
	}
	return nil
}
