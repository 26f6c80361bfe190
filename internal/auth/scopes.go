package auth

// Scope is a named capability granted by a token.
type Scope string

// Scope constants.
const (
	ScopeRead  Scope = "inventory:read"
	ScopeWrite Scope = "inventory:write"
)

// Valid returns true for known scopes.
func (s Scope) Valid() bool {
	switch s {
	case ScopeRead, ScopeWrite:
		return true
	}
	return false
}
