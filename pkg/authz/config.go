package authz

// Mode selects how identities are extracted from requests.
type Mode string

const (
	// ModeHeader trusts X-User-* headers set by a front proxy.
	ModeHeader Mode = "header"
	// ModeJWT reads identities from bearer tokens.
	ModeJWT Mode = "jwt"
)
