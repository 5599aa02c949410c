package common

const (
	// AnonymousIdentityHeaderName carries the encoded anonymous identity for
	// clients that do not keep cookies (the CLI).
	AnonymousIdentityHeaderName = "X-Anonymous-Identity"

	// AnonymousIdentityCookieName is the browser-resident identity cookie.
	AnonymousIdentityCookieName = "letters_identity"

	// ProxyTokenHeaderName authenticates peer calls to the proxy endpoints.
	ProxyTokenHeaderName = "X-Proxy-Token"

	// AnonymousIDPrefix marks owner keys that refer to anonymous identities.
	AnonymousIDPrefix = "anon_"
)
