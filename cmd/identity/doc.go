// Package identity implements adboard's principals and the authorization core.
//
// It contains the Principal model and store boundary, the Resolver that turns a
// bearer token into an authenticated Principal, the Authorize guard that gates
// every mutation, and the Service that drives login, registration and profile
// changes on top of them.
//
// Password hashing and token signing are injected (see Hasher, TokenIssuer,
// TokenVerifier); the concrete implementations live under cmd/security.
package identity
