// Package token issues and verifies the signed access tokens handed out at login.
//
// Tokens are compact JWTs signed with HMAC-SHA256 under a single server-held
// secret. A token carries the subject (username), issue time, expiry and issuer.
// There is no server-side token state: validity is the signature plus the expiry
// at verification time. There is no revocation and no refresh.
//
// Verification order is fixed and short-circuits:
//  1. structure and signature (only HS256, strict base64) -> ErrInvalid
//  2. expiry strictly after now                          -> ErrExpired
//  3. non-empty subject                                  -> ErrMalformed
//
// Environment (read by the app config, not by this package):
//   - ADBOARD_TOKEN_SECRET
//   - ADBOARD_TOKEN_TTL
//   - ADBOARD_TOKEN_ISSUER
package token
