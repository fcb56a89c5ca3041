// Package auth issues and checks session tokens for authenticated users.
//
// Tokens are HS256 JWTs carrying the user id, role and restaurant:
//
//	issuer := auth.NewTokenIssuer(secret, 12*time.Hour, "tablekeep")
//	token, claims, err := issuer.Issue(user)
//
// Logging out revokes the token id until its natural expiry. Revocations live
// in Redis so every API instance sees them.
package auth
