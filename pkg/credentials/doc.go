// Package credentials hashes and verifies user secrets.
//
// Digests are stored as two hex components joined by a colon:
//
//	<salt>:<hash>
//
// The salt is 16 random bytes generated per secret and the hash is argon2id over
// the secret and salt. Verify never panics; any digest that does not split into
// exactly two hex components simply fails verification.
package credentials
