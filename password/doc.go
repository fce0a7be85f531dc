// Package password provides Argon2id hashing in PHC string format and the
// BENTO credential policy.
//
// Hashes are produced with [golang.org/x/crypto/argon2] and verified with a
// constant-time compare. [Argon2.NeedsUpgrade] reports whether a stored hash
// was produced with weaker parameters than the active configuration, which
// drives transparent rehash-on-login.
//
// The credential policy matches the reporting system: usernames are 3 to 22
// characters of [A-Za-z0-9_-]; passwords are at least 8 characters with at
// least one digit, one lowercase, and one uppercase letter.
package password
