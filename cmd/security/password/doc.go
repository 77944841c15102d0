// Package password verifies Argon2id password hashes for lodge's built-in
// static credential verifier.
//
// Hashes use the PHC-style encoding
// $argon2id$v=19$m=<KiB>,t=<iterations>,p=<parallelism>$<salt>$<key>
// and are treated as untrusted input: Verify refuses parameters far above
// the configured cost.
package password
