// Package auth issues, signs, verifies, and revokes identity credentials
// for a multi-tenant web service: password login, short-lived signed
// session tokens, and longer-lived bearer access tokens.
//
// Credential pipeline:
//   - Hasher turns a plaintext password into a peppered credential blob.
//     The slow hash (argon2id, bcrypt, or pbkdf2-sha512) runs over a
//     SHA-512 prehash and the serialized result is AES-CBC encrypted
//     under a key derived from the installation secret.
//   - Claim is the fixed-size binary payload inside every token; Signer
//     produces and verifies HMAC-SHA512 signatures over encoded claims.
//   - CredentialStore persists token records in an atomic key-value
//     store (see the kv package) and owns TTL policy, idempotent
//     re-issue, and revocation counters.
//
// Authorization:
//   - Authorizer reconciles the three request carriers (session cookie,
//     Basic header, Bearer header) into a single decision, including the
//     bootstrap bypass for a freshly installed system with no
//     identities. Failures are typed so callers can tell "try the next
//     carrier" apart from "abort".
package auth
