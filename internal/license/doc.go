// Package license implements the license issuance, sealing, and validation
// engine for the portal.
//
// A license is issued by serializing its logical fields into a canonical byte
// payload, signing that payload with Ed25519, and sealing payload plus
// signature with AES-256-GCM under a versioned keyring. The sealed blob is
// bound to the owning tenant through the cipher's associated data, so a blob
// copied onto another tenant's record fails authentication.
//
// Validation runs the pipeline in reverse: decrypt, split, verify, then the
// business checks (expiry re-derived from the verified payload, stored
// revocation status). The outcome is a Verdict; cryptographic failure detail
// never crosses the package boundary.
//
// The Engine type is the facade the rest of the application calls. Validation
// is safe under unbounded concurrency; revocation is serialized per license id.
package license
