// Package attestation records verifiable evidence that an audit report was produced for a
// specific contract source.
//
// Proofs are keyed by the SHA-256 of the trimmed source and persisted in a single JSON file
// that is rewritten atomically on every attestation. Contract addresses are stored as
// aliases of a code hash and resolved when read.
package attestation
