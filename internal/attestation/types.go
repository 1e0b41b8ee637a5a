package attestation

import (
	"context"
	"time"
)

// AuditorIdentifier names this service in every proof it issues.
const AuditorIdentifier = "clawaudit-sentinel"

// Proof records that a specific report was produced for a specific source text.
type Proof struct {
	CodeHash        string    `json:"code_hash"`
	ReportHash      string    `json:"report_hash"`
	Timestamp       time.Time `json:"timestamp"`
	AuditorID       string    `json:"auditor_id"`
	ContractAddress string    `json:"contract_address,omitempty"`
}

// Records is the full registry content: proofs keyed by code hash and address aliases
// mapping a lowercased contract address to a code hash.
type Records struct {
	Proofs  map[string]Proof
	Aliases map[string]string
}

// Store loads and replaces the registry content as a whole.
type Store interface {
	Load(loadContext context.Context) (Records, error)
	Save(saveContext context.Context, records Records) error
}

// Clock abstracts time-dependent functionality for deterministic testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the standard library.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

func emptyRecords() Records {
	return Records{Proofs: map[string]Proof{}, Aliases: map[string]string{}}
}
