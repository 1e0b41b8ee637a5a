package attestation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultTrailLimit applies when a caller does not specify a trail length.
	DefaultTrailLimit = 50
	// MinimumTrailLimit is the smallest accepted trail length.
	MinimumTrailLimit = 1
	// MaximumTrailLimit is the largest accepted trail length.
	MaximumTrailLimit = 500

	storeNotConfiguredMessageConstant  = "attestation store not configured"
	selectorRequiredMessageConstant    = "code hash or contract address required"
	trailLimitErrorTemplateConstant    = "limit %d outside [%d, %d]"
	attestErrorTemplateConstant        = "attest: %w"
	attestationRecordedMessageConstant = "Attestation recorded"
	logFieldCodeHashConstant           = "code_hash"
	logFieldReportHashConstant         = "report_hash"
	logFieldContractAddressConstant    = "contract_address"
	logFieldTimestampConstant          = "timestamp"
	danglingAliasMessageConstant       = "Address alias points at a missing proof"
	logFieldAliasedCodeHashConstant    = "aliased_code_hash"
	registryLookupLoadTemplateConstant = "lookup: %w"
	registryListLoadTemplateConstant   = "list: %w"
)

var (
	// ErrStoreNotConfigured indicates the registry was constructed without a store.
	ErrStoreNotConfigured = errors.New(storeNotConfiguredMessageConstant)
	// ErrSelectorRequired indicates a lookup without a code hash or address.
	ErrSelectorRequired = errors.New(selectorRequiredMessageConstant)
)

// TrailLimitError reports a trail length outside the accepted range.
type TrailLimitError struct {
	Limit int
}

// Error describes the rejected limit.
func (limitError TrailLimitError) Error() string {
	return fmt.Sprintf(trailLimitErrorTemplateConstant, limitError.Limit, MinimumTrailLimit, MaximumTrailLimit)
}

// ValidateTrailLimit rejects limits outside [MinimumTrailLimit, MaximumTrailLimit].
func ValidateTrailLimit(limit int) error {
	if limit < MinimumTrailLimit || limit > MaximumTrailLimit {
		return TrailLimitError{Limit: limit}
	}
	return nil
}

// Registry records attestations. Every call reads the store and every mutation writes it back
// before returning; nothing is cached between calls.
type Registry struct {
	store  Store
	clock  Clock
	logger *zap.Logger

	// mutationMutex serializes read-modify-write cycles within this process.
	mutationMutex sync.Mutex
}

// NewRegistry constructs a Registry.
func NewRegistry(store Store, clock Clock, logger *zap.Logger) (*Registry, error) {
	if store == nil {
		return nil, ErrStoreNotConfigured
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{store: store, clock: clock, logger: logger}, nil
}

// Attest hashes code and report, stamps the proof with the current UTC time and stores it under
// the code hash, replacing any earlier proof for the same code. A non-empty address is recorded
// as an alias of the code hash.
func (registry *Registry) Attest(attestContext context.Context, code string, report string, address string) (Proof, error) {
	normalizedAddress := NormalizeAddress(address)
	proof := Proof{
		CodeHash:        HashContent(code),
		ReportHash:      HashContent(report),
		Timestamp:       registry.clock.Now().UTC(),
		AuditorID:       AuditorIdentifier,
		ContractAddress: normalizedAddress,
	}

	registry.mutationMutex.Lock()
	defer registry.mutationMutex.Unlock()

	records, loadError := registry.store.Load(attestContext)
	if loadError != nil {
		return Proof{}, fmt.Errorf(attestErrorTemplateConstant, loadError)
	}

	records.Proofs[proof.CodeHash] = proof
	if len(normalizedAddress) > 0 {
		records.Aliases[normalizedAddress] = proof.CodeHash
	}

	if saveError := registry.store.Save(attestContext, records); saveError != nil {
		return Proof{}, fmt.Errorf(attestErrorTemplateConstant, saveError)
	}

	registry.logger.Info(
		attestationRecordedMessageConstant,
		zap.String(logFieldCodeHashConstant, proof.CodeHash),
		zap.String(logFieldReportHashConstant, proof.ReportHash),
		zap.String(logFieldContractAddressConstant, proof.ContractAddress),
		zap.String(logFieldTimestampConstant, proof.Timestamp.Format(time.RFC3339Nano)),
	)
	return proof, nil
}

// Lookup finds a proof by code hash or, when no code hash is given, by contract address.
// A miss returns found=false without error.
func (registry *Registry) Lookup(lookupContext context.Context, codeHash string, address string) (Proof, bool, error) {
	normalizedCodeHash := strings.ToLower(strings.TrimSpace(codeHash))
	normalizedAddress := NormalizeAddress(address)
	if len(normalizedCodeHash) == 0 && len(normalizedAddress) == 0 {
		return Proof{}, false, ErrSelectorRequired
	}

	records, loadError := registry.store.Load(lookupContext)
	if loadError != nil {
		return Proof{}, false, fmt.Errorf(registryLookupLoadTemplateConstant, loadError)
	}

	if len(normalizedCodeHash) > 0 {
		proof, found := records.Proofs[normalizedCodeHash]
		return proof, found, nil
	}

	aliasedCodeHash, aliasFound := records.Aliases[normalizedAddress]
	if !aliasFound {
		return Proof{}, false, nil
	}
	proof, found := records.Proofs[aliasedCodeHash]
	if !found {
		registry.logger.Warn(danglingAliasMessageConstant, zap.String(logFieldContractAddressConstant, normalizedAddress), zap.String(logFieldAliasedCodeHashConstant, aliasedCodeHash))
	}
	return proof, found, nil
}

// List returns up to limit proofs, newest first. Address aliases never appear in the trail.
// Proofs sharing a timestamp are ordered by code hash.
func (registry *Registry) List(listContext context.Context, limit int) ([]Proof, error) {
	if limitError := ValidateTrailLimit(limit); limitError != nil {
		return nil, limitError
	}

	records, loadError := registry.store.Load(listContext)
	if loadError != nil {
		return nil, fmt.Errorf(registryListLoadTemplateConstant, loadError)
	}

	proofs := make([]Proof, 0, len(records.Proofs))
	for _, proof := range records.Proofs {
		proofs = append(proofs, proof)
	}
	sort.SliceStable(proofs, func(leftIndex int, rightIndex int) bool {
		leftProof := proofs[leftIndex]
		rightProof := proofs[rightIndex]
		if !leftProof.Timestamp.Equal(rightProof.Timestamp) {
			return leftProof.Timestamp.After(rightProof.Timestamp)
		}
		return leftProof.CodeHash < rightProof.CodeHash
	})

	if len(proofs) > limit {
		proofs = proofs[:limit]
	}
	return proofs, nil
}

// NormalizeAddress trims and lowercases a contract address.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
