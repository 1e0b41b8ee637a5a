package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/clawaudit/internal/attestation"
	"github.com/temirov/clawaudit/internal/scan"
)

const (
	scanCommandUseConstant              = "scan"
	scanCommandShortDescriptionConstant = "Audit a contract source file and record its attestation"
	scanCommandLongDescriptionConstant  = "scan sends the contract source to the audit agent, prints the report and records a proof when the audit succeeds."
	proofCommandUseConstant             = "proof"
	proofCommandShortDescriptionConst   = "Look up the attestation for a code hash or contract address"
	trailCommandUseConstant             = "trail"
	trailCommandShortDescriptionConst   = "List the most recent attestations"
	flagFileNameConstant                = "file"
	flagFileDescriptionConstant         = "Path to the contract source file"
	flagAddressNameConstant             = "address"
	flagAddressDescriptionConstant      = "Deployed contract address (0x followed by 40 hex digits)"
	flagKindNameConstant                = "kind"
	flagKindDescriptionConstant         = "Scan kind: manual, demo or full"
	flagHashNameConstant                = "hash"
	flagHashDescriptionConstant         = "SHA-256 hex digest of the contract source"
	flagLimitNameConstant               = "limit"
	flagLimitDescriptionConstant        = "Maximum number of attestations to list"
	sourceFileRequiredMessageConstant   = "--file is required"
	sourceReadErrorTemplateConstant     = "unable to read contract source %s: %w"
	scanFailedTemplateConstant          = "scan failed: %s"
	scanCommandErrorTemplateConstant    = "scan failed: %w"
	proofNotFoundMessageConstant        = "no attestation recorded for the given selector"
	proofLookupErrorTemplateConstant    = "proof lookup failed: %w"
	trailListErrorTemplateConstant      = "trail listing failed: %w"
	scanCompletedMessageConstant        = "Scan command completed"
	logFieldScanStatusConstant          = "status"
)

var (
	errSourceFileRequired = errors.New(sourceFileRequiredMessageConstant)
	errProofNotFound      = errors.New(proofNotFoundMessageConstant)
)

// ScanCommandBuilder assembles the scan command.
type ScanCommandBuilder struct {
	Services ServiceAccess
}

// Build constructs the scan command.
func (builder *ScanCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   scanCommandUseConstant,
		Short: scanCommandShortDescriptionConstant,
		Long:  scanCommandLongDescriptionConstant,
		RunE:  builder.run,
	}
	command.Flags().String(flagFileNameConstant, "", flagFileDescriptionConstant)
	command.Flags().String(flagAddressNameConstant, "", flagAddressDescriptionConstant)
	command.Flags().String(flagKindNameConstant, string(scan.KindManual), flagKindDescriptionConstant)
	return command, nil
}

func (builder *ScanCommandBuilder) run(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errUnexpectedArguments
	}
	sourcePath, _ := command.Flags().GetString(flagFileNameConstant)
	sourcePath = strings.TrimSpace(sourcePath)
	if len(sourcePath) == 0 {
		return errSourceFileRequired
	}
	sourceCode, readError := commandPathExpander.ReadFile(sourcePath)
	if readError != nil {
		return fmt.Errorf(sourceReadErrorTemplateConstant, sourcePath, readError)
	}
	address, _ := command.Flags().GetString(flagAddressNameConstant)
	kindValue, _ := command.Flags().GetString(flagKindNameConstant)

	runtime, runtimeError := builder.Services.resolveRuntime(command.Context())
	if runtimeError != nil {
		return runtimeError
	}
	result, scanError := runtime.Scanner.Scan(command.Context(), scan.Request{
		SourceCode:      string(sourceCode),
		ContractAddress: address,
		Kind:            scan.Kind(kindValue),
	})
	if scanError != nil {
		return fmt.Errorf(scanCommandErrorTemplateConstant, scanError)
	}

	builder.Services.resolveLogger().Info(scanCompletedMessageConstant, zap.String(logFieldScanStatusConstant, string(result.Status)))
	if writeError := writeJSON(command.OutOrStdout(), result); writeError != nil {
		return writeError
	}
	if result.Status != scan.StatusSuccess {
		return fmt.Errorf(scanFailedTemplateConstant, result.Diagnostic)
	}
	return nil
}

// ProofCommandBuilder assembles the proof lookup command.
type ProofCommandBuilder struct {
	Services ServiceAccess
}

// Build constructs the proof command.
func (builder *ProofCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   proofCommandUseConstant,
		Short: proofCommandShortDescriptionConst,
		RunE:  builder.run,
	}
	command.Flags().String(flagHashNameConstant, "", flagHashDescriptionConstant)
	command.Flags().String(flagAddressNameConstant, "", flagAddressDescriptionConstant)
	return command, nil
}

func (builder *ProofCommandBuilder) run(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errUnexpectedArguments
	}
	codeHash, _ := command.Flags().GetString(flagHashNameConstant)
	address, _ := command.Flags().GetString(flagAddressNameConstant)

	runtime, runtimeError := builder.Services.resolveRuntime(command.Context())
	if runtimeError != nil {
		return runtimeError
	}
	proof, found, lookupError := runtime.Registry.Lookup(command.Context(), codeHash, address)
	if lookupError != nil {
		return fmt.Errorf(proofLookupErrorTemplateConstant, lookupError)
	}
	if !found {
		return errProofNotFound
	}
	return writeJSON(command.OutOrStdout(), proof)
}

// TrailCommandBuilder assembles the trail listing command.
type TrailCommandBuilder struct {
	Services ServiceAccess
}

// Build constructs the trail command.
func (builder *TrailCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   trailCommandUseConstant,
		Short: trailCommandShortDescriptionConst,
		RunE:  builder.run,
	}
	command.Flags().Int(flagLimitNameConstant, attestation.DefaultTrailLimit, flagLimitDescriptionConstant)
	return command, nil
}

func (builder *TrailCommandBuilder) run(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errUnexpectedArguments
	}
	limit, _ := command.Flags().GetInt(flagLimitNameConstant)
	if limitError := attestation.ValidateTrailLimit(limit); limitError != nil {
		return limitError
	}

	runtime, runtimeError := builder.Services.resolveRuntime(command.Context())
	if runtimeError != nil {
		return runtimeError
	}
	proofs, listError := runtime.Registry.List(command.Context(), limit)
	if listError != nil {
		return fmt.Errorf(trailListErrorTemplateConstant, listError)
	}
	if proofs == nil {
		proofs = []attestation.Proof{}
	}
	return writeJSON(command.OutOrStdout(), proofs)
}
