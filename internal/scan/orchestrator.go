package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/clawaudit/internal/agent"
	"github.com/temirov/clawaudit/internal/attestation"
	"github.com/temirov/clawaudit/internal/credentials"
)

const (
	// MaximumDiagnosticLength bounds the diagnostic text returned to callers, in characters.
	MaximumDiagnosticLength = 2000
	// RateLimitedPrefix marks diagnostics of scans that failed on a rate-limit signature.
	RateLimitedPrefix = "rate limited: "

	invokerNotConfiguredMessageConstant  = "scan orchestrator requires an agent invoker"
	attestorNotConfiguredMessageConstant = "scan orchestrator requires an attestation registry"
	attestErrorTemplateConstant          = "record attestation: %w"
	exitCodeDiagnosticTemplateConstant   = "agent exited with code %d"
	rateLimitDiagnosticConstant          = "agent output carried a rate-limit signature"
	outputSeparatorConstant              = "\n"

	environmentTelegramTokenConstant  = "TELEGRAM_BOT_TOKEN"
	environmentTelegramChatIDConstant = "TELEGRAM_CHAT_ID"
	environmentMoltbookKeyConstant    = "MOLTBOOK_API_KEY"
	environmentMoltbookSubmoltConst   = "MOLTBOOK_SUBMOLT"

	scanStartedMessageConstant   = "Scan started"
	attemptFailedMessageConstant = "Agent attempt failed"
	rotatingMessageConstant      = "Retrying scan with next credential"
	launchFailedMessageConstant  = "Agent could not be launched"
	scanCompletedMessageConstant = "Scan completed"
	logFieldKindConstant         = "scan_kind"
	logFieldAttemptConstant      = "attempt"
	logFieldExitCodeConstant     = "exit_code"
	logFieldRateLimitedConstant  = "rate_limited"
	logFieldStatusConstant       = "status"
	logFieldCodeHashConstant     = "code_hash"
	logFieldSourceBytesConstant  = "source_bytes"
	logFieldCredentialCountConst = "credential_count"
)

var (
	// ErrInvokerNotConfigured indicates a missing agent invoker.
	ErrInvokerNotConfigured = errors.New(invokerNotConfiguredMessageConstant)
	// ErrAttestorNotConfigured indicates a missing attestation registry.
	ErrAttestorNotConfigured = errors.New(attestorNotConfiguredMessageConstant)
)

// Status is the outcome of a scan.
type Status string

// Scan outcomes.
const (
	StatusSuccess Status = Status("success")
	StatusError   Status = Status("error")
)

// AgentInvoker runs the audit agent once.
type AgentInvoker interface {
	Invoke(invocationContext context.Context, invocation agent.Invocation) (agent.Result, error)
}

// Attestor records proof of a completed audit.
type Attestor interface {
	Attest(attestContext context.Context, code string, report string, address string) (attestation.Proof, error)
}

// Result is the outcome reported to the caller.
type Result struct {
	Status     Status             `json:"status"`
	Report     string             `json:"report"`
	Proof      *attestation.Proof `json:"proof,omitempty"`
	Diagnostic string             `json:"diagnostic,omitempty"`
}

// Dependencies wire an Orchestrator.
type Dependencies struct {
	Invoker       AgentInvoker
	Attestor      Attestor
	Credentials   credentials.Set
	Classifier    credentials.RateLimitClassifier
	Notifications NotificationSettings
	Logger        *zap.Logger
}

// Orchestrator validates scan requests, drives the agent with credential rotation and records
// attestations for successful audits.
type Orchestrator struct {
	invoker       AgentInvoker
	attestor      Attestor
	credentialSet credentials.Set
	classifier    credentials.RateLimitClassifier
	notifications NotificationSettings
	logger        *zap.Logger
}

// NewOrchestrator constructs an Orchestrator. A nil classifier selects the default pattern
// classifier.
func NewOrchestrator(dependencies Dependencies) (*Orchestrator, error) {
	if dependencies.Invoker == nil {
		return nil, ErrInvokerNotConfigured
	}
	if dependencies.Attestor == nil {
		return nil, ErrAttestorNotConfigured
	}
	classifier := dependencies.Classifier
	if classifier == nil {
		classifier = credentials.NewPatternClassifier()
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		invoker:       dependencies.Invoker,
		attestor:      dependencies.Attestor,
		credentialSet: dependencies.Credentials,
		classifier:    classifier,
		notifications: dependencies.Notifications,
		logger:        logger,
	}, nil
}

type attemptOutcome struct {
	result      agent.Result
	launchError error
	rateLimited bool
}

func (outcome attemptOutcome) succeeded() bool {
	return outcome.launchError == nil && outcome.result.Succeeded() && !outcome.rateLimited
}

// Scan runs one audit. Validation and configuration problems are returned as errors; agent
// failures are reported through Result.
func (orchestrator *Orchestrator) Scan(scanContext context.Context, request Request) (Result, error) {
	normalizedRequest, validationError := request.normalized()
	if validationError != nil {
		return Result{}, validationError
	}

	settings := orchestrator.notifications.apply(normalizedRequest.NotificationOverrides)
	var missing []string
	if orchestrator.credentialSet.Empty() {
		missing = append(missing, MissingAgentCredential)
	}
	missing = append(missing, settings.missingItems()...)
	if len(missing) > 0 {
		return Result{}, ConfigurationError{Missing: missing}
	}

	orchestrator.logger.Info(
		scanStartedMessageConstant,
		zap.String(logFieldKindConstant, string(normalizedRequest.Kind)),
		zap.Int(logFieldSourceBytesConstant, len(normalizedRequest.SourceCode)),
		zap.Int(logFieldCredentialCountConst, orchestrator.credentialSet.Len()),
	)

	invocation := agent.Invocation{
		Prompt: composePrompt(normalizedRequest, settings.Moltbook.Submolt),
		Secrets: map[string]string{
			environmentTelegramTokenConstant:  settings.Telegram.BotToken,
			environmentTelegramChatIDConstant: settings.Telegram.ChatID,
			environmentMoltbookKeyConstant:    settings.Moltbook.APIKey,
			environmentMoltbookSubmoltConst:   settings.Moltbook.Submolt,
		},
	}

	rotation := orchestrator.credentialSet.Begin()
	outcome := orchestrator.attempt(scanContext, invocation, rotation)
	for outcome.launchError == nil && !outcome.succeeded() {
		if _, advanced := rotation.Advance(); !advanced {
			break
		}
		orchestrator.logger.Warn(rotatingMessageConstant, zap.Int(logFieldAttemptConstant, rotation.Attempt()))
		outcome = orchestrator.attempt(scanContext, invocation, rotation)
	}

	if !outcome.succeeded() {
		result := failureResult(outcome)
		orchestrator.logger.Info(scanCompletedMessageConstant, zap.String(logFieldStatusConstant, string(result.Status)), zap.Bool(logFieldRateLimitedConstant, outcome.rateLimited))
		return result, nil
	}

	proof, attestError := orchestrator.attestor.Attest(scanContext, normalizedRequest.SourceCode, outcome.result.StandardOutput, normalizedRequest.ContractAddress)
	if attestError != nil {
		return Result{}, fmt.Errorf(attestErrorTemplateConstant, attestError)
	}

	orchestrator.logger.Info(
		scanCompletedMessageConstant,
		zap.String(logFieldStatusConstant, string(StatusSuccess)),
		zap.String(logFieldCodeHashConstant, proof.CodeHash),
	)
	return Result{
		Status:     StatusSuccess,
		Report:     outcome.result.StandardOutput,
		Proof:      &proof,
		Diagnostic: tail(strings.TrimSpace(outcome.result.StandardError), MaximumDiagnosticLength),
	}, nil
}

func (orchestrator *Orchestrator) attempt(scanContext context.Context, invocation agent.Invocation, rotation *credentials.Rotation) attemptOutcome {
	invocation.Credential = rotation.Current()
	result, invokeError := orchestrator.invoker.Invoke(scanContext, invocation)
	if invokeError != nil {
		orchestrator.logger.Error(launchFailedMessageConstant, zap.Int(logFieldAttemptConstant, rotation.Attempt()), zap.Error(invokeError))
		return attemptOutcome{launchError: invokeError}
	}

	outcome := attemptOutcome{
		result:      result,
		rateLimited: orchestrator.classifier.IsRateLimited(result.StandardOutput + outputSeparatorConstant + result.StandardError),
	}
	if !outcome.succeeded() {
		orchestrator.logger.Warn(
			attemptFailedMessageConstant,
			zap.Int(logFieldAttemptConstant, rotation.Attempt()),
			zap.Int(logFieldExitCodeConstant, result.ExitCode),
			zap.Bool(logFieldRateLimitedConstant, outcome.rateLimited),
		)
	}
	return outcome
}

func failureResult(outcome attemptOutcome) Result {
	if outcome.launchError != nil {
		return Result{Status: StatusError, Diagnostic: tail(outcome.launchError.Error(), MaximumDiagnosticLength)}
	}

	diagnostic := strings.TrimSpace(outcome.result.StandardError)
	if len(diagnostic) == 0 {
		if outcome.rateLimited {
			diagnostic = rateLimitDiagnosticConstant
		} else {
			diagnostic = fmt.Sprintf(exitCodeDiagnosticTemplateConstant, outcome.result.ExitCode)
		}
	}
	diagnostic = tail(diagnostic, MaximumDiagnosticLength)
	if outcome.rateLimited {
		diagnostic = RateLimitedPrefix + diagnostic
	}
	return Result{Status: StatusError, Report: outcome.result.StandardOutput, Diagnostic: diagnostic}
}

// tail keeps the last limit characters of text.
func tail(text string, limit int) string {
	characters := []rune(text)
	if len(characters) <= limit {
		return text
	}
	return string(characters[len(characters)-limit:])
}
