package scan_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/clawaudit/internal/agent"
	"github.com/temirov/clawaudit/internal/attestation"
	"github.com/temirov/clawaudit/internal/credentials"
	"github.com/temirov/clawaudit/internal/execshell"
	"github.com/temirov/clawaudit/internal/notify"
	"github.com/temirov/clawaudit/internal/scan"
)

const (
	testPrimaryCredentialConstant      = "primary-key"
	testSecondaryCredentialConstant    = "secondary-key"
	testTelegramTokenConstant          = "123:telegram-secret"
	testTelegramChatConstant           = "-1001"
	testMoltbookKeyConstant            = "moltbook-secret"
	testContractAddressConstant        = "0x00000000000000000000000000000000DeaDBeef"
	testVulnerableContractConstant     = "pragma solidity ^0.8.0;\ncontract Bank {\n  mapping(address => uint) balances;\n  function withdraw() public {\n    (bool ok,) = msg.sender.call{value: balances[msg.sender]}(\"\");\n    require(ok);\n    balances[msg.sender] = 0;\n  }\n}"
	testReentrancyReportConstant       = "## Findings\n- [Critical] Reentrancy in withdraw(): external call before state update.\n"
	testRateLimitOutputConstant        = "Error: 429 RESOURCE_EXHAUSTED"
	testRotateOnExitCaseNameConstant   = "rotate_on_exit_code"
	testRotateOnSignalCaseNameConstant = "rotate_on_rate_limit_with_zero_exit"
	testNoRotationCaseNameConstant     = "no_secondary_on_success"
	testSingleKeyCaseNameConstant      = "single_credential_no_retry"
	testBothFailCaseNameConstant       = "both_credentials_rate_limited"
	testLaunchFailureCaseNameConstant  = "launch_failure_not_retried"
	testLineNumberReportCaseConstant   = "report_citing_line_429"
	testLineNumberReportConstant       = "## Findings\n- [High] Reentrancy at line 429 of Vault.sol\n"
)

type invokerResponse struct {
	result agent.Result
	err    error
}

type stubInvoker struct {
	responses   []invokerResponse
	invocations []agent.Invocation
}

func (invoker *stubInvoker) Invoke(invocationContext context.Context, invocation agent.Invocation) (agent.Result, error) {
	invoker.invocations = append(invoker.invocations, invocation)
	index := len(invoker.invocations) - 1
	if index >= len(invoker.responses) {
		index = len(invoker.responses) - 1
	}
	return invoker.responses[index].result, invoker.responses[index].err
}

type recordingAttestor struct {
	calls int
	proof attestation.Proof
}

func (attestor *recordingAttestor) Attest(attestContext context.Context, code string, report string, address string) (attestation.Proof, error) {
	attestor.calls++
	attestor.proof = attestation.Proof{CodeHash: attestation.HashContent(code), ReportHash: attestation.HashContent(report), AuditorID: attestation.AuditorIdentifier, ContractAddress: address}
	return attestor.proof, nil
}

func configuredNotifications() scan.NotificationSettings {
	return scan.NotificationSettings{
		Telegram: notify.TelegramConfiguration{BotToken: testTelegramTokenConstant, ChatID: testTelegramChatConstant},
		Moltbook: notify.MoltbookConfiguration{APIKey: testMoltbookKeyConstant},
	}
}

func newOrchestrator(testInstance *testing.T, invoker scan.AgentInvoker, attestor scan.Attestor, credentialValues []string, logger *zap.Logger) *scan.Orchestrator {
	testInstance.Helper()
	orchestrator, creationError := scan.NewOrchestrator(scan.Dependencies{
		Invoker:       invoker,
		Attestor:      attestor,
		Credentials:   credentials.NewSet(credentialValues),
		Notifications: configuredNotifications(),
		Logger:        logger,
	})
	require.NoError(testInstance, creationError)
	return orchestrator
}

func TestScanCredentialRotation(testInstance *testing.T) {
	testCases := []struct {
		name                string
		credentialValues    []string
		responses           []invokerResponse
		expectedCredentials []string
		expectedStatus      scan.Status
		expectAttestation   bool
		expectedReport      string
		diagnosticPrefix    string
	}{
		{
			name:             testRotateOnExitCaseNameConstant,
			credentialValues: []string{testPrimaryCredentialConstant, testSecondaryCredentialConstant},
			responses: []invokerResponse{
				{result: agent.Result{ExitCode: 1, StandardError: "agent crashed"}},
				{result: agent.Result{StandardOutput: testReentrancyReportConstant}},
			},
			expectedCredentials: []string{testPrimaryCredentialConstant, testSecondaryCredentialConstant},
			expectedStatus:      scan.StatusSuccess,
			expectAttestation:   true,
		},
		{
			name:                testLineNumberReportCaseConstant,
			credentialValues:    []string{testPrimaryCredentialConstant, testSecondaryCredentialConstant},
			responses:           []invokerResponse{{result: agent.Result{StandardOutput: testLineNumberReportConstant}}},
			expectedCredentials: []string{testPrimaryCredentialConstant},
			expectedStatus:      scan.StatusSuccess,
			expectAttestation:   true,
			expectedReport:      testLineNumberReportConstant,
		},
		{
			name:             testRotateOnSignalCaseNameConstant,
			credentialValues: []string{testPrimaryCredentialConstant, testSecondaryCredentialConstant},
			responses: []invokerResponse{
				{result: agent.Result{StandardOutput: "partial", StandardError: testRateLimitOutputConstant}},
				{result: agent.Result{StandardOutput: testReentrancyReportConstant}},
			},
			expectedCredentials: []string{testPrimaryCredentialConstant, testSecondaryCredentialConstant},
			expectedStatus:      scan.StatusSuccess,
			expectAttestation:   true,
		},
		{
			name:                testNoRotationCaseNameConstant,
			credentialValues:    []string{testPrimaryCredentialConstant, testSecondaryCredentialConstant},
			responses:           []invokerResponse{{result: agent.Result{StandardOutput: testReentrancyReportConstant}}},
			expectedCredentials: []string{testPrimaryCredentialConstant},
			expectedStatus:      scan.StatusSuccess,
			expectAttestation:   true,
		},
		{
			name:                testSingleKeyCaseNameConstant,
			credentialValues:    []string{testPrimaryCredentialConstant},
			responses:           []invokerResponse{{result: agent.Result{ExitCode: 2, StandardError: "boom"}}},
			expectedCredentials: []string{testPrimaryCredentialConstant},
			expectedStatus:      scan.StatusError,
			diagnosticPrefix:    "boom",
		},
		{
			name:                testBothFailCaseNameConstant,
			credentialValues:    []string{testPrimaryCredentialConstant, testSecondaryCredentialConstant, "third-key"},
			responses:           []invokerResponse{{result: agent.Result{ExitCode: 1, StandardError: testRateLimitOutputConstant}}},
			expectedCredentials: []string{testPrimaryCredentialConstant, testSecondaryCredentialConstant},
			expectedStatus:      scan.StatusError,
			diagnosticPrefix:    scan.RateLimitedPrefix,
		},
		{
			name:                testLaunchFailureCaseNameConstant,
			credentialValues:    []string{testPrimaryCredentialConstant, testSecondaryCredentialConstant},
			responses:           []invokerResponse{{err: errors.New("launch agent: docker not found")}},
			expectedCredentials: []string{testPrimaryCredentialConstant},
			expectedStatus:      scan.StatusError,
			diagnosticPrefix:    "launch agent",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			invoker := &stubInvoker{responses: testCase.responses}
			attestor := &recordingAttestor{}
			orchestrator := newOrchestrator(testInstance, invoker, attestor, testCase.credentialValues, zap.NewNop())

			result, scanError := orchestrator.Scan(context.Background(), scan.Request{SourceCode: testVulnerableContractConstant})
			require.NoError(testInstance, scanError)
			require.Equal(testInstance, testCase.expectedStatus, result.Status)

			usedCredentials := make([]string, 0, len(invoker.invocations))
			for _, invocation := range invoker.invocations {
				usedCredentials = append(usedCredentials, invocation.Credential)
			}
			require.Equal(testInstance, testCase.expectedCredentials, usedCredentials)

			if testCase.expectAttestation {
				require.Equal(testInstance, 1, attestor.calls)
				require.NotNil(testInstance, result.Proof)
				expectedReport := testCase.expectedReport
				if len(expectedReport) == 0 {
					expectedReport = testReentrancyReportConstant
				}
				require.Equal(testInstance, expectedReport, result.Report)
			} else {
				require.Zero(testInstance, attestor.calls)
				require.Nil(testInstance, result.Proof)
				require.True(testInstance, strings.HasPrefix(result.Diagnostic, testCase.diagnosticPrefix), result.Diagnostic)
			}
		})
	}
}

func TestScanRotationStateIsPerCall(testInstance *testing.T) {
	invoker := &stubInvoker{responses: []invokerResponse{
		{result: agent.Result{ExitCode: 1}},
		{result: agent.Result{StandardOutput: testReentrancyReportConstant}},
		{result: agent.Result{StandardOutput: testReentrancyReportConstant}},
	}}
	orchestrator := newOrchestrator(testInstance, invoker, &recordingAttestor{}, []string{testPrimaryCredentialConstant, testSecondaryCredentialConstant}, nil)

	_, firstError := orchestrator.Scan(context.Background(), scan.Request{SourceCode: testVulnerableContractConstant})
	require.NoError(testInstance, firstError)
	_, secondError := orchestrator.Scan(context.Background(), scan.Request{SourceCode: testVulnerableContractConstant})
	require.NoError(testInstance, secondError)

	require.Len(testInstance, invoker.invocations, 3)
	require.Equal(testInstance, testPrimaryCredentialConstant, invoker.invocations[2].Credential)
}

func TestScanValidation(testInstance *testing.T) {
	testCases := []struct {
		name          string
		request       scan.Request
		expectedField string
	}{
		{name: "missing_source", request: scan.Request{SourceCode: "  \n"}, expectedField: scan.FieldSourceCode},
		{name: "malformed_address", request: scan.Request{SourceCode: testVulnerableContractConstant, ContractAddress: "0x123"}, expectedField: scan.FieldContractAddress},
		{name: "unknown_kind", request: scan.Request{SourceCode: testVulnerableContractConstant, Kind: scan.Kind("deep")}, expectedField: scan.FieldKind},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			invoker := &stubInvoker{responses: []invokerResponse{{}}}
			orchestrator := newOrchestrator(testInstance, invoker, &recordingAttestor{}, []string{testPrimaryCredentialConstant}, nil)

			_, scanError := orchestrator.Scan(context.Background(), testCase.request)
			var validationError scan.ValidationError
			require.True(testInstance, errors.As(scanError, &validationError))
			require.Equal(testInstance, testCase.expectedField, validationError.Field)
			require.Empty(testInstance, invoker.invocations)
		})
	}
}

func TestScanConfigurationNamesEveryMissingItem(testInstance *testing.T) {
	invoker := &stubInvoker{responses: []invokerResponse{{}}}
	orchestrator, creationError := scan.NewOrchestrator(scan.Dependencies{
		Invoker:       invoker,
		Attestor:      &recordingAttestor{},
		Notifications: scan.NotificationSettings{Telegram: notify.TelegramConfiguration{BotToken: testTelegramTokenConstant}},
	})
	require.NoError(testInstance, creationError)

	_, scanError := orchestrator.Scan(context.Background(), scan.Request{SourceCode: testVulnerableContractConstant})
	var configurationError scan.ConfigurationError
	require.True(testInstance, errors.As(scanError, &configurationError))
	require.Equal(testInstance, []string{scan.MissingAgentCredential, scan.MissingTelegramChatID, scan.MissingMoltbookAPIKey}, configurationError.Missing)
	require.Contains(testInstance, scanError.Error(), scan.MissingMoltbookAPIKey)
	require.Empty(testInstance, invoker.invocations)

	_, overriddenError := orchestrator.Scan(context.Background(), scan.Request{
		SourceCode:            testVulnerableContractConstant,
		NotificationOverrides: scan.NotificationOverrides{TelegramChatID: testTelegramChatConstant, MoltbookAPIKey: testMoltbookKeyConstant},
	})
	require.True(testInstance, errors.As(overriddenError, &configurationError))
	require.Equal(testInstance, []string{scan.MissingAgentCredential}, configurationError.Missing)
}

func TestScanPromptAndSecrets(testInstance *testing.T) {
	invoker := &stubInvoker{responses: []invokerResponse{{result: agent.Result{StandardOutput: testReentrancyReportConstant}}}}
	orchestrator := newOrchestrator(testInstance, invoker, &recordingAttestor{}, []string{testPrimaryCredentialConstant}, nil)

	_, scanError := orchestrator.Scan(context.Background(), scan.Request{
		SourceCode:            testVulnerableContractConstant,
		ContractAddress:       testContractAddressConstant,
		Kind:                  scan.KindFull,
		NotificationOverrides: scan.NotificationOverrides{MoltbookSubmolt: "audits"},
	})
	require.NoError(testInstance, scanError)
	require.Len(testInstance, invoker.invocations, 1)

	invocation := invoker.invocations[0]
	require.Contains(testInstance, invocation.Prompt, testVulnerableContractConstant)
	require.Contains(testInstance, invocation.Prompt, testContractAddressConstant)
	require.Contains(testInstance, invocation.Prompt, "'telegram' skill")
	require.Contains(testInstance, invocation.Prompt, "'audits' submolt")
	require.Contains(testInstance, invocation.Prompt, scan.PublicReceiptText)
	require.Contains(testInstance, invocation.Prompt, "Exhaustive audit")
	require.Less(testInstance, strings.Index(invocation.Prompt, "'telegram' skill"), strings.Index(invocation.Prompt, "'moltbook' skill"))
	for _, secret := range []string{testPrimaryCredentialConstant, testTelegramTokenConstant, testMoltbookKeyConstant} {
		require.NotContains(testInstance, invocation.Prompt, secret)
	}

	require.Equal(testInstance, testTelegramTokenConstant, invocation.Secrets["TELEGRAM_BOT_TOKEN"])
	require.Equal(testInstance, testTelegramChatConstant, invocation.Secrets["TELEGRAM_CHAT_ID"])
	require.Equal(testInstance, testMoltbookKeyConstant, invocation.Secrets["MOLTBOOK_API_KEY"])
	require.Equal(testInstance, "audits", invocation.Secrets["MOLTBOOK_SUBMOLT"])
}

func TestScanDiagnosticKeepsTrailingCharacters(testInstance *testing.T) {
	longError := strings.Repeat("a", 500) + strings.Repeat("b", scan.MaximumDiagnosticLength)
	invoker := &stubInvoker{responses: []invokerResponse{{result: agent.Result{StandardOutput: testReentrancyReportConstant, StandardError: longError}}}}
	orchestrator := newOrchestrator(testInstance, invoker, &recordingAttestor{}, []string{testPrimaryCredentialConstant}, nil)

	result, scanError := orchestrator.Scan(context.Background(), scan.Request{SourceCode: testVulnerableContractConstant})
	require.NoError(testInstance, scanError)
	require.Equal(testInstance, scan.StatusSuccess, result.Status)
	require.Equal(testInstance, strings.Repeat("b", scan.MaximumDiagnosticLength), result.Diagnostic)
}

func TestScanLogsRotation(testInstance *testing.T) {
	observedCore, observedLogs := observer.New(zapcore.DebugLevel)
	invoker := &stubInvoker{responses: []invokerResponse{
		{result: agent.Result{ExitCode: 1, StandardError: testRateLimitOutputConstant}},
		{result: agent.Result{StandardOutput: testReentrancyReportConstant}},
	}}
	orchestrator := newOrchestrator(testInstance, invoker, &recordingAttestor{}, []string{testPrimaryCredentialConstant, testSecondaryCredentialConstant}, zap.New(observedCore))

	_, scanError := orchestrator.Scan(context.Background(), scan.Request{SourceCode: testVulnerableContractConstant})
	require.NoError(testInstance, scanError)

	require.Equal(testInstance, 1, observedLogs.FilterMessage("Retrying scan with next credential").Len())
	failedAttempts := observedLogs.FilterMessage("Agent attempt failed").All()
	require.Len(testInstance, failedAttempts, 1)
	require.Equal(testInstance, true, failedAttempts[0].ContextMap()["rate_limited"])
	for _, entry := range observedLogs.All() {
		for _, value := range entry.ContextMap() {
			if text, isText := value.(string); isText {
				require.NotContains(testInstance, text, testPrimaryCredentialConstant)
			}
		}
	}
}

type scriptedExecutor struct {
	commands []execshell.ShellCommand
}

func (executor *scriptedExecutor) Execute(executionContext context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error) {
	executor.commands = append(executor.commands, command)
	return execshell.ExecutionResult{StandardOutput: testReentrancyReportConstant, StandardError: "telegram: sent\nmoltbook: posted"}, nil
}

func TestScanEndToEndWithStubRunner(testInstance *testing.T) {
	executor := &scriptedExecutor{}
	agentConfiguration := agent.DefaultConfiguration()
	agentConfiguration.AuthProfilePath = filepath.Join(testInstance.TempDir(), "auth-profiles.json")
	invoker, invokerError := agent.NewInvoker(agentConfiguration, executor, zap.NewNop())
	require.NoError(testInstance, invokerError)

	store, storeError := attestation.NewFileStore(filepath.Join(testInstance.TempDir(), "attestations.json"))
	require.NoError(testInstance, storeError)
	registry, registryError := attestation.NewRegistry(store, nil, zap.NewNop())
	require.NoError(testInstance, registryError)

	orchestrator := newOrchestrator(testInstance, invoker, registry, []string{testPrimaryCredentialConstant}, zap.NewNop())

	result, scanError := orchestrator.Scan(context.Background(), scan.Request{SourceCode: testVulnerableContractConstant, ContractAddress: testContractAddressConstant})
	require.NoError(testInstance, scanError)
	require.Equal(testInstance, scan.StatusSuccess, result.Status)
	require.Contains(testInstance, result.Report, scan.FindingsHeading)
	require.Contains(testInstance, result.Report, "Reentrancy")
	require.NotNil(testInstance, result.Proof)
	require.Equal(testInstance, attestation.HashContent(testVulnerableContractConstant), result.Proof.CodeHash)
	require.Equal(testInstance, "telegram: sent\nmoltbook: posted", result.Diagnostic)

	storedProof, found, lookupError := registry.Lookup(context.Background(), "", strings.ToLower(testContractAddressConstant))
	require.NoError(testInstance, lookupError)
	require.True(testInstance, found)
	require.Equal(testInstance, *result.Proof, storedProof)

	require.Len(testInstance, executor.commands, 1)
	for _, argument := range executor.commands[0].Details.Arguments {
		require.NotContains(testInstance, argument, testPrimaryCredentialConstant)
		require.NotContains(testInstance, argument, testMoltbookKeyConstant)
	}
}
