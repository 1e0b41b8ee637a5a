package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/clawaudit/internal/attestation"
	"github.com/temirov/clawaudit/internal/notify"
	"github.com/temirov/clawaudit/internal/remediation"
	"github.com/temirov/clawaudit/internal/scan"
	"github.com/temirov/clawaudit/internal/server"
	"github.com/temirov/clawaudit/internal/webhook"
)

const (
	testContractSourceConstant  = "pragma solidity ^0.8.0; contract Vault {}"
	testContractAddressConstant = "0x00000000000000000000000000000000000000aa"
	testCodeHashConstant        = "5f2b0c"
	testReportConstant          = "## Findings\nreentrancy"
	testWebhookSecretConstant   = "webhook-secret"
	testRepositoryConstant      = "octo/vault"
	testPullRequestURLConstant  = "https://github.com/octo/vault/pull/7"
	testBranchNameConstant      = "clawaudit/remediation-abc"
	testDevUpdateTitleConstant  = "Deploy"
	testDevUpdateContentConst   = "v2 is live"
	healthPathConstant          = "/healthz"
	scanPathConstant            = "/scan"
	proofPathConstant           = "/proof"
	trailPathConstant           = "/trail"
	remediationPathConstant     = "/remediation"
	devUpdatePathConstant       = "/dev-update"
	webhookPathConstant         = "/webhooks/github"
	contentTypeHeaderConstant   = "Content-Type"
	jsonContentTypeConstant     = "application/json"
	pullRequestEventConstant    = "pull_request"
	webhookPayloadConstant      = `{"action":"opened","number":7,"repository":{"full_name":"octo/vault"}}`
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubScanner struct {
	result        scan.Result
	err           error
	requests      []scan.Request
	contextErrors []error
}

func (scanner *stubScanner) Scan(scanContext context.Context, request scan.Request) (scan.Result, error) {
	scanner.requests = append(scanner.requests, request)
	scanner.contextErrors = append(scanner.contextErrors, scanContext.Err())
	return scanner.result, scanner.err
}

type stubRegistry struct {
	proof       attestation.Proof
	found       bool
	lookupError error
	proofs      []attestation.Proof
	limits      []int
	selectors   [][2]string
}

func (registry *stubRegistry) Lookup(_ context.Context, codeHash string, address string) (attestation.Proof, bool, error) {
	registry.selectors = append(registry.selectors, [2]string{codeHash, address})
	if registry.lookupError != nil {
		return attestation.Proof{}, false, registry.lookupError
	}
	if len(codeHash) == 0 && len(address) == 0 {
		return attestation.Proof{}, false, attestation.ErrSelectorRequired
	}
	return registry.proof, registry.found, nil
}

func (registry *stubRegistry) List(_ context.Context, limit int) ([]attestation.Proof, error) {
	registry.limits = append(registry.limits, limit)
	return registry.proofs, nil
}

type stubPublisher struct {
	pullRequest   remediation.PullRequest
	err           error
	requests      []remediation.Request
	contextErrors []error
}

func (publisher *stubPublisher) CreatePullRequest(publishContext context.Context, request remediation.Request) (remediation.PullRequest, error) {
	publisher.requests = append(publisher.requests, request)
	publisher.contextErrors = append(publisher.contextErrors, publishContext.Err())
	return publisher.pullRequest, publisher.err
}

type stubSender struct {
	err      error
	messages []notify.Message
}

func (sender *stubSender) Send(_ context.Context, message notify.Message) error {
	sender.messages = append(sender.messages, message)
	return sender.err
}

type stubWebhook struct {
	result        webhook.Result
	err           error
	events        []string
	payloads      [][]byte
	contextErrors []error
}

func (handler *stubWebhook) Handle(handleContext context.Context, eventType string, payload []byte) (webhook.Result, error) {
	handler.events = append(handler.events, eventType)
	handler.contextErrors = append(handler.contextErrors, handleContext.Err())
	handler.payloads = append(handler.payloads, payload)
	return handler.result, handler.err
}

type serverFixture struct {
	scanner   *stubScanner
	registry  *stubRegistry
	publisher *stubPublisher
	sender    *stubSender
	webhook   *stubWebhook
}

func newFixture() *serverFixture {
	return &serverFixture{
		scanner:   &stubScanner{},
		registry:  &stubRegistry{},
		publisher: &stubPublisher{},
		sender:    &stubSender{},
		webhook:   &stubWebhook{},
	}
}

func (fixture *serverFixture) handler(testInstance *testing.T) http.Handler {
	testInstance.Helper()
	instance, creationError := server.NewServer(server.Dependencies{
		Scanner:         fixture.scanner,
		Registry:        fixture.registry,
		Publisher:       fixture.publisher,
		DeveloperSender: fixture.sender,
		Webhook:         fixture.webhook,
		WebhookSecret:   testWebhookSecretConstant,
	})
	require.NoError(testInstance, creationError)
	return instance.Handler()
}

func perform(handler http.Handler, method string, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(method, path, bytes.NewReader(body))
	request.Header.Set(contentTypeHeaderConstant, jsonContentTypeConstant)
	for headerName, headerValue := range headers {
		request.Header.Set(headerName, headerValue)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeError(testInstance *testing.T, recorder *httptest.ResponseRecorder) server.ErrorResponse {
	testInstance.Helper()
	var response server.ErrorResponse
	require.NoError(testInstance, json.Unmarshal(recorder.Body.Bytes(), &response))
	return response
}

func TestNewServerValidatesDependencies(testInstance *testing.T) {
	testCases := []struct {
		name          string
		dependencies  server.Dependencies
		expectedError error
	}{
		{
			name:          "missing_scanner",
			dependencies:  server.Dependencies{Registry: &stubRegistry{}},
			expectedError: server.ErrScannerRequired,
		},
		{
			name:          "missing_registry",
			dependencies:  server.Dependencies{Scanner: &stubScanner{}},
			expectedError: server.ErrRegistryRequired,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			instance, creationError := server.NewServer(testCase.dependencies)
			require.ErrorIs(testInstance, creationError, testCase.expectedError)
			require.Nil(testInstance, instance)
		})
	}
}

func TestHealthRoute(testInstance *testing.T) {
	recorder := perform(newFixture().handler(testInstance), http.MethodGet, healthPathConstant, nil, nil)
	require.Equal(testInstance, http.StatusOK, recorder.Code)
	require.JSONEq(testInstance, `{"status":"ok"}`, recorder.Body.String())
}

func TestScanRoute(testInstance *testing.T) {
	proof := attestation.Proof{CodeHash: testCodeHashConstant, ReportHash: "abc", AuditorID: attestation.AuditorIdentifier, Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}

	testCases := []struct {
		name           string
		body           string
		scanResult     scan.Result
		scanError      error
		expectedStatus int
		expectedCode   string
		expectedField  string
		expectedScans  int
	}{
		{
			name:           "successful_scan",
			body:           `{"contract_code":"` + testContractSourceConstant + `","contract_address":"` + testContractAddressConstant + `","scan_kind":"full","notification_overrides":{"telegram_chat_id":"42"}}`,
			scanResult:     scan.Result{Status: scan.StatusSuccess, Report: testReportConstant, Proof: &proof},
			expectedStatus: http.StatusOK,
			expectedScans:  1,
		},
		{
			name:           "agent_failure_is_reported_in_body",
			body:           `{"contract_code":"` + testContractSourceConstant + `"}`,
			scanResult:     scan.Result{Status: scan.StatusError, Diagnostic: "agent exited with code 1"},
			expectedStatus: http.StatusOK,
			expectedScans:  1,
		},
		{
			name:           "malformed_body",
			body:           `{"contract_code":`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   server.CodeInvalidArgument,
		},
		{
			name:           "validation_error",
			body:           `{"contract_code":""}`,
			scanError:      scan.ValidationError{Field: scan.FieldSourceCode, Message: "required"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   server.CodeInvalidArgument,
			expectedField:  scan.FieldSourceCode,
			expectedScans:  1,
		},
		{
			name:           "configuration_error",
			body:           `{"contract_code":"` + testContractSourceConstant + `"}`,
			scanError:      scan.ConfigurationError{Missing: []string{scan.MissingAgentCredential}},
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   server.CodeConfigurationMissing,
			expectedScans:  1,
		},
		{
			name:           "attestation_failure",
			body:           `{"contract_code":"` + testContractSourceConstant + `"}`,
			scanError:      errors.New("record attestation: disk full"),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   server.CodeInternal,
			expectedScans:  1,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			fixture := newFixture()
			fixture.scanner.result = testCase.scanResult
			fixture.scanner.err = testCase.scanError

			recorder := perform(fixture.handler(testInstance), http.MethodPost, scanPathConstant, []byte(testCase.body), nil)
			require.Equal(testInstance, testCase.expectedStatus, recorder.Code)
			require.Len(testInstance, fixture.scanner.requests, testCase.expectedScans)

			if len(testCase.expectedCode) > 0 {
				response := decodeError(testInstance, recorder)
				require.Equal(testInstance, testCase.expectedCode, response.Code)
				require.Equal(testInstance, testCase.expectedField, response.Field)
				return
			}

			var result scan.Result
			require.NoError(testInstance, json.Unmarshal(recorder.Body.Bytes(), &result))
			require.Equal(testInstance, testCase.scanResult.Status, result.Status)
			require.Equal(testInstance, testCase.scanResult.Report, result.Report)
			require.Equal(testInstance, testCase.scanResult.Diagnostic, result.Diagnostic)
		})
	}
}

func TestScanRouteForwardsRequestFields(testInstance *testing.T) {
	fixture := newFixture()
	fixture.scanner.result = scan.Result{Status: scan.StatusSuccess}
	body := `{"contract_code":"` + testContractSourceConstant + `","contract_address":"` + testContractAddressConstant + `","scan_kind":"demo","notification_overrides":{"moltbook_api_key":"mb","moltbook_submolt":"audits"}}`

	recorder := perform(fixture.handler(testInstance), http.MethodPost, scanPathConstant, []byte(body), nil)
	require.Equal(testInstance, http.StatusOK, recorder.Code)
	require.Len(testInstance, fixture.scanner.requests, 1)

	request := fixture.scanner.requests[0]
	require.Equal(testInstance, testContractSourceConstant, request.SourceCode)
	require.Equal(testInstance, testContractAddressConstant, request.ContractAddress)
	require.Equal(testInstance, scan.Kind("demo"), request.Kind)
	require.Equal(testInstance, "mb", request.NotificationOverrides.MoltbookAPIKey)
	require.Equal(testInstance, "audits", request.NotificationOverrides.MoltbookSubmolt)
}

func TestProofRoute(testInstance *testing.T) {
	storedProof := attestation.Proof{CodeHash: testCodeHashConstant, ReportHash: "def", AuditorID: attestation.AuditorIdentifier, ContractAddress: testContractAddressConstant}

	testCases := []struct {
		name           string
		query          string
		found          bool
		lookupError    error
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "found_by_hash",
			query:          "?code_hash=" + testCodeHashConstant,
			found:          true,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "found_by_address",
			query:          "?contract_address=" + testContractAddressConstant,
			found:          true,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "not_found",
			query:          "?code_hash=ffff",
			expectedStatus: http.StatusNotFound,
			expectedCode:   server.CodeNotFound,
		},
		{
			name:           "selector_missing",
			expectedStatus: http.StatusBadRequest,
			expectedCode:   server.CodeInvalidArgument,
		},
		{
			name:           "store_failure",
			query:          "?code_hash=" + testCodeHashConstant,
			lookupError:    errors.New("read registry: permission denied"),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   server.CodeInternal,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			fixture := newFixture()
			fixture.registry.proof = storedProof
			fixture.registry.found = testCase.found
			fixture.registry.lookupError = testCase.lookupError

			recorder := perform(fixture.handler(testInstance), http.MethodGet, proofPathConstant+testCase.query, nil, nil)
			require.Equal(testInstance, testCase.expectedStatus, recorder.Code)
			if len(testCase.expectedCode) > 0 {
				require.Equal(testInstance, testCase.expectedCode, decodeError(testInstance, recorder).Code)
				return
			}

			var proof attestation.Proof
			require.NoError(testInstance, json.Unmarshal(recorder.Body.Bytes(), &proof))
			require.Equal(testInstance, storedProof, proof)
		})
	}
}

func TestTrailRoute(testInstance *testing.T) {
	testCases := []struct {
		name           string
		query          string
		proofs         []attestation.Proof
		expectedStatus int
		expectedLimit  int
		expectedCount  int
	}{
		{
			name:           "default_limit",
			proofs:         []attestation.Proof{{CodeHash: "a"}, {CodeHash: "b"}},
			expectedStatus: http.StatusOK,
			expectedLimit:  attestation.DefaultTrailLimit,
			expectedCount:  2,
		},
		{
			name:           "explicit_limit",
			query:          "?limit=1",
			proofs:         []attestation.Proof{{CodeHash: "a"}},
			expectedStatus: http.StatusOK,
			expectedLimit:  1,
			expectedCount:  1,
		},
		{
			name:           "empty_registry",
			query:          "?limit=500",
			expectedStatus: http.StatusOK,
			expectedLimit:  500,
		},
		{
			name:           "limit_below_range",
			query:          "?limit=0",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "limit_above_range",
			query:          "?limit=501",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "limit_not_numeric",
			query:          "?limit=many",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			fixture := newFixture()
			fixture.registry.proofs = testCase.proofs

			recorder := perform(fixture.handler(testInstance), http.MethodGet, trailPathConstant+testCase.query, nil, nil)
			require.Equal(testInstance, testCase.expectedStatus, recorder.Code)
			if testCase.expectedStatus != http.StatusOK {
				require.Equal(testInstance, server.CodeInvalidArgument, decodeError(testInstance, recorder).Code)
				require.Empty(testInstance, fixture.registry.limits)
				return
			}

			var response struct {
				Count   int                 `json:"count"`
				Entries []attestation.Proof `json:"entries"`
			}
			require.NoError(testInstance, json.Unmarshal(recorder.Body.Bytes(), &response))
			require.Equal(testInstance, []int{testCase.expectedLimit}, fixture.registry.limits)
			require.Equal(testInstance, testCase.expectedCount, response.Count)
			require.Len(testInstance, response.Entries, testCase.expectedCount)
			require.NotNil(testInstance, response.Entries)
		})
	}
}

func TestRemediationRoute(testInstance *testing.T) {
	validBody := `{"repo":"` + testRepositoryConstant + `","file_path":"contracts/Vault.sol","patched_code":"contract Vault {}","title":"Fix reentrancy","github_token":"ghs_token"}`

	testCases := []struct {
		name           string
		body           string
		publishError   error
		expectedStatus int
		expectedCode   string
		expectedStep   string
	}{
		{
			name:           "pull_request_opened",
			body:           validBody,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "validation_failure",
			body:           `{"repo":"` + testRepositoryConstant + `"}`,
			publishError:   remediation.StepError{Step: remediation.StepValidate, Cause: errors.New("file_path is required")},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   server.CodeInvalidArgument,
			expectedStep:   string(remediation.StepValidate),
		},
		{
			name:           "remote_failure",
			body:           validBody,
			publishError:   remediation.StepError{Step: remediation.StepCreateBranch, Cause: errors.New("reference already exists")},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   server.CodeRemoteFailure,
			expectedStep:   string(remediation.StepCreateBranch),
		},
		{
			name:           "malformed_body",
			body:           `[`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   server.CodeInvalidArgument,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			fixture := newFixture()
			fixture.publisher.pullRequest = remediation.PullRequest{Number: 7, URL: testPullRequestURLConstant, BranchName: testBranchNameConstant}
			fixture.publisher.err = testCase.publishError

			recorder := perform(fixture.handler(testInstance), http.MethodPost, remediationPathConstant, []byte(testCase.body), nil)
			require.Equal(testInstance, testCase.expectedStatus, recorder.Code)
			if len(testCase.expectedCode) > 0 {
				response := decodeError(testInstance, recorder)
				require.Equal(testInstance, testCase.expectedCode, response.Code)
				require.Equal(testInstance, testCase.expectedStep, response.Step)
				return
			}

			require.JSONEq(testInstance, `{"number":7,"url":"`+testPullRequestURLConstant+`","branch_name":"`+testBranchNameConstant+`"}`, recorder.Body.String())
			require.Len(testInstance, fixture.publisher.requests, 1)
			require.Equal(testInstance, "ghs_token", fixture.publisher.requests[0].Token)
			require.Equal(testInstance, "contracts/Vault.sol", fixture.publisher.requests[0].FilePath)
		})
	}
}

func TestDevUpdateRoute(testInstance *testing.T) {
	testCases := []struct {
		name             string
		body             string
		sendError        error
		expectedStatus   int
		expectedCode     string
		expectedMessages int
	}{
		{
			name:             "delivered",
			body:             `{"title":"` + testDevUpdateTitleConstant + `","content":"` + testDevUpdateContentConst + `"}`,
			expectedStatus:   http.StatusOK,
			expectedMessages: 1,
		},
		{
			name:           "content_missing",
			body:           `{"title":"` + testDevUpdateTitleConstant + `","content":"  "}`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   server.CodeInvalidArgument,
		},
		{
			name:             "delivery_rejected",
			body:             `{"content":"` + testDevUpdateContentConst + `"}`,
			sendError:        notify.DeliveryError{Channel: notify.ChannelTelegram, StatusCode: http.StatusForbidden, Message: "bot was blocked"},
			expectedStatus:   http.StatusBadGateway,
			expectedCode:     server.CodeRemoteFailure,
			expectedMessages: 1,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			fixture := newFixture()
			fixture.sender.err = testCase.sendError

			recorder := perform(fixture.handler(testInstance), http.MethodPost, devUpdatePathConstant, []byte(testCase.body), nil)
			require.Equal(testInstance, testCase.expectedStatus, recorder.Code)
			require.Len(testInstance, fixture.sender.messages, testCase.expectedMessages)
			if len(testCase.expectedCode) > 0 {
				require.Equal(testInstance, testCase.expectedCode, decodeError(testInstance, recorder).Code)
				return
			}
			require.Equal(testInstance, notify.Message{Title: testDevUpdateTitleConstant, Content: testDevUpdateContentConst}, fixture.sender.messages[0])
		})
	}
}

func TestOptionalRoutesReportMissingConfiguration(testInstance *testing.T) {
	instance, creationError := server.NewServer(server.Dependencies{Scanner: &stubScanner{}, Registry: &stubRegistry{}})
	require.NoError(testInstance, creationError)
	handler := instance.Handler()

	testCases := []struct {
		name            string
		path            string
		body            string
		expectedMissing []string
	}{
		{
			name:            "remediation",
			path:            remediationPathConstant,
			body:            `{}`,
			expectedMissing: []string{"github"},
		},
		{
			name:            "dev_update",
			path:            devUpdatePathConstant,
			body:            `{"content":"hello"}`,
			expectedMissing: []string{scan.MissingTelegramToken, scan.MissingTelegramChatID},
		},
		{
			name:            "webhook",
			path:            webhookPathConstant,
			body:            webhookPayloadConstant,
			expectedMissing: []string{"webhook"},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			recorder := perform(handler, http.MethodPost, testCase.path, []byte(testCase.body), nil)
			require.Equal(testInstance, http.StatusInternalServerError, recorder.Code)
			response := decodeError(testInstance, recorder)
			require.Equal(testInstance, server.CodeConfigurationMissing, response.Code)
			require.Equal(testInstance, testCase.expectedMissing, response.Missing)
		})
	}
}

func TestWebhookRoute(testInstance *testing.T) {
	payload := []byte(webhookPayloadConstant)
	validSignature := webhook.Sign(testWebhookSecretConstant, payload)

	testCases := []struct {
		name           string
		signature      string
		handlerResult  webhook.Result
		handlerError   error
		expectedStatus int
		expectedCode   string
		expectedCalls  int
	}{
		{
			name:           "completed",
			signature:      validSignature,
			handlerResult:  webhook.Result{Status: webhook.StatusCompleted, Repository: testRepositoryConstant, PullRequestNumber: 7},
			expectedStatus: http.StatusOK,
			expectedCalls:  1,
		},
		{
			name:           "missing_signature",
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   server.CodeUnauthorized,
		},
		{
			name:           "invalid_signature",
			signature:      webhook.Sign("other-secret", payload),
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   server.CodeUnauthorized,
		},
		{
			name:           "malformed_payload",
			signature:      validSignature,
			handlerResult:  webhook.Result{Status: webhook.StatusError},
			handlerError:   webhook.PayloadError{Message: "pull request number is missing"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   server.CodeInvalidArgument,
			expectedCalls:  1,
		},
		{
			name:           "remote_failure",
			signature:      validSignature,
			handlerResult:  webhook.Result{Status: webhook.StatusError, Reason: "list pull request files failed"},
			handlerError:   errors.New("list pull request files failed"),
			expectedStatus: http.StatusBadGateway,
			expectedCalls:  1,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			fixture := newFixture()
			fixture.webhook.result = testCase.handlerResult
			fixture.webhook.err = testCase.handlerError

			headers := map[string]string{webhook.EventHeader: pullRequestEventConstant}
			if len(testCase.signature) > 0 {
				headers[webhook.SignatureHeader] = testCase.signature
			}
			recorder := perform(fixture.handler(testInstance), http.MethodPost, webhookPathConstant, payload, headers)
			require.Equal(testInstance, testCase.expectedStatus, recorder.Code)
			require.Len(testInstance, fixture.webhook.events, testCase.expectedCalls)

			if len(testCase.expectedCode) > 0 {
				require.Equal(testInstance, testCase.expectedCode, decodeError(testInstance, recorder).Code)
				return
			}

			var result webhook.Result
			require.NoError(testInstance, json.Unmarshal(recorder.Body.Bytes(), &result))
			require.Equal(testInstance, testCase.handlerResult, result)
			require.Equal(testInstance, pullRequestEventConstant, fixture.webhook.events[0])
			require.Equal(testInstance, payload, fixture.webhook.payloads[0])
		})
	}
}

func TestRequestLoggerRecordsRoutes(testInstance *testing.T) {
	observerCore, observedLogs := observer.New(zapcore.InfoLevel)
	instance, creationError := server.NewServer(server.Dependencies{
		Scanner:  &stubScanner{},
		Registry: &stubRegistry{},
		Logger:   zap.New(observerCore),
	})
	require.NoError(testInstance, creationError)

	perform(instance.Handler(), http.MethodGet, healthPathConstant, nil, nil)

	entries := observedLogs.FilterMessage("HTTP request handled").All()
	require.Len(testInstance, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(testInstance, healthPathConstant, fields["path"])
	require.Equal(testInstance, int64(http.StatusOK), fields["status"])
}

func TestLongRunningRoutesOutliveClientDisconnect(testInstance *testing.T) {
	webhookPayload := []byte(webhookPayloadConstant)

	testCases := []struct {
		name          string
		path          string
		body          []byte
		headers       map[string]string
		contextErrors func(fixture *serverFixture) []error
	}{
		{
			name:          "scan",
			path:          scanPathConstant,
			body:          []byte(`{"contract_code":"contract Vault {}"}`),
			contextErrors: func(fixture *serverFixture) []error { return fixture.scanner.contextErrors },
		},
		{
			name:          "remediation",
			path:          remediationPathConstant,
			body:          []byte(`{"repo":"` + testRepositoryConstant + `","file_path":"contracts/Vault.sol","patched_code":"contract Vault {}","title":"Fix"}`),
			contextErrors: func(fixture *serverFixture) []error { return fixture.publisher.contextErrors },
		},
		{
			name: "webhook",
			path: webhookPathConstant,
			body: webhookPayload,
			headers: map[string]string{
				webhook.EventHeader:     pullRequestEventConstant,
				webhook.SignatureHeader: webhook.Sign(testWebhookSecretConstant, webhookPayload),
			},
			contextErrors: func(fixture *serverFixture) []error { return fixture.webhook.contextErrors },
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			fixture := newFixture()
			disconnectedContext, disconnect := context.WithCancel(context.Background())
			disconnect()

			request := httptest.NewRequest(http.MethodPost, testCase.path, bytes.NewReader(testCase.body)).WithContext(disconnectedContext)
			request.Header.Set(contentTypeHeaderConstant, jsonContentTypeConstant)
			for headerName, headerValue := range testCase.headers {
				request.Header.Set(headerName, headerValue)
			}
			recorder := httptest.NewRecorder()
			fixture.handler(testInstance).ServeHTTP(recorder, request)

			require.Equal(testInstance, http.StatusOK, recorder.Code, recorder.Body.String())
			require.Equal(testInstance, []error{nil}, testCase.contextErrors(fixture))
		})
	}
}
