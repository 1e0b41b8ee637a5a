package remediation_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/clawaudit/internal/execshell"
	"github.com/temirov/clawaudit/internal/githubcli"
	"github.com/temirov/clawaudit/internal/remediation"
)

const (
	testRepositoryConstant           = "octo/vault"
	testFilePathConstant             = "contracts/Vault.sol"
	testPatchedCodeConstant          = "pragma solidity ^0.8.0;\ncontract Vault { bool locked; }"
	testTitleConstant                = "Fix reentrancy in Vault"
	testTokenConstant                = "ghp_request_scoped"
	testHeadSHAConstant              = "1111111111111111111111111111111111111111"
	testFileSHAConstant              = "2222222222222222222222222222222222222222"
	routeRepoViewConstant            = "repo view"
	routeBranchHeadConstant          = "GET repos/octo/vault/git/ref/heads/main"
	routeCreateReferenceConstant     = "POST repos/octo/vault/git/refs"
	routeFileSHAConstant             = "GET repos/octo/vault/contents/contracts/Vault.sol?ref=main"
	routePutFileConstant             = "PUT repos/octo/vault/contents/contracts/Vault.sol"
	routeCreatePullRequestConstant   = "POST repos/octo/vault/pulls"
	routeDeleteReferencePrefixConst  = "DELETE repos/octo/vault/git/refs/heads/clawaudit/remediation-"
	testHappyPathCaseNameConstant    = "shorthand_repository"
	testHTTPSIdentifierCaseNameConst = "https_repository"
	testSSHIdentifierCaseNameConst   = "ssh_repository"
)

var branchNamePattern = regexp.MustCompile(`^clawaudit/remediation-[0-9a-f]{12}$`)

type routedExecutor struct {
	responses map[string]string
	failures  map[string]bool
	routes    []string
	details   []execshell.CommandDetails
}

func routeOf(details execshell.CommandDetails) string {
	arguments := details.Arguments
	if len(arguments) >= 2 && arguments[0] == "repo" {
		return routeRepoViewConstant
	}
	if len(arguments) >= 4 && arguments[0] == "api" {
		return arguments[3] + " " + arguments[1]
	}
	return ""
}

func (executor *routedExecutor) ExecuteGitHubCLI(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	route := routeOf(details)
	executor.routes = append(executor.routes, route)
	executor.details = append(executor.details, details)
	for failingRoute := range executor.failures {
		if len(route) >= len(failingRoute) && route[:len(failingRoute)] == failingRoute {
			failedResult := execshell.ExecutionResult{ExitCode: 1, StandardError: "HTTP 404: Not Found"}
			return execshell.ExecutionResult{}, execshell.CommandFailedError{Command: execshell.ShellCommand{Name: execshell.CommandGitHub, Details: details}, Result: failedResult}
		}
	}
	return execshell.ExecutionResult{StandardOutput: executor.responses[route]}, nil
}

func newRoutedExecutor() *routedExecutor {
	return &routedExecutor{
		responses: map[string]string{
			routeRepoViewConstant:          `{"nameWithOwner":"octo/vault","description":"","defaultBranchRef":{"name":"main"}}`,
			routeBranchHeadConstant:        `{"ref":"refs/heads/main","object":{"sha":"` + testHeadSHAConstant + `","type":"commit"}}`,
			routeCreateReferenceConstant:   `{"ref":"refs/heads/clawaudit/remediation-x"}`,
			routeFileSHAConstant:           `{"name":"Vault.sol","sha":"` + testFileSHAConstant + `"}`,
			routePutFileConstant:           `{"content":{"sha":"3333"}}`,
			routeCreatePullRequestConstant: `{"number":42,"html_url":"https://github.com/octo/vault/pull/42"}`,
		},
		failures: map[string]bool{},
	}
}

func newPublisher(testInstance *testing.T, executor *routedExecutor, logger *zap.Logger) *remediation.Publisher {
	testInstance.Helper()
	client, clientError := githubcli.NewClient(executor)
	require.NoError(testInstance, clientError)
	publisher, publisherError := remediation.NewPublisher(client, logger)
	require.NoError(testInstance, publisherError)
	return publisher
}

func TestCreatePullRequestHappyPath(testInstance *testing.T) {
	testCases := []struct {
		name       string
		repository string
	}{
		{name: testHappyPathCaseNameConstant, repository: testRepositoryConstant},
		{name: testHTTPSIdentifierCaseNameConst, repository: "https://github.com/octo/vault.git"},
		{name: testSSHIdentifierCaseNameConst, repository: "git@github.com:octo/vault.git"},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor := newRoutedExecutor()
			publisher := newPublisher(testInstance, executor, zap.NewNop())

			pullRequest, publishError := publisher.CreatePullRequest(context.Background(), remediation.Request{
				Repository:  testCase.repository,
				FilePath:    testFilePathConstant,
				PatchedCode: testPatchedCodeConstant,
				Title:       testTitleConstant,
				Token:       testTokenConstant,
			})
			require.NoError(testInstance, publishError)
			require.Equal(testInstance, 42, pullRequest.Number)
			require.Equal(testInstance, "https://github.com/octo/vault/pull/42", pullRequest.URL)
			require.Regexp(testInstance, branchNamePattern, pullRequest.BranchName)

			require.Equal(testInstance, []string{
				routeRepoViewConstant,
				routeBranchHeadConstant,
				routeCreateReferenceConstant,
				routeFileSHAConstant,
				routePutFileConstant,
				routeCreatePullRequestConstant,
			}, executor.routes)

			for _, details := range executor.details {
				require.Equal(testInstance, testTokenConstant, details.EnvironmentVariables["GH_TOKEN"])
			}

			var referencePayload map[string]string
			require.NoError(testInstance, json.Unmarshal(executor.details[2].StandardInput, &referencePayload))
			require.Equal(testInstance, "refs/heads/"+pullRequest.BranchName, referencePayload["ref"])
			require.Equal(testInstance, testHeadSHAConstant, referencePayload["sha"])

			var filePayload map[string]string
			require.NoError(testInstance, json.Unmarshal(executor.details[4].StandardInput, &filePayload))
			decodedContent, decodeError := base64.StdEncoding.DecodeString(filePayload["content"])
			require.NoError(testInstance, decodeError)
			require.Equal(testInstance, testPatchedCodeConstant, string(decodedContent))
			require.Equal(testInstance, testFileSHAConstant, filePayload["sha"])
			require.Equal(testInstance, pullRequest.BranchName, filePayload["branch"])

			var pullRequestPayload map[string]string
			require.NoError(testInstance, json.Unmarshal(executor.details[5].StandardInput, &pullRequestPayload))
			require.Equal(testInstance, pullRequest.BranchName, pullRequestPayload["head"])
			require.Equal(testInstance, "main", pullRequestPayload["base"])
			require.Equal(testInstance, testTitleConstant, pullRequestPayload["title"])
			require.Contains(testInstance, pullRequestPayload["body"], testFilePathConstant)
		})
	}
}

func TestCreatePullRequestMissingFile(testInstance *testing.T) {
	testCases := []struct {
		name         string
		deleteBranch bool
		expectDelete bool
	}{
		{name: "webhook_path_deletes_branch", deleteBranch: true, expectDelete: true},
		{name: "standalone_path_keeps_branch", deleteBranch: false, expectDelete: false},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor := newRoutedExecutor()
			executor.failures[routeFileSHAConstant] = true
			observedCore, observedLogs := observer.New(zapcore.InfoLevel)
			publisher := newPublisher(testInstance, executor, zap.New(observedCore))

			_, publishError := publisher.CreatePullRequest(context.Background(), remediation.Request{
				Repository:                testRepositoryConstant,
				FilePath:                  testFilePathConstant,
				PatchedCode:               testPatchedCodeConstant,
				Title:                     testTitleConstant,
				DeleteBranchOnMissingFile: testCase.deleteBranch,
			})
			var stepError remediation.StepError
			require.True(testInstance, errors.As(publishError, &stepError))
			require.Equal(testInstance, remediation.StepReadFile, stepError.Step)

			var operationError githubcli.OperationError
			require.True(testInstance, errors.As(publishError, &operationError))

			lastRoute := executor.routes[len(executor.routes)-1]
			if testCase.expectDelete {
				require.Len(testInstance, executor.routes, 5)
				require.Contains(testInstance, lastRoute, routeDeleteReferencePrefixConst)
				require.Equal(testInstance, 1, observedLogs.FilterMessage("Deleted remediation branch after file lookup failure").Len())
				return
			}
			require.Len(testInstance, executor.routes, 4)
			require.Equal(testInstance, routeFileSHAConstant, lastRoute)
		})
	}
}

func TestCreatePullRequestStepFailures(testInstance *testing.T) {
	testCases := []struct {
		name         string
		failingRoute string
		expectedStep remediation.Step
	}{
		{name: "repository_lookup", failingRoute: routeRepoViewConstant, expectedStep: remediation.StepResolveRepository},
		{name: "branch_head", failingRoute: routeBranchHeadConstant, expectedStep: remediation.StepReadBranchHead},
		{name: "create_branch", failingRoute: routeCreateReferenceConstant, expectedStep: remediation.StepCreateBranch},
		{name: "update_file", failingRoute: routePutFileConstant, expectedStep: remediation.StepUpdateFile},
		{name: "open_pull_request", failingRoute: routeCreatePullRequestConstant, expectedStep: remediation.StepOpenPullRequest},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor := newRoutedExecutor()
			executor.failures[testCase.failingRoute] = true
			publisher := newPublisher(testInstance, executor, nil)

			_, publishError := publisher.CreatePullRequest(context.Background(), remediation.Request{
				Repository:  testRepositoryConstant,
				FilePath:    testFilePathConstant,
				PatchedCode: testPatchedCodeConstant,
				Title:       testTitleConstant,
			})
			var stepError remediation.StepError
			require.True(testInstance, errors.As(publishError, &stepError))
			require.Equal(testInstance, testCase.expectedStep, stepError.Step)
			require.Equal(testInstance, testCase.failingRoute, executor.routes[len(executor.routes)-1])
		})
	}
}

func TestCreatePullRequestValidation(testInstance *testing.T) {
	testCases := []struct {
		name    string
		request remediation.Request
	}{
		{name: "malformed_repository", request: remediation.Request{Repository: "not a repo", FilePath: testFilePathConstant, PatchedCode: testPatchedCodeConstant, Title: testTitleConstant}},
		{name: "missing_path", request: remediation.Request{Repository: testRepositoryConstant, PatchedCode: testPatchedCodeConstant, Title: testTitleConstant}},
		{name: "missing_code", request: remediation.Request{Repository: testRepositoryConstant, FilePath: testFilePathConstant, Title: testTitleConstant}},
		{name: "missing_title", request: remediation.Request{Repository: testRepositoryConstant, FilePath: testFilePathConstant, PatchedCode: testPatchedCodeConstant}},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor := newRoutedExecutor()
			publisher := newPublisher(testInstance, executor, nil)

			_, publishError := publisher.CreatePullRequest(context.Background(), testCase.request)
			var stepError remediation.StepError
			require.True(testInstance, errors.As(publishError, &stepError))
			require.Equal(testInstance, remediation.StepValidate, stepError.Step)
			require.Empty(testInstance, executor.routes)
		})
	}
}

func TestNewBranchName(testInstance *testing.T) {
	firstName := remediation.NewBranchName()
	secondName := remediation.NewBranchName()
	require.Regexp(testInstance, branchNamePattern, firstName)
	require.Regexp(testInstance, branchNamePattern, secondName)
	require.NotEqual(testInstance, firstName, secondName)
}

func TestNewPublisherRequiresClient(testInstance *testing.T) {
	_, creationError := remediation.NewPublisher(nil, nil)
	require.ErrorIs(testInstance, creationError, remediation.ErrClientNotConfigured)
}
