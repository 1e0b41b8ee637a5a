package githubcli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/temirov/clawaudit/internal/execshell"
	"github.com/temirov/clawaudit/internal/githubauth"
)

const (
	repoSubcommandConstant                  = "repo"
	viewSubcommandConstant                  = "view"
	apiSubcommandConstant                   = "api"
	jsonFlagConstant                        = "--json"
	methodFlagConstant                      = "-X"
	inputFlagConstant                       = "--input"
	paginateFlagConstant                    = "--paginate"
	stdinReferenceConstant                  = "-"
	acceptHeaderFlagConstant                = "-H"
	acceptHeaderValueConstant               = "Accept: application/vnd.github+json"
	httpMethodGetConstant                   = "GET"
	httpMethodPostConstant                  = "POST"
	httpMethodPutConstant                   = "PUT"
	httpMethodDeleteConstant                = "DELETE"
	repositoryFieldNameConstant             = "repository"
	requiredValueMessageConstant            = "value required"
	positiveValueMessageConstant            = "must be positive"
	executorNotConfiguredMessageConstant    = "github cli executor not configured"
	repoViewJSONFieldsConstant              = "defaultBranchRef,nameWithOwner,description"
	operationErrorMessageTemplateConstant   = "%s operation failed"
	operationErrorWithCauseTemplateConstant = "%s operation failed: %s"
	responseDecodingErrorTemplateConstant   = "%s response decoding failed: %s"
	payloadEncodingErrorTemplateConstant    = "%s payload encoding failed: %s"
	invalidInputErrorTemplateConstant       = "%s: %s"
	repositoryMetadataOperationNameConstant = OperationName("ResolveRepoMetadata")
)

// OperationName describes a named GitHub CLI workflow supported by the client.
type OperationName string

// RepositoryMetadata contains key details resolved from GitHub.
type RepositoryMetadata struct {
	NameWithOwner string
	Description   string
	DefaultBranch string
}

// GitHubCommandExecutor is the minimal interface required from execshell.ShellExecutor.
type GitHubCommandExecutor interface {
	ExecuteGitHubCLI(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// Client coordinates GitHub CLI invocations through execshell.
type Client struct {
	executor GitHubCommandExecutor
	token    string
}

var (
	// ErrExecutorNotConfigured indicates the client was constructed without an executor.
	ErrExecutorNotConfigured = errors.New(executorNotConfiguredMessageConstant)
)

// InvalidInputError surfaces validation issues for operation inputs.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf(invalidInputErrorTemplateConstant, inputError.FieldName, inputError.Message)
}

// OperationError wraps execution issues for GitHub CLI operations.
type OperationError struct {
	Operation OperationName
	Cause     error
}

// Error describes the operation failure.
func (operationError OperationError) Error() string {
	if operationError.Cause == nil {
		return fmt.Sprintf(operationErrorMessageTemplateConstant, operationError.Operation)
	}
	return fmt.Sprintf(operationErrorWithCauseTemplateConstant, operationError.Operation, operationError.Cause)
}

// Unwrap exposes the underlying cause.
func (operationError OperationError) Unwrap() error {
	return operationError.Cause
}

// ResponseDecodingError indicates JSON decoding failures.
type ResponseDecodingError struct {
	Operation OperationName
	Cause     error
}

// Error describes the decoding failure.
func (decodingError ResponseDecodingError) Error() string {
	return fmt.Sprintf(responseDecodingErrorTemplateConstant, decodingError.Operation, decodingError.Cause)
}

// Unwrap exposes the underlying JSON error.
func (decodingError ResponseDecodingError) Unwrap() error {
	return decodingError.Cause
}

// PayloadEncodingError indicates JSON encoding issues.
type PayloadEncodingError struct {
	Operation OperationName
	Cause     error
}

// Error describes the encoding failure.
func (encodingError PayloadEncodingError) Error() string {
	return fmt.Sprintf(payloadEncodingErrorTemplateConstant, encodingError.Operation, encodingError.Cause)
}

// Unwrap exposes the underlying error.
func (encodingError PayloadEncodingError) Unwrap() error {
	return encodingError.Cause
}

// NewClient constructs a GitHub CLI client.
func NewClient(executor GitHubCommandExecutor) (*Client, error) {
	if executor == nil {
		return nil, ErrExecutorNotConfigured
	}
	return &Client{executor: executor}, nil
}

// WithToken returns a client that authenticates every call with the provided token.
// A blank token keeps the receiver's token, which itself falls back to the ambient GitHub token.
func (client *Client) WithToken(token string) *Client {
	trimmedToken := strings.TrimSpace(token)
	if len(trimmedToken) == 0 {
		return client
	}
	return &Client{executor: client.executor, token: trimmedToken}
}

// ResolveRepoMetadata retrieves canonical metadata for a repository using gh repo view.
func (client *Client) ResolveRepoMetadata(executionContext context.Context, repository string) (RepositoryMetadata, error) {
	repositoryIdentifier := strings.TrimSpace(repository)
	if len(repositoryIdentifier) == 0 {
		return RepositoryMetadata{}, InvalidInputError{FieldName: repositoryFieldNameConstant, Message: requiredValueMessageConstant}
	}

	commandDetails := execshell.CommandDetails{
		Arguments: []string{
			repoSubcommandConstant,
			viewSubcommandConstant,
			repositoryIdentifier,
			jsonFlagConstant,
			repoViewJSONFieldsConstant,
		},
	}

	executionResult, executionError := client.execute(executionContext, commandDetails)
	if executionError != nil {
		return RepositoryMetadata{}, OperationError{Operation: repositoryMetadataOperationNameConstant, Cause: executionError}
	}

	var response struct {
		NameWithOwner    string `json:"nameWithOwner"`
		Description      string `json:"description"`
		DefaultBranchRef struct {
			Name string `json:"name"`
		} `json:"defaultBranchRef"`
	}

	decodingError := json.Unmarshal([]byte(executionResult.StandardOutput), &response)
	if decodingError != nil {
		return RepositoryMetadata{}, ResponseDecodingError{Operation: repositoryMetadataOperationNameConstant, Cause: decodingError}
	}

	return RepositoryMetadata{
		NameWithOwner: response.NameWithOwner,
		Description:   response.Description,
		DefaultBranch: response.DefaultBranchRef.Name,
	}, nil
}

// apiCall runs gh api against an endpoint, sending payload as the JSON request body when non-nil.
func (client *Client) apiCall(executionContext context.Context, operation OperationName, method string, endpoint string, payload any, extraArguments ...string) (execshell.ExecutionResult, error) {
	arguments := []string{apiSubcommandConstant, endpoint, methodFlagConstant, method}
	arguments = append(arguments, extraArguments...)

	var standardInput []byte
	if payload != nil {
		payloadBytes, encodingError := json.Marshal(payload)
		if encodingError != nil {
			return execshell.ExecutionResult{}, PayloadEncodingError{Operation: operation, Cause: encodingError}
		}
		standardInput = payloadBytes
		arguments = append(arguments, inputFlagConstant, stdinReferenceConstant)
	}
	arguments = append(arguments, acceptHeaderFlagConstant, acceptHeaderValueConstant)

	executionResult, executionError := client.execute(executionContext, execshell.CommandDetails{Arguments: arguments, StandardInput: standardInput})
	if executionError != nil {
		return execshell.ExecutionResult{}, OperationError{Operation: operation, Cause: executionError}
	}
	return executionResult, nil
}

func (client *Client) execute(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	token := client.token
	if len(token) == 0 {
		if resolvedToken, resolved := githubauth.ResolveToken(nil); resolved {
			token = resolvedToken.Value
		}
	}
	if len(token) > 0 {
		details.EnvironmentVariables = map[string]string{githubauth.EnvGitHubCLIToken: token}
	}
	return client.executor.ExecuteGitHubCLI(executionContext, details)
}

func requireValue(fieldName string, value string) error {
	if len(strings.TrimSpace(value)) == 0 {
		return InvalidInputError{FieldName: fieldName, Message: requiredValueMessageConstant}
	}
	return nil
}
