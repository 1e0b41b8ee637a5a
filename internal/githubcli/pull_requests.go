package githubcli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	titleFieldNameConstant               = "title"
	headFieldNameConstant                = "head"
	baseFieldNameConstant                = "base"
	bodyFieldNameConstant                = "body"
	pullRequestNumberFieldNameConstant   = "pull_request_number"
	pullRequestsEndpointTemplate         = "repos/%s/pulls"
	pullRequestFilesEndpointTemplate     = "repos/%s/pulls/%d/files"
	issueCommentsEndpointTemplate        = "repos/%s/issues/%d/comments"
	createPullRequestOperationName       = OperationName("CreatePullRequest")
	listPullRequestFilesOperationName    = OperationName("ListPullRequestFiles")
	createIssueCommentOperationName      = OperationName("CreateIssueComment")
	pullRequestNumberMissingFieldMessage = "number"
)

// PullRequestCreation describes a pull request to open.
type PullRequestCreation struct {
	Title string
	Body  string
	Head  string
	Base  string
}

// CreatedPullRequest identifies a newly opened pull request.
type CreatedPullRequest struct {
	Number int
	URL    string
}

// PullRequestFile describes one changed file of a pull request.
type PullRequestFile struct {
	Filename string
	Status   string

	// Patch is the unified diff hunk text; GitHub omits it for binary or very large files.
	Patch string
}

// CreatePullRequest opens a pull request from Head into Base.
func (client *Client) CreatePullRequest(executionContext context.Context, repository string, creation PullRequestCreation) (CreatedPullRequest, error) {
	if validationError := requireValue(repositoryFieldNameConstant, repository); validationError != nil {
		return CreatedPullRequest{}, validationError
	}
	if validationError := requireValue(titleFieldNameConstant, creation.Title); validationError != nil {
		return CreatedPullRequest{}, validationError
	}
	if validationError := requireValue(headFieldNameConstant, creation.Head); validationError != nil {
		return CreatedPullRequest{}, validationError
	}
	if validationError := requireValue(baseFieldNameConstant, creation.Base); validationError != nil {
		return CreatedPullRequest{}, validationError
	}

	payload := struct {
		Title string `json:"title"`
		Body  string `json:"body"`
		Head  string `json:"head"`
		Base  string `json:"base"`
	}{
		Title: creation.Title,
		Body:  creation.Body,
		Head:  strings.TrimSpace(creation.Head),
		Base:  strings.TrimSpace(creation.Base),
	}

	endpoint := fmt.Sprintf(pullRequestsEndpointTemplate, strings.TrimSpace(repository))
	executionResult, callError := client.apiCall(executionContext, createPullRequestOperationName, httpMethodPostConstant, endpoint, payload)
	if callError != nil {
		return CreatedPullRequest{}, callError
	}

	var response struct {
		Number  int    `json:"number"`
		HTMLURL string `json:"html_url"`
	}
	if decodingError := json.Unmarshal([]byte(executionResult.StandardOutput), &response); decodingError != nil {
		return CreatedPullRequest{}, ResponseDecodingError{Operation: createPullRequestOperationName, Cause: decodingError}
	}
	if response.Number <= 0 {
		return CreatedPullRequest{}, ResponseDecodingError{Operation: createPullRequestOperationName, Cause: fmt.Errorf(emptyValueMessageTemplateConstant, pullRequestNumberMissingFieldMessage)}
	}

	return CreatedPullRequest{Number: response.Number, URL: response.HTMLURL}, nil
}

// ListPullRequestFiles returns every changed file of a pull request, following pagination.
func (client *Client) ListPullRequestFiles(executionContext context.Context, repository string, pullRequestNumber int) ([]PullRequestFile, error) {
	if validationError := requireValue(repositoryFieldNameConstant, repository); validationError != nil {
		return nil, validationError
	}
	if pullRequestNumber <= 0 {
		return nil, InvalidInputError{FieldName: pullRequestNumberFieldNameConstant, Message: positiveValueMessageConstant}
	}

	endpoint := fmt.Sprintf(pullRequestFilesEndpointTemplate, strings.TrimSpace(repository), pullRequestNumber)
	executionResult, callError := client.apiCall(executionContext, listPullRequestFilesOperationName, httpMethodGetConstant, endpoint, nil, paginateFlagConstant)
	if callError != nil {
		return nil, callError
	}

	// gh api --paginate writes one JSON array per page back to back.
	decoder := json.NewDecoder(strings.NewReader(executionResult.StandardOutput))
	pullRequestFiles := []PullRequestFile{}
	for {
		var page []struct {
			Filename string `json:"filename"`
			Status   string `json:"status"`
			Patch    string `json:"patch"`
		}
		decodingError := decoder.Decode(&page)
		if errors.Is(decodingError, io.EOF) {
			break
		}
		if decodingError != nil {
			return nil, ResponseDecodingError{Operation: listPullRequestFilesOperationName, Cause: decodingError}
		}
		for _, pageEntry := range page {
			pullRequestFiles = append(pullRequestFiles, PullRequestFile{
				Filename: pageEntry.Filename,
				Status:   pageEntry.Status,
				Patch:    pageEntry.Patch,
			})
		}
	}

	return pullRequestFiles, nil
}

// CreateIssueComment posts a comment on an issue or pull request conversation.
func (client *Client) CreateIssueComment(executionContext context.Context, repository string, issueNumber int, body string) error {
	if validationError := requireValue(repositoryFieldNameConstant, repository); validationError != nil {
		return validationError
	}
	if issueNumber <= 0 {
		return InvalidInputError{FieldName: pullRequestNumberFieldNameConstant, Message: positiveValueMessageConstant}
	}
	if validationError := requireValue(bodyFieldNameConstant, body); validationError != nil {
		return validationError
	}

	payload := struct {
		Body string `json:"body"`
	}{Body: body}

	endpoint := fmt.Sprintf(issueCommentsEndpointTemplate, strings.TrimSpace(repository), issueNumber)
	_, callError := client.apiCall(executionContext, createIssueCommentOperationName, httpMethodPostConstant, endpoint, payload)
	return callError
}
