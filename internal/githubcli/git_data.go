package githubcli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

const (
	branchFieldNameConstant               = "branch"
	shaFieldNameConstant                  = "sha"
	pathFieldNameConstant                 = "path"
	messageFieldNameConstant              = "message"
	branchReferenceEndpointTemplate       = "repos/%s/git/ref/heads/%s"
	branchReferenceDeleteEndpointTemplate = "repos/%s/git/refs/heads/%s"
	createReferenceEndpointTemplate       = "repos/%s/git/refs"
	contentsEndpointTemplate              = "repos/%s/contents/%s"
	contentsAtReferenceEndpointTemplate   = "repos/%s/contents/%s?ref=%s"
	fullReferenceTemplateConstant         = "refs/heads/%s"
	pathSeparatorConstant                 = "/"
	branchHeadOperationNameConstant       = OperationName("GetBranchHeadSHA")
	createReferenceOperationNameConstant  = OperationName("CreateBranchReference")
	deleteReferenceOperationNameConstant  = OperationName("DeleteBranchReference")
	fileContentSHAOperationNameConstant   = OperationName("GetFileContentSHA")
	putFileContentsOperationNameConstant  = OperationName("PutFileContents")
	emptyValueMessageTemplateConstant     = "response missing %s"
)

// FileUpdate describes a commit that replaces one file on a branch.
type FileUpdate struct {
	Path          string
	CommitMessage string
	Branch        string

	// EncodedContent is the base64 encoding of the new file contents.
	EncodedContent string

	// PreviousSHA is the blob SHA of the file being replaced.
	PreviousSHA string
}

// GetBranchHeadSHA returns the commit SHA at the tip of branch.
func (client *Client) GetBranchHeadSHA(executionContext context.Context, repository string, branch string) (string, error) {
	if validationError := requireValue(repositoryFieldNameConstant, repository); validationError != nil {
		return "", validationError
	}
	if validationError := requireValue(branchFieldNameConstant, branch); validationError != nil {
		return "", validationError
	}

	endpoint := fmt.Sprintf(branchReferenceEndpointTemplate, strings.TrimSpace(repository), escapePath(branch))
	executionResult, callError := client.apiCall(executionContext, branchHeadOperationNameConstant, httpMethodGetConstant, endpoint, nil)
	if callError != nil {
		return "", callError
	}

	var response struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	if decodingError := json.Unmarshal([]byte(executionResult.StandardOutput), &response); decodingError != nil {
		return "", ResponseDecodingError{Operation: branchHeadOperationNameConstant, Cause: decodingError}
	}
	if len(response.Object.SHA) == 0 {
		return "", ResponseDecodingError{Operation: branchHeadOperationNameConstant, Cause: fmt.Errorf(emptyValueMessageTemplateConstant, shaFieldNameConstant)}
	}
	return response.Object.SHA, nil
}

// CreateBranchReference creates refs/heads/<branch> pointing at sha.
func (client *Client) CreateBranchReference(executionContext context.Context, repository string, branch string, sha string) error {
	if validationError := requireValue(repositoryFieldNameConstant, repository); validationError != nil {
		return validationError
	}
	if validationError := requireValue(branchFieldNameConstant, branch); validationError != nil {
		return validationError
	}
	if validationError := requireValue(shaFieldNameConstant, sha); validationError != nil {
		return validationError
	}

	payload := struct {
		Reference string `json:"ref"`
		SHA       string `json:"sha"`
	}{
		Reference: fmt.Sprintf(fullReferenceTemplateConstant, strings.TrimSpace(branch)),
		SHA:       strings.TrimSpace(sha),
	}

	endpoint := fmt.Sprintf(createReferenceEndpointTemplate, strings.TrimSpace(repository))
	_, callError := client.apiCall(executionContext, createReferenceOperationNameConstant, httpMethodPostConstant, endpoint, payload)
	return callError
}

// DeleteBranchReference removes refs/heads/<branch>.
func (client *Client) DeleteBranchReference(executionContext context.Context, repository string, branch string) error {
	if validationError := requireValue(repositoryFieldNameConstant, repository); validationError != nil {
		return validationError
	}
	if validationError := requireValue(branchFieldNameConstant, branch); validationError != nil {
		return validationError
	}

	endpoint := fmt.Sprintf(branchReferenceDeleteEndpointTemplate, strings.TrimSpace(repository), escapePath(branch))
	_, callError := client.apiCall(executionContext, deleteReferenceOperationNameConstant, httpMethodDeleteConstant, endpoint, nil)
	return callError
}

// GetFileContentSHA returns the blob SHA of path at reference.
func (client *Client) GetFileContentSHA(executionContext context.Context, repository string, path string, reference string) (string, error) {
	if validationError := requireValue(repositoryFieldNameConstant, repository); validationError != nil {
		return "", validationError
	}
	if validationError := requireValue(pathFieldNameConstant, path); validationError != nil {
		return "", validationError
	}

	endpoint := fmt.Sprintf(contentsEndpointTemplate, strings.TrimSpace(repository), escapePath(path))
	if len(strings.TrimSpace(reference)) > 0 {
		endpoint = fmt.Sprintf(contentsAtReferenceEndpointTemplate, strings.TrimSpace(repository), escapePath(path), url.QueryEscape(strings.TrimSpace(reference)))
	}

	executionResult, callError := client.apiCall(executionContext, fileContentSHAOperationNameConstant, httpMethodGetConstant, endpoint, nil)
	if callError != nil {
		return "", callError
	}

	var response struct {
		SHA string `json:"sha"`
	}
	if decodingError := json.Unmarshal([]byte(executionResult.StandardOutput), &response); decodingError != nil {
		return "", ResponseDecodingError{Operation: fileContentSHAOperationNameConstant, Cause: decodingError}
	}
	if len(response.SHA) == 0 {
		return "", ResponseDecodingError{Operation: fileContentSHAOperationNameConstant, Cause: fmt.Errorf(emptyValueMessageTemplateConstant, shaFieldNameConstant)}
	}
	return response.SHA, nil
}

// PutFileContents commits a replacement of an existing file on a branch.
func (client *Client) PutFileContents(executionContext context.Context, repository string, update FileUpdate) error {
	if validationError := requireValue(repositoryFieldNameConstant, repository); validationError != nil {
		return validationError
	}
	if validationError := requireValue(pathFieldNameConstant, update.Path); validationError != nil {
		return validationError
	}
	if validationError := requireValue(branchFieldNameConstant, update.Branch); validationError != nil {
		return validationError
	}
	if validationError := requireValue(messageFieldNameConstant, update.CommitMessage); validationError != nil {
		return validationError
	}

	payload := struct {
		Message string `json:"message"`
		Content string `json:"content"`
		Branch  string `json:"branch"`
		SHA     string `json:"sha,omitempty"`
	}{
		Message: update.CommitMessage,
		Content: update.EncodedContent,
		Branch:  strings.TrimSpace(update.Branch),
		SHA:     strings.TrimSpace(update.PreviousSHA),
	}

	endpoint := fmt.Sprintf(contentsEndpointTemplate, strings.TrimSpace(repository), escapePath(update.Path))
	_, callError := client.apiCall(executionContext, putFileContentsOperationNameConstant, httpMethodPutConstant, endpoint, payload)
	return callError
}

func escapePath(path string) string {
	segments := strings.Split(strings.Trim(strings.TrimSpace(path), pathSeparatorConstant), pathSeparatorConstant)
	for segmentIndex, segment := range segments {
		segments[segmentIndex] = url.PathEscape(segment)
	}
	return strings.Join(segments, pathSeparatorConstant)
}
