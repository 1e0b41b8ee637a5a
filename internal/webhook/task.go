package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/temirov/clawaudit/internal/githubcli"
)

const (
	// EventPullRequest is the X-GitHub-Event value of pull request deliveries.
	EventPullRequest = "pull_request"
	// ActionOpened marks a newly opened pull request.
	ActionOpened = "opened"
	// ActionSynchronize marks new commits pushed to a pull request.
	ActionSynchronize = "synchronize"

	// NoDiffPlaceholder stands in for the diff when no changed file carries patch text.
	NoDiffPlaceholder = "(no textual diff available for this pull request)"

	// FileStatusRemoved is the pull request file status of a deleted file.
	FileStatusRemoved = "removed"

	diffBlockTemplateConstant        = "--- a/%s\n+++ b/%s\n%s"
	diffBlockSeparatorConstant       = "\n"
	payloadErrorTemplateConstant     = "invalid webhook payload: %s"
	payloadDecodeMessageTemplate     = "decode: %v"
	repositoryMissingMessageConstant = "repository full_name missing"
	numberMissingMessageConstant     = "pull request number missing"
)

// PayloadError reports a pull request delivery that could not be understood.
type PayloadError struct {
	Message string
}

// Error describes the payload problem.
func (payloadError PayloadError) Error() string {
	return fmt.Sprintf(payloadErrorTemplateConstant, payloadError.Message)
}

// AuditTask is the work derived from one pull request delivery. It is never persisted.
type AuditTask struct {
	RepositoryFullName string
	PullRequestNumber  int
	Action             string
	UnifiedDiff        string
	ChangedFiles       []string

	// RemainingFiles are the changed files that still exist at the head of the pull request.
	RemainingFiles []string
}

type pullRequestEvent struct {
	Action      string `json:"action"`
	Number      int    `json:"number"`
	PullRequest struct {
		Number int `json:"number"`
	} `json:"pull_request"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

func parsePullRequestEvent(payload []byte) (pullRequestEvent, error) {
	var event pullRequestEvent
	if decodeError := json.Unmarshal(payload, &event); decodeError != nil {
		return pullRequestEvent{}, PayloadError{Message: fmt.Sprintf(payloadDecodeMessageTemplate, decodeError)}
	}
	event.Action = strings.TrimSpace(event.Action)
	event.Repository.FullName = strings.TrimSpace(event.Repository.FullName)
	if event.Number == 0 {
		event.Number = event.PullRequest.Number
	}
	return event, nil
}

func (event pullRequestEvent) validate() error {
	if len(event.Repository.FullName) == 0 {
		return PayloadError{Message: repositoryMissingMessageConstant}
	}
	if event.Number <= 0 {
		return PayloadError{Message: numberMissingMessageConstant}
	}
	return nil
}

func supportedAction(action string) bool {
	return action == ActionOpened || action == ActionSynchronize
}

// unifiedDiff concatenates per-file patches in listing order.
func unifiedDiff(files []githubcli.PullRequestFile) string {
	blocks := make([]string, 0, len(files))
	for _, file := range files {
		if len(strings.TrimSpace(file.Patch)) == 0 {
			continue
		}
		blocks = append(blocks, fmt.Sprintf(diffBlockTemplateConstant, file.Filename, file.Filename, file.Patch))
	}
	if len(blocks) == 0 {
		return NoDiffPlaceholder
	}
	return strings.Join(blocks, diffBlockSeparatorConstant)
}

func changedFileNames(files []githubcli.PullRequestFile) []string {
	names := make([]string, 0, len(files))
	for _, file := range files {
		names = append(names, file.Filename)
	}
	return names
}

func remainingFileNames(files []githubcli.PullRequestFile) []string {
	names := make([]string, 0, len(files))
	for _, file := range files {
		if strings.EqualFold(file.Status, FileStatusRemoved) {
			continue
		}
		names = append(names, file.Filename)
	}
	return names
}

func contractFiles(changedFiles []string, extension string) []string {
	normalizedExtension := strings.ToLower(extension)
	var matches []string
	for _, changedFile := range changedFiles {
		if strings.HasSuffix(strings.ToLower(changedFile), normalizedExtension) {
			matches = append(matches, changedFile)
		}
	}
	return matches
}
