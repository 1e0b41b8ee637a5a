package remediation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/temirov/clawaudit/internal/githubcli"
	"github.com/temirov/clawaudit/internal/gitrepo"
)

const (
	// BranchPrefix starts the name of every remediation branch.
	BranchPrefix = "clawaudit/remediation-"

	branchSuffixLengthConstant         = 12
	uuidSeparatorConstant              = "-"
	clientNotConfiguredMessageConstant = "remediation publisher requires a github client"
	stepErrorTemplateConstant          = "remediation step %s failed: %v"
	requiredValueMessageConstant       = "value required"
	fieldFilePathConstant              = "file_path"
	fieldPatchedCodeConstant           = "patched_code"
	fieldTitleConstant                 = "title"
	commitMessageTemplateConstant      = "ClawAudit: remediate %s"
	defaultBodyTemplateConstant        = "Automated remediation generated by ClawAudit for `%s`.\n\nReview the patched code carefully before merging."
	invalidFieldTemplateConstant       = "%s: %s"

	pullRequestOpenedMessageConstant = "Remediation pull request opened"
	branchDeletedMessageConstant     = "Deleted remediation branch after file lookup failure"
	branchDeleteFailedMessageConst   = "Failed to delete remediation branch"
	logFieldRepositoryConstant       = "repository"
	logFieldBranchConstant           = "branch"
	logFieldFilePathConstant         = "file_path"
	logFieldPullRequestNumberConst   = "pull_request_number"
	logFieldPullRequestURLConstant   = "pull_request_url"
)

// Step names a stage of publishing a remediation.
type Step string

// Publishing stages, in order.
const (
	StepValidate          Step = Step("validate")
	StepResolveRepository Step = Step("resolve_repository")
	StepReadBranchHead    Step = Step("read_branch_head")
	StepCreateBranch      Step = Step("create_branch")
	StepReadFile          Step = Step("read_file")
	StepUpdateFile        Step = Step("update_file")
	StepOpenPullRequest   Step = Step("open_pull_request")
)

// ErrClientNotConfigured indicates a missing GitHub client.
var ErrClientNotConfigured = errors.New(clientNotConfiguredMessageConstant)

// StepError reports the stage at which publishing stopped.
type StepError struct {
	Step  Step
	Cause error
}

// Error describes the failed stage.
func (stepError StepError) Error() string {
	return fmt.Sprintf(stepErrorTemplateConstant, stepError.Step, stepError.Cause)
}

// Unwrap exposes the underlying cause.
func (stepError StepError) Unwrap() error {
	return stepError.Cause
}

// Request describes a patched file to propose as a pull request.
type Request struct {
	Repository  string
	FilePath    string
	PatchedCode string
	Title       string
	Body        string

	// Token authenticates this request only. Blank falls back to the ambient GitHub token.
	Token string

	// DeleteBranchOnMissingFile removes the freshly created branch when the file cannot be read.
	DeleteBranchOnMissingFile bool
}

// PullRequest identifies an opened remediation pull request.
type PullRequest struct {
	Number     int    `json:"number"`
	URL        string `json:"url"`
	BranchName string `json:"branch_name"`
}

// BranchNamer produces a new remediation branch name.
type BranchNamer func() string

// Publisher proposes patched files as pull requests against a repository's default branch.
type Publisher struct {
	client      *githubcli.Client
	branchNamer BranchNamer
	logger      *zap.Logger
}

// NewPublisher constructs a Publisher.
func NewPublisher(client *githubcli.Client, logger *zap.Logger) (*Publisher, error) {
	if client == nil {
		return nil, ErrClientNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{client: client, branchNamer: NewBranchName, logger: logger}, nil
}

// NewBranchName returns BranchPrefix followed by twelve hexadecimal characters of a random UUID.
func NewBranchName() string {
	suffix := strings.ReplaceAll(uuid.NewString(), uuidSeparatorConstant, "")
	return BranchPrefix + suffix[:branchSuffixLengthConstant]
}

// CreatePullRequest creates a branch from the default branch, commits the patched file to it and
// opens a pull request. A file lookup failure leaves the new branch in place unless the request
// asks for its deletion.
func (publisher *Publisher) CreatePullRequest(publishContext context.Context, request Request) (PullRequest, error) {
	remote, parseError := gitrepo.ParseRepositoryIdentifier(request.Repository)
	if parseError != nil {
		return PullRequest{}, StepError{Step: StepValidate, Cause: parseError}
	}
	filePath := strings.Trim(strings.TrimSpace(request.FilePath), "/")
	requiredFields := []struct {
		name  string
		value string
	}{
		{name: fieldFilePathConstant, value: filePath},
		{name: fieldPatchedCodeConstant, value: request.PatchedCode},
		{name: fieldTitleConstant, value: request.Title},
	}
	for _, requiredField := range requiredFields {
		if len(strings.TrimSpace(requiredField.value)) == 0 {
			return PullRequest{}, StepError{Step: StepValidate, Cause: fmt.Errorf(invalidFieldTemplateConstant, requiredField.name, requiredValueMessageConstant)}
		}
	}

	repository := remote.FullName()
	client := publisher.client.WithToken(request.Token)

	metadata, metadataError := client.ResolveRepoMetadata(publishContext, repository)
	if metadataError != nil {
		return PullRequest{}, StepError{Step: StepResolveRepository, Cause: metadataError}
	}
	defaultBranch := metadata.DefaultBranch

	headSHA, headError := client.GetBranchHeadSHA(publishContext, repository, defaultBranch)
	if headError != nil {
		return PullRequest{}, StepError{Step: StepReadBranchHead, Cause: headError}
	}

	branchName := publisher.branchNamer()
	if createError := client.CreateBranchReference(publishContext, repository, branchName, headSHA); createError != nil {
		return PullRequest{}, StepError{Step: StepCreateBranch, Cause: createError}
	}

	fileSHA, fileError := client.GetFileContentSHA(publishContext, repository, filePath, defaultBranch)
	if fileError != nil {
		if request.DeleteBranchOnMissingFile {
			publisher.deleteBranch(publishContext, client, repository, branchName)
		}
		return PullRequest{}, StepError{Step: StepReadFile, Cause: fileError}
	}

	update := githubcli.FileUpdate{
		Path:           filePath,
		CommitMessage:  fmt.Sprintf(commitMessageTemplateConstant, filePath),
		Branch:         branchName,
		EncodedContent: base64.StdEncoding.EncodeToString([]byte(request.PatchedCode)),
		PreviousSHA:    fileSHA,
	}
	if updateError := client.PutFileContents(publishContext, repository, update); updateError != nil {
		return PullRequest{}, StepError{Step: StepUpdateFile, Cause: updateError}
	}

	body := strings.TrimSpace(request.Body)
	if len(body) == 0 {
		body = fmt.Sprintf(defaultBodyTemplateConstant, filePath)
	}
	created, pullRequestError := client.CreatePullRequest(publishContext, repository, githubcli.PullRequestCreation{
		Title: strings.TrimSpace(request.Title),
		Body:  body,
		Head:  branchName,
		Base:  defaultBranch,
	})
	if pullRequestError != nil {
		return PullRequest{}, StepError{Step: StepOpenPullRequest, Cause: pullRequestError}
	}

	publisher.logger.Info(
		pullRequestOpenedMessageConstant,
		zap.String(logFieldRepositoryConstant, repository),
		zap.String(logFieldBranchConstant, branchName),
		zap.String(logFieldFilePathConstant, filePath),
		zap.Int(logFieldPullRequestNumberConst, created.Number),
		zap.String(logFieldPullRequestURLConstant, created.URL),
	)
	return PullRequest{Number: created.Number, URL: created.URL, BranchName: branchName}, nil
}

func (publisher *Publisher) deleteBranch(publishContext context.Context, client *githubcli.Client, repository string, branchName string) {
	if deleteError := client.DeleteBranchReference(publishContext, repository, branchName); deleteError != nil {
		publisher.logger.Warn(branchDeleteFailedMessageConst, zap.String(logFieldRepositoryConstant, repository), zap.String(logFieldBranchConstant, branchName), zap.Error(deleteError))
		return
	}
	publisher.logger.Info(branchDeletedMessageConstant, zap.String(logFieldRepositoryConstant, repository), zap.String(logFieldBranchConstant, branchName))
}
