package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/clawaudit/internal/agent"
	"github.com/temirov/clawaudit/internal/credentials"
	"github.com/temirov/clawaudit/internal/githubcli"
	"github.com/temirov/clawaudit/internal/notify"
	"github.com/temirov/clawaudit/internal/patch"
	"github.com/temirov/clawaudit/internal/remediation"
)

const (
	// DefaultContractExtension selects the files eligible for remediation.
	DefaultContractExtension = ".sol"
	// EmptyReviewPlaceholder is posted when the agent produced no review.
	EmptyReviewPlaceholder = "ClawAudit could not produce a review for this pull request."

	unsupportedEventTemplateConstant    = "unsupported event %q"
	unsupportedActionTemplateConstant   = "unsupported action %q"
	fetchDiffErrorTemplateConstant      = "fetch pull request files: %w"
	postCommentErrorTemplateConstant    = "post review comment: %w"
	skipNoPatchConstant                 = "review contains no patched code section"
	skipPublisherMissingConstant        = "remediation publisher not configured"
	skipNoContractFileTemplate          = "no changed %s file"
	skipMultipleContractFilesTemplate   = "%d changed %s files; remediation handles exactly one"
	remediationTitleTemplateConstant    = "ClawAudit remediation for PR #%d"
	remediationBodyTemplateConstant     = "Automated remediation proposed by ClawAudit for `%s`, following the review of #%d.\n\nReview the patched code carefully before merging."
	followUpCommentTemplateConstant     = "ClawAudit opened remediation pull request #%d: %s"
	notificationTemplateConstant        = "ClawAudit review completed for %s PR #%d"
	notificationRemediationTemplate     = "%s, remediation PR #%d"
	githubClientRequiredMessageConstant = "webhook handler requires a github client"
	invokerRequiredMessageConstant      = "webhook handler requires an agent invoker"

	reviewPromptTemplate = `You are an elite smart contract security auditor reviewing pull request #%d in %s.
Review the following unified diff for security vulnerabilities (e.g. Reentrancy, Access Control flaws, Overflow risks).

Diff:
%s

Respond with a single Markdown review body and nothing else. Do NOT use any messaging skill and do NOT post to any channel.
List each finding with severity, location, and remediation.
If exactly one contract file needs a fix, add a "## Patched code" section containing the complete corrected file in one solidity fenced code block.`

	deliveryIgnoredMessageConstant   = "Webhook delivery ignored"
	reviewLaunchFailedMessageConst   = "Review agent could not be launched"
	reviewFinishedMessageConstant    = "Review agent finished"
	reviewPostedMessageConstant      = "Review comment posted"
	remediationSkippedMessageConst   = "Remediation skipped"
	remediationFailedMessageConst    = "Remediation failed"
	followUpFailedMessageConstant    = "Failed to post remediation follow-up comment"
	notificationSkippedMessageConst  = "Public notification not configured"
	deliveryCompletedMessageConstant = "Webhook delivery completed"
	logFieldEventConstant            = "event"
	logFieldActionConstant           = "action"
	logFieldReasonConstant           = "reason"
	logFieldRepositoryConstant       = "repository"
	logFieldPullRequestConstant      = "pull_request_number"
	logFieldExitCodeConstant         = "exit_code"
	logFieldChangedFilesConstant     = "changed_files"
	logFieldRemediationNumberConst   = "remediation_pull_request_number"
)

var (
	// ErrGitHubClientRequired indicates a missing GitHub client.
	ErrGitHubClientRequired = errors.New(githubClientRequiredMessageConstant)
	// ErrInvokerRequired indicates a missing agent invoker.
	ErrInvokerRequired = errors.New(invokerRequiredMessageConstant)
)

// Status is the terminal state of a delivery.
type Status string

// Delivery outcomes.
const (
	StatusIgnored   Status = Status("ignored")
	StatusCompleted Status = Status("completed")
	StatusError     Status = Status("error")
)

// Result reports what a delivery did.
type Result struct {
	Status            Status                   `json:"status"`
	Reason            string                   `json:"reason,omitempty"`
	Repository        string                   `json:"repository,omitempty"`
	PullRequestNumber int                      `json:"pull_request_number,omitempty"`
	Remediation       *remediation.PullRequest `json:"remediation,omitempty"`
	SkipReason        string                   `json:"skip_reason,omitempty"`
	RemediationError  string                   `json:"remediation_error,omitempty"`
}

// GitHubClient reads pull request files and posts comments.
type GitHubClient interface {
	ListPullRequestFiles(executionContext context.Context, repository string, pullRequestNumber int) ([]githubcli.PullRequestFile, error)
	CreateIssueComment(executionContext context.Context, repository string, issueNumber int, body string) error
}

// AgentInvoker runs the review agent once.
type AgentInvoker interface {
	Invoke(invocationContext context.Context, invocation agent.Invocation) (agent.Result, error)
}

// RemediationPublisher opens remediation pull requests.
type RemediationPublisher interface {
	CreatePullRequest(publishContext context.Context, request remediation.Request) (remediation.PullRequest, error)
}

// NotificationDispatcher delivers best-effort notifications.
type NotificationDispatcher interface {
	Dispatch(channel notify.Channel, sender notify.Sender, message notify.Message)
}

// Configuration tunes the handler.
type Configuration struct {
	Secret            string `mapstructure:"secret" yaml:"secret"`
	ContractExtension string `mapstructure:"contract_extension" yaml:"contract_extension"`
}

// Dependencies wire a Handler. Publisher, PublicSender and Dispatcher are optional.
type Dependencies struct {
	GitHub        GitHubClient
	Invoker       AgentInvoker
	Publisher     RemediationPublisher
	Credentials   credentials.Set
	PublicSender  notify.Sender
	Dispatcher    NotificationDispatcher
	Configuration Configuration
	Logger        *zap.Logger
}

// Handler reviews pull requests on delivery and proposes single-file remediations.
type Handler struct {
	github            GitHubClient
	invoker           AgentInvoker
	publisher         RemediationPublisher
	credentialSet     credentials.Set
	publicSender      notify.Sender
	dispatcher        NotificationDispatcher
	contractExtension string
	logger            *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(dependencies Dependencies) (*Handler, error) {
	if dependencies.GitHub == nil {
		return nil, ErrGitHubClientRequired
	}
	if dependencies.Invoker == nil {
		return nil, ErrInvokerRequired
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	contractExtension := strings.TrimSpace(dependencies.Configuration.ContractExtension)
	if len(contractExtension) == 0 {
		contractExtension = DefaultContractExtension
	}
	return &Handler{
		github:            dependencies.GitHub,
		invoker:           dependencies.Invoker,
		publisher:         dependencies.Publisher,
		credentialSet:     dependencies.Credentials,
		publicSender:      dependencies.PublicSender,
		dispatcher:        dependencies.Dispatcher,
		contractExtension: contractExtension,
		logger:            logger,
	}, nil
}

// Handle processes one delivery. Unsupported events and actions are ignored without side
// effects. A non-nil error accompanies every StatusError result.
func (handler *Handler) Handle(handleContext context.Context, eventType string, payload []byte) (Result, error) {
	eventType = strings.TrimSpace(eventType)
	if eventType != EventPullRequest {
		return handler.ignore(eventType, "", fmt.Sprintf(unsupportedEventTemplateConstant, eventType)), nil
	}

	event, parseError := parsePullRequestEvent(payload)
	if parseError != nil {
		return Result{Status: StatusError, Reason: parseError.Error()}, parseError
	}
	if !supportedAction(event.Action) {
		return handler.ignore(eventType, event.Action, fmt.Sprintf(unsupportedActionTemplateConstant, event.Action)), nil
	}
	if validationError := event.validate(); validationError != nil {
		return Result{Status: StatusError, Reason: validationError.Error()}, validationError
	}

	result := Result{Repository: event.Repository.FullName, PullRequestNumber: event.Number}
	logger := handler.logger.With(zap.String(logFieldRepositoryConstant, result.Repository), zap.Int(logFieldPullRequestConstant, result.PullRequestNumber))

	files, listError := handler.github.ListPullRequestFiles(handleContext, result.Repository, result.PullRequestNumber)
	if listError != nil {
		return handler.fail(result, fmt.Errorf(fetchDiffErrorTemplateConstant, listError))
	}
	task := AuditTask{
		RepositoryFullName: result.Repository,
		PullRequestNumber:  result.PullRequestNumber,
		Action:             event.Action,
		UnifiedDiff:        unifiedDiff(files),
		ChangedFiles:       changedFileNames(files),
		RemainingFiles:     remainingFileNames(files),
	}

	review := handler.review(handleContext, task, logger)
	commentBody := strings.TrimSpace(review)
	if len(commentBody) == 0 {
		commentBody = EmptyReviewPlaceholder
	}
	if commentError := handler.github.CreateIssueComment(handleContext, task.RepositoryFullName, task.PullRequestNumber, commentBody); commentError != nil {
		return handler.fail(result, fmt.Errorf(postCommentErrorTemplateConstant, commentError))
	}
	logger.Info(reviewPostedMessageConstant)

	handler.remediate(handleContext, task, commentBody, &result, logger)
	handler.notify(task, result.Remediation, logger)

	result.Status = StatusCompleted
	logger.Info(deliveryCompletedMessageConstant)
	return result, nil
}

func (handler *Handler) ignore(eventType string, action string, reason string) Result {
	handler.logger.Info(deliveryIgnoredMessageConstant, zap.String(logFieldEventConstant, eventType), zap.String(logFieldActionConstant, action), zap.String(logFieldReasonConstant, reason))
	return Result{Status: StatusIgnored, Reason: reason}
}

func (handler *Handler) fail(result Result, failure error) (Result, error) {
	result.Status = StatusError
	result.Reason = failure.Error()
	return result, failure
}

// review runs the agent once with the primary credential. Any exit code is accepted and a
// launch failure yields an empty review.
func (handler *Handler) review(handleContext context.Context, task AuditTask, logger *zap.Logger) string {
	invocation := agent.Invocation{
		Prompt:     fmt.Sprintf(reviewPromptTemplate, task.PullRequestNumber, task.RepositoryFullName, task.UnifiedDiff),
		Credential: handler.credentialSet.Primary(),
	}
	agentResult, invokeError := handler.invoker.Invoke(handleContext, invocation)
	if invokeError != nil {
		logger.Warn(reviewLaunchFailedMessageConst, zap.Error(invokeError))
		return ""
	}
	logger.Info(reviewFinishedMessageConstant, zap.Int(logFieldExitCodeConstant, agentResult.ExitCode))
	return agentResult.StandardOutput
}

func (handler *Handler) remediate(handleContext context.Context, task AuditTask, commentBody string, result *Result, logger *zap.Logger) {
	patchedCode, extracted := patch.Extract(commentBody)
	if !extracted {
		handler.skip(result, skipNoPatchConstant, task, logger)
		return
	}
	candidates := contractFiles(task.RemainingFiles, handler.contractExtension)
	switch len(candidates) {
	case 1:
	case 0:
		handler.skip(result, fmt.Sprintf(skipNoContractFileTemplate, handler.contractExtension), task, logger)
		return
	default:
		handler.skip(result, fmt.Sprintf(skipMultipleContractFilesTemplate, len(candidates), handler.contractExtension), task, logger)
		return
	}
	if handler.publisher == nil {
		handler.skip(result, skipPublisherMissingConstant, task, logger)
		return
	}

	pullRequest, publishError := handler.publisher.CreatePullRequest(handleContext, remediation.Request{
		Repository:                task.RepositoryFullName,
		FilePath:                  candidates[0],
		PatchedCode:               patchedCode,
		Title:                     fmt.Sprintf(remediationTitleTemplateConstant, task.PullRequestNumber),
		Body:                      fmt.Sprintf(remediationBodyTemplateConstant, candidates[0], task.PullRequestNumber),
		DeleteBranchOnMissingFile: true,
	})
	if publishError != nil {
		result.RemediationError = publishError.Error()
		logger.Warn(remediationFailedMessageConst, zap.Error(publishError))
		return
	}
	result.Remediation = &pullRequest

	followUp := fmt.Sprintf(followUpCommentTemplateConstant, pullRequest.Number, pullRequest.URL)
	if commentError := handler.github.CreateIssueComment(handleContext, task.RepositoryFullName, task.PullRequestNumber, followUp); commentError != nil {
		logger.Warn(followUpFailedMessageConstant, zap.Int(logFieldRemediationNumberConst, pullRequest.Number), zap.Error(commentError))
	}
}

func (handler *Handler) skip(result *Result, reason string, task AuditTask, logger *zap.Logger) {
	result.SkipReason = reason
	logger.Info(remediationSkippedMessageConst, zap.String(logFieldReasonConstant, reason), zap.Strings(logFieldChangedFilesConstant, task.ChangedFiles))
}

// notify composes the public message itself so no agent output reaches the public channel.
func (handler *Handler) notify(task AuditTask, remediationPullRequest *remediation.PullRequest, logger *zap.Logger) {
	if handler.publicSender == nil || handler.dispatcher == nil {
		logger.Debug(notificationSkippedMessageConst)
		return
	}
	content := fmt.Sprintf(notificationTemplateConstant, task.RepositoryFullName, task.PullRequestNumber)
	if remediationPullRequest != nil {
		content = fmt.Sprintf(notificationRemediationTemplate, content, remediationPullRequest.Number)
	}
	handler.dispatcher.Dispatch(notify.ChannelMoltbook, handler.publicSender, notify.Message{Content: content})
}
