package execshell

import (
	"fmt"
	"strings"
)

type messageStage int

const (
	messageStageStart messageStage = iota
	messageStageSuccess
	messageStageFailure
	messageStageExecutionFailure
)

const (
	genericStartTemplateConstant            = "Running %s"
	genericSuccessTemplateConstant          = "Completed %s"
	genericFailureTemplateConstant          = "%s failed with exit code %d%s"
	genericExecutionFailureTemplateConstant = "%s failed: %s"
	workingDirectorySuffixTemplateConstant  = " (in %s)"
	commandArgumentsJoinSeparatorConstant   = " "
	standardErrorSuffixTemplateConstant     = ": %s"
	unknownFailureMessageConstant           = "unknown error"
	emptyStringConstant                     = ""
	maximumStandardErrorSuffixLengthConst   = 240
	truncationMarkerConstant                = "..."
)

const (
	githubAPISubcommandNameConstant           = "api"
	githubMethodFlagConstant                  = "-X"
	githubDefaultMethodConstant               = "GET"
	githubRepoSubcommandNameConstant          = "repo"
	githubRepoViewSubcommandNameConstant      = "view"
	githubAPIStartTemplateConstant            = "Calling GitHub API %s %s"
	githubAPISuccessTemplateConstant          = "GitHub API %s %s succeeded"
	githubAPIFailureTemplateConstant          = "GitHub API %s %s failed with exit code %d%s"
	githubAPIExecutionFailureTemplateConst    = "Unable to call GitHub API %s %s: %s"
	githubRepoViewStartTemplateConstant       = "Retrieving repository details for %s"
	githubRepoViewSuccessTemplateConstant     = "Retrieved repository details for %s"
	githubRepoViewFailureTemplateConstant     = "Failed to retrieve repository details for %s (exit code %d%s)"
	githubRepoViewExecutionFailureTemplate    = "Unable to retrieve repository details for %s: %s"
	githubFlagPrefixConstant                  = "-"
	githubRepoViewIdentificationArgCountConst = 3
)

// CommandMessageFormatter builds human-readable messages for command lifecycle events.
type CommandMessageFormatter struct{}

// DescribeCommand renders the command label used in log fields.
func (formatter CommandMessageFormatter) DescribeCommand(command ShellCommand) string {
	trimmedLabel := strings.TrimSpace(command.Details.DisplayLabel)
	if len(trimmedLabel) > 0 {
		return trimmedLabel + formatter.describeWorkingDirectory(command)
	}

	commandParts := []string{string(command.Name)}
	if len(command.Details.Arguments) > 0 {
		commandParts = append(commandParts, strings.Join(command.Details.Arguments, commandArgumentsJoinSeparatorConstant))
	}
	return strings.Join(commandParts, commandArgumentsJoinSeparatorConstant) + formatter.describeWorkingDirectory(command)
}

// BuildStartedMessage formats the message describing a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageStart)
}

// BuildSuccessMessage formats the message describing a completed command with a zero exit code.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageSuccess)
}

// BuildFailureMessage formats the message describing a command that returned a non-zero exit code.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	return formatter.buildMessage(command, result, nil, messageStageFailure)
}

// BuildExecutionFailureMessage formats the message describing an unexpected execution failure.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	return formatter.buildMessage(command, ExecutionResult{}, failure, messageStageExecutionFailure)
}

func (formatter CommandMessageFormatter) buildMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	if command.Name == CommandGitHub && len(strings.TrimSpace(command.Details.DisplayLabel)) == 0 {
		return formatter.describeGitHubMessage(command, result, failure, stage)
	}
	return formatter.buildGenericMessage(command, result, failure, stage)
}

func (formatter CommandMessageFormatter) describeGitHubMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	arguments := command.Details.Arguments
	if len(arguments) == 0 {
		return formatter.buildGenericMessage(command, result, failure, stage)
	}

	switch strings.TrimSpace(arguments[0]) {
	case githubAPISubcommandNameConstant:
		method, endpoint := formatter.resolveAPIMethodAndEndpoint(arguments[1:])
		switch stage {
		case messageStageStart:
			return fmt.Sprintf(githubAPIStartTemplateConstant, method, endpoint)
		case messageStageSuccess:
			return fmt.Sprintf(githubAPISuccessTemplateConstant, method, endpoint)
		case messageStageFailure:
			return fmt.Sprintf(githubAPIFailureTemplateConstant, method, endpoint, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
		case messageStageExecutionFailure:
			return fmt.Sprintf(githubAPIExecutionFailureTemplateConst, method, endpoint, formatter.describeFailure(failure))
		}
	case githubRepoSubcommandNameConstant:
		if len(arguments) >= githubRepoViewIdentificationArgCountConst && strings.TrimSpace(arguments[1]) == githubRepoViewSubcommandNameConstant {
			repository := strings.TrimSpace(arguments[2])
			switch stage {
			case messageStageStart:
				return fmt.Sprintf(githubRepoViewStartTemplateConstant, repository)
			case messageStageSuccess:
				return fmt.Sprintf(githubRepoViewSuccessTemplateConstant, repository)
			case messageStageFailure:
				return fmt.Sprintf(githubRepoViewFailureTemplateConstant, repository, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
			case messageStageExecutionFailure:
				return fmt.Sprintf(githubRepoViewExecutionFailureTemplate, repository, formatter.describeFailure(failure))
			}
		}
	}

	return formatter.buildGenericMessage(command, result, failure, stage)
}

func (formatter CommandMessageFormatter) resolveAPIMethodAndEndpoint(arguments []string) (string, string) {
	method := githubDefaultMethodConstant
	endpoint := emptyStringConstant
	for argumentIndex := 0; argumentIndex < len(arguments); argumentIndex++ {
		argument := strings.TrimSpace(arguments[argumentIndex])
		if argument == githubMethodFlagConstant && argumentIndex+1 < len(arguments) {
			method = strings.ToUpper(strings.TrimSpace(arguments[argumentIndex+1]))
			argumentIndex++
			continue
		}
		if len(endpoint) == 0 && len(argument) > 0 && !strings.HasPrefix(argument, githubFlagPrefixConstant) {
			endpoint = argument
		}
	}
	return method, endpoint
}

func (formatter CommandMessageFormatter) buildGenericMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	commandLabel := formatter.DescribeCommand(command)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(genericStartTemplateConstant, commandLabel)
	case messageStageSuccess:
		return fmt.Sprintf(genericSuccessTemplateConstant, commandLabel)
	case messageStageFailure:
		return fmt.Sprintf(genericFailureTemplateConstant, commandLabel, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	default:
		return fmt.Sprintf(genericExecutionFailureTemplateConstant, commandLabel, formatter.describeFailure(failure))
	}
}

func (formatter CommandMessageFormatter) describeWorkingDirectory(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(workingDirectorySuffixTemplateConstant, trimmedWorkingDirectory)
}

func (formatter CommandMessageFormatter) formatStandardErrorSuffix(standardError string) string {
	trimmedStandardError := trimmedOutput(standardError)
	if len(trimmedStandardError) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmedStandardError)
}

func (formatter CommandMessageFormatter) describeFailure(failure error) string {
	if failure == nil {
		return unknownFailureMessageConstant
	}
	return failure.Error()
}

// trimmedOutput collapses surrounding whitespace and bounds the length of output quoted in messages.
func trimmedOutput(output string) string {
	trimmed := strings.TrimSpace(output)
	if len(trimmed) <= maximumStandardErrorSuffixLengthConst {
		return trimmed
	}
	return trimmed[:maximumStandardErrorSuffixLengthConst] + truncationMarkerConstant
}
