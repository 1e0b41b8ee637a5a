package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/clawaudit/internal/execshell"
)

const (
	// DefaultRuntimeBinary launches the agent container.
	DefaultRuntimeBinary = "docker"
	// DefaultContainerName is the long-running container hosting the agent.
	DefaultContainerName = "clawaudit_bunker"
	// DefaultCredentialVariable carries the agent provider key into the container.
	DefaultCredentialVariable = "GEMINI_API_KEY"
	// DefaultPromptFlag precedes the prompt argument.
	DefaultPromptFlag = "-m"
	// DefaultAuthProfilePath is the host side of the agent's mounted state directory.
	DefaultAuthProfilePath = "agent_config/agents/main/agent/auth-profiles.json"

	execSubcommandConstant                = "exec"
	environmentFlagConstant               = "-e"
	argumentSeparatorConstant             = " "
	displayLabelTemplateConstant          = "%s exec %s %s (prompt %d chars)"
	executorNotConfiguredMessageConstant  = "agent command executor not configured"
	credentialRequiredMessageConstant     = "agent credential required"
	promptRequiredMessageConstant         = "agent prompt required"
	authProfileSyncErrorTemplateConstant  = "synchronize auth profile: %w"
	launchErrorTemplateConstant           = "launch agent: %w"
	agentFinishedMessageConstant          = "Agent invocation finished"
	authProfileSynchronizedMessageConst   = "Agent auth profile synchronized"
	logFieldExitCodeConstant              = "exit_code"
	logFieldStandardOutputBytesConstant   = "stdout_bytes"
	logFieldStandardErrorBytesConstant    = "stderr_bytes"
	logFieldAuthProfilePathConstant       = "auth_profile_path"
	logFieldAuthProfileNameConstant       = "auth_profile"
	logFieldSecretVariableCountConstant   = "secret_variables"
	logFieldContainerConstant             = "container"
	logFieldDurationMillisecondsConstant  = "duration_ms"
	defaultAgentCommandArgumentsConstant  = "npx openclaw agent --agent main"
	defaultAuthProfileNameConstant        = "google:default"
	invocationTimeoutDisabledConstant     = time.Duration(0)
	environmentVariableNameSeparatorConst = "="
)

var (
	// ErrExecutorNotConfigured indicates the invoker was constructed without an executor.
	ErrExecutorNotConfigured = errors.New(executorNotConfiguredMessageConstant)
	// ErrCredentialRequired indicates an invocation without a credential.
	ErrCredentialRequired = errors.New(credentialRequiredMessageConstant)
	// ErrPromptRequired indicates an invocation without a prompt.
	ErrPromptRequired = errors.New(promptRequiredMessageConstant)
)

// CommandExecutor runs a command; execshell.ShellExecutor satisfies it.
type CommandExecutor interface {
	Execute(executionContext context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error)
}

// Configuration describes how the agent is launched.
type Configuration struct {
	RuntimeBinary      string        `mapstructure:"runtime" yaml:"runtime"`
	ContainerName      string        `mapstructure:"container" yaml:"container"`
	Command            []string      `mapstructure:"command" yaml:"command"`
	PromptFlag         string        `mapstructure:"prompt_flag" yaml:"prompt_flag"`
	CredentialVariable string        `mapstructure:"credential_variable" yaml:"credential_variable"`
	AuthProfilePath    string        `mapstructure:"auth_profile_path" yaml:"auth_profile_path"`
	AuthProfileName    string        `mapstructure:"auth_profile_name" yaml:"auth_profile_name"`
	Timeout            time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// DefaultConfiguration returns the container layout used in production.
func DefaultConfiguration() Configuration {
	return Configuration{
		RuntimeBinary:      DefaultRuntimeBinary,
		ContainerName:      DefaultContainerName,
		Command:            strings.Fields(defaultAgentCommandArgumentsConstant),
		PromptFlag:         DefaultPromptFlag,
		CredentialVariable: DefaultCredentialVariable,
		AuthProfilePath:    DefaultAuthProfilePath,
		AuthProfileName:    defaultAuthProfileNameConstant,
	}
}

func (configuration Configuration) withDefaults() Configuration {
	defaults := DefaultConfiguration()
	if len(strings.TrimSpace(configuration.RuntimeBinary)) == 0 {
		configuration.RuntimeBinary = defaults.RuntimeBinary
	}
	if len(strings.TrimSpace(configuration.ContainerName)) == 0 {
		configuration.ContainerName = defaults.ContainerName
	}
	if len(configuration.Command) == 0 {
		configuration.Command = defaults.Command
	}
	if len(strings.TrimSpace(configuration.PromptFlag)) == 0 {
		configuration.PromptFlag = defaults.PromptFlag
	}
	if len(strings.TrimSpace(configuration.CredentialVariable)) == 0 {
		configuration.CredentialVariable = defaults.CredentialVariable
	}
	if len(strings.TrimSpace(configuration.AuthProfileName)) == 0 {
		configuration.AuthProfileName = defaults.AuthProfileName
	}
	if configuration.Timeout < invocationTimeoutDisabledConstant {
		configuration.Timeout = invocationTimeoutDisabledConstant
	}
	return configuration
}

// Invocation is a single request to the agent.
type Invocation struct {
	Prompt     string
	Credential string

	// Secrets are additional environment variables for the agent, such as notification tokens.
	Secrets map[string]string
}

// Result captures the agent's output streams and exit code.
type Result struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
}

// Succeeded reports a zero exit code.
func (result Result) Succeeded() bool {
	return result.ExitCode == 0
}

// Invoker runs the external audit agent inside its container.
type Invoker struct {
	configuration Configuration
	executor      CommandExecutor
	profileSyncer *AuthProfileSynchronizer
	logger        *zap.Logger

	// profileMutex is held from profile sync until the agent exits.
	profileMutex sync.Mutex
}

// NewInvoker constructs an Invoker.
func NewInvoker(configuration Configuration, executor CommandExecutor, logger *zap.Logger) (*Invoker, error) {
	if executor == nil {
		return nil, ErrExecutorNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	resolvedConfiguration := configuration.withDefaults()
	return &Invoker{
		configuration: resolvedConfiguration,
		executor:      executor,
		profileSyncer: NewAuthProfileSynchronizer(resolvedConfiguration.AuthProfilePath, resolvedConfiguration.AuthProfileName),
		logger:        logger,
	}, nil
}

// Invoke runs the agent once. A non-zero exit code is reported in Result; an error means the
// agent could not be launched or its auth profile could not be prepared.
func (invoker *Invoker) Invoke(invocationContext context.Context, invocation Invocation) (Result, error) {
	if len(strings.TrimSpace(invocation.Prompt)) == 0 {
		return Result{}, ErrPromptRequired
	}
	credential := strings.TrimSpace(invocation.Credential)
	if len(credential) == 0 {
		return Result{}, ErrCredentialRequired
	}

	if invoker.profileSyncer.Enabled() {
		invoker.profileMutex.Lock()
		defer invoker.profileMutex.Unlock()
	}

	synchronized, syncError := invoker.profileSyncer.Synchronize(credential)
	if syncError != nil {
		return Result{}, fmt.Errorf(authProfileSyncErrorTemplateConstant, syncError)
	}
	if synchronized {
		invoker.logger.Debug(
			authProfileSynchronizedMessageConst,
			zap.String(logFieldAuthProfilePathConstant, invoker.configuration.AuthProfilePath),
			zap.String(logFieldAuthProfileNameConstant, invoker.configuration.AuthProfileName),
		)
	}

	if invoker.configuration.Timeout > invocationTimeoutDisabledConstant {
		var cancel context.CancelFunc
		invocationContext, cancel = context.WithTimeout(invocationContext, invoker.configuration.Timeout)
		defer cancel()
	}

	command := invoker.buildCommand(invocation, credential)
	startedAt := time.Now()
	executionResult, executionError := invoker.executor.Execute(invocationContext, command)

	var failedError execshell.CommandFailedError
	switch {
	case executionError == nil:
	case errors.As(executionError, &failedError):
		executionResult = failedError.Result
	default:
		return Result{}, fmt.Errorf(launchErrorTemplateConstant, executionError)
	}

	result := Result{
		StandardOutput: executionResult.StandardOutput,
		StandardError:  executionResult.StandardError,
		ExitCode:       executionResult.ExitCode,
	}
	invoker.logger.Info(
		agentFinishedMessageConstant,
		zap.String(logFieldContainerConstant, invoker.configuration.ContainerName),
		zap.Int(logFieldExitCodeConstant, result.ExitCode),
		zap.Int(logFieldStandardOutputBytesConstant, len(result.StandardOutput)),
		zap.Int(logFieldStandardErrorBytesConstant, len(result.StandardError)),
		zap.Int(logFieldSecretVariableCountConstant, len(command.Details.EnvironmentVariables)),
		zap.Int64(logFieldDurationMillisecondsConstant, time.Since(startedAt).Milliseconds()),
	)
	return result, nil
}

// buildCommand passes every secret by name only (-e NAME) so values reach the container through
// the runtime client's environment and never appear in its argument list.
func (invoker *Invoker) buildCommand(invocation Invocation, credential string) execshell.ShellCommand {
	environment := make(map[string]string, len(invocation.Secrets)+1)
	for name, value := range invocation.Secrets {
		trimmedName := strings.TrimSpace(name)
		if len(trimmedName) == 0 || strings.Contains(trimmedName, environmentVariableNameSeparatorConst) || len(strings.TrimSpace(value)) == 0 {
			continue
		}
		environment[trimmedName] = value
	}
	environment[invoker.configuration.CredentialVariable] = credential

	variableNames := make([]string, 0, len(environment))
	for name := range environment {
		variableNames = append(variableNames, name)
	}
	sort.Strings(variableNames)

	arguments := []string{execSubcommandConstant}
	for _, name := range variableNames {
		arguments = append(arguments, environmentFlagConstant, name)
	}
	arguments = append(arguments, invoker.configuration.ContainerName)
	arguments = append(arguments, invoker.configuration.Command...)
	arguments = append(arguments, invoker.configuration.PromptFlag, invocation.Prompt)

	return execshell.ShellCommand{
		Name: execshell.CommandName(invoker.configuration.RuntimeBinary),
		Details: execshell.CommandDetails{
			Arguments:            arguments,
			EnvironmentVariables: environment,
			DisplayLabel: fmt.Sprintf(
				displayLabelTemplateConstant,
				invoker.configuration.RuntimeBinary,
				invoker.configuration.ContainerName,
				strings.Join(invoker.configuration.Command, argumentSeparatorConstant),
				len(invocation.Prompt),
			),
		},
	}
}
