package cli

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/clawaudit/internal/agent"
	"github.com/temirov/clawaudit/internal/attestation"
	"github.com/temirov/clawaudit/internal/credentials"
	"github.com/temirov/clawaudit/internal/execshell"
	"github.com/temirov/clawaudit/internal/githubauth"
	"github.com/temirov/clawaudit/internal/githubcli"
	"github.com/temirov/clawaudit/internal/notify"
	"github.com/temirov/clawaudit/internal/remediation"
	"github.com/temirov/clawaudit/internal/scan"
	"github.com/temirov/clawaudit/internal/server"
	pathutils "github.com/temirov/clawaudit/internal/utils/path"
	"github.com/temirov/clawaudit/internal/webhook"
)

const (
	executorErrorTemplateConstant      = "unable to create command executor: %w"
	invokerErrorTemplateConstant       = "unable to create agent invoker: %w"
	credentialsErrorTemplateConstant   = "unable to load agent credentials: %w"
	classifierErrorTemplateConstant    = "invalid rate limit pattern: %w"
	registryErrorTemplateConstant      = "unable to open attestation registry: %w"
	notificationErrorTemplateConstant  = "unable to configure %s notifications: %w"
	githubClientErrorTemplateConstant  = "unable to create GitHub client: %w"
	publisherErrorTemplateConstant     = "unable to create remediation publisher: %w"
	orchestratorErrorTemplateConstant  = "unable to create scan orchestrator: %w"
	webhookErrorTemplateConstant       = "unable to create webhook handler: %w"
	runtimeAssembledMessageConstant    = "Runtime assembled"
	logFieldCredentialCountConstant    = "credential_count"
	logFieldRegistryPathConstant       = "registry_path"
	logFieldDeveloperChannelConstant   = "developer_channel_configured"
	logFieldPublicChannelConstant      = "public_channel_configured"
	logFieldGitHubTokenSourceConstant  = "github_token_source"
	githubTokenSourceConfiguredConst   = "configuration"
	githubTokenSourceAmbientConstant   = "gh"
	telegramChannelDescriptionConstant = "telegram"
	moltbookChannelDescriptionConstant = "moltbook"
)

// Runtime bundles the services a command operates on.
type Runtime struct {
	Scanner         server.Scanner
	Registry        server.ProofRegistry
	Publisher       server.RemediationPublisher
	DeveloperSender notify.Sender
	Webhook         server.WebhookHandler
	Dispatcher      *notify.Dispatcher
}

// RuntimeProvider builds the services for the current configuration.
type RuntimeProvider func(runtimeContext context.Context, configuration ApplicationConfiguration, logger *zap.Logger) (*Runtime, error)

// BuildRuntime wires the agent, registry, notification channels and GitHub client from configuration.
func BuildRuntime(runtimeContext context.Context, configuration ApplicationConfiguration, logger *zap.Logger) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	shellExecutor, executorError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner())
	if executorError != nil {
		return nil, fmt.Errorf(executorErrorTemplateConstant, executorError)
	}

	pathExpander := pathutils.NewHomeExpander()
	agentConfiguration := configuration.Agent
	agentConfiguration.AuthProfilePath = pathExpander.Expand(agentConfiguration.AuthProfilePath)
	invoker, invokerError := agent.NewInvoker(agentConfiguration, shellExecutor, logger)
	if invokerError != nil {
		return nil, fmt.Errorf(invokerErrorTemplateConstant, invokerError)
	}

	credentialSet, credentialsError := credentials.LoadSet(runtimeContext, credentials.NewResolver(nil, pathExpander.ReadFile), configuration.Credentials.Sources, logger)
	if credentialsError != nil {
		return nil, fmt.Errorf(credentialsErrorTemplateConstant, credentialsError)
	}

	var classifier credentials.RateLimitClassifier = credentials.NewPatternClassifier()
	if pattern := strings.TrimSpace(configuration.Credentials.RateLimitPattern); len(pattern) > 0 {
		customClassifier, classifierError := credentials.NewCustomPatternClassifier(pattern)
		if classifierError != nil {
			return nil, fmt.Errorf(classifierErrorTemplateConstant, classifierError)
		}
		classifier = customClassifier
	}

	registryPath := pathExpander.Expand(configuration.Registry.Path)
	store, storeError := attestation.NewFileStore(registryPath)
	if storeError != nil {
		return nil, fmt.Errorf(registryErrorTemplateConstant, storeError)
	}
	registry, registryError := attestation.NewRegistry(store, attestation.SystemClock{}, logger)
	if registryError != nil {
		return nil, fmt.Errorf(registryErrorTemplateConstant, registryError)
	}

	httpClient := &http.Client{Timeout: configuration.Notifications.DeliveryTimeout}
	var developerSender notify.Sender
	if configuration.Notifications.Telegram.Configured() {
		telegramSender, telegramError := notify.NewTelegramSender(configuration.Notifications.Telegram, httpClient)
		if telegramError != nil {
			return nil, fmt.Errorf(notificationErrorTemplateConstant, telegramChannelDescriptionConstant, telegramError)
		}
		developerSender = telegramSender
	}
	var publicSender notify.Sender
	if configuration.Notifications.Moltbook.Configured() {
		moltbookSender, moltbookError := notify.NewMoltbookSender(configuration.Notifications.Moltbook, httpClient)
		if moltbookError != nil {
			return nil, fmt.Errorf(notificationErrorTemplateConstant, moltbookChannelDescriptionConstant, moltbookError)
		}
		publicSender = moltbookSender
	}
	dispatcher := notify.NewDispatcher(logger, configuration.Notifications.DeliveryTimeout)

	baseClient, clientError := githubcli.NewClient(shellExecutor)
	if clientError != nil {
		return nil, fmt.Errorf(githubClientErrorTemplateConstant, clientError)
	}
	githubClient, tokenSource := authenticatedClient(baseClient, configuration.GitHub)

	publisher, publisherError := remediation.NewPublisher(githubClient, logger)
	if publisherError != nil {
		return nil, fmt.Errorf(publisherErrorTemplateConstant, publisherError)
	}

	orchestrator, orchestratorError := scan.NewOrchestrator(scan.Dependencies{
		Invoker:     invoker,
		Attestor:    registry,
		Credentials: credentialSet,
		Classifier:  classifier,
		Notifications: scan.NotificationSettings{
			Telegram: configuration.Notifications.Telegram,
			Moltbook: configuration.Notifications.Moltbook,
		},
		Logger: logger,
	})
	if orchestratorError != nil {
		return nil, fmt.Errorf(orchestratorErrorTemplateConstant, orchestratorError)
	}

	webhookHandler, webhookError := webhook.NewHandler(webhook.Dependencies{
		GitHub:        githubClient,
		Invoker:       invoker,
		Publisher:     publisher,
		Credentials:   credentialSet,
		PublicSender:  publicSender,
		Dispatcher:    dispatcher,
		Configuration: configuration.Webhook,
		Logger:        logger,
	})
	if webhookError != nil {
		return nil, fmt.Errorf(webhookErrorTemplateConstant, webhookError)
	}

	logger.Info(
		runtimeAssembledMessageConstant,
		zap.Int(logFieldCredentialCountConstant, credentialSet.Len()),
		zap.String(logFieldRegistryPathConstant, registryPath),
		zap.Bool(logFieldDeveloperChannelConstant, developerSender != nil),
		zap.Bool(logFieldPublicChannelConstant, publicSender != nil),
		zap.String(logFieldGitHubTokenSourceConstant, tokenSource),
	)

	return &Runtime{
		Scanner:         orchestrator,
		Registry:        registry,
		Publisher:       publisher,
		DeveloperSender: developerSender,
		Webhook:         webhookHandler,
		Dispatcher:      dispatcher,
	}, nil
}

// authenticatedClient applies the configured token, then the first ambient token variable.
// Without either, gh falls back to its own stored login.
func authenticatedClient(client *githubcli.Client, configuration GitHubConfiguration) (*githubcli.Client, string) {
	if token := strings.TrimSpace(configuration.Token); len(token) > 0 {
		return client.WithToken(token), githubTokenSourceConfiguredConst
	}
	if ambientToken, found := githubauth.ResolveToken(nil); found {
		return client.WithToken(ambientToken.Value), ambientToken.Source
	}
	return client, githubTokenSourceAmbientConstant
}
