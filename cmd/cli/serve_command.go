package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/clawaudit/internal/server"
)

const (
	serveCommandUseConstant              = "serve"
	serveCommandShortDescriptionConstant = "Run the HTTP API"
	serveCommandLongDescriptionConstant  = "serve exposes scans, proofs, the audit trail, remediation pull requests, developer updates and the GitHub webhook over HTTP."
	flagListenAddressNameConstant        = "listen"
	flagListenAddressDescriptionConstant = "Listen address, overriding server.address"
	defaultShutdownTimeoutConstant       = 20 * time.Second
	serverCreationErrorTemplateConstant  = "unable to create HTTP server: %w"
	listenErrorTemplateConstant          = "unable to listen on %s: %w"
	serverListeningMessageConstant       = "HTTP API listening"
	serverStoppingMessageConstant        = "HTTP API shutting down"
	notificationsDrainedMessageConstant  = "Pending notifications delivered"
	logFieldAddressConstant              = "address"
)

// ServeCommandBuilder assembles the serve command.
type ServeCommandBuilder struct {
	Services ServiceAccess

	// Listener overrides the network listener, primarily for tests.
	Listener net.Listener
}

// Build constructs the serve command.
func (builder *ServeCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   serveCommandUseConstant,
		Short: serveCommandShortDescriptionConstant,
		Long:  serveCommandLongDescriptionConstant,
		RunE:  builder.run,
	}
	command.Flags().String(flagListenAddressNameConstant, "", flagListenAddressDescriptionConstant)
	return command, nil
}

func (builder *ServeCommandBuilder) run(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errUnexpectedArguments
	}
	logger := builder.Services.resolveLogger()
	configuration := builder.Services.resolveConfiguration()
	listenAddress := configuration.Server.Address
	if flagValue, _ := command.Flags().GetString(flagListenAddressNameConstant); len(strings.TrimSpace(flagValue)) > 0 {
		listenAddress = strings.TrimSpace(flagValue)
	}

	signalContext, stopSignals := signal.NotifyContext(command.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	runtime, runtimeError := builder.Services.resolveRuntime(signalContext)
	if runtimeError != nil {
		return runtimeError
	}
	if runtime.Dispatcher != nil {
		defer func() {
			runtime.Dispatcher.Wait()
			logger.Info(notificationsDrainedMessageConstant)
		}()
	}

	gin.SetMode(gin.ReleaseMode)
	apiServer, serverError := server.NewServer(server.Dependencies{
		Scanner:         runtime.Scanner,
		Registry:        runtime.Registry,
		Publisher:       runtime.Publisher,
		DeveloperSender: runtime.DeveloperSender,
		Webhook:         runtime.Webhook,
		WebhookSecret:   configuration.Webhook.Secret,
		Logger:          logger,
	})
	if serverError != nil {
		return fmt.Errorf(serverCreationErrorTemplateConstant, serverError)
	}

	listener := builder.Listener
	if listener == nil {
		var listenError error
		listener, listenError = net.Listen("tcp", listenAddress)
		if listenError != nil {
			return fmt.Errorf(listenErrorTemplateConstant, listenAddress, listenError)
		}
	}

	httpServer := &http.Server{
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: configuration.Server.ReadHeaderTimeout,
	}

	shutdownTimeout := configuration.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeoutConstant
	}

	serveGroup, groupContext := errgroup.WithContext(signalContext)
	serveGroup.Go(func() error {
		logger.Info(serverListeningMessageConstant, zap.String(logFieldAddressConstant, listener.Addr().String()))
		if serveError := httpServer.Serve(listener); serveError != nil && !errors.Is(serveError, http.ErrServerClosed) {
			return serveError
		}
		return nil
	})
	serveGroup.Go(func() error {
		<-groupContext.Done()
		logger.Info(serverStoppingMessageConstant)
		shutdownContext, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		return httpServer.Shutdown(shutdownContext)
	})

	return serveGroup.Wait()
}
