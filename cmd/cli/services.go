package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"go.uber.org/zap"

	pathutils "github.com/temirov/clawaudit/internal/utils/path"
)

const (
	jsonIndentConstant                 = "  "
	runtimeProviderMissingMessageConst = "runtime provider not configured"
	unexpectedArgumentsMessageConstant = "command does not accept positional arguments"
)

var (
	commandPathExpander       = pathutils.NewHomeExpander()
	errRuntimeProviderMissing = errors.New(runtimeProviderMissingMessageConst)
	errUnexpectedArguments    = errors.New(unexpectedArgumentsMessageConstant)
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider supplies the loaded application configuration.
type ConfigurationProvider func() ApplicationConfiguration

// ServiceAccess gives command builders the logger, configuration and runtime of the application.
type ServiceAccess struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider ConfigurationProvider
	RuntimeProvider       RuntimeProvider
}

func (access ServiceAccess) resolveLogger() *zap.Logger {
	if access.LoggerProvider == nil {
		return zap.NewNop()
	}
	logger := access.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func (access ServiceAccess) resolveConfiguration() ApplicationConfiguration {
	if access.ConfigurationProvider == nil {
		return ApplicationConfiguration{}
	}
	return access.ConfigurationProvider()
}

func (access ServiceAccess) resolveRuntime(runtimeContext context.Context) (*Runtime, error) {
	if access.RuntimeProvider == nil {
		return nil, errRuntimeProviderMissing
	}
	if runtimeContext == nil {
		runtimeContext = context.Background()
	}
	return access.RuntimeProvider(runtimeContext, access.resolveConfiguration(), access.resolveLogger())
}

func writeJSON(writer io.Writer, value any) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", jsonIndentConstant)
	return encoder.Encode(value)
}
