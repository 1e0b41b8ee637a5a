package utils_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/clawaudit/internal/utils"
)

const (
	testLoggerFactoryCaseSupportedFormatConstant   = "supported_log_level_%s_format_%s"
	testLoggerFactoryCaseUnsupportedLevelConstant  = "unsupported_log_level"
	testLoggerFactoryCaseUnsupportedFormatConstant = "unsupported_log_format"
	testLoggerFactorySubtestTemplateConstant       = "%d_%s"
	testInvalidLogLevelConstant                    = "invalid"
	testInvalidLogFormatConstant                   = "invalid"
	testLogMessageConstant                         = "logger_factory_test_message"
	testServiceNameConstant                        = "clawaudit"
)

func TestLoggerFactoryCreateLogger(testInstance *testing.T) {
	testCases := []struct {
		name                string
		requestedLogLevel   utils.LogLevel
		requestedLogFormat  utils.LogFormat
		expectError         bool
		expectStructuredLog bool
	}{
		{
			name:                fmt.Sprintf(testLoggerFactoryCaseSupportedFormatConstant, utils.LogLevelDebug, utils.LogFormatStructured),
			requestedLogLevel:   utils.LogLevelDebug,
			requestedLogFormat:  utils.LogFormatStructured,
			expectError:         false,
			expectStructuredLog: true,
		},
		{
			name:                fmt.Sprintf(testLoggerFactoryCaseSupportedFormatConstant, utils.LogLevelInfo, utils.LogFormatStructured),
			requestedLogLevel:   utils.LogLevelInfo,
			requestedLogFormat:  utils.LogFormatStructured,
			expectError:         false,
			expectStructuredLog: true,
		},
		{
			name:                fmt.Sprintf(testLoggerFactoryCaseSupportedFormatConstant, utils.LogLevelInfo, utils.LogFormatConsole),
			requestedLogLevel:   utils.LogLevelInfo,
			requestedLogFormat:  utils.LogFormatConsole,
			expectError:         false,
			expectStructuredLog: false,
		},
		{
			name:               testLoggerFactoryCaseUnsupportedLevelConstant,
			requestedLogLevel:  utils.LogLevel(testInvalidLogLevelConstant),
			requestedLogFormat: utils.LogFormatStructured,
			expectError:        true,
		},
		{
			name:               testLoggerFactoryCaseUnsupportedFormatConstant,
			requestedLogLevel:  utils.LogLevelInfo,
			requestedLogFormat: utils.LogFormat(testInvalidLogFormatConstant),
			expectError:        true,
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(testLoggerFactorySubtestTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			loggerFactory := utils.NewLoggerFactory(testServiceNameConstant)

			pipeReader, pipeWriter, pipeError := os.Pipe()
			require.NoError(testInstance, pipeError)

			originalStderr := os.Stderr
			os.Stderr = pipeWriter

			logger, creationError := loggerFactory.CreateLogger(testCase.requestedLogLevel, testCase.requestedLogFormat)

			os.Stderr = originalStderr

			if testCase.expectError {
				require.Error(testInstance, creationError)
				require.Nil(testInstance, logger)

				require.NoError(testInstance, pipeWriter.Close())
				require.NoError(testInstance, pipeReader.Close())
				return
			}

			require.NoError(testInstance, creationError)
			require.NotNil(testInstance, logger)

			logger.Info(testLogMessageConstant)
			syncError := logger.Sync()
			if syncError != nil {
				require.True(testInstance, errors.Is(syncError, syscall.ENOTSUP) || errors.Is(syncError, syscall.EINVAL))
			}

			require.NoError(testInstance, pipeWriter.Close())

			capturedOutput, readError := io.ReadAll(pipeReader)
			require.NoError(testInstance, readError)
			require.NoError(testInstance, pipeReader.Close())

			trimmedOutput := bytes.TrimSpace(capturedOutput)
			require.NotEmpty(testInstance, trimmedOutput)
			require.Contains(testInstance, string(trimmedOutput), testLogMessageConstant)

			isJSONLog := json.Valid(trimmedOutput)
			if testCase.expectStructuredLog {
				require.True(testInstance, isJSONLog)
				var decodedEntry map[string]any
				require.NoError(testInstance, json.Unmarshal(trimmedOutput, &decodedEntry))
				require.Equal(testInstance, testServiceNameConstant, decodedEntry["service"])
				require.Contains(testInstance, decodedEntry, "timestamp")
			} else {
				require.False(testInstance, isJSONLog)
			}
		})
	}
}

func TestParseLogSettings(testInstance *testing.T) {
	testCases := []struct {
		name           string
		levelValue     string
		formatValue    string
		expectedLevel  utils.LogLevel
		expectedFormat utils.LogFormat
		expectError    bool
	}{
		{
			name:           "canonical_values",
			levelValue:     "info",
			formatValue:    "structured",
			expectedLevel:  utils.LogLevelInfo,
			expectedFormat: utils.LogFormatStructured,
		},
		{
			name:           "mixed_case_and_json_alias",
			levelValue:     " DEBUG ",
			formatValue:    "JSON",
			expectedLevel:  utils.LogLevelDebug,
			expectedFormat: utils.LogFormatStructured,
		},
		{
			name:           "console_format",
			levelValue:     "warn",
			formatValue:    "console",
			expectedLevel:  utils.LogLevelWarn,
			expectedFormat: utils.LogFormatConsole,
		},
		{
			name:        "unknown_level",
			levelValue:  "verbose",
			formatValue: "console",
			expectError: true,
		},
		{
			name:        "unknown_format",
			levelValue:  "error",
			formatValue: "xml",
			expectError: true,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			level, levelError := utils.ParseLogLevel(testCase.levelValue)
			format, formatError := utils.ParseLogFormat(testCase.formatValue)
			if testCase.expectError {
				require.Error(testInstance, errors.Join(levelError, formatError))
				return
			}
			require.NoError(testInstance, levelError)
			require.NoError(testInstance, formatError)
			require.Equal(testInstance, testCase.expectedLevel, level)
			require.Equal(testInstance, testCase.expectedFormat, format)
		})
	}
}
