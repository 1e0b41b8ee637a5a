// Package utils exposes the configuration loader and logger factory shared by the CLI commands.
//
// ConfigurationLoader layers embedded defaults, an optional configuration file, dotenv files and
// environment variables through Viper. LoggerFactory builds zap loggers in structured or console
// encoding.
package utils
