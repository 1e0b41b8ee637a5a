package cli

import (
	"time"

	"github.com/temirov/clawaudit/internal/agent"
	"github.com/temirov/clawaudit/internal/notify"
	"github.com/temirov/clawaudit/internal/webhook"
)

const (
	redactedValueConstant = "<redacted>"

	telegramBotTokenConfigKeyConstant = "notifications.telegram.bot_token"
	telegramChatIDConfigKeyConstant   = "notifications.telegram.chat_id"
	moltbookAPIKeyConfigKeyConstant   = "notifications.moltbook.api_key"
	moltbookSubmoltConfigKeyConstant  = "notifications.moltbook.submolt"
	webhookSecretConfigKeyConstant    = "webhook.secret"
	registryPathConfigKeyConstant     = "registry.path"
	serverAddressConfigKeyConstant    = "server.address"
)

// environmentAliases maps configuration keys to the plain variable names a .env file carries.
var environmentAliases = map[string][]string{
	telegramBotTokenConfigKeyConstant: {"TELEGRAM_BOT_TOKEN"},
	telegramChatIDConfigKeyConstant:   {"TELEGRAM_CHAT_ID"},
	moltbookAPIKeyConfigKeyConstant:   {"MOLTBOOK_API_KEY"},
	moltbookSubmoltConfigKeyConstant:  {"MOLTBOOK_SUBMOLT"},
	webhookSecretConfigKeyConstant:    {"GITHUB_WEBHOOK_SECRET"},
	registryPathConfigKeyConstant:     {"REGISTRY_PATH"},
	serverAddressConfigKeyConstant:    {"LISTEN_ADDRESS"},
}

// ApplicationConfiguration describes the persisted configuration for the CLI entrypoint.
type ApplicationConfiguration struct {
	Common        ApplicationCommonConfiguration `mapstructure:"common" yaml:"common"`
	Server        ServerConfiguration            `mapstructure:"server" yaml:"server"`
	Agent         agent.Configuration            `mapstructure:"agent" yaml:"agent"`
	Credentials   CredentialsConfiguration       `mapstructure:"credentials" yaml:"credentials"`
	Notifications NotificationsConfiguration     `mapstructure:"notifications" yaml:"notifications"`
	Registry      RegistryConfiguration          `mapstructure:"registry" yaml:"registry"`
	GitHub        GitHubConfiguration            `mapstructure:"github" yaml:"github"`
	Webhook       webhook.Configuration          `mapstructure:"webhook" yaml:"webhook"`
}

// ApplicationCommonConfiguration stores logging configuration shared across commands.
type ApplicationCommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
	EnvFile   string `mapstructure:"env_file" yaml:"env_file"`
}

// ServerConfiguration controls the HTTP listener.
type ServerConfiguration struct {
	Address           string        `mapstructure:"address" yaml:"address"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// CredentialsConfiguration declares where agent credentials come from, primary first.
type CredentialsConfiguration struct {
	Sources          []string `mapstructure:"sources" yaml:"sources"`
	RateLimitPattern string   `mapstructure:"rate_limit_pattern" yaml:"rate_limit_pattern"`
}

// NotificationsConfiguration holds the developer and public channel settings.
type NotificationsConfiguration struct {
	DeliveryTimeout time.Duration                `mapstructure:"delivery_timeout" yaml:"delivery_timeout"`
	Telegram        notify.TelegramConfiguration `mapstructure:"telegram" yaml:"telegram"`
	Moltbook        notify.MoltbookConfiguration `mapstructure:"moltbook" yaml:"moltbook"`
}

// RegistryConfiguration locates the attestation registry file.
type RegistryConfiguration struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// GitHubConfiguration carries the token used for webhook reviews and remediation pull requests.
// A blank token falls back to GH_TOKEN, GITHUB_TOKEN or GITHUB_API_TOKEN.
type GitHubConfiguration struct {
	Token string `mapstructure:"token" yaml:"token"`
}

// redacted returns a copy safe to print.
func (configuration ApplicationConfiguration) redacted() ApplicationConfiguration {
	redactedConfiguration := configuration
	redactedConfiguration.Notifications.Telegram.BotToken = redactValue(configuration.Notifications.Telegram.BotToken)
	redactedConfiguration.Notifications.Moltbook.APIKey = redactValue(configuration.Notifications.Moltbook.APIKey)
	redactedConfiguration.GitHub.Token = redactValue(configuration.GitHub.Token)
	redactedConfiguration.Webhook.Secret = redactValue(configuration.Webhook.Secret)
	return redactedConfiguration
}

func redactValue(value string) string {
	if len(value) == 0 {
		return value
	}
	return redactedValueConstant
}
