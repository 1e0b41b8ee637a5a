package scan

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/temirov/clawaudit/internal/notify"
)

const (
	validationErrorTemplateConstant    = "invalid %s: %s"
	configurationErrorTemplateConstant = "missing configuration: %s"
	missingItemSeparatorConstant       = ", "

	// FieldSourceCode names the source code field in validation errors.
	FieldSourceCode = "contract_code"
	// FieldContractAddress names the contract address field in validation errors.
	FieldContractAddress = "contract_address"
	// FieldKind names the scan kind field in validation errors.
	FieldKind = "scan_kind"

	sourceRequiredMessageConstant  = "source code is required"
	addressShapeMessageConstant    = "expected 0x followed by 40 hexadecimal characters"
	unsupportedKindMessageTemplate = "unsupported scan kind %q"
)

// Configuration items reported by ConfigurationError.
const (
	MissingAgentCredential = "GEMINI_API_KEY"
	MissingTelegramToken   = "TELEGRAM_BOT_TOKEN"
	MissingTelegramChatID  = "TELEGRAM_CHAT_ID"
	MissingMoltbookAPIKey  = "MOLTBOOK_API_KEY"
)

var contractAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Kind selects the depth of a scan.
type Kind string

// Supported scan kinds.
const (
	KindManual Kind = Kind("manual")
	KindDemo   Kind = Kind("demo")
	KindFull   Kind = Kind("full")
)

// ParseKind maps a boundary value to a Kind. Blank selects KindManual.
func ParseKind(value string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case "", KindManual:
		return KindManual, nil
	case KindDemo:
		return KindDemo, nil
	case KindFull:
		return KindFull, nil
	default:
		return "", ValidationError{Field: FieldKind, Message: fmt.Sprintf(unsupportedKindMessageTemplate, value)}
	}
}

// NotificationOverrides replace configured notification channel settings for one request.
type NotificationOverrides struct {
	TelegramBotToken string `json:"telegram_bot_token"`
	TelegramChatID   string `json:"telegram_chat_id"`
	MoltbookAPIKey   string `json:"moltbook_api_key"`
	MoltbookSubmolt  string `json:"moltbook_submolt"`
}

// NotificationSettings are the channel credentials handed to the agent's messaging skills.
type NotificationSettings struct {
	Telegram notify.TelegramConfiguration
	Moltbook notify.MoltbookConfiguration
}

// apply overlays non-blank overrides.
func (settings NotificationSettings) apply(overrides NotificationOverrides) NotificationSettings {
	if value := strings.TrimSpace(overrides.TelegramBotToken); len(value) > 0 {
		settings.Telegram.BotToken = value
	}
	if value := strings.TrimSpace(overrides.TelegramChatID); len(value) > 0 {
		settings.Telegram.ChatID = value
	}
	if value := strings.TrimSpace(overrides.MoltbookAPIKey); len(value) > 0 {
		settings.Moltbook.APIKey = value
	}
	if value := strings.TrimSpace(overrides.MoltbookSubmolt); len(value) > 0 {
		settings.Moltbook.Submolt = value
	}
	if len(strings.TrimSpace(settings.Moltbook.Submolt)) == 0 {
		settings.Moltbook.Submolt = notify.DefaultMoltbookSubmolt
	}
	return settings
}

// missingItems lists absent channel settings in a fixed order.
func (settings NotificationSettings) missingItems() []string {
	var missing []string
	if len(strings.TrimSpace(settings.Telegram.BotToken)) == 0 {
		missing = append(missing, MissingTelegramToken)
	}
	if len(strings.TrimSpace(settings.Telegram.ChatID)) == 0 {
		missing = append(missing, MissingTelegramChatID)
	}
	if len(strings.TrimSpace(settings.Moltbook.APIKey)) == 0 {
		missing = append(missing, MissingMoltbookAPIKey)
	}
	return missing
}

// Request describes one scan.
type Request struct {
	SourceCode            string
	ContractAddress       string
	Kind                  Kind
	NotificationOverrides NotificationOverrides
}

// normalized validates the request and returns it with defaults applied.
func (request Request) normalized() (Request, error) {
	if len(strings.TrimSpace(request.SourceCode)) == 0 {
		return Request{}, ValidationError{Field: FieldSourceCode, Message: sourceRequiredMessageConstant}
	}
	request.ContractAddress = strings.TrimSpace(request.ContractAddress)
	if len(request.ContractAddress) > 0 && !contractAddressPattern.MatchString(request.ContractAddress) {
		return Request{}, ValidationError{Field: FieldContractAddress, Message: addressShapeMessageConstant}
	}
	kind, kindError := ParseKind(string(request.Kind))
	if kindError != nil {
		return Request{}, kindError
	}
	request.Kind = kind
	return request, nil
}

// ValidationError reports a malformed request.
type ValidationError struct {
	Field   string
	Message string
}

// Error describes the invalid field.
func (validationError ValidationError) Error() string {
	return fmt.Sprintf(validationErrorTemplateConstant, validationError.Field, validationError.Message)
}

// ConfigurationError names every configuration item a scan needs but does not have.
type ConfigurationError struct {
	Missing []string
}

// Error lists the missing items.
func (configurationError ConfigurationError) Error() string {
	return fmt.Sprintf(configurationErrorTemplateConstant, strings.Join(configurationError.Missing, missingItemSeparatorConstant))
}
