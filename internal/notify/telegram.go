package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	// DefaultTelegramBaseURL is the Telegram Bot API root.
	DefaultTelegramBaseURL = "https://api.telegram.org"

	telegramSendMessagePathTemplate     = "%s/bot%s/sendMessage"
	telegramChatIDFieldConstant         = "chat_id"
	telegramTextFieldConstant           = "text"
	telegramContentTypeConstant         = "application/x-www-form-urlencoded"
	contentTypeHeaderConstant           = "Content-Type"
	telegramTitleSeparatorConstant      = "\n\n"
	telegramNotConfiguredMessageConst   = "telegram bot token and chat id required"
	telegramUnexpectedResponseMessage   = "unexpected response"
	telegramRejectedWithoutDescription  = "request rejected"
	telegramResponseReadLimitBytesConst = 1 << 16
)

// ErrTelegramNotConfigured indicates a missing bot token or chat id.
var ErrTelegramNotConfigured = errors.New(telegramNotConfiguredMessageConst)

// TelegramConfiguration identifies the developer channel.
type TelegramConfiguration struct {
	BotToken string `mapstructure:"bot_token" yaml:"bot_token"`
	ChatID   string `mapstructure:"chat_id" yaml:"chat_id"`
	BaseURL  string `mapstructure:"base_url" yaml:"base_url"`
}

// Configured reports whether both the token and the chat id are present.
func (configuration TelegramConfiguration) Configured() bool {
	return len(strings.TrimSpace(configuration.BotToken)) > 0 && len(strings.TrimSpace(configuration.ChatID)) > 0
}

// TelegramSender posts messages to the developer channel through the Bot API.
type TelegramSender struct {
	configuration TelegramConfiguration
	httpClient    HTTPClient
}

// NewTelegramSender constructs a TelegramSender.
func NewTelegramSender(configuration TelegramConfiguration, httpClient HTTPClient) (*TelegramSender, error) {
	if !configuration.Configured() {
		return nil, ErrTelegramNotConfigured
	}
	configuration.BotToken = strings.TrimSpace(configuration.BotToken)
	configuration.ChatID = strings.TrimSpace(configuration.ChatID)
	configuration.BaseURL = strings.TrimRight(strings.TrimSpace(configuration.BaseURL), "/")
	if len(configuration.BaseURL) == 0 {
		configuration.BaseURL = DefaultTelegramBaseURL
	}
	return &TelegramSender{configuration: configuration, httpClient: resolveHTTPClient(httpClient)}, nil
}

// Send delivers message. Telegram answers 200 with ok=false for some rejections, so the
// response body is always checked.
func (sender *TelegramSender) Send(sendContext context.Context, message Message) error {
	text := strings.TrimSpace(message.Content)
	if len(text) == 0 {
		return ErrContentRequired
	}
	if title := strings.TrimSpace(message.Title); len(title) > 0 {
		text = title + telegramTitleSeparatorConstant + text
	}

	form := url.Values{}
	form.Set(telegramChatIDFieldConstant, sender.configuration.ChatID)
	form.Set(telegramTextFieldConstant, text)

	endpoint := fmt.Sprintf(telegramSendMessagePathTemplate, sender.configuration.BaseURL, sender.configuration.BotToken)
	request, requestError := http.NewRequestWithContext(sendContext, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if requestError != nil {
		return transportError(ChannelTelegram, requestError)
	}
	request.Header.Set(contentTypeHeaderConstant, telegramContentTypeConstant)

	response, doError := sender.httpClient.Do(request)
	if doError != nil {
		return transportError(ChannelTelegram, doError)
	}
	defer response.Body.Close()

	body, readError := io.ReadAll(io.LimitReader(response.Body, telegramResponseReadLimitBytesConst))
	if readError != nil {
		return DeliveryError{Channel: ChannelTelegram, StatusCode: response.StatusCode, Message: readError.Error()}
	}

	var payload struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if decodeError := json.Unmarshal(body, &payload); decodeError != nil {
		if response.StatusCode >= http.StatusBadRequest {
			return DeliveryError{Channel: ChannelTelegram, StatusCode: response.StatusCode, Message: truncateBody(string(body))}
		}
		return DeliveryError{Channel: ChannelTelegram, StatusCode: response.StatusCode, Message: telegramUnexpectedResponseMessage}
	}
	if !payload.OK {
		description := strings.TrimSpace(payload.Description)
		if len(description) == 0 {
			description = telegramRejectedWithoutDescription
		}
		return DeliveryError{Channel: ChannelTelegram, StatusCode: response.StatusCode, Message: description}
	}
	return nil
}
