package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	deliveryErrorTemplateConstant       = "%s delivery failed: %s"
	deliveryStatusErrorTemplateConstant = "%s delivery failed with status %d: %s"
	contentRequiredMessageConstant      = "notification content required"
	maximumErrorBodyLengthConstant      = 300
)

// Channel names a notification destination.
type Channel string

// Supported channels.
const (
	ChannelTelegram Channel = Channel("telegram")
	ChannelMoltbook Channel = Channel("moltbook")
)

// ErrContentRequired indicates a message without content.
var ErrContentRequired = errors.New(contentRequiredMessageConstant)

// Message is a notification body with an optional title.
type Message struct {
	Title   string
	Content string
}

// Sender delivers a message to one channel.
type Sender interface {
	Send(sendContext context.Context, message Message) error
}

// HTTPClient is the subset of http.Client used by the senders.
type HTTPClient interface {
	Do(request *http.Request) (*http.Response, error)
}

// DeliveryError reports a failed delivery. It never carries channel credentials.
type DeliveryError struct {
	Channel    Channel
	StatusCode int
	Message    string
}

// Error describes the delivery failure.
func (deliveryError DeliveryError) Error() string {
	if deliveryError.StatusCode > 0 {
		return fmt.Sprintf(deliveryStatusErrorTemplateConstant, deliveryError.Channel, deliveryError.StatusCode, deliveryError.Message)
	}
	return fmt.Sprintf(deliveryErrorTemplateConstant, deliveryError.Channel, deliveryError.Message)
}

// transportError strips the request URL from transport failures, since the Telegram bot token
// is part of the path.
func transportError(channel Channel, requestError error) DeliveryError {
	var urlError *url.Error
	if errors.As(requestError, &urlError) {
		return DeliveryError{Channel: channel, Message: urlError.Err.Error()}
	}
	return DeliveryError{Channel: channel, Message: requestError.Error()}
}

func truncateBody(body string) string {
	trimmedBody := strings.TrimSpace(body)
	if len(trimmedBody) <= maximumErrorBodyLengthConstant {
		return trimmedBody
	}
	return trimmedBody[:maximumErrorBodyLengthConstant]
}

func resolveHTTPClient(httpClient HTTPClient) HTTPClient {
	if httpClient == nil {
		return http.DefaultClient
	}
	return httpClient
}
