package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

const (
	// DefaultMoltbookBaseURL is the Moltbook API root.
	DefaultMoltbookBaseURL = "https://www.moltbook.com"
	// DefaultMoltbookSubmolt is the community receiving public receipts.
	DefaultMoltbookSubmolt = "lablab"
	// DefaultMoltbookTitle titles posts that do not carry their own title.
	DefaultMoltbookTitle = "ClawAudit Sentinel"

	moltbookPostsPathConstant           = "/api/v1/posts"
	moltbookContentTypeConstant         = "application/json"
	authorizationHeaderConstant         = "Authorization"
	bearerPrefixConstant                = "Bearer "
	moltbookNotConfiguredMessageConst   = "moltbook api key required"
	moltbookResponseReadLimitBytesConst = 1 << 16
)

// ErrMoltbookNotConfigured indicates a missing API key.
var ErrMoltbookNotConfigured = errors.New(moltbookNotConfiguredMessageConst)

// MoltbookConfiguration identifies the public channel.
type MoltbookConfiguration struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	Submolt string `mapstructure:"submolt" yaml:"submolt"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// Configured reports whether an API key is present.
func (configuration MoltbookConfiguration) Configured() bool {
	return len(strings.TrimSpace(configuration.APIKey)) > 0
}

// MoltbookSender publishes posts to a submolt.
type MoltbookSender struct {
	configuration MoltbookConfiguration
	httpClient    HTTPClient
}

// NewMoltbookSender constructs a MoltbookSender.
func NewMoltbookSender(configuration MoltbookConfiguration, httpClient HTTPClient) (*MoltbookSender, error) {
	if !configuration.Configured() {
		return nil, ErrMoltbookNotConfigured
	}
	configuration.APIKey = strings.TrimSpace(configuration.APIKey)
	configuration.Submolt = strings.TrimSpace(configuration.Submolt)
	if len(configuration.Submolt) == 0 {
		configuration.Submolt = DefaultMoltbookSubmolt
	}
	configuration.BaseURL = strings.TrimRight(strings.TrimSpace(configuration.BaseURL), "/")
	if len(configuration.BaseURL) == 0 {
		configuration.BaseURL = DefaultMoltbookBaseURL
	}
	return &MoltbookSender{configuration: configuration, httpClient: resolveHTTPClient(httpClient)}, nil
}

// Send creates one post. Any non-2xx status is a DeliveryError.
func (sender *MoltbookSender) Send(sendContext context.Context, message Message) error {
	content := strings.TrimSpace(message.Content)
	if len(content) == 0 {
		return ErrContentRequired
	}
	title := strings.TrimSpace(message.Title)
	if len(title) == 0 {
		title = DefaultMoltbookTitle
	}

	payload, encodeError := json.Marshal(struct {
		SubmoltName string `json:"submolt_name"`
		Title       string `json:"title"`
		Content     string `json:"content"`
	}{SubmoltName: sender.configuration.Submolt, Title: title, Content: content})
	if encodeError != nil {
		return DeliveryError{Channel: ChannelMoltbook, Message: encodeError.Error()}
	}

	request, requestError := http.NewRequestWithContext(sendContext, http.MethodPost, sender.configuration.BaseURL+moltbookPostsPathConstant, bytes.NewReader(payload))
	if requestError != nil {
		return transportError(ChannelMoltbook, requestError)
	}
	request.Header.Set(contentTypeHeaderConstant, moltbookContentTypeConstant)
	request.Header.Set(authorizationHeaderConstant, bearerPrefixConstant+sender.configuration.APIKey)

	response, doError := sender.httpClient.Do(request)
	if doError != nil {
		return transportError(ChannelMoltbook, doError)
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(response.Body, moltbookResponseReadLimitBytesConst))
		return DeliveryError{Channel: ChannelMoltbook, StatusCode: response.StatusCode, Message: truncateBody(string(body))}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, moltbookResponseReadLimitBytesConst))
	return nil
}
