package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/wa-navigator/pkg/logging"
)

const (
	defaultGraphAPIBase = "https://graph.facebook.com/v18.0"
	defaultHTTPTimeout  = 10 * time.Second
	defaultUserAgent    = "wa-navigator/0.1"
)

// ClientConfig controls how the Graph API client behaves.
type ClientConfig struct {
	BaseURL       string
	PhoneNumberID string
	AccessToken   string
	Timeout       time.Duration
	HTTPClient    *http.Client
	Logger        *logging.Logger
	UserAgent     string
}

// Client sends messages through the WhatsApp Cloud API. Each call is a single
// attempt bounded by the configured timeout.
type Client struct {
	baseURL       string
	phoneNumberID string
	accessToken   string
	httpClient    *http.Client
	logger        *logging.Logger
	userAgent     string
}

// NewClient creates a configured Client with sane defaults.
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.PhoneNumberID) == "" {
		return nil, errors.New("whatsapp: phone number id is required")
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.New("whatsapp: access token is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultGraphAPIBase
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		baseURL:       baseURL,
		phoneNumberID: cfg.PhoneNumberID,
		accessToken:   cfg.AccessToken,
		httpClient:    httpClient,
		logger:        logger,
		userAgent:     userAgent,
	}, nil
}

// Send posts one outbound payload and returns the decoded response body as
// well as the typed response.
func (c *Client) Send(ctx context.Context, msg OutboundMessage) (*SendResponse, map[string]any, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, nil, fmt.Errorf("whatsapp: marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("whatsapp: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, fmt.Errorf("whatsapp: send message: %w", ctx.Err())
		}
		return nil, nil, fmt.Errorf("whatsapp: send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("whatsapp: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeAPIError(resp.StatusCode, respBody)
		c.logger.Warn("whatsapp send rejected", "to", msg.To, "status", resp.StatusCode, "error", apiErr)
		return nil, nil, apiErr
	}

	var typed SendResponse
	if err := json.Unmarshal(respBody, &typed); err != nil {
		return nil, nil, fmt.Errorf("whatsapp: decode response: %w", err)
	}
	var raw map[string]any
	_ = json.Unmarshal(respBody, &raw)
	return &typed, raw, nil
}

// APIError is returned for non-2xx Graph API responses.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
	TraceID    string `json:"fbtrace_id"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("whatsapp: %s (status=%d code=%d)", e.Message, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("whatsapp: http status %d", e.StatusCode)
}

func decodeAPIError(status int, body []byte) error {
	var wrapper struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil || wrapper.Error == nil {
		return &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
	}
	wrapper.Error.StatusCode = status
	return wrapper.Error
}
