// Package sms delivers one-time codes over Kavenegar's verify lookup API.
package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tasvir/internal/infra"
)

// Sender delivers a verification code to a phone number.
type Sender interface {
	SendCode(ctx context.Context, phone, code string) error
}

// Options configures the Kavenegar client.
type Options struct {
	APIKey         string
	Template       string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client calls /v1/{apiKey}/verify/lookup.json.
type Client struct {
	apiKey     string
	template   string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

type lookupResponse struct {
	Return struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"return"`
}

// NewClient returns a Kavenegar client.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("sms: api key is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.kavenegar.com"
	}
	template := strings.TrimSpace(opts.Template)
	if template == "" {
		template = "verify"
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		template:   template,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     loggerOrDiscard(opts.Logger),
	}, nil
}

func (c *Client) SendCode(ctx context.Context, phone, code string) error {
	q := url.Values{}
	// Kavenegar expects the local 09xx form.
	q.Set("receptor", localForm(phone))
	q.Set("token", code)
	q.Set("template", c.template)
	endpoint := fmt.Sprintf("%s/v1/%s/verify/lookup.json?%s", c.baseURL, url.PathEscape(c.apiKey), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("sms: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sms: send: %w", err)
	}
	defer resp.Body.Close()

	var body lookupResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return fmt.Errorf("sms: decode response (http %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || body.Return.Status != http.StatusOK {
		return fmt.Errorf("sms: status %d: %s", body.Return.Status, body.Return.Message)
	}
	c.logger.Debug().Str("phone", maskPhone(phone)).Msg("sms: code sent")
	return nil
}

// LogSender writes codes to the log. Used when no SMS key is configured.
type LogSender struct {
	logger *infra.Logger
}

func NewLogSender(logger *infra.Logger) *LogSender {
	return &LogSender{logger: loggerOrDiscard(logger)}
}

func (s *LogSender) SendCode(_ context.Context, phone, code string) error {
	s.logger.Info().Str("phone", maskPhone(phone)).Str("code", code).Msg("sms: delivery disabled, code logged")
	return nil
}

func loggerOrDiscard(l *infra.Logger) *infra.Logger {
	if l != nil {
		return l
	}
	discard := infra.Logger(zerolog.New(io.Discard))
	return &discard
}

func localForm(phone string) string {
	if strings.HasPrefix(phone, "+98") {
		return "0" + phone[3:]
	}
	return phone
}

func maskPhone(phone string) string {
	if len(phone) < 7 {
		return "***"
	}
	return phone[:len(phone)-7] + "****" + phone[len(phone)-3:]
}

var (
	_ Sender = (*Client)(nil)
	_ Sender = (*LogSender)(nil)
)
