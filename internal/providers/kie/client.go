// Package kie talks to the kie.ai generation API: GPT-4o image jobs and Veo
// video jobs, both asynchronous with callback and record-info polling.
package kie

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"tasvir/internal/domain"
	"tasvir/internal/generation"
	"tasvir/internal/infra"
	"tasvir/internal/metrics"
	"tasvir/internal/textnorm"
	"tasvir/pkg/retry"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("kie: api key is required")

const (
	imageGeneratePath = "/api/v1/gpt4o-image/generate"
	imageRecordPath   = "/api/v1/gpt4o-image/record-info"
	videoGeneratePath = "/api/v1/veo/generate"
	videoRecordPath   = "/api/v1/veo/record-info"
	codeOK            = 200
	maxErrorBody      = 2048
)

// Options configures the kie client.
type Options struct {
	APIKey         string
	BaseURL        string
	ImageSize      string
	VideoModel     string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
	Retry          retry.Config
}

// Client performs HTTP calls to the kie API.
type Client struct {
	apiKey     string
	baseURL    string
	imageSize  string
	videoModel string
	httpClient *http.Client
	logger     *infra.Logger
	retry      retry.Config
}

type imageRequest struct {
	Prompt      string   `json:"prompt"`
	Size        string   `json:"size"`
	NVariants   int      `json:"nVariants"`
	FilesURL    []string `json:"filesUrl,omitempty"`
	CallBackURL string   `json:"callBackUrl,omitempty"`
}

type videoRequest struct {
	Prompt      string   `json:"prompt"`
	Model       string   `json:"model,omitempty"`
	ImageURLs   []string `json:"imageUrls,omitempty"`
	CallBackURL string   `json:"callBackUrl,omitempty"`
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type createData struct {
	TaskID string `json:"taskId"`
}

type recordData struct {
	TaskID       string   `json:"taskId"`
	SuccessFlag  *flexInt `json:"successFlag"`
	ErrorMessage string   `json:"errorMessage"`
	Response     *struct {
		ResultURLs    []string `json:"resultUrls"`
		ResultURLsAlt []string `json:"result_urls"`
	} `json:"response"`
	Info *struct {
		ResultURLs    []string `json:"result_urls"`
		ResultURLsAlt []string `json:"resultUrls"`
	} `json:"info"`
}

// flexInt accepts numbers and numeric strings.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("kie: successFlag %q: %w", s, err)
	}
	*f = flexInt(n)
	return nil
}

func (d recordData) urls() []string {
	var out []string
	if d.Response != nil {
		out = append(out, d.Response.ResultURLs...)
		out = append(out, d.Response.ResultURLsAlt...)
	}
	if d.Info != nil {
		out = append(out, d.Info.ResultURLs...)
		out = append(out, d.Info.ResultURLsAlt...)
	}
	return out
}

// NewClient constructs a client with defaults for unset options.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.kie.ai"
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("kie: base url: %w", err)
	}
	imageSize := strings.TrimSpace(opts.ImageSize)
	if imageSize == "" {
		imageSize = "1:1"
	}
	videoModel := strings.TrimSpace(opts.VideoModel)
	if videoModel == "" {
		videoModel = "veo3_fast"
	}
	rc := opts.Retry
	if rc.MaxAttempts <= 0 {
		rc.MaxAttempts = 3
	}
	if rc.BaseDelay <= 0 {
		rc.BaseDelay = 250 * time.Millisecond
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		imageSize:  imageSize,
		videoModel: videoModel,
		httpClient: httpClient,
		logger:     logger,
		retry:      rc,
	}, nil
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// CreateTask starts a generation job and returns the provider task id.
// Every failure wraps domain.ErrProviderUnavailable.
func (c *Client) CreateTask(ctx context.Context, req generation.CreateRequest) (string, error) {
	ctx, span := otel.Tracer("kie").Start(ctx, "kie.create_task")
	defer span.End()
	span.SetAttributes(attribute.String("kie.mode", string(req.Mode)))

	if !c.HasCredentials() {
		return "", fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, ErrMissingAPIKey)
	}

	var (
		path string
		body any
	)
	if req.Mode == domain.TaskModeVideo {
		path = videoGeneratePath
		body = videoRequest{
			Prompt:      req.Prompt,
			Model:       c.videoModel,
			ImageURLs:   req.ImageURLs,
			CallBackURL: req.CallbackURL,
		}
	} else {
		path = imageGeneratePath
		body = imageRequest{
			Prompt:      req.Prompt,
			Size:        c.imageSize,
			NVariants:   req.NumImages,
			FilesURL:    req.ImageURLs,
			CallBackURL: req.CallbackURL,
		}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("kie: encode request: %w", err)
	}

	env, err := c.do(ctx, "create", http.MethodPost, c.baseURL+path, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return "", fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
	}
	var data createData
	if err := json.Unmarshal(env.Data, &data); err != nil || strings.TrimSpace(data.TaskID) == "" {
		span.SetStatus(codes.Error, "missing task id")
		return "", fmt.Errorf("%w: kie: response without task id", domain.ErrProviderUnavailable)
	}
	span.SetAttributes(attribute.String("kie.task_id", data.TaskID))
	c.logger.Debug().Str("provider_task_id", data.TaskID).Str("mode", string(req.Mode)).Msg("kie: task created")
	return data.TaskID, nil
}

// GetTaskStatus fetches record-info for a task. Transport errors and 5xx
// responses are retried.
func (c *Client) GetTaskStatus(ctx context.Context, mode domain.TaskMode, providerTaskID string) (generation.StatusPayload, error) {
	ctx, span := otel.Tracer("kie").Start(ctx, "kie.record_info")
	defer span.End()
	span.SetAttributes(attribute.String("kie.task_id", providerTaskID))

	if !c.HasCredentials() {
		return generation.StatusPayload{}, ErrMissingAPIKey
	}
	path := imageRecordPath
	if mode == domain.TaskModeVideo {
		path = videoRecordPath
	}
	endpoint := c.baseURL + path + "?" + url.Values{"taskId": {providerTaskID}}.Encode()

	var env *envelope
	cfg := c.retry
	cfg.OnRetry = func(attempt int, err error) {
		c.logger.Warn().Err(err).Int("attempt", attempt).Str("provider_task_id", providerTaskID).Msg("kie: record-info retry")
	}
	err := retry.Do(ctx, cfg, func() error {
		var callErr error
		env, callErr = c.do(ctx, "record_info", http.MethodGet, endpoint, nil)
		var se *statusError
		if errors.As(callErr, &se) && se.status < http.StatusInternalServerError {
			return retry.Permanent(callErr)
		}
		return callErr
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record-info failed")
		return generation.StatusPayload{}, err
	}

	var data recordData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return generation.StatusPayload{}, fmt.Errorf("kie: decode record-info: %w", err)
	}
	payload := generation.StatusPayload{
		ProviderTaskID: data.TaskID,
		ResultURLs:     data.urls(),
		ErrorMessage:   strings.TrimSpace(data.ErrorMessage),
	}
	if payload.ProviderTaskID == "" {
		payload.ProviderTaskID = providerTaskID
	}
	if data.SuccessFlag != nil {
		payload.SuccessFlag = int(*data.SuccessFlag)
	}
	return payload, nil
}

type statusError struct {
	status int
	code   int
	msg    string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("kie: http %d code %d: %s", e.status, e.code, e.msg)
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body []byte) (*envelope, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("kie: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ProviderRequestDuration.WithLabelValues(op, "error").Observe(time.Since(started).Seconds())
		return nil, fmt.Errorf("kie: %s: %w", op, err)
	}
	defer resp.Body.Close()
	metrics.ProviderRequestDuration.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Observe(time.Since(started).Seconds())

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("kie: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := textnorm.Truncate(strings.TrimSpace(string(raw)), maxErrorBody)
		return nil, &statusError{status: resp.StatusCode, msg: msg}
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("kie: decode response: %w", err)
	}
	if env.Code != codeOK {
		status := resp.StatusCode
		if env.Code >= 400 && env.Code < 600 {
			status = env.Code
		}
		return nil, &statusError{status: status, code: env.Code, msg: env.Msg}
	}
	return &env, nil
}
