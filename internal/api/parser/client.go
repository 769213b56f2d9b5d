package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpClient "github.com/Alias1177/Evaluator/internal/platform/http"
	"github.com/Alias1177/Evaluator/models"
)

// ErrorKind classifies extraction call failures.
type ErrorKind int

const (
	// KindTransport covers connection errors, timeouts and cancellations.
	KindTransport ErrorKind = iota
	// KindService covers non-2xx responses from the extraction service.
	KindService
	// KindDecode covers response bodies that do not match the expected schema.
	KindDecode
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindService:
		return "service"
	case KindDecode:
		return "decode"
	}
	return "unknown"
}

// Error is a classified extraction call failure. Status is set for
// KindService errors.
type Error struct {
	Kind   ErrorKind
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Kind == KindService {
		return fmt.Sprintf("parser %s error (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("parser %s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Usage response headers. The service reports token accounting out of band so
// the response body stays a bare prediction (or array of predictions).
const (
	headerInputTokens      = "X-Usage-Input-Tokens"
	headerOutputTokens     = "X-Usage-Output-Tokens"
	headerCacheReadTokens  = "X-Usage-Cache-Read-Tokens"
	headerCacheWriteTokens = "X-Usage-Cache-Write-Tokens"
	headerRequests         = "X-Usage-Requests"
)

// Client calls the structured-extraction service.
type Client struct {
	baseURL       string
	httpClient    *httpClient.Client
	singleTimeout time.Duration
	batchTimeout  time.Duration
	logger        zerolog.Logger
}

// ClientOptions holds options for creating a new parser client
type ClientOptions struct {
	BaseURL        string
	SingleTimeout  time.Duration
	BatchTimeout   time.Duration
	RequestsPerSec int
}

// NewClient creates a new extraction service client
func NewClient(options ClientOptions) *Client {
	if options.SingleTimeout == 0 {
		options.SingleTimeout = 30 * time.Second
	}
	if options.BatchTimeout == 0 {
		options.BatchTimeout = 5 * time.Minute
	}

	return &Client{
		baseURL: options.BaseURL,
		httpClient: httpClient.NewClient(httpClient.ClientOptions{
			// The wrapper cap must not undercut the batch deadline; per-call
			// contexts carry the tighter timeouts.
			Timeout:        options.BatchTimeout,
			RequestsPerSec: options.RequestsPerSec,
		}),
		singleTimeout: options.SingleTimeout,
		batchTimeout:  options.BatchTimeout,
		logger:        log.With().Str("component", "parser_client").Logger(),
	}
}

type batchRequest struct {
	Items []models.PostInput `json:"items"`
}

// Parse dispatches a chunk to the service: a single-object request for a
// one-item chunk, the batched request shape otherwise. Predictions come back
// in request order.
func (c *Client) Parse(ctx context.Context, items []models.PostInput) ([]models.ParsedPrediction, models.Usage, error) {
	if len(items) == 1 {
		pred, usage, err := c.ParseSingle(ctx, items[0])
		if err != nil {
			return nil, models.Usage{}, err
		}
		return []models.ParsedPrediction{pred}, usage, nil
	}
	return c.ParseBatch(ctx, items)
}

// ParseSingle requests extraction for one post.
func (c *Client) ParseSingle(ctx context.Context, item models.PostInput) (models.ParsedPrediction, models.Usage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.singleTimeout)
	defer cancel()

	body, usage, err := c.post(ctx, "/parse_prediction", item)
	if err != nil {
		return models.ParsedPrediction{}, models.Usage{}, err
	}

	var pred models.ParsedPrediction
	if err := json.Unmarshal(body, &pred); err != nil {
		return models.ParsedPrediction{}, models.Usage{}, &Error{Kind: KindDecode, Err: err}
	}
	if err := pred.Validate(); err != nil {
		return models.ParsedPrediction{}, models.Usage{}, &Error{Kind: KindDecode, Err: err}
	}
	return pred, usage, nil
}

// ParseBatch requests extraction for several posts in one call.
func (c *Client) ParseBatch(ctx context.Context, items []models.PostInput) ([]models.ParsedPrediction, models.Usage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.batchTimeout)
	defer cancel()

	body, usage, err := c.post(ctx, "/parse_prediction_batch", batchRequest{Items: items})
	if err != nil {
		return nil, models.Usage{}, err
	}

	var preds []models.ParsedPrediction
	if err := json.Unmarshal(body, &preds); err != nil {
		return nil, models.Usage{}, &Error{Kind: KindDecode, Err: err}
	}
	for i, pred := range preds {
		if err := pred.Validate(); err != nil {
			return nil, models.Usage{}, &Error{Kind: KindDecode, Err: fmt.Errorf("item %d: %w", i, err)}
		}
	}
	return preds, usage, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, models.Usage, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, models.Usage{}, &Error{Kind: KindDecode, Err: fmt.Errorf("encoding request: %w", err)}
	}

	url := c.baseURL + path
	c.logger.Debug().Str("url", url).Int("bytes", len(encoded)).Msg("Calling extraction service")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, models.Usage{}, &Error{Kind: KindTransport, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.DoRequest(ctx, req)
	if err != nil {
		var statusErr *httpClient.HTTPStatusError
		if errors.As(err, &statusErr) {
			c.logger.Error().Int("status", statusErr.StatusCode).Str("url", url).Msg("Extraction service error")
			return nil, models.Usage{}, &Error{Kind: KindService, Status: statusErr.StatusCode, Err: err}
		}
		return nil, models.Usage{}, &Error{Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.Usage{}, &Error{Kind: KindTransport, Err: fmt.Errorf("reading response body: %w", err)}
	}

	return body, usageFromHeaders(resp.Header), nil
}

func usageFromHeaders(h http.Header) models.Usage {
	return models.Usage{
		InputTokens:      headerInt64(h, headerInputTokens),
		OutputTokens:     headerInt64(h, headerOutputTokens),
		CacheReadTokens:  headerInt64(h, headerCacheReadTokens),
		CacheWriteTokens: headerInt64(h, headerCacheWriteTokens),
		Requests:         int(headerInt64(h, headerRequests)),
	}
}

func headerInt64(h http.Header, key string) int64 {
	v := h.Get(key)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
