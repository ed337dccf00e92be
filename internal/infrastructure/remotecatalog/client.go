// Package remotecatalog is the HTTP adapter for the remote product catalog API.
package remotecatalog

import (
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

	"github.com/erp/catalogsync/internal/domain/catalogsync"
	"github.com/erp/catalogsync/internal/infrastructure/config"
	"github.com/erp/catalogsync/internal/infrastructure/logger"
	"github.com/erp/catalogsync/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// maxResponseSize limits a response body to prevent memory exhaustion
	maxResponseSize = 32 * 1024 * 1024
	// maxErrorBody is how much of a failed response is kept in the error
	maxErrorBody = 512

	productsPath = "products"
	removedPath  = "products/removed"
)

// Client implements catalogsync.RemoteCatalog over HTTP
type Client struct {
	baseURL      *url.URL
	apiKey       string
	apiKeyHeader string
	retailer     string
	pageSize     int
	pageDelay    time.Duration
	httpClient   *http.Client
	logger       *zap.Logger
}

// NewClient creates a client from validated remote settings
func NewClient(cfg config.RemoteConfig, log *zap.Logger) (*Client, error) {
	if err := cfg.ValidateRemote(); err != nil {
		return nil, err
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("remotecatalog: invalid base url: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:      base,
		apiKey:       cfg.APIKey,
		apiKeyHeader: cfg.APIKeyHeader,
		retailer:     cfg.Retailer,
		pageSize:     cfg.PageSize,
		pageDelay:    cfg.PageDelay,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		logger:       log.Named("remotecatalog"),
	}, nil
}

// FetchAll pages through the catalog ordered by ascending id. A page shorter
// than the page size ends the fetch; any failed page fails the whole fetch.
func (c *Client) FetchAll(ctx context.Context) ([]catalogsync.RemoteItem, error) {
	ctx, span := telemetry.StartSpan(ctx, "remotecatalog.fetch_all", telemetry.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	var (
		items  []catalogsync.RemoteItem
		seen   = make(map[int64]struct{})
		offset int
	)
	for page := 0; ; page++ {
		if page > 0 {
			if err := c.wait(ctx); err != nil {
				telemetry.RecordError(span, err)
				return nil, err
			}
		}

		resp, err := c.fetchPage(ctx, offset)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("page %d (offset %d): %w", page, offset, err)
		}

		for _, item := range resp.Data {
			// an insert on the remote side can shift an item onto the next page
			if _, dup := seen[item.ID]; dup {
				continue
			}
			seen[item.ID] = struct{}{}
			items = append(items, item)
		}
		logger.L(ctx).Debug("fetched remote page",
			zap.Int("page", page),
			zap.Int("offset", offset),
			zap.Int("items", len(resp.Data)),
		)

		offset += len(resp.Data)
		if len(resp.Data) < c.pageSize || (resp.HasMore != nil && !*resp.HasMore) {
			break
		}
	}

	telemetry.SetAttributes(span, telemetry.SpanAttrItemCount, len(items))
	telemetry.SetOK(span)
	return items, nil
}

// FetchTombstones returns the ids removed on the remote side since the given
// time. A zero since asks for every removal the remote still remembers.
func (c *Client) FetchTombstones(ctx context.Context, since time.Time) (catalogsync.TombstoneSet, error) {
	ctx, span := telemetry.StartSpan(ctx, "remotecatalog.fetch_tombstones", telemetry.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	q := url.Values{}
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339))
	}

	var resp removedResponse
	if err := c.getJSON(ctx, removedPath, q, &resp); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if resp.Status.failed() {
		err := fmt.Errorf("%w: %v", catalogsync.ErrRemoteRequestFailed, resp.Status)
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttributes(span, telemetry.SpanAttrItemCount, len(resp.RemovedIDs))
	telemetry.SetOK(span)
	return catalogsync.NewTombstoneSet(resp.RemovedIDs...), nil
}

// FetchItem returns a single item. An id the remote does not know yields an
// item carrying only the id and empty collections.
func (c *Client) FetchItem(ctx context.Context, remoteID int64) (*catalogsync.RemoteItem, error) {
	ctx, span := telemetry.StartSpan(ctx, "remotecatalog.fetch_item",
		telemetry.WithSpanKind(trace.SpanKindClient),
		telemetry.WithAttribute(telemetry.SpanAttrRemoteID, remoteID),
	)
	defer span.End()

	var item catalogsync.RemoteItem
	err := c.getJSON(ctx, productsPath+"/"+strconv.FormatInt(remoteID, 10), nil, &item)
	var status *statusError
	if errors.As(err, &status) && status.code == http.StatusNotFound {
		telemetry.SetOK(span)
		return &catalogsync.RemoteItem{ID: remoteID}, nil
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if item.ID == 0 {
		item.ID = remoteID
	}
	telemetry.SetOK(span)
	return &item, nil
}

func (c *Client) fetchPage(ctx context.Context, offset int) (*listResponse, error) {
	q := url.Values{}
	q.Set("currentItem", strconv.Itoa(offset))
	q.Set("pageSize", strconv.Itoa(c.pageSize))
	q.Set("orderBy", "id")
	q.Set("orderDirection", "Asc")
	q.Set("includeInventory", "true")
	q.Set("includePricebook", "true")
	q.Set("includeSerials", "true")
	q.Set("includeBatchExpires", "true")
	q.Set("includeWarranties", "true")
	q.Set("includeQuantity", "true")

	var resp listResponse
	if err := c.getJSON(ctx, productsPath, q, &resp); err != nil {
		return nil, err
	}
	if resp.Status.failed() {
		return nil, fmt.Errorf("%w: %v", catalogsync.ErrRemoteRequestFailed, resp.Status)
	}
	return &resp, nil
}

// wait sleeps for the inter-page delay the remote rate limit requires
func (c *Client) wait(ctx context.Context) error {
	if c.pageDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(c.pageDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// statusError is a non-2xx response
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("HTTP %d", e.code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.code, e.body)
}

func (e *statusError) Unwrap() error {
	if e.code == http.StatusTooManyRequests {
		return catalogsync.ErrRemoteRateLimited
	}
	return catalogsync.ErrRemoteRequestFailed
}

// getJSON performs a GET against path and decodes the body into out
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL.ResolveReference(&url.URL{Path: path})
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("remotecatalog: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(c.apiKeyHeader, c.apiKey)
	if c.retailer != "" {
		req.Header.Set("Retailer", c.retailer)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", catalogsync.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", catalogsync.ErrRemoteUnavailable, err)
	}

	c.logger.Debug("remote request",
		zap.String("path", u.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("bytes", len(body)),
	)

	if resp.StatusCode >= http.StatusBadRequest {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return &statusError{code: resp.StatusCode, body: snippet}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: failed to parse response: %v", catalogsync.ErrRemoteRequestFailed, err)
	}
	return nil
}

var _ catalogsync.RemoteCatalog = (*Client)(nil)
