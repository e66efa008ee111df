package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/shopdeskhq/shopdesk/internal/resource"
)

const defaultEventBuffer = 64

var (
	errMissingBaseURL = errors.New("remote: base url is required")

	noOpLogger = zap.NewNop()
)

// HTTPClientConfig configures the REST and realtime transport against the
// remote store.
type HTTPClientConfig struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Logger      *zap.Logger
	EventBuffer int
}

// HTTPClient talks to the remote store over REST, with change
// notifications delivered over a WebSocket pumped into a bounded channel.
type HTTPClient struct {
	baseURL     string
	bearerToken string
	httpClient  *http.Client
	logger      *zap.Logger
	eventBuffer int
}

// NewHTTPClient constructs the remote client.
func NewHTTPClient(cfg HTTPClientConfig) (*HTTPClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errMissingBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	eventBuffer := cfg.EventBuffer
	if eventBuffer <= 0 {
		eventBuffer = defaultEventBuffer
	}

	return &HTTPClient{
		baseURL:     baseURL,
		bearerToken: cfg.BearerToken,
		httpClient:  httpClient,
		logger:      logger,
		eventBuffer: eventBuffer,
	}, nil
}

type selectResponse struct {
	Records []json.RawMessage `json:"records"`
}

// SelectByOwner fetches all rows of table for ownerID.
func (c *HTTPClient) SelectByOwner(ctx context.Context, table resource.Table, ownerID string) ([]json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/%s?owner=%s", c.baseURL, table, url.QueryEscape(ownerID))
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(request)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote: select %s returned status %d", table, response.StatusCode)
	}

	var payload selectResponse
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return payload.Records, nil
}

// Insert writes a new row.
func (c *HTTPClient) Insert(ctx context.Context, table resource.Table, record json.RawMessage) error {
	endpoint := fmt.Sprintf("%s/%s", c.baseURL, table)
	return c.write(ctx, http.MethodPost, endpoint, record)
}

// Update applies a sparse patch to an existing row.
func (c *HTTPClient) Update(ctx context.Context, table resource.Table, id string, patch json.RawMessage) error {
	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, table, url.PathEscape(id))
	return c.write(ctx, http.MethodPatch, endpoint, patch)
}

// Delete removes a row.
func (c *HTTPClient) Delete(ctx context.Context, table resource.Table, id string) error {
	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, table, url.PathEscape(id))
	return c.write(ctx, http.MethodDelete, endpoint, nil)
}

func (c *HTTPClient) write(ctx context.Context, method, endpoint string, body json.RawMessage) error {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	request, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if len(body) > 0 {
		request.Header.Set("Content-Type", "application/json")
	}
	c.authorize(request)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("remote: %s %s returned status %d", method, endpoint, response.StatusCode)
	}
	return nil
}

// Subscribe opens the owner-scoped realtime feed. Incoming frames are
// decoded and pushed onto a bounded channel consumed by a single
// reconciliation loop; the pump blocks when the consumer lags rather than
// dropping events.
func (c *HTTPClient) Subscribe(ctx context.Context, ownerID string) (<-chan ChangeEvent, func(), error) {
	wsURL := websocketURL(c.baseURL) + "/realtime?owner=" + url.QueryEscape(ownerID)

	header := http.Header{}
	if c.bearerToken != "" {
		header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	// The REST client's timeout would kill the long-lived stream (and the
	// dialer rejects clients with one), so the handshake uses its own.
	dialClient := &http.Client{Transport: c.httpClient.Transport}
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPClient: dialClient,
		HTTPHeader: header,
	})
	if err != nil {
		return nil, nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	events := make(chan ChangeEvent, c.eventBuffer)

	go func() {
		defer close(events)
		defer conn.Close(websocket.StatusNormalClosure, "unsubscribed")
		for {
			_, data, err := conn.Read(streamCtx)
			if err != nil {
				if streamCtx.Err() == nil {
					c.logger.Warn("realtime stream closed", zap.Error(err))
				}
				return
			}
			var event ChangeEvent
			if err := json.Unmarshal(data, &event); err != nil {
				c.logger.Warn("discarding malformed realtime frame", zap.Error(err))
				continue
			}
			select {
			case events <- event:
			case <-streamCtx.Done():
				return
			}
		}
	}()

	return events, cancel, nil
}

func (c *HTTPClient) authorize(request *http.Request) {
	if c.bearerToken != "" {
		request.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}
}

func websocketURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://")
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://")
	}
	return baseURL
}
