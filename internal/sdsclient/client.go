// Package sdsclient talks to a Sequential Data Store over its REST API.
//
// Requests are authenticated with an OAuth2 client-credentials token
// obtained from the store's identity endpoint. Every non-2xx response is
// reported as an *sds.StoreError carrying the HTTP status.
package sdsclient

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

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/roach88/sdsverify/internal/sds"
)

// TokenPath is the identity endpoint, relative to the resource URL.
const TokenPath = "/identity/connect/token"

const (
	maxErrorBody    = 4096
	windowTimestamp = time.RFC3339Nano
)

// Config locates a store and the credentials used to reach it.
type Config struct {
	Resource     string
	TenantID     string
	APIVersion   string
	ClientID     string
	ClientSecret string

	// HTTPClient carries requests and token fetches. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client

	// Timeout bounds each request. Zero means no limit: a hung store
	// hangs the caller.
	Timeout time.Duration
}

// Client is an sds.ReadClient backed by the REST API.
type Client struct {
	baseURL string
	client  *http.Client
}

var _ sds.ReadClient = (*Client)(nil)

// New builds a client. ctx is retained for token refreshes and should
// outlive the client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	resource := strings.TrimRight(cfg.Resource, "/")
	if resource == "" {
		return nil, errors.New("sdsclient: resource is required")
	}
	if cfg.TenantID == "" || cfg.APIVersion == "" {
		return nil, errors.New("sdsclient: tenant and api version are required")
	}

	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cfg.HTTPClient)
	}
	creds := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     resource + TokenPath,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	httpClient := creds.Client(ctx)
	httpClient.Timeout = cfg.Timeout
	// A 302 from type creation names an existing type; it is handled, not followed.
	httpClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &Client{
		baseURL: fmt.Sprintf("%s/api/%s/Tenants/%s",
			resource, url.PathEscape(cfg.APIVersion), url.PathEscape(cfg.TenantID)),
		client: httpClient,
	}, nil
}

// GetOrCreateType posts t. A 302 or 409 means a type with t.ID already
// exists; the existing definition is fetched and returned.
func (c *Client) GetOrCreateType(ctx context.Context, namespaceID string, t sds.Type) (sds.Type, error) {
	op := string(sds.OpGetOrCreateType)
	var out sds.Type
	status, err := c.doJSON(ctx, op, http.MethodPost, c.typePath(namespaceID, t.ID), nil, t, &out,
		http.StatusFound, http.StatusConflict)
	if err != nil {
		return sds.Type{}, err
	}
	if status == http.StatusFound || status == http.StatusConflict {
		_, err := c.doJSON(ctx, op, http.MethodGet, c.typePath(namespaceID, t.ID), nil, nil, &out)
		if err != nil {
			return sds.Type{}, err
		}
	}
	return out, nil
}

// CreateOrUpdateStream puts s, rebinding an existing stream to s.TypeID.
func (c *Client) CreateOrUpdateStream(ctx context.Context, namespaceID string, s sds.Stream) error {
	_, err := c.doJSON(ctx, string(sds.OpCreateOrUpdateStream), http.MethodPut,
		c.streamPath(namespaceID, s.ID), nil, s, nil)
	return err
}

// InsertValues posts events in a single request.
func (c *Client) InsertValues(ctx context.Context, namespaceID, streamID string, events []sds.Event) error {
	_, err := c.doJSON(ctx, string(sds.OpInsertValues), http.MethodPost,
		c.streamPath(namespaceID, streamID)+"/Data", nil, events, nil)
	return err
}

// DeleteStream deletes a stream and its data.
func (c *Client) DeleteStream(ctx context.Context, namespaceID, streamID string) error {
	_, err := c.doJSON(ctx, string(sds.OpDeleteStream), http.MethodDelete,
		c.streamPath(namespaceID, streamID), nil, nil, nil)
	return err
}

// DeleteType deletes a type.
func (c *Client) DeleteType(ctx context.Context, namespaceID, typeID string) error {
	_, err := c.doJSON(ctx, string(sds.OpDeleteType), http.MethodDelete,
		c.typePath(namespaceID, typeID), nil, nil, nil)
	return err
}

// GetType fetches a type definition.
func (c *Client) GetType(ctx context.Context, namespaceID, typeID string) (sds.Type, error) {
	var out sds.Type
	_, err := c.doJSON(ctx, string(sds.OpGetType), http.MethodGet,
		c.typePath(namespaceID, typeID), nil, nil, &out)
	return out, err
}

// GetStream fetches a stream definition.
func (c *Client) GetStream(ctx context.Context, namespaceID, streamID string) (sds.Stream, error) {
	var out sds.Stream
	_, err := c.doJSON(ctx, string(sds.OpGetStream), http.MethodGet,
		c.streamPath(namespaceID, streamID), nil, nil, &out)
	return out, err
}

// GetWindowValues reads the values whose keys fall in [start, end].
func (c *Client) GetWindowValues(ctx context.Context, namespaceID, streamID string, start, end time.Time) ([]json.RawMessage, error) {
	q := url.Values{}
	q.Set("startIndex", start.UTC().Format(windowTimestamp))
	q.Set("endIndex", end.UTC().Format(windowTimestamp))

	var out []json.RawMessage
	_, err := c.doJSON(ctx, string(sds.OpGetWindowValues), http.MethodGet,
		c.streamPath(namespaceID, streamID)+"/Data", q, nil, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) namespacePath(namespaceID string) string {
	return c.baseURL + "/Namespaces/" + url.PathEscape(namespaceID)
}

func (c *Client) typePath(namespaceID, typeID string) string {
	return c.namespacePath(namespaceID) + "/Types/" + url.PathEscape(typeID)
}

func (c *Client) streamPath(namespaceID, streamID string) string {
	return c.namespacePath(namespaceID) + "/Streams/" + url.PathEscape(streamID)
}

// doJSON sends body as JSON and decodes a 2xx response into out. Statuses
// listed in accept are returned without error and without decoding.
func (c *Client) doJSON(ctx context.Context, op, method, endpoint string, query url.Values, body, out any, accept ...int) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, sds.NewStoreError(op, 0, "encode request: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, sds.NewStoreError(op, 0, "build request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, sds.NewStoreError(op, 0, "%v", err)
	}
	defer resp.Body.Close()

	for _, status := range accept {
		if resp.StatusCode == status {
			_, _ = io.Copy(io.Discard, resp.Body)
			return resp.StatusCode, nil
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, sds.NewStoreError(op, resp.StatusCode, "%s", errorMessage(resp))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, sds.NewStoreError(op, resp.StatusCode, "decode response: %v", err)
	}
	return resp.StatusCode, nil
}

// errorBody is the error document returned by the store.
type errorBody struct {
	Message string `json:"Message"`
	Reason  string `json:"Reason"`
}

func errorMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		switch {
		case body.Message != "":
			return body.Message
		case body.Reason != "":
			return body.Reason
		}
	}
	if msg := strings.TrimSpace(string(raw)); msg != "" {
		return msg
	}
	return http.StatusText(resp.StatusCode)
}
