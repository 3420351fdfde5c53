package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/arbor/pkg/core"
)

// Client implements core.Backend against a remote Server. The owner is taken
// from the request context and sent in the owner header; extra headers (for
// example a bearer token for a fronting proxy) can be added with WithHeader.
type Client struct {
	base        string
	http        *http.Client
	ownerHeader string
	headers     http.Header
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.http = c }
}

// WithOwnerHeader changes the header carrying the owner.
func WithOwnerHeader(name string) ClientOption {
	return func(cl *Client) { cl.ownerHeader = name }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) ClientOption {
	return func(cl *Client) { cl.headers.Add(key, value) }
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		base:        strings.TrimRight(baseURL, "/"),
		http:        &http.Client{Timeout: 30 * time.Second},
		ownerHeader: DefaultOwnerHeader,
		headers:     make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ListRoot(ctx context.Context) ([]core.Node, error) {
	var out []core.Node
	return out, c.do(ctx, "list", http.MethodGet, "/note?root=true", nil, &out)
}

func (c *Client) ListChildren(ctx context.Context, parentID string) ([]core.Node, error) {
	var out []core.Node
	return out, c.do(ctx, "list", http.MethodGet, "/note?parentId="+url.QueryEscape(parentID), nil, &out)
}

func (c *Client) ListTrash(ctx context.Context) ([]core.Node, error) {
	var out []core.Node
	return out, c.do(ctx, "list", http.MethodGet, "/note?trash=true", nil, &out)
}

func (c *Client) ListActive(ctx context.Context) ([]core.Node, error) {
	var out []core.Node
	return out, c.do(ctx, "list", http.MethodGet, "/note", nil, &out)
}

func (c *Client) Get(ctx context.Context, id string) (core.Node, error) {
	var out core.Node
	return out, c.do(ctx, "get", http.MethodGet, "/note/"+url.PathEscape(id), nil, &out)
}

func (c *Client) Create(ctx context.Context, in core.CreateInput) (core.Node, error) {
	var out core.Node
	return out, c.do(ctx, "create", http.MethodPost, "/note", in, &out)
}

func (c *Client) Update(ctx context.Context, id string, p core.Patch) (core.Node, error) {
	body := map[string]any{}
	if p.Name != nil {
		body["name"] = *p.Name
	}
	if p.Content != nil {
		body["content"] = *p.Content
	}
	if p.Parent != nil {
		body["parentId"] = p.Parent.ID
	}
	var out core.Node
	return out, c.do(ctx, "update", http.MethodPatch, "/note/"+url.PathEscape(id), body, &out)
}

func (c *Client) Move(ctx context.Context, id string, parentID *string) (core.Node, error) {
	var out core.Node
	body := map[string]*string{"parentId": parentID}
	return out, c.do(ctx, "move", http.MethodPatch, "/note/"+url.PathEscape(id)+"/move", body, &out)
}

func (c *Client) Delete(ctx context.Context, id string, mode core.DeleteMode) (core.DeleteResult, error) {
	path := "/note/" + url.PathEscape(id)
	switch mode {
	case core.DeletePermanent:
		path += "?permanent=true"
	case core.DeleteSoft:
		path += "?permanent=false"
	}
	var out core.DeleteResult
	return out, c.do(ctx, "delete", http.MethodDelete, path, nil, &out)
}

func (c *Client) Restore(ctx context.Context, id string) (core.RestoreResult, error) {
	var out core.RestoreResult
	return out, c.do(ctx, "restore", http.MethodPut, "/note/"+url.PathEscape(id)+"/restore", nil, &out)
}

func (c *Client) Search(ctx context.Context, q core.SearchQuery) (core.SearchPage, error) {
	v := url.Values{"q": {q.Q}}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	var out core.SearchPage
	return out, c.do(ctx, "search", http.MethodGet, "/note/search?"+v.Encode(), nil, &out)
}

func (c *Client) Stats(ctx context.Context) (core.Stats, error) {
	var out core.Stats
	return out, c.do(ctx, "stats", http.MethodGet, "/note/stats", nil, &out)
}

// Health checks that the server answers.
func (c *Client) Health(ctx context.Context) error {
	var out map[string]string
	return c.do(ctx, "health", http.MethodGet, "/healthz", nil, &out)
}

// do sends one request. Transport failures and 5xx answers are Transient;
// other failures carry the kind the server reported.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return core.Wrap(core.KindInvalidTransition, op, "", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return core.Wrap(core.KindTransient, op, "", err)
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if owner, err := core.OwnerFrom(ctx); err == nil {
		req.Header.Set(c.ownerHeader, owner)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return core.Wrap(core.KindTransient, op, "", err)
	}
	defer resp.Body.Close()

	if _, failed := KindOf(resp.StatusCode); failed {
		var eb errorBody
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err := json.Unmarshal(data, &eb); err != nil || eb.Error == "" {
			eb = errorBody{Error: fmt.Sprintf("%s: %s", resp.Status, strings.TrimSpace(string(data)))}
		}
		return eb.toError(op, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return core.Wrap(core.KindTransient, op, "", fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

var _ core.Backend = (*Client)(nil)
