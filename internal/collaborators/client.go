package collaborators

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/fieldops/backend/domain"
)

// client is a minimal JSON-over-HTTP helper shared by the collaborator
// adapters. Every call is bounded by the configured deadline; an expired
// deadline surfaces as context.DeadlineExceeded so callers can map it to
// ExternalLookupTimeout.
type client struct {
	baseURL string
	http    *fasthttp.Client
	timeout time.Duration
}

func newClient(baseURL string, timeout time.Duration) *client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &fasthttp.Client{},
		timeout: timeout,
	}
}

func (c *client) getJSON(ctx context.Context, path string, target interface{}) error {
	return c.doJSON(ctx, fasthttp.MethodGet, path, nil, target)
}

func (c *client) postJSON(ctx context.Context, path string, body, target interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.doJSON(ctx, fasthttp.MethodPost, path, payload, target)
}

func (c *client) doJSON(ctx context.Context, method, path string, body []byte, target interface{}) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return fmt.Errorf("collaborator call: %w", context.DeadlineExceeded)
	}

	if err := c.http.DoTimeout(req, resp, timeout); err != nil {
		if err == fasthttp.ErrTimeout {
			return fmt.Errorf("collaborator call %s: %w", path, context.DeadlineExceeded)
		}
		return fmt.Errorf("collaborator call %s: %w", path, err)
	}

	switch status := resp.StatusCode(); {
	case status == fasthttp.StatusNotFound:
		return domain.NewError(domain.ErrCodeNotFound, "", fmt.Sprintf("%s returned 404", path))
	case status >= 400:
		return fmt.Errorf("collaborator call %s: status %d", path, status)
	}

	if target == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), target); err != nil {
		return fmt.Errorf("collaborator call %s: decode: %w", path, err)
	}
	return nil
}
