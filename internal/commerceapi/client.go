// Package commerceapi is the HTTP client for the external commerce backend:
// order creation, payment initiation and status, and coupon validation.
//
// Responses are parsed strictly. A success response missing a required field
// fails with *MalformedResponseError instead of yielding zero values.
package commerceapi

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/checkout"
)

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 1 << 20

// MalformedResponseError is returned when a success response cannot be
// parsed or lacks a required field.
type MalformedResponseError struct {
	Op     string
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return "malformed " + e.Op + " response: " + e.Reason
}

// Client calls the commerce backend.
type Client struct {
	base *url.URL
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its transport is used
// as is, without tracing.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// New creates a Client for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, errors.Errorf("base url %q must be absolute http(s)", baseURL)
	}

	c := &Client{
		base: u,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type request struct {
	method         string
	path           string
	token          string
	idempotencyKey string
	body           []byte
}

// do sends r and returns the body of a 2xx response. Other statuses fail
// with *checkout.RejectedError; deadlines fail with checkout.ErrTimeout.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.base.String()+r.path, body)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	if r.idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", r.idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, errors.Wrapf(checkout.ErrTimeout, "%s %s", r.method, r.path)
		}
		return nil, errors.Wrapf(err, "%s %s", r.method, r.path)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		if isTimeout(err) {
			return nil, errors.Wrapf(checkout.ErrTimeout, "read %s %s", r.method, r.path)
		}
		return nil, errors.Wrap(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := errorDetail(data)
		zctx.From(ctx).Debug("Commerce API rejected request",
			zap.String("method", r.method),
			zap.String("path", r.path),
			zap.Int("status", resp.StatusCode),
			zap.String("detail", detail),
		)
		return nil, &checkout.RejectedError{StatusCode: resp.StatusCode, Message: detail}
	}
	return data, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// errorDetail extracts a human-readable message from an error body of the
// form {"detail": "..."} or {"message": "..."}. Anything else yields "".
func errorDetail(data []byte) string {
	var detail, message string
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return ""
	}
	_ = d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "detail":
			if d.Next() == jx.String {
				v, err := d.Str()
				detail = v
				return err
			}
		case "message":
			if d.Next() == jx.String {
				v, err := d.Str()
				message = v
				return err
			}
		}
		return d.Skip()
	})
	if detail != "" {
		return detail
	}
	return message
}

// decodeObject walks a JSON object, handing each field to fn. Non-object
// input fails with *MalformedResponseError.
func decodeObject(op string, data []byte, fn func(d *jx.Decoder, key string) error) error {
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return &MalformedResponseError{Op: op, Reason: "expected object"}
	}
	if err := d.Obj(fn); err != nil {
		return &MalformedResponseError{Op: op, Reason: err.Error()}
	}
	return nil
}

// scalarString reads a string or number as its textual value. Other kinds
// are skipped and yield "".
func scalarString(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		return string(n), err
	default:
		return "", d.Skip()
	}
}
