// Package schoolapi talks to the school HTTP API: refetching cached entities and replaying offline actions.
package schoolapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-offline/core"
	"github.com/trezcool/masomo-offline/core/offline"
	"github.com/trezcool/masomo-offline/core/queue"
)

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	se, ok := errors.Cause(err).(*StatusError)
	return ok && se.Code == http.StatusNotFound
}

type Client struct {
	baseURL         string
	http            *http.Client
	maxTries        uint
	initialInterval time.Duration
	logger          core.Logger
}

var (
	_ offline.Fetcher = (*Client)(nil)
	_ queue.Sender    = (*Client)(nil)
)

func NewClient(conf *core.Config, logger core.Logger) *Client {
	return New(conf.API.BaseURL, &http.Client{Timeout: conf.API.Timeout}, conf.API.MaxTries, logger)
}

func New(baseURL string, httpClient *http.Client, maxTries uint, logger core.Logger) *Client {
	if maxTries == 0 {
		maxTries = 1
	}
	return &Client{
		baseURL:         baseURL,
		http:            httpClient,
		maxTries:        maxTries,
		initialInterval: 500 * time.Millisecond,
		logger:          logger,
	}
}

func (c *Client) FetchStudent(ctx context.Context, id string) (offline.StudentData, error) {
	var data offline.StudentData
	err := c.do(ctx, http.MethodGet, "/students/"+url.PathEscape(id)+"/offline", nil, nil, &data)
	if IsNotFound(err) {
		return data, errors.Wrap(offline.ErrRemoteNotFound, err.Error())
	}
	return data, err
}

func (c *Client) FetchParent(ctx context.Context) (offline.ParentData, error) {
	var data offline.ParentData
	err := c.do(ctx, http.MethodGet, "/parent/offline", nil, nil, &data)
	return data, err
}

// Send replays one queued action. The action id is sent as the idempotency key,
// so a retried delivery is not applied twice by the API.
func (c *Client) Send(ctx context.Context, act queue.Action) error {
	hdr := http.Header{"Idempotency-Key": {act.ID}}
	return c.do(ctx, act.Method, act.Endpoint, act.Payload, hdr, nil)
}

// Ping checks the API is reachable, without retries.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.attempt(ctx, http.MethodGet, "/health", nil, nil, nil)
	return err
}

// do retries network errors, 429 and 5xx answers with an exponential backoff.
func (c *Client) do(ctx context.Context, method, path string, body []byte, hdr http.Header, out interface{}) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return c.attempt(ctx, method, path, body, hdr, out)
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("school API call failed, retrying", err, map[string]interface{}{"in": next.String()})
		}),
	)
	return err
}

func (c *Client) attempt(ctx context.Context, method, path string, body []byte, hdr http.Header, out interface{}) (struct{}, error) {
	var none struct{}

	var rdr io.Reader
	if len(body) > 0 {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return none, backoff.Permanent(errors.Wrap(err, "building request"))
	}
	req.Header.Set("Accept", "application/json")
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vals := range hdr {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	res, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return none, backoff.Permanent(errors.Wrapf(err, "%s %s", method, path))
		}
		return none, errors.Wrapf(err, "%s %s", method, path)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode >= http.StatusBadRequest {
		msg, _ := ioutil.ReadAll(io.LimitReader(res.Body, 1024))
		serr := &StatusError{Method: method, URL: req.URL.String(), Code: res.StatusCode, Body: string(bytes.TrimSpace(msg))}
		if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= http.StatusInternalServerError {
			return none, serr
		}
		return none, backoff.Permanent(serr)
	}

	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return none, backoff.Permanent(errors.Wrapf(err, "decoding %s %s", method, path))
		}
	}
	return none, nil
}
