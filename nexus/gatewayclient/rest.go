package gatewayclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrRateLimited is returned when a second 429 is received for the same
// request after the single automatic retry: further
// 429s propagate as errors rather than retrying indefinitely.
var ErrRateLimited = errors.New("gatewayclient: rate limited after automatic retry")

// RESTClient wraps a resty client with per-route rate-limit bucketing and
// the platform's documented 429 single-retry contract.
type RESTClient struct {
	http    *resty.Client
	buckets *RouteBuckets
	sleep   func(time.Duration)
}

// NewRESTClient builds a REST client against baseURL with a fresh bucket
// map. sleepFn defaults to time.Sleep; tests may inject a no-op.
func NewRESTClient(baseURL string, sleepFn func(time.Duration)) *RESTClient {
	if sleepFn == nil {
		sleepFn = time.Sleep
	}
	return &RESTClient{
		http:    resty.New().SetBaseURL(baseURL).SetTimeout(15 * time.Second),
		buckets: NewRouteBuckets(),
		sleep:   sleepFn,
	}
}

// Do executes method against route with the supplied JSON body, honoring
// the route's rate-limit bucket and retrying exactly once on 429.
func (c *RESTClient) Do(ctx context.Context, method, route string, body any) (*resty.Response, error) {
	bucket := c.buckets.Get(route)

	if wait := bucket.Reserve(time.Now()); wait > 0 {
		c.sleep(wait)
	}

	resp, err := c.send(ctx, method, route, body)
	if err != nil {
		return nil, err
	}
	c.applyHeaders(bucket, resp)

	if resp.StatusCode() == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp)
		c.sleep(retryAfter)

		resp, err = c.send(ctx, method, route, body)
		if err != nil {
			return nil, err
		}
		c.applyHeaders(bucket, resp)
		if resp.StatusCode() == http.StatusTooManyRequests {
			return resp, ErrRateLimited
		}
	}
	return resp, nil
}

func (c *RESTClient) send(ctx context.Context, method, route string, body any) (*resty.Response, error) {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req = req.SetBody(body)
	}
	switch method {
	case http.MethodGet:
		return req.Get(route)
	case http.MethodPost:
		return req.Post(route)
	case http.MethodPut:
		return req.Put(route)
	case http.MethodPatch:
		return req.Patch(route)
	case http.MethodDelete:
		return req.Delete(route)
	default:
		return nil, fmt.Errorf("gatewayclient: unsupported method %q", method)
	}
}

func (c *RESTClient) applyHeaders(bucket *RouteBucket, resp *resty.Response) {
	remaining, hasRemaining := parseIntHeader(resp, "X-RateLimit-Remaining")
	resetAt, hasReset := parseEpochHeader(resp, "X-RateLimit-Reset")
	if hasRemaining && hasReset {
		bucket.UpdateFromResponse(remaining, resetAt)
	}
}

func parseRetryAfter(resp *resty.Response) time.Duration {
	raw := resp.Header().Get("Retry-After")
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || secs < 0 {
		return time.Second
	}
	return time.Duration(secs * float64(time.Second))
}

func parseIntHeader(resp *resty.Response, name string) (int, bool) {
	raw := resp.Header().Get(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseEpochHeader(resp *resty.Response, name string) (time.Time, bool) {
	raw := resp.Header().Get(name)
	if raw == "" {
		return time.Time{}, false
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(int64(secs), 0), true
}
