// Package apiclient is the typed request/response side of the sync layer.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/livesync/pkg/logger"
)

// TokenSource returns the current credential, "" when signed out.
type TokenSource func() string

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RateLimit  float64 // 每秒请求数，0 表示不限
	RateBurst  int
	HTTPClient *http.Client
}

type Client struct {
	base    string
	http    *http.Client
	token   TokenSource
	limiter *rate.Limiter
	tracer  trace.Tracer
	log     *zap.Logger
}

func New(opts Options, token TokenSource) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return &Client{
		base:    strings.TrimRight(opts.BaseURL, "/"),
		http:    hc,
		token:   token,
		limiter: limiter,
		tracer:  otel.Tracer("github.com/d60-Lab/livesync/apiclient"),
		log:     logger.Named("apiclient"),
	}
}

type request struct {
	op     string
	method string
	path   string
	query  url.Values
	body   any
	noAuth bool
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	ctx, span := c.tracer.Start(ctx, r.op, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.method", r.method), attribute.String("http.route", r.path)))
	defer span.End()

	err := c.roundTrip(ctx, r, out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, r request, out any) error {
	class := ErrMutationRejected
	if r.method == http.MethodGet {
		class = ErrFetchFailed
	}

	var token string
	if !r.noAuth {
		if token = c.token(); token == "" {
			return fmt.Errorf("%s: %w", r.op, ErrNoCredential)
		}
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: %w: %w", r.op, class, err)
		}
	}

	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", r.op, err)
		}
		body = bytes.NewReader(b)
	}

	u := c.base + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return fmt.Errorf("%s: %w", r.op, err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", r.op, class, err)
	}
	defer resp.Body.Close()

	c.log.Debug("request",
		zap.String("op", r.op),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", reqID),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Method: r.method, Path: r.path, Status: resp.StatusCode}
		var e struct {
			Error string `json:"error"`
		}
		if raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096)); len(raw) > 0 {
			if json.Unmarshal(raw, &e) == nil {
				se.Message = e.Error
			}
		}
		return se
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: %w: %w", r.op, ErrParseFailure, err)
	}
	return nil
}
