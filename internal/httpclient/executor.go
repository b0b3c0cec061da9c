package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/slotclaim/slotclaim/internal/metrics"
	"github.com/slotclaim/slotclaim/internal/rate"
)

// maxBodyBytes caps how much of an upstream response is buffered.
const maxBodyBytes = 4 << 20

// Backoff returns the retry sleep duration for the given attempt number.
func Backoff(attempt int) time.Duration {
	switch attempt {
	case 0:
		return 100 * time.Millisecond
	case 1:
		return 250 * time.Millisecond
	default:
		return 500 * time.Millisecond
	}
}

// Response is a fully buffered upstream response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Executor handles rate-limited HTTP execution and hands every status code back
// to the caller. Only transport failures are retried, and only retryMax times.
type Executor struct {
	logger   *zap.Logger
	rateMgr  *rate.Manager
	http     *http.Client
	retryMax int
	tag      string
}

// New creates an Executor. rateMgr may be nil.
func New(
	logger *zap.Logger,
	rateMgr *rate.Manager,
	httpClient *http.Client,
	retryMax int,
	tag string,
) *Executor {
	return &Executor{
		logger:   logger,
		rateMgr:  rateMgr,
		http:     httpClient,
		retryMax: retryMax,
		tag:      tag,
	}
}

// Do executes req under the rate limit for op and returns the buffered response.
// Non-2xx statuses are not errors here; interpreting them is the caller's job.
func (e *Executor) Do(ctx context.Context, req *http.Request, op string) (*Response, error) {
	if e.rateMgr != nil {
		if err := e.rateMgr.Wait(ctx, op); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= e.retryMax; attempt++ {
		if attempt > 0 {
			if err := rewind(req); err != nil {
				return nil, err
			}
			select {
			case <-time.After(Backoff(attempt - 1)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		start := time.Now()
		resp, err := e.http.Do(req)
		metrics.ObserveDuration(metrics.APIRequestDuration, start, op)
		if err != nil {
			lastErr = err
			metrics.IncAPIRequest(op, "transport_error")
			e.logger.Warn(e.tag+".http_failed",
				zap.String("op", op),
				zap.String("url", req.URL.String()),
				zap.Error(err),
				zap.Int("attempt", attempt))
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		_ = resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read body: %w", err)
			metrics.IncAPIRequest(op, "transport_error")
			continue
		}

		metrics.IncAPIRequest(op, strconv.Itoa(resp.StatusCode))
		e.logger.Debug(e.tag+".http_done",
			zap.String("op", op),
			zap.String("url", req.URL.String()),
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", time.Since(start)))

		return &Response{
			Status: resp.StatusCode,
			Header: resp.Header,
			Body:   body,
		}, nil
	}

	return nil, fmt.Errorf("%s %s failed after %d attempts: %w", e.tag, op, e.retryMax+1, lastErr)
}

// rewind restores the request body before a retry.
func rewind(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("rewind request body: %w", err)
	}
	req.Body = body
	return nil
}
