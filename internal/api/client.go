// Package api is the thin REST wrapper around the Knowbase backend.
// It satisfies the store fetch functions and the write queue's
// Executor, and feeds request outcomes to the connectivity monitor so
// reachability tracking needs no separate probe traffic.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ohartl/knowbase/internal/connectivity"
	apperrors "github.com/ohartl/knowbase/internal/errors"
	"github.com/ohartl/knowbase/internal/models"
	"github.com/ohartl/knowbase/internal/writequeue"
)

// Client talks to the Knowbase backend.
type Client struct {
	baseURL string
	http    *http.Client
	monitor *connectivity.Monitor
	log     *logrus.Logger
}

// New creates a Client. monitor may be nil; when set, every request
// outcome is reported to it.
func New(baseURL string, timeout time.Duration, monitor *connectivity.Monitor, log *logrus.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		monitor: monitor,
		log:     log,
	}
}

// Notes fetches the full note collection.
func (c *Client) Notes(ctx context.Context) ([]models.Note, error) {
	return getJSON[[]models.Note](c, ctx, "/notes")
}

// Websites fetches the saved-website collection.
func (c *Client) Websites(ctx context.Context) ([]models.Website, error) {
	return getJSON[[]models.Website](c, ctx, "/websites")
}

// Tasks fetches the task collection.
func (c *Client) Tasks(ctx context.Context) ([]models.Task, error) {
	return getJSON[[]models.Task](c, ctx, "/tasks")
}

// Conversations fetches the conversation headers.
func (c *Client) Conversations(ctx context.Context) ([]models.Conversation, error) {
	return getJSON[[]models.Conversation](c, ctx, "/conversations")
}

// FileJobs fetches all ingestion jobs.
func (c *Client) FileJobs(ctx context.Context) ([]models.FileJob, error) {
	return getJSON[[]models.FileJob](c, ctx, "/files/jobs")
}

// FileJob fetches one ingestion job's current state.
func (c *Client) FileJob(ctx context.Context, id string) (models.FileJob, error) {
	return getJSON[models.FileJob](c, ctx, "/files/jobs/"+url.PathEscape(id))
}

// Execute replays one queued mutation against the backend,
// implementing writequeue.Executor. A 409 response is classified as a
// conflict; the response body is carried along as the server snapshot.
func (c *Client) Execute(ctx context.Context, write *models.PendingWrite) error {
	path := "/" + string(write.EntityType) + "s"
	method := http.MethodPost
	var body io.Reader = bytes.NewReader(write.Payload)

	switch write.Operation {
	case models.OperationUpdate:
		method = http.MethodPut
		path += "/" + url.PathEscape(write.EntityID)
	case models.OperationDelete:
		method = http.MethodDelete
		path += "/" + url.PathEscape(write.EntityID)
		body = nil
	}

	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		snapshot, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return &writequeue.ConflictError{
			Reason:         fmt.Sprintf("server rejected %s of %s %s", write.Operation, write.EntityType, write.EntityID),
			ServerSnapshot: snapshot,
		}
	case resp.StatusCode >= 400:
		return apperrors.New(apperrors.ErrExecutionFailed,
			fmt.Sprintf("%s %s returned %d", method, path, resp.StatusCode))
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.reportFailure(err)
		return nil, err
	}
	if resp.StatusCode >= 500 {
		c.reportFailure(nil)
	} else if c.monitor != nil {
		c.monitor.ReportSuccess()
	}
	return resp, nil
}

// reportFailure classifies a transport error for the monitor. Only
// failures that implicate the network itself flip availability; a
// refused or reset connection means the host answered at the transport
// level, so just the backend is down and only server reachability is
// affected.
func (c *Client) reportFailure(err error) {
	if c.monitor == nil {
		return
	}
	if isNetworkDown(err) {
		c.monitor.ReportFailure(connectivity.FailureNetworkDown)
		return
	}
	c.monitor.ReportFailure(connectivity.FailureHostUnreachable)
}

func isNetworkDown(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return errors.Is(err, syscall.ENETDOWN) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH)
}

func getJSON[T any](c *Client, ctx context.Context, path string) (T, error) {
	var zero T

	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return zero, apperrors.New(apperrors.ErrExecutionFailed,
			fmt.Sprintf("GET %s returned %d", path, resp.StatusCode))
	}

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return zero, apperrors.Wrap(apperrors.ErrDecode, "failed to decode response", err)
	}
	return out, nil
}
