// Package backend is the HTTP client for the tutoring backend that solves
// and generates problems and keeps the learning record.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrUnavailable is wrapped by every error caused by the backend not
// answering at all (connection refused, DNS failure, timeout).
var ErrUnavailable = errors.New("tutoring backend unavailable")

// ErrUnsuccessful is wrapped when the backend answered 2xx but reported
// success=false in the body.
var ErrUnsuccessful = errors.New("tutoring backend reported failure")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// maxErrorBody bounds how much of a failed response body is kept in a StatusError.
const maxErrorBody = 512

// Client talks to the tutoring backend over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout bounds each request. Zero means no client-side timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Client targeting the given backend base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend URL the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// IsRunning returns true if the backend responds to GET / with 200.
func (c *Client) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return false
	}
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Solve asks the backend to solve question step by step.
func (c *Client) Solve(ctx context.Context, question string) (*SolveResult, error) {
	var out SolveResult
	if err := c.do(ctx, http.MethodPost, "/solve", nil, SolveRequest{Question: question}, &out); err != nil {
		return nil, err
	}
	if err := checkSuccess(out.Success, out.Error, "solve"); err != nil {
		return nil, err
	}
	return &out, nil
}

// Generate asks the backend for a new practice problem.
func (c *Client) Generate(ctx context.Context, gr GenerateRequest) (*GenerateResult, error) {
	var out GenerateResult
	if err := c.do(ctx, http.MethodPost, "/generate", nil, gr, &out); err != nil {
		return nil, err
	}
	if err := checkSuccess(out.Success, out.Error, "generate"); err != nil {
		return nil, err
	}
	return &out, nil
}

// Statistics fetches the aggregate usage report.
func (c *Client) Statistics(ctx context.Context) (*Statistics, error) {
	var out Statistics
	if err := c.do(ctx, http.MethodGet, "/statistics", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Memory fetches the learning-memory report, optionally filtered.
func (c *Client) Memory(ctx context.Context, f MemoryFilter) (*Memory, error) {
	q := url.Values{}
	if f.Tag != "" {
		q.Set("tag", f.Tag)
	}
	if f.Difficulty != "" {
		q.Set("difficulty", f.Difficulty)
	}
	var out Memory
	if err := c.do(ctx, http.MethodGet, "/memory", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Daily fetches today's practice question.
func (c *Client) Daily(ctx context.Context) (*DailyQuestion, error) {
	var out DailyQuestion
	if err := c.do(ctx, http.MethodGet, "/daily", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitDaily submits an answer to the daily question. The submission is
// sent both as query parameters and as a JSON body; backends read either.
func (c *Client) SubmitDaily(ctx context.Context, sub DailySubmission) (*DailyVerdict, error) {
	q := url.Values{}
	q.Set("questionId", strconv.Itoa(sub.QuestionID))
	q.Set("answer", sub.Answer)

	var out DailyVerdict
	if err := c.do(ctx, http.MethodPost, "/daily/submit", q, sub, &out); err != nil {
		return nil, err
	}
	if err := checkSuccess(out.Success, "", "daily submit"); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExecutePlot runs plotting code on the backend and returns the image.
func (c *Client) ExecutePlot(ctx context.Context, code string) (*PlotImage, error) {
	var out PlotImage
	if err := c.do(ctx, http.MethodPost, "/plot/execute", nil, PlotExecuteRequest{Code: code}, &out); err != nil {
		return nil, err
	}
	if err := checkSuccess(out.Success, out.Error, "plot execute"); err != nil {
		return nil, err
	}
	return &out, nil
}

// GeneratePlot turns a natural-language figure description into plotting code.
func (c *Client) GeneratePlot(ctx context.Context, description string) (*PlotCode, error) {
	var out PlotCode
	if err := c.do(ctx, http.MethodPost, "/plot/generate", nil, PlotGenerateRequest{Description: description}, &out); err != nil {
		return nil, err
	}
	if err := checkSuccess(out.Success, out.Error, "plot generate"); err != nil {
		return nil, err
	}
	return &out, nil
}

func checkSuccess(success *bool, msg, op string) error {
	if success == nil || *success {
		return nil
	}
	if msg == "" {
		return fmt.Errorf("%s: %w", op, ErrUnsuccessful)
	}
	return fmt.Errorf("%s: %w: %s", op, ErrUnsuccessful, msg)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// do sends one request and decodes a JSON response into out. A nil body
// sends no request body.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s %s: %w", method, path, ctxErr)
		}
		return fmt.Errorf("%s %s: %w: %v", method, path, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
