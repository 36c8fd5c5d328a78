// Package executor is the HTTP client for the external sandboxed trial
// executor.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bcrosbie/skillbench/internal/domain"
	"github.com/bcrosbie/skillbench/internal/logger"
	"github.com/bcrosbie/skillbench/internal/redact"
	"github.com/bcrosbie/skillbench/internal/trial"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	ExecutePath = "/v1/trials/execute"

	maxResponseBytes = 4 << 20
	errorSnippetLen  = 512
)

// Payload is the request body sent for one evaluation mode.
type Payload struct {
	BenchmarkCaseID string                `json:"benchmarkCaseId"`
	RunID           string                `json:"runId"`
	EvaluationMode  domain.EvaluationMode `json:"evaluationMode"`
	Agent           domain.AgentFamily    `json:"agent"`
	Model           string                `json:"model"`
	Seed            int64                 `json:"seed"`
	TimeoutSeconds  int                   `json:"timeoutSeconds"`
	ContainerImage  string                `json:"containerImage"`
	SkillID         string                `json:"skillId,omitempty"`
}

// Result is the executor's report for one mode.
type Result struct {
	Status       string             `json:"status"`
	ArtifactPath string             `json:"artifactPath"`
	Notes        string             `json:"notes"`
	StartedAt    string             `json:"startedAt,omitempty"`
	CompletedAt  string             `json:"completedAt,omitempty"`
	Events       []trial.EventInput `json:"events"`
	Checks       *trial.Checks      `json:"checks,omitempty"`
	SkillID      string             `json:"skillId,omitempty"`
}

type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
	redactor   *redact.Redactor
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func WithRedactor(redactor *redact.Redactor) Option {
	return func(c *Client) { c.redactor = redactor }
}

// New validates baseURL and returns a client for it. Plain http is only
// accepted for loopback hosts.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, domain.ExecutionNotConfigured("executor URL is not configured")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Host == "" {
		return nil, domain.ExecutionNotConfigured(fmt.Sprintf("executor URL %q is not a valid absolute URL", baseURL))
	}
	switch parsed.Scheme {
	case "https":
	case "http":
		if !isLoopback(parsed.Hostname()) {
			return nil, domain.ExecutionNotConfigured(fmt.Sprintf("executor URL %q must use https unless it targets a loopback host", baseURL))
		}
	default:
		return nil, domain.ExecutionNotConfigured(fmt.Sprintf("executor URL scheme %q is not supported", parsed.Scheme))
	}

	c := &Client{
		endpoint:   strings.TrimRight(parsed.String(), "/") + ExecutePath,
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Transport: http.DefaultTransport},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.redactor == nil {
		c.redactor = redact.New(c.token)
	}
	return c, nil
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Execute runs one mode on the executor. The call is bounded by ctx; an
// expired deadline is reported as trial_orchestration_timeout and a
// cancellation is returned as the context error.
func (c *Client) Execute(ctx context.Context, payload Payload) (Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, domain.Internal("failed to encode executor payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, domain.Internal("failed to create executor request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	log := logger.G(ctx).WithFields(logrus.Fields{
		"mode":   payload.EvaluationMode,
		"run_id": payload.RunID,
	})
	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, c.transportError(ctx, err)
	}
	log = log.WithFields(logrus.Fields{"status_code": resp.StatusCode, "duration": time.Since(started)})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := c.redactor.Snippet(string(raw), errorSnippetLen)
		log.WithField("body", snippet).Warn("executor returned an error status")
		return Result{}, domain.Upstream(fmt.Sprintf("executor returned HTTP %d: %s", resp.StatusCode, snippet), nil)
	}

	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		log.WithField("body", c.redactor.Snippet(string(raw), errorSnippetLen)).Warn("executor returned a non-JSON body")
		return Result{}, domain.Upstream("executor returned a malformed response", errors.Wrap(err, "failed to decode executor response"))
	}
	result.Status = strings.ToLower(strings.TrimSpace(result.Status))
	if !domain.IsTerminalStatus(result.Status) {
		return Result{}, domain.Upstream(fmt.Sprintf("executor returned non-terminal status %q", result.Status), nil)
	}

	log.WithField("trial_status", result.Status).Debug("executor call finished")
	return result, nil
}

func (c *Client) transportError(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		return domain.OrchestrationTimeout("executor call exceeded its deadline", context.DeadlineExceeded)
	case errors.Is(ctx.Err(), context.Canceled):
		return ctx.Err()
	}
	return domain.Upstream("executor request failed", errors.New(c.redactor.Apply(err.Error())))
}
