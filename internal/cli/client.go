package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/okian/pitwall/internal/domain/session"
	"github.com/okian/pitwall/pkg/logger"
)

// APIError is a non-2xx server reply.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d %s: %s", e.Status, e.Code, e.Message)
}

// HTTPClient wraps http.Client with the server base URL.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// newHTTPClient creates a new HTTP client with timeout.
func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// do sends body with contentType and returns the reply body of a 2xx reply.
func (c *HTTPClient) do(ctx context.Context, method, path, contentType string, body []byte, header http.Header) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s reply: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reply := gjson.ParseBytes(out)
		return nil, &APIError{
			Status:  resp.StatusCode,
			Code:    reply.Get("code").String(),
			Message: reply.Get("message").String(),
		}
	}
	return out, nil
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, "", nil, nil)
}

// Post performs a POST request with a JSON body.
func (c *HTTPClient) Post(ctx context.Context, path string, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, "application/json", body, nil)
}

// SubmitConfig holds the options of one submit run.
type SubmitConfig struct {
	BaseURL        string        // Base URL of the service
	SessionPath    string        // Session document
	PrefsPath      string        // Optional preference questionnaire
	Async          bool          // Queue a job instead of optimizing inline
	IdempotencyKey string        // Job idempotency key
	PollInterval   time.Duration // Job status poll interval
	Timeout        time.Duration // HTTP request timeout
}

// Submit stores a session on the server, attaches preferences and returns the
// optimization result as raw JSON.
func Submit(ctx context.Context, cfg SubmitConfig) (json.RawMessage, error) {
	log := logger.Get().Named("submit")
	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)

	// Step 1: Check service health
	if _, err := client.Get(ctx, "/healthz"); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Store the session
	raw, isYAML, err := readDocument(cfg.SessionPath)
	if err != nil {
		return nil, err
	}
	contentType := "application/json"
	if isYAML {
		contentType = "application/yaml"
	}
	created, err := client.do(ctx, http.MethodPost, "/v1/sessions", contentType, raw, nil)
	if err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	sessionID := gjson.GetBytes(created, "session_id").String()
	log.Info(ctx, "session stored", logger.String("session", sessionID))

	// Step 3: Attach preferences
	if cfg.PrefsPath != "" {
		prefs, prefsYAML, err := readDocument(cfg.PrefsPath)
		if err != nil {
			return nil, err
		}
		if prefsYAML {
			if prefs, err = session.YAMLToJSON(prefs); err != nil {
				return nil, fmt.Errorf("%s: %w", cfg.PrefsPath, err)
			}
		}
		if _, err := client.Post(ctx, "/v1/sessions/"+sessionID+"/preferences", prefs); err != nil {
			return nil, fmt.Errorf("submit preferences: %w", err)
		}
	}

	// Step 4: Optimize
	if !cfg.Async {
		res, err := client.Post(ctx, "/v1/sessions/"+sessionID+"/optimize", nil)
		if err != nil {
			return nil, fmt.Errorf("optimize: %w", err)
		}
		return res, nil
	}
	return runJob(ctx, client, sessionID, cfg)
}

func runJob(ctx context.Context, client *HTTPClient, sessionID string, cfg SubmitConfig) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]string{"session_id": sessionID, "idempotency_key": cfg.IdempotencyKey})
	if err != nil {
		return nil, err
	}
	receipt, err := client.Post(ctx, "/v1/jobs", body)
	if err != nil {
		return nil, fmt.Errorf("submit job: %w", err)
	}
	jobID := gjson.GetBytes(receipt, "job_id").String()
	logger.Get().Info(ctx, "job queued", logger.String("job", jobID))

	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := client.Get(ctx, "/v1/jobs/"+jobID)
		if err != nil {
			return nil, fmt.Errorf("poll job %s: %w", jobID, err)
		}
		switch status := gjson.GetBytes(job, "status").String(); status {
		case "succeeded":
			return json.RawMessage(gjson.GetBytes(job, "result").Raw), nil
		case "failed":
			return nil, fmt.Errorf("job %s failed: %s", jobID, gjson.GetBytes(job, "error").String())
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for job %s: %w", jobID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func newSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Send a session to a running server",
		Long: `Store a session on a pitwall server, attach an optional questionnaire and
print the optimization result. With --async the optimization runs as a queued
job that is polled until it finishes.`,
		Example: `
# Optimize synchronously
pitwall submit --url http://localhost:9080 --session cota_fp2.json

# Queue a job with preferences and wait for it
pitwall submit --session cota_fp2.yaml --prefs rookie.json --async --key fp2-run-1
`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var cfg SubmitConfig
			cfg.BaseURL, _ = cmd.Flags().GetString("url")
			cfg.SessionPath, _ = cmd.Flags().GetString("session")
			cfg.PrefsPath, _ = cmd.Flags().GetString("prefs")
			cfg.Async, _ = cmd.Flags().GetBool("async")
			cfg.IdempotencyKey, _ = cmd.Flags().GetString("key")
			cfg.PollInterval, _ = cmd.Flags().GetDuration("poll")
			cfg.Timeout, _ = cmd.Flags().GetDuration("timeout")
			wait, _ := cmd.Flags().GetDuration("wait")
			pretty, _ := cmd.Flags().GetBool("pretty")

			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()

			res, err := Submit(ctx, cfg)
			if err != nil {
				return err
			}
			var v any
			if err := json.Unmarshal(res, &v); err != nil {
				return fmt.Errorf("decode result: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), v, pretty)
		},
	}
	cmd.Flags().String("url", "http://localhost:9080", "Base URL of the service")
	cmd.Flags().StringP("session", "s", "", "Session document (JSON or YAML)")
	cmd.Flags().StringP("prefs", "p", "", "Preference questionnaire (JSON or YAML)")
	cmd.Flags().Bool("async", false, "Run the optimization as a queued job")
	cmd.Flags().String("key", "", "Idempotency key for --async")
	cmd.Flags().Duration("poll", 200*time.Millisecond, "Job poll interval")
	cmd.Flags().Duration("timeout", 30*time.Second, "HTTP request timeout")
	cmd.Flags().Duration("wait", 2*time.Minute, "Overall deadline")
	cmd.Flags().Bool("pretty", false, "Indent the output")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}
