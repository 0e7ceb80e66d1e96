// Package httpadapter implements the reference contracts.Adapter: it POSTs
// an item's input as JSON to a configured HTTP target and returns the
// reply's JSON "content" field as the reply text, or the raw response
// body when the reply is not JSON. Grounded on the teacher's
// internal/router.ModelRouter, which builds one *http.Client per router and
// calls provider endpoints directly with net/http, generalized here with
// github.com/cenkalti/backoff/v4 bounded retry for the transport and
// timeout failure classes named in spec.md §7.
package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/aptcat/engine/pkg/contracts"
	"github.com/aptcat/engine/pkg/models"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// Adapter sends item input to an HTTP target and reports its raw reply.
type Adapter struct {
	client *http.Client
	target contracts.TargetConfig
	maxTry uint64
}

// New creates an Adapter with the given HTTP client. A nil client gets a
// default 60-second timeout, matching the teacher's ModelRouter default.
func New(client *http.Client) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Adapter{client: client, maxTry: 4}
}

// requestPayload is the JSON body posted to the target.
type requestPayload struct {
	Text         string        `json:"text"`
	SystemPrompt string        `json:"system_prompt,omitempty"`
	PriorTurns   []models.Turn `json:"prior_turns,omitempty"`
}

type responsePayload struct {
	Content string `json:"content"`
	Format  string `json:"format,omitempty"`
}

// Connect stores the target config, expanding ${VAR}-style references in
// the URL and header values against the process environment. This mirrors
// the teacher's env-driven configuration (internal/config's envStr) but
// applied per-field instead of at process startup.
func (a *Adapter) Connect(ctx context.Context, cfg contracts.TargetConfig) error {
	expanded := cfg
	expanded.URL = expandEnv(cfg.URL)
	if len(cfg.Headers) > 0 {
		expanded.Headers = make(map[string]string, len(cfg.Headers))
		for k, v := range cfg.Headers {
			expanded.Headers[k] = expandEnv(v)
		}
	}
	if _, err := url.ParseRequestURI(expanded.URL); err != nil {
		return &contracts.ConnectionError{Err: fmt.Errorf("invalid target URL %q: %w", expanded.URL, err)}
	}
	a.target = expanded
	if expanded.Timeout > 0 {
		a.client.Timeout = expanded.Timeout
	}
	return nil
}

// Send posts input to the configured target with bounded exponential
// backoff and jitter on transport and timeout failures, per spec.md §7.
func (a *Adapter) Send(ctx context.Context, input models.ItemInput) (*contracts.SendResult, error) {
	if a.target.URL == "" {
		return nil, &contracts.ConnectionError{Err: errors.New("adapter not connected")}
	}

	body, err := json.Marshal(requestPayload{
		Text:         input.Text,
		SystemPrompt: input.SystemPrompt,
		PriorTurns:   input.PriorTurns,
	})
	if err != nil {
		return nil, &contracts.ParseError{Err: err}
	}

	var result *contracts.SendResult
	start := time.Now()

	var policy backoff.BackOff = backoff.WithMaxRetries(backoff.NewExponentialBackOff(), a.maxTry)
	policy = backoff.WithContext(policy, ctx)

	op := func() error {
		res, sendErr := a.doRequest(ctx, body)
		if sendErr == nil {
			result = res
			return nil
		}
		if isRetryable(sendErr) {
			log.Debug().Err(sendErr).Msg("httpadapter: retryable failure, backing off")
			return sendErr
		}
		return backoff.Permanent(sendErr)
	}

	if err := backoff.Retry(op, policy); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return nil, perm.Err
		}
		return nil, err
	}

	result.LatencyMs = time.Since(start).Milliseconds()
	return result, nil
}

func (a *Adapter) doRequest(ctx context.Context, body []byte) (*contracts.SendResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.target.URL, bytes.NewReader(body))
	if err != nil {
		return nil, &contracts.TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range a.target.Headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &contracts.TimeoutError{Err: err}
		}
		return nil, &contracts.TransportError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &contracts.TransportError{Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &contracts.TransportError{Err: fmt.Errorf("target returned status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &contracts.AuthError{Err: fmt.Errorf("target returned status %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return nil, &contracts.ParseError{Err: fmt.Errorf("target returned status %d", resp.StatusCode)}
	}

	var payload responsePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return &contracts.SendResult{Content: string(data), Format: "text"}, nil
	}
	format := payload.Format
	if format == "" {
		format = "json"
	}
	return &contracts.SendResult{Content: payload.Content, Format: format}, nil
}

// Inspect probes the target for reachability without sending a full item.
func (a *Adapter) Inspect(ctx context.Context) (*contracts.InspectResult, error) {
	if a.target.URL == "" {
		return &contracts.InspectResult{Reachable: false}, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.target.URL, nil)
	if err != nil {
		return &contracts.InspectResult{Reachable: false}, nil
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return &contracts.InspectResult{Reachable: false}, nil
	}
	defer resp.Body.Close()

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	return &contracts.InspectResult{
		Reachable:        resp.StatusCode < 500,
		ResponseFormat:   resp.Header.Get("Content-Type"),
		DetectedProvider: resp.Header.Get("X-Powered-By"),
		Headers:          headers,
	}, nil
}

// Disconnect is a no-op; the underlying *http.Client owns no per-target
// resources that need releasing.
func (a *Adapter) Disconnect() error { return nil }

// isRetryable reports whether err belongs to the transport or timeout
// failure classes, the only ones the adapter retries per spec.md §7.
func isRetryable(err error) bool {
	var transportErr *contracts.TransportError
	var timeoutErr *contracts.TimeoutError
	return errors.As(err, &transportErr) || errors.As(err, &timeoutErr)
}

// expandEnv resolves ${VAR} references against the process environment,
// leaving unset variables as empty strings.
func expandEnv(s string) string {
	return os.Expand(s, os.Getenv)
}
