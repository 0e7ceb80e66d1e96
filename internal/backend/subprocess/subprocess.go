// Package subprocess implements an execution backend that shells out to an
// external command once per item instead of evaluating the target's reply
// in-process. Grounded on the teacher's internal/process.LocalExecutor:
// a per-run temp directory via os.MkdirTemp, cmd.Env built from the
// parent environment plus overrides, and cleanup that runs on every exit
// path rather than only the success path.
package subprocess

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/aptcat/engine/pkg/contracts"
	"github.com/aptcat/engine/pkg/models"
	"github.com/rs/zerolog/log"
)

// ID is the subprocess backend's identifier.
const ID = "subprocess"

// stderrTailLimit bounds how much of a failing command's stderr is carried
// in the returned error, per spec.md §4.6(c)'s "stderr tail attached".
const stderrTailLimit = 4096

// Backend runs one external command per item, passing the path of a temp
// file holding the target's reply as its final argument and treating a
// zero exit status as a pass.
type Backend struct {
	Command string
	Args    []string
	Env     map[string]string
	Timeout time.Duration
}

// New creates a subprocess backend that invokes command with args for
// every item, writing the adapter's reply to a temp file and passing its
// path as the final argument.
func New(command string, args []string) *Backend {
	return &Backend{Command: command, Args: args, Timeout: 30 * time.Second}
}

func (b *Backend) ID() string   { return ID }
func (b *Backend) Name() string { return "Subprocess Evaluator Backend" }

func (b *Backend) SupportedCategories() []models.Category {
	return append([]models.Category(nil), models.ValidDimensions...)
}

func (b *Backend) Capabilities() contracts.Capabilities {
	return contracts.Capabilities{}
}

func (b *Backend) Healthcheck(ctx context.Context) contracts.HealthResult {
	if _, err := exec.LookPath(b.Command); err != nil {
		return contracts.HealthResult{Available: false, ErrorMessage: err.Error()}
	}
	return contracts.HealthResult{Available: true}
}

// Execute sends item.Input through adapter, writes the reply under a
// unique per-item temp path, runs the configured command against it, and
// always removes the temp directory before returning regardless of
// outcome. Non-zero exit is a hard error carrying the stderr tail.
func (b *Backend) Execute(ctx context.Context, item models.Item, adapter contracts.Adapter) (models.TestResult, error) {
	start := time.Now()
	sendResult, err := adapter.Send(ctx, item.Input)
	if err != nil {
		return models.TestResult{}, err
	}

	dir, err := os.MkdirTemp("", "aptcat-subprocess-*")
	if err != nil {
		return models.TestResult{}, fmt.Errorf("subprocess: create temp dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			log.Warn().Err(rmErr).Str("dir", dir).Msg("subprocess: failed to remove temp dir")
		}
	}()

	replyPath := filepath.Join(dir, item.ID+".txt")
	if err := os.WriteFile(replyPath, []byte(sendResult.Content), 0o600); err != nil {
		return models.TestResult{}, fmt.Errorf("subprocess: write reply file: %w", err)
	}

	runCtx := ctx
	if b.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}

	args := append(append([]string(nil), b.Args...), replyPath)
	cmd := exec.CommandContext(runCtx, b.Command, args...)
	cmd.Env = buildEnv(b.Env)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	duration := time.Since(start).Milliseconds()

	if runErr != nil {
		return models.TestResult{}, fmt.Errorf("subprocess: command %q failed: %w (stderr: %s)",
			b.Command, runErr, tail(stderr.String(), stderrTailLimit))
	}

	return models.TestResult{
		ItemID:     item.ID,
		BackendID:  ID,
		Passed:     true,
		Score:      1,
		RawOutput:  sendResult.Content,
		DurationMs: duration,
	}, nil
}

func buildEnv(overrides map[string]string) []string {
	env := os.Environ()
	for k, v := range overrides {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

func tail(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[len(s)-limit:]
}
