package subprocess_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/aptcat/engine/internal/backend/subprocess"
	"github.com/aptcat/engine/pkg/contracts"
	"github.com/aptcat/engine/pkg/models"
)

type fixedAdapter struct {
	content string
	err     error
}

func (a *fixedAdapter) Connect(ctx context.Context, cfg contracts.TargetConfig) error { return nil }
func (a *fixedAdapter) Send(ctx context.Context, input models.ItemInput) (*contracts.SendResult, error) {
	if a.err != nil {
		return nil, a.err
	}
	return &contracts.SendResult{Content: a.content}, nil
}
func (a *fixedAdapter) Inspect(ctx context.Context) (*contracts.InspectResult, error) {
	return &contracts.InspectResult{Reachable: true}, nil
}
func (a *fixedAdapter) Disconnect() error { return nil }

func TestExecute_ZeroExitPasses(t *testing.T) {
	b := subprocess.New("true", nil)
	item := models.Item{ID: "item-1"}
	res, err := b.Execute(context.Background(), item, &fixedAdapter{content: "anything"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Passed || res.Score != 1 {
		t.Errorf("expected pass on zero exit, got %+v", res)
	}
}

func TestExecute_NonZeroExitIsHardErrorWithStderr(t *testing.T) {
	b := subprocess.New("sh", []string{"-c", "echo boom >&2; exit 1"})
	item := models.Item{ID: "item-1"}
	_, err := b.Execute(context.Background(), item, &fixedAdapter{content: "anything"})
	if err == nil {
		t.Fatal("expected error on non-zero exit")
	}
	if !stringsContains(err.Error(), "boom") {
		t.Errorf("expected stderr tail in error, got %v", err)
	}
}

func TestExecute_ReceivesReplyContentInTempFile(t *testing.T) {
	b := subprocess.New("grep", []string{"-q", "needle-value"})
	item := models.Item{ID: "item-1"}
	res, err := b.Execute(context.Background(), item, &fixedAdapter{content: "haystack needle-value haystack"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Passed {
		t.Errorf("expected grep to find the reply content, got %+v", res)
	}
}

func TestExecute_CleansUpTempDirOnSuccess(t *testing.T) {
	var capturedDir string
	b := subprocess.New("sh", []string{"-c", `dirname "$1" > /tmp/aptcat-subprocess-test-dir; exit 0`, "sh"})
	item := models.Item{ID: "item-1"}
	_, err := b.Execute(context.Background(), item, &fixedAdapter{content: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, readErr := os.ReadFile("/tmp/aptcat-subprocess-test-dir")
	if readErr != nil {
		t.Fatalf("could not read captured dir path: %v", readErr)
	}
	capturedDir = trimNewline(string(data))
	defer os.Remove("/tmp/aptcat-subprocess-test-dir")

	if _, statErr := os.Stat(capturedDir); !os.IsNotExist(statErr) {
		t.Errorf("expected temp dir %q to be removed after execution, stat err = %v", capturedDir, statErr)
	}
}

func TestExecute_PropagatesAdapterError(t *testing.T) {
	b := subprocess.New("true", nil)
	item := models.Item{ID: "item-1"}
	wantErr := errors.New("boom")
	_, err := b.Execute(context.Background(), item, &fixedAdapter{err: wantErr})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected adapter error to propagate, got %v", err)
	}
}

func TestHealthcheck_MissingBinaryIsUnavailable(t *testing.T) {
	b := subprocess.New("definitely-not-a-real-binary-xyz", nil)
	health := b.Healthcheck(context.Background())
	if health.Available {
		t.Error("expected unavailable healthcheck for a missing binary")
	}
}

func TestHealthcheck_RealBinaryIsAvailable(t *testing.T) {
	b := subprocess.New("true", nil)
	health := b.Healthcheck(context.Background())
	if !health.Available {
		t.Errorf("expected true(1) to be found in PATH, got %+v", health)
	}
}

func stringsContains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
