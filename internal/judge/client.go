// Package judge invokes the external adversarial reviewer process and maps
// its output to a structured verdict. The client owns the per-call deadline,
// transient-error retries, and recovery of partial verdicts after a timeout.
package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ganauditor/ganauditor/internal/diag"
	"github.com/ganauditor/ganauditor/internal/gantypes"
	"github.com/ganauditor/ganauditor/internal/rubric"
)

// DefaultExecutable is the reviewer binary looked up on PATH.
const DefaultExecutable = "codex"

// DefaultTimeout is the per-call deadline.
const DefaultTimeout = 30 * time.Second

// DefaultRetries bounds transient-error retries.
const DefaultRetries = 2

// Timeout bounds accepted by Options.sanitize.
const (
	minTimeout = 5 * time.Second
	maxTimeout = 300 * time.Second
)

// Budget is the judge-side view of the session's retry budget.
type Budget struct {
	MaxCycles  int `json:"maxCycles"`
	Candidates int `json:"candidates"`
	Threshold  int `json:"threshold"`
}

// Request is the serialized unit of work sent to the reviewer on stdin.
type Request struct {
	Task        string        `json:"task"`
	Candidate   string        `json:"candidate"`
	ContextPack string        `json:"contextPack"`
	Rubric      rubric.Rubric `json:"rubric"`
	Budget      Budget        `json:"budget"`
}

// Options configures the client.
type Options struct {
	Executable string
	WorkDir    string
	Timeout    time.Duration
	Retries    int
}

func (o *Options) sanitize() {
	if o.Executable == "" {
		o.Executable = DefaultExecutable
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Timeout < minTimeout {
		o.Timeout = minTimeout
	}
	if o.Timeout > maxTimeout {
		o.Timeout = maxTimeout
	}
	if o.Retries < 0 {
		o.Retries = DefaultRetries
	}
}

// Client executes reviewer subprocesses.
type Client struct {
	opts   Options
	logger *zap.Logger

	// sleep is injectable so retry backoff is testable.
	sleep func(context.Context, time.Duration) error
}

// NewClient creates a judge client. A zero Options value gets defaults.
func NewClient(opts Options, logger *zap.Logger) *Client {
	opts.sanitize()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{opts: opts, logger: logger, sleep: sleepCtx}
}

// Execute runs one reviewer invocation under the per-call deadline.
//
// On success it returns the normalized verdict. On timeout it returns a
// codex_timeout diagnostic; when stdout held a parseable partial verdict the
// verdict is returned alongside the error, marked timedOut with its
// completionPercentage filled in. Transient failures are retried with
// exponential backoff and jitter; fatal failures surface immediately.
// Cancelling ctx kills the subprocess and returns without retrying.
func (c *Client) Execute(ctx context.Context, req Request) (*gantypes.JudgeVerdict, error) {
	if strings.TrimSpace(req.Candidate) == "" {
		return nil, diag.New(diag.CategoryCodexFatal, "empty candidate")
	}
	if err := req.Rubric.Validate(); err != nil {
		return nil, diag.Wrap(diag.CategoryCodexFatal, "invalid rubric", err)
	}

	execPath, err := exec.LookPath(c.opts.Executable)
	if err != nil {
		return nil, diag.Wrap(diag.CategoryCodexNotAvailable,
			fmt.Sprintf("judge executable %q not found", c.opts.Executable), err).
			WithSuggestions(
				"install the reviewer CLI and ensure it is on PATH",
				"set the judge executable option to the correct binary",
			)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, diag.Wrap(diag.CategoryInternal, "failed to encode judge request", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.opts.Retries; attempt++ {
		if attempt > 0 {
			backoff := retryBackoff(attempt)
			c.logger.Info("retrying judge invocation",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff))
			if err := c.sleep(ctx, backoff); err != nil {
				return nil, diag.Wrap(diag.CategoryCodexFatal, "judge call cancelled", err)
			}
		}

		verdict, err := c.runOnce(ctx, execPath, payload, req.Rubric)
		if err == nil {
			return verdict, nil
		}
		lastErr = err

		de := diag.AsError(err)
		switch de.Category {
		case diag.CategoryCodexTransient:
			continue
		case diag.CategoryCodexTimeout:
			// Timeout retry policy belongs to the engine; surface now,
			// carrying any partial verdict.
			return verdict, err
		default:
			return nil, err
		}
	}
	return nil, lastErr
}

// runOnce spawns a single reviewer process and parses its output.
func (c *Client) runOnce(ctx context.Context, execPath string, payload []byte, r rubric.Rubric) (*gantypes.JudgeVerdict, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	cmd := exec.Command(execPath)
	cmd.Dir = c.opts.WorkDir
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Own process group so a timeout can kill the whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, diag.Wrap(diag.CategoryCodexNotAvailable, "failed to start judge process", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-callCtx.Done():
		killProcessGroup(cmd)
		<-done

		if ctx.Err() != nil {
			// Outer cancellation: no retry, no partial recovery.
			return nil, diag.Wrap(diag.CategoryCodexFatal, "judge call cancelled", ctx.Err())
		}

		timeoutErr := diag.New(diag.CategoryCodexTimeout,
			fmt.Sprintf("judge exceeded %s deadline", c.opts.Timeout)).
			WithSuggestions("increase the audit timeout", "reduce the context scope")
		if partial, ok := c.parseVerdict(stdout.String(), r); ok {
			partial.TimedOut = true
			partial.CompletionPercentage = r.CompletionPercentage(partial.Dimensions)
			if partial.Overall == 0 && len(partial.Dimensions) > 0 {
				partial.Overall = r.WeightedOverall(partial.Dimensions)
			}
			c.logger.Warn("judge timed out with partial verdict",
				zap.Float64("completion", partial.CompletionPercentage))
			return partial, timeoutErr
		}
		return nil, timeoutErr

	case waitErr := <-done:
		elapsed := time.Since(start)
		if waitErr != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = waitErr.Error()
			}
			if isTransient(msg) {
				c.logger.Warn("judge exited with transient error",
					zap.String("stderr", firstLine(msg)), zap.Duration("elapsed", elapsed))
				return nil, diag.New(diag.CategoryCodexTransient, firstLine(msg))
			}
			return nil, diag.New(diag.CategoryCodexFatal, firstLine(msg)).
				WithSuggestions("inspect the reviewer's stderr output")
		}

		verdict, ok := c.parseVerdict(stdout.String(), r)
		if !ok {
			return nil, diag.New(diag.CategoryCodexResponse, "judge output held no parseable verdict").
				WithSuggestions("check the reviewer emits a single JSON object on stdout")
		}
		verdict.CompletionPercentage = r.CompletionPercentage(verdict.Dimensions)
		return verdict, nil
	}
}

// killProcessGroup kills the subprocess and everything it spawned.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		_ = cmd.Process.Kill()
	}
}

// transientPatterns classify stderr wording that indicates a retryable
// failure rather than a broken reviewer.
var transientPatterns = []string{
	"connection reset",
	"connection refused",
	"network",
	"temporarily",
	"temporary failure",
	"rate limit",
	"too many requests",
	"i/o timeout",
	"no such host",
	"eof",
	"429",
	"502",
	"503",
}

func isTransient(msg string) bool {
	lower := strings.ToLower(msg)
	for _, p := range transientPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// retryBackoff is exponential with ±50% jitter, capped so every retry fits
// inside the per-audit deadline.
func retryBackoff(attempt int) time.Duration {
	base := 250 * time.Millisecond << (attempt - 1)
	if base > 2*time.Second {
		base = 2 * time.Second
	}
	jitter := time.Duration(rand.Int63n(int64(base))) - base/2
	return base + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
