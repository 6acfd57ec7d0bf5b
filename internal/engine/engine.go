// Package engine runs the synchronous audit loop: extract the candidate from
// a thought, consult the cache, invoke the judge panel, persist the
// iteration, and decide whether the session should continue.
package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ganauditor/ganauditor/internal/cache"
	"github.com/ganauditor/ganauditor/internal/contextpack"
	"github.com/ganauditor/ganauditor/internal/diag"
	"github.com/ganauditor/ganauditor/internal/fingerprint"
	"github.com/ganauditor/ganauditor/internal/ganconfig"
	"github.com/ganauditor/ganauditor/internal/gantypes"
	"github.com/ganauditor/ganauditor/internal/judge"
	"github.com/ganauditor/ganauditor/internal/rubric"
	"github.com/ganauditor/ganauditor/internal/session"
)

// DefaultAuditTimeout bounds one full audit, judge retries included.
const DefaultAuditTimeout = 30 * time.Second

// DefaultProgressInterval is how often the progress hook fires while a judge
// call is in flight.
const DefaultProgressInterval = 5 * time.Second

// DefaultTimeoutRetries is how many times a timed-out judge call is retried
// before the engine settles for a partial verdict.
const DefaultTimeoutRetries = 1

// defaultPromptTemplate is the instruction preamble serialized into the
// fingerprint alongside the candidate.
const defaultPromptTemplate = "adversarial-code-audit/v1"

// Judge abstracts the panel invocation; *judge.Client satisfies it.
type Judge interface {
	ExecutePanel(ctx context.Context, req judge.Request, judges []string) (*gantypes.JudgeVerdict, error)
}

// Options configures the engine. Zero fields get defaults.
type Options struct {
	WorkDir          string
	PromptTemplate   string
	AuditTimeout     time.Duration
	ProgressInterval time.Duration
	TimeoutRetries   int
	EnableCaching    bool
}

func (o *Options) sanitize() {
	if o.PromptTemplate == "" {
		o.PromptTemplate = defaultPromptTemplate
	}
	if o.AuditTimeout <= 0 {
		o.AuditTimeout = DefaultAuditTimeout
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = DefaultProgressInterval
	}
	if o.TimeoutRetries <= 0 {
		o.TimeoutRetries = DefaultTimeoutRetries
	}
}

// Hooks are optional observation points. Nil hooks are skipped. They run on
// the audit goroutine and must return quickly.
type Hooks struct {
	AuditStarted      func(sessionID string, loop int)
	AuditProgress     func(sessionID string, elapsed time.Duration)
	AuditCompleted    func(sessionID string, verdict *gantypes.JudgeVerdict)
	SessionTerminated func(sessionID string, cause string)
}

// Result is the engine's answer to one submitted thought.
type Result struct {
	SessionID         string                 `json:"sessionId"`
	Loop              int                    `json:"loop"`
	Verdict           *gantypes.JudgeVerdict `json:"verdict"`
	Decision          Decision               `json:"decision"`
	Feedback          Feedback               `json:"feedback"`
	Progress          session.Progress       `json:"progress"`
	Warnings          []string               `json:"warnings,omitempty"`
	NextThoughtNeeded bool                   `json:"nextThoughtNeeded"`
}

// Engine wires the stores, the cache, the packer, and the judge into the
// audit loop.
type Engine struct {
	store    *session.Store
	cache    *cache.Cache
	judge    Judge
	packer   contextpack.Packer
	detector *LoopDetector
	rubric   rubric.Rubric
	opts     Options
	hooks    Hooks
	logger   *zap.Logger

	// defaultSession identifies thoughts submitted without a branch id for
	// the lifetime of this engine.
	defaultSession string
}

// New creates an engine. store and judgeClient are required; nil cache
// disables caching regardless of options, nil packer gets the file packer,
// and a zero rubric gets the standard one.
func New(store *session.Store, c *cache.Cache, judgeClient Judge, packer contextpack.Packer, r rubric.Rubric, opts Options, hooks Hooks, logger *zap.Logger) *Engine {
	opts.sanitize()
	if logger == nil {
		logger = zap.NewNop()
	}
	if packer == nil {
		packer = contextpack.NewFilePacker(logger)
	}
	if len(r.Dimensions) == 0 {
		r = rubric.Standard()
	}
	if c == nil {
		opts.EnableCaching = false
	}
	return &Engine{
		store:          store,
		cache:          c,
		judge:          judgeClient,
		packer:         packer,
		detector:       NewLoopDetector(nil, logger),
		rubric:         r,
		opts:           opts,
		hooks:          hooks,
		logger:         logger,
		defaultSession: "default-" + uuid.NewString(),
	}
}

// AuditAndWait runs one synchronous audit turn for the thought and blocks
// until the verdict, the decision, and the feedback are ready.
//
// A thought carrying no auditable code auto-passes without invoking the
// judge and without consuming a loop. A judge failure leaves the session
// history untouched. Persistence failures degrade to warnings; the audit
// outcome is never lost to a disk error.
func (e *Engine) AuditAndWait(ctx context.Context, thought gantypes.Thought) (*Result, error) {
	sessionID := e.SessionID(thought.BranchID)

	state, corruptWarning, err := e.store.GetOrCreate(sessionID)
	if err != nil {
		return nil, err
	}
	var warnings []string
	if corruptWarning != "" {
		warnings = append(warnings, corruptWarning)
	}

	cfg, cfgWarnings := ganconfig.MergeInlineConfig(state.Config, thought.Thought)
	warnings = append(warnings, cfgWarnings...)
	if err := e.store.UpdateConfig(sessionID, cfg); err != nil {
		warnings = append(warnings, e.persistWarning(sessionID, "config update", err))
	}

	candidate, hasCode := ganconfig.ExtractCandidate(thought.Thought)
	if !hasCode {
		return e.autoPass(sessionID, cfg, thought, warnings)
	}

	verdict, err := e.obtainVerdict(ctx, sessionID, state, cfg, candidate, &warnings)
	if err != nil {
		return nil, err
	}

	it := gantypes.Iteration{
		ThoughtNumber: thought.ThoughtNumber,
		Candidate:     candidate,
		Verdict:       *verdict,
	}
	if err := e.store.AppendIteration(sessionID, it); err != nil {
		de := diag.AsError(err)
		if de.Category != diag.CategoryFilesystem {
			return nil, err
		}
		warnings = append(warnings, e.persistWarning(sessionID, "iteration append", err))
	}

	snapshot, err := e.store.Snapshot(sessionID)
	if err != nil {
		return nil, err
	}

	stagnation := e.detector.Inspect(snapshot)
	if stagnation != nil {
		if err := e.store.RecordStagnation(sessionID, *stagnation); err != nil {
			warnings = append(warnings, e.persistWarning(sessionID, "stagnation record", err))
		}
	}

	decision := Evaluate(verdict.Overall, snapshot.CurrentLoop, stagnation)
	if decision.IsComplete {
		if decision.Terminated {
			if err := e.store.RecordTermination(sessionID, string(decision.Reason)); err != nil {
				warnings = append(warnings, e.persistWarning(sessionID, "termination record", err))
			}
			if e.hooks.SessionTerminated != nil {
				e.hooks.SessionTerminated(sessionID, string(decision.Reason))
			}
		} else {
			if err := e.store.RecordCompletion(sessionID, decision.Reason); err != nil {
				warnings = append(warnings, e.persistWarning(sessionID, "completion record", err))
			}
		}
	}

	progress, err := e.store.AnalyzeProgress(sessionID)
	if err != nil {
		warnings = append(warnings, e.persistWarning(sessionID, "progress analysis", err))
	}

	if e.hooks.AuditCompleted != nil {
		e.hooks.AuditCompleted(sessionID, verdict)
	}

	return &Result{
		SessionID:         sessionID,
		Loop:              snapshot.CurrentLoop,
		Verdict:           verdict,
		Decision:          decision,
		Feedback:          buildFeedback(verdict, cfg, snapshot.CurrentLoop),
		Progress:          progress,
		Warnings:          warnings,
		NextThoughtNeeded: decision.NextThoughtNeeded,
	}, nil
}

// obtainVerdict serves the verdict from the cache when possible, otherwise
// packs context and runs the judge panel under the audit deadline.
func (e *Engine) obtainVerdict(ctx context.Context, sessionID string, state *gantypes.SessionState, cfg gantypes.SessionConfig, candidate string, warnings *[]string) (*gantypes.JudgeVerdict, error) {
	fp := fingerprint.Compute(fingerprint.Input{
		PromptTemplate: e.opts.PromptTemplate,
		Candidate:      candidate,
		Rubric:         e.rubric,
		Config:         cfg,
	})

	if e.opts.EnableCaching {
		if cached, ok := e.cache.Get(fp); ok {
			e.logger.Debug("audit cache hit",
				zap.String("session", sessionID), zap.String("fingerprint", fp[:12]))
			return &cached, nil
		}
	}

	pack := e.packer.PackContext(ctx, cfg, e.opts.WorkDir)
	if pack.Fallback {
		*warnings = append(*warnings, "context pack degraded: "+pack.Source)
	}

	if e.hooks.AuditStarted != nil {
		e.hooks.AuditStarted(sessionID, state.CurrentLoop+1)
	}
	stopHeartbeat := e.startHeartbeat(ctx, sessionID)
	defer stopHeartbeat()

	auditCtx, cancel := context.WithTimeout(ctx, e.opts.AuditTimeout)
	defer cancel()

	req := judge.Request{
		Task:        cfg.Task,
		Candidate:   candidate,
		ContextPack: pack.Content,
		Rubric:      e.rubric,
		Budget: judge.Budget{
			MaxCycles:  cfg.MaxCycles,
			Candidates: cfg.Candidates,
			Threshold:  cfg.Threshold,
		},
	}

	verdict, err := e.runPanel(auditCtx, req, cfg.Judges)
	if err != nil {
		return nil, err
	}

	if e.opts.EnableCaching && !verdict.TimedOut {
		e.cache.Put(fp, *verdict, 0)
	}
	if verdict.TimedOut {
		*warnings = append(*warnings, "judge timed out; verdict is partial")
	}
	return verdict, nil
}

// runPanel retries the panel on timeout up to the configured attempts, then
// settles for the best partial verdict seen.
func (e *Engine) runPanel(ctx context.Context, req judge.Request, judges []string) (*gantypes.JudgeVerdict, error) {
	var partial *gantypes.JudgeVerdict
	var lastErr error
	for attempt := 0; attempt <= e.opts.TimeoutRetries; attempt++ {
		verdict, err := e.judge.ExecutePanel(ctx, req, judges)
		if err == nil {
			return verdict, nil
		}
		lastErr = err

		de := diag.AsError(err)
		if de.Category != diag.CategoryCodexTimeout {
			return nil, err
		}
		if verdict != nil {
			partial = verdict
		}
		e.logger.Warn("judge panel timed out",
			zap.Int("attempt", attempt+1), zap.Bool("hasPartial", partial != nil))
	}
	if partial != nil {
		return partial, nil
	}
	return nil, lastErr
}

// startHeartbeat fires the progress hook on the configured interval until
// the returned stop function is called.
func (e *Engine) startHeartbeat(ctx context.Context, sessionID string) func() {
	if e.hooks.AuditProgress == nil {
		return func() {}
	}
	stop := make(chan struct{})
	started := time.Now()
	go func() {
		ticker := time.NewTicker(e.opts.ProgressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.hooks.AuditProgress(sessionID, time.Since(started))
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	var once bool
	return func() {
		if !once {
			once = true
			close(stop)
		}
	}
}

// autoPass handles a thought that contains no code: acknowledged with a full
// pass so the caller keeps thinking, with nothing appended to the session
// history and no judge invocation.
func (e *Engine) autoPass(sessionID string, cfg gantypes.SessionConfig, thought gantypes.Thought, warnings []string) (*Result, error) {
	verdict := &gantypes.JudgeVerdict{
		Overall: 100,
		Verdict: gantypes.VerdictPass,
		Review: gantypes.ReviewDetail{
			Summary: "No auditable code found in this thought; nothing to review.",
		},
		CompletionPercentage: 1,
	}

	progress, err := e.store.AnalyzeProgress(sessionID)
	if err != nil {
		warnings = append(warnings, e.persistWarning(sessionID, "progress analysis", err))
	}

	return &Result{
		SessionID: sessionID,
		Loop:      progress.CurrentLoop,
		Verdict:   verdict,
		Decision: Decision{
			Reason:            gantypes.ReasonInProgress,
			NextThoughtNeeded: thought.NextThoughtNeeded,
			Message:           "thought carried no code, audit skipped",
		},
		Feedback:          buildFeedback(verdict, cfg, progress.CurrentLoop),
		Progress:          progress,
		Warnings:          warnings,
		NextThoughtNeeded: thought.NextThoughtNeeded,
	}, nil
}

// persistWarning logs a persistence failure and returns the warning string
// surfaced to the caller. The audit proceeds; only durability is degraded.
func (e *Engine) persistWarning(sessionID, op string, err error) string {
	e.logger.Warn("session persistence degraded",
		zap.String("session", sessionID), zap.String("op", op), zap.Error(err))
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i > 0 {
		msg = msg[:i]
	}
	return op + " failed: " + msg
}

// SessionID resolves a thought's branch id to the session identity the
// store tracks: anonymous thoughts map to this engine's default session.
// Callers keying external state on the session (the concurrency gate, error
// envelopes) must resolve through here so they track the same identity.
func (e *Engine) SessionID(branchID string) string {
	if branchID == "" {
		return e.defaultSession
	}
	return branchID
}

// LastKnownVerdict returns the session's most recent verdict for use as
// fallback data in error envelopes, or nil when none exists.
func (e *Engine) LastKnownVerdict(sessionID string) *gantypes.JudgeVerdict {
	sessionID = e.SessionID(sessionID)
	snapshot, err := e.store.Snapshot(sessionID)
	if err != nil {
		return nil
	}
	return snapshot.LastVerdict
}
