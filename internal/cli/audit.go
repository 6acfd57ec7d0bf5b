package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ganauditor/ganauditor/internal/cache"
	"github.com/ganauditor/ganauditor/internal/config"
	"github.com/ganauditor/ganauditor/internal/diag"
	"github.com/ganauditor/ganauditor/internal/engine"
	"github.com/ganauditor/ganauditor/internal/gantypes"
	"github.com/ganauditor/ganauditor/internal/gate"
	"github.com/ganauditor/ganauditor/internal/judge"
	"github.com/ganauditor/ganauditor/internal/rubric"
	"github.com/ganauditor/ganauditor/internal/session"
)

var auditCmd = &cobra.Command{
	Use:   "audit [thought-file]",
	Short: "Audit one thought and wait for the verdict",
	Long: `Audit submits one thought to the adversarial reviewer and blocks until
the verdict, the completion decision, and the structured feedback are ready.

The thought text is read from the given file, or from stdin when no file is
provided. The result is printed to stdout as JSON.

Examples:
  ganauditor audit notes.md --session fix-parser
  cat notes.md | ganauditor audit --thought-number 3`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().String("session", "", "Session id (branch id); empty derives a default")
	auditCmd.Flags().Int("thought-number", 1, "Position of this thought in the loop")
	auditCmd.Flags().Bool("next-thought-needed", true, "Whether the caller intends to continue")
	auditCmd.Flags().String("workdir", "", "Directory the context packer and judge run in")
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	text, err := readThought(args)
	if err != nil {
		return err
	}

	sessionID, _ := cmd.Flags().GetString("session")
	thoughtNumber, _ := cmd.Flags().GetInt("thought-number")
	nextNeeded, _ := cmd.Flags().GetBool("next-thought-needed")
	workDir, _ := cmd.Flags().GetString("workdir")
	if workDir == "" {
		workDir = cfg.Judge.WorkDir
	}
	if workDir == "" {
		workDir, _ = os.Getwd()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := session.NewStore(cfg.Session.StateDir, cfg.Session.EnablePersistence, logger)
	verdictCache := cache.New(cfg.Cache.Capacity, cfg.CacheTTL(), logger)

	r := rubric.Standard()
	if cfg.Audit.RubricFile != "" {
		r, err = rubric.LoadFile(cfg.Audit.RubricFile)
		if err != nil {
			return fmt.Errorf("failed to load rubric: %w", err)
		}
	}

	judgeClient := judge.NewClient(judge.Options{
		Executable: cfg.Judge.Executable,
		WorkDir:    workDir,
		Timeout:    cfg.JudgeTimeout(),
		Retries:    cfg.Judge.Retries,
	}, logger)

	eng := engine.New(store, verdictCache, judgeClient, nil, r, engine.Options{
		WorkDir:          workDir,
		AuditTimeout:     cfg.AuditTimeout(),
		ProgressInterval: cfg.ProgressInterval(),
		TimeoutRetries:   cfg.Audit.TimeoutRetries,
		EnableCaching:    cfg.Cache.Enabled,
	}, progressHooks(logger), logger)

	limiter := gate.New(gate.Options{
		MaxConcurrentAudits:   cfg.Gate.MaxConcurrentAudits,
		MaxConcurrentSessions: cfg.Gate.MaxConcurrentSessions,
		QueueTimeout:          cfg.QueueTimeout(),
		CleanupInterval:       cfg.CleanupInterval(),
		MaxSessionAge:         cfg.MaxSessionAge(),
	}, logger)
	defer limiter.Close()
	limiter.StartEviction(ctx, store)

	// Resolve the anonymous-session default up front so the gate and the
	// store track the same identity.
	sessionID = eng.SessionID(sessionID)

	thought := gantypes.Thought{
		Thought:           text,
		ThoughtNumber:     thoughtNumber,
		NextThoughtNeeded: nextNeeded,
		BranchID:          sessionID,
	}

	if err := limiter.Acquire(ctx, thought.BranchID); err != nil {
		return emitEnvelope(err, nil)
	}
	defer limiter.Release(thought.BranchID)

	result, err := eng.AuditAndWait(ctx, thought)
	if err != nil {
		return emitEnvelope(err, eng.LastKnownVerdict(thought.BranchID))
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func readThought(args []string) (string, error) {
	if len(args) == 1 {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("failed to read thought file: %w", err)
		}
		return string(raw), nil
	}
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read thought from stdin: %w", err)
	}
	return string(raw), nil
}

// emitEnvelope prints the structured error envelope to stdout and returns a
// plain error so the process exits non-zero.
func emitEnvelope(err error, fallback *gantypes.JudgeVerdict) error {
	env := diag.AsError(err).Envelope(fallback)
	out, mErr := json.MarshalIndent(env, "", "  ")
	if mErr == nil {
		fmt.Println(string(out))
	}
	return err
}

func progressHooks(logger *zap.Logger) engine.Hooks {
	return engine.Hooks{
		AuditStarted: func(sessionID string, loop int) {
			logger.Info("audit started", zap.String("session", sessionID), zap.Int("loop", loop))
		},
		AuditProgress: func(sessionID string, elapsed time.Duration) {
			logger.Info("audit in progress", zap.String("session", sessionID), zap.Duration("elapsed", elapsed))
		},
		AuditCompleted: func(sessionID string, verdict *gantypes.JudgeVerdict) {
			logger.Info("audit completed",
				zap.String("session", sessionID),
				zap.Int("score", verdict.Overall),
				zap.String("verdict", string(verdict.Verdict)))
		},
		SessionTerminated: func(sessionID string, cause string) {
			logger.Warn("session terminated", zap.String("session", sessionID), zap.String("cause", cause))
		},
	}
}
