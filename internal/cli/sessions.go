package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ganauditor/ganauditor/internal/config"
	"github.com/ganauditor/ganauditor/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions [session-id]",
	Short: "List audit sessions or show one session's trajectory",
	Long: `Sessions inspects the durable session state directory.

Without arguments, lists all known sessions.
With a session ID, shows the score trajectory and completion state.

Examples:
  ganauditor sessions                 # List all sessions
  ganauditor sessions fix-parser      # Show one session`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSessions,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)

	sessionsCmd.Flags().Duration("evict-older-than", 0, "Evict sessions idle longer than this before listing")
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	store := session.NewStore(cfg.Session.StateDir, cfg.Session.EnablePersistence, logger)

	if maxAge, _ := cmd.Flags().GetDuration("evict-older-than"); maxAge > 0 {
		evicted, err := store.EvictIdle(maxAge)
		if err != nil {
			return fmt.Errorf("failed to evict idle sessions: %w", err)
		}
		fmt.Printf("%d session(s) evicted.\n", len(evicted))
	}

	if len(args) == 0 {
		return listKnownSessions(store)
	}
	return showSession(store, args[0])
}

func listKnownSessions(store *session.Store) error {
	ids, err := store.ListSessions()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(ids) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	fmt.Printf("%-30s %-6s %-10s %-8s %s\n", "SESSION", "LOOPS", "LAST SCORE", "STATE", "UPDATED")
	fmt.Println(strings.Repeat("-", 80))

	for _, id := range ids {
		state, err := store.Snapshot(id)
		if err != nil {
			continue
		}
		lastScore := "-"
		if state.LastVerdict != nil {
			lastScore = fmt.Sprintf("%d", state.LastVerdict.Overall)
		}
		status := "open"
		if state.TerminationCause != "" {
			status = "killed"
		} else if state.IsComplete {
			status = "done"
		}
		fmt.Printf("%-30s %-6d %-10s %-8s %s\n",
			id, state.CurrentLoop, lastScore, status,
			state.UpdatedAt.Format(time.RFC3339))
	}

	fmt.Printf("\n%d session(s) found.\n", len(ids))
	return nil
}

func showSession(store *session.Store, id string) error {
	state, err := store.Snapshot(id)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	progress, err := store.AnalyzeProgress(id)
	if err != nil {
		return fmt.Errorf("failed to analyze session: %w", err)
	}

	fmt.Printf("Session: %s\n", id)
	fmt.Printf("Created: %s\n", state.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Updated: %s\n", state.UpdatedAt.Format(time.RFC3339))
	fmt.Printf("Loops: %d\n", state.CurrentLoop)
	fmt.Printf("Task: %s\n", state.Config.Task)
	fmt.Printf("Threshold: %d\n", state.Config.Threshold)
	if len(progress.ScoreProgression) > 0 {
		fmt.Printf("Scores: %v\n", progress.ScoreProgression)
		fmt.Printf("Average improvement: %.1f per loop\n", progress.AverageImprovement)
	}
	if state.Stagnation != nil && state.Stagnation.IsStagnant {
		fmt.Printf("Stagnant since loop %d (similarity %.2f)\n",
			state.Stagnation.DetectedAtLoop, state.Stagnation.SimilarityScore)
	}
	if state.IsComplete {
		fmt.Printf("Complete: %s\n", state.CompletionReason)
	}
	if state.TerminationCause != "" {
		fmt.Printf("Terminated: %s\n", state.TerminationCause)
	}
	return nil
}
