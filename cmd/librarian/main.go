// Package main provides the CLI entry point for the Librarian chat service.
//
// Librarian runs one-shot conversational turns against an OpenAI-compatible
// chat model (DeepSeek by default), with per-user context preheating, reply
// sanitation, truncation repair, and simulated character streaming.
//
// # Basic Usage
//
// Run one turn and print the answer:
//
//	librarian chat "When is my book due back?" --user 42
//
// Stream the answer character by character:
//
//	librarian stream "Summarize my borrowing history" --user 42
//
// Inspect stored conversation context:
//
//	librarian history show 42
//
// # Environment Variables
//
//   - DEEPSEEK_API_KEY: API key for the chat model endpoint
//   - DEEPSEEK_BASE_URL: Override the OpenAI-compatible base URL
//   - DEEPSEEK_MODEL: Override the model name
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/shelfwise/librarian/internal/config"
	"github.com/shelfwise/librarian/internal/history"
	"github.com/shelfwise/librarian/internal/observability"
	"github.com/shelfwise/librarian/internal/providers"
	"github.com/shelfwise/librarian/internal/stream"
	"github.com/shelfwise/librarian/internal/turn"
	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"     // Semantic version (e.g., "v1.0.0")
	commit  = "none"    // Git commit SHA
	date    = "unknown" // Build timestamp

	configPath string
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// This is separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "librarian",
		Short: "Librarian - Conversational turn service for library assistants",
		Long: `Librarian answers user questions through an OpenAI-compatible chat model.

Each turn resolves a stable session identity, preheats the prompt with the
user's stored conversation context, cleans identifier noise out of the reply,
and extends answers that were cut off mid-sentence.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		// SilenceUsage prevents printing usage on every error.
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "librarian.yaml", "Path to YAML configuration file")

	rootCmd.AddCommand(
		buildChatCmd(),
		buildStreamCmd(),
		buildHistoryCmd(),
	)

	return rootCmd
}

// app bundles the wired service components for one command invocation.
type app struct {
	cfg          *config.Config
	logger       *observability.Logger
	store        *history.TieredStore
	sqlStore     *history.SQLStore
	orchestrator *turn.Orchestrator
	deliverer    *stream.Deliverer
}

func (a *app) close() {
	if a.sqlStore != nil {
		_ = a.sqlStore.Close()
	}
}

// loadApp loads configuration and wires the full turn pipeline. The model
// backend requires ai.enabled and a credential; startup fails fast without
// them rather than degrading at first use.
func loadApp(path string) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics(nil)

	if !cfg.AI.Enabled {
		return nil, fmt.Errorf("chat model is disabled (set ai.enabled: true)")
	}

	sqlStore, err := history.OpenSQLite(cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	store := history.NewTieredStore(sqlStore,
		history.WithMaxChars(cfg.History.MaxChars),
		history.WithTTL(cfg.History.TTL),
		history.WithLogger(logger),
		history.WithMetrics(metrics),
	)

	memory := providers.NewWindowMemory(cfg.AI.WindowSize)
	backend, err := providers.NewOpenAIBackend(providers.Config{
		APIKey:      cfg.AI.APIKey,
		BaseURL:     cfg.AI.BaseURL,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
		Timeout:     cfg.AI.Timeout,
	}, memory, logger)
	if err != nil {
		_ = sqlStore.Close()
		return nil, err
	}

	orchestrator := turn.New(backend,
		turn.WithContextReader(store),
		turn.WithLogger(logger),
		turn.WithMetrics(metrics),
	)
	deliverer := stream.New(orchestrator,
		stream.WithUnitDelay(cfg.Stream.UnitDelay),
		stream.WithLogger(logger),
		stream.WithMetrics(metrics),
	)

	return &app{
		cfg:          cfg,
		logger:       logger,
		store:        store,
		sqlStore:     sqlStore,
		orchestrator: orchestrator,
		deliverer:    deliverer,
	}, nil
}

// recordTurn appends the completed exchange to the user's context and
// flushes the snapshot through to durable storage. Anonymous turns leave
// no trace.
func recordTurn(ctx context.Context, a *app, userID, question, answer string) {
	if strings.TrimSpace(userID) == "" {
		return
	}
	if err := a.store.Append(ctx, userID, "user", question); err != nil {
		a.logger.Warn(ctx, "record user message failed", "error", err)
	}
	if err := a.store.Append(ctx, userID, "assistant", answer); err != nil {
		a.logger.Warn(ctx, "record assistant message failed", "error", err)
	}
	if err := a.store.PersistSnapshot(ctx, userID); err != nil {
		a.logger.Warn(ctx, "persist context snapshot failed", "error", err)
	}
}

// buildChatCmd creates the "chat" command for a single synchronous turn.
func buildChatCmd() *cobra.Command {
	var sessionID string
	var userID string
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Run one conversational turn and print the answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			answer, err := a.orchestrator.Chat(ctx, sessionID, args[0], userID)
			if err != nil {
				return err
			}
			recordTurn(ctx, a, userID, args[0], answer)

			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID (generated when empty)")
	cmd.Flags().StringVar(&userID, "user", "", "User ID for context preheating (anonymous when empty)")
	return cmd
}

// buildStreamCmd creates the "stream" command, which delivers the answer
// as paced per-character units.
func buildStreamCmd() *cobra.Command {
	var sessionID string
	var userID string
	cmd := &cobra.Command{
		Use:   "stream [message]",
		Short: "Run one turn and stream the answer character by character",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			done := make(chan error, 1)
			var final string

			a.deliverer.StreamChat(ctx, sessionID, args[0], userID, stream.Sinks{
				OnSession: func(sid string) {
					a.logger.Debug(ctx, "session resolved", "session_id", sid)
				},
				OnUnit: func(unit string) {
					fmt.Fprint(out, unit)
				},
				OnComplete: func(text string) {
					final = text
					done <- nil
				},
				OnError: func(err error) {
					done <- err
				},
			})

			if err := <-done; err != nil {
				return err
			}
			fmt.Fprintln(out)
			recordTurn(ctx, a, userID, args[0], final)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID (generated when empty)")
	cmd.Flags().StringVar(&userID, "user", "", "User ID for context preheating (anonymous when empty)")
	return cmd
}

// buildHistoryCmd creates the "history" command group.
func buildHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and manage stored conversation context",
	}
	cmd.AddCommand(buildHistoryShowCmd(), buildHistoryClearCmd())
	return cmd
}

func buildHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [user-id]",
		Short: "Print a user's stored conversation context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			sqlStore, err := history.OpenSQLite(cfg.History.Path)
			if err != nil {
				return fmt.Errorf("open history store: %w", err)
			}
			defer sqlStore.Close()

			store := history.NewTieredStore(sqlStore, history.WithMaxChars(cfg.History.MaxChars))
			entries, err := store.Read(cmd.Context(), args[0])
			if err != nil && !errors.Is(err, history.ErrNotFound) {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No stored context.")
				return nil
			}
			for _, entry := range entries {
				fmt.Fprintf(out, "[%s] %s\n", entry.Role, entry.Content)
			}
			return nil
		},
	}
}

func buildHistoryClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear [user-id]",
		Short: "Clear a user's stored conversation context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			sqlStore, err := history.OpenSQLite(cfg.History.Path)
			if err != nil {
				return fmt.Errorf("open history store: %w", err)
			}
			defer sqlStore.Close()

			if err := sqlStore.Upsert(cmd.Context(), args[0], "[]"); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared context for %s\n", args[0])
			return nil
		},
	}
}
