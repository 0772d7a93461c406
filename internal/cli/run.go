package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"quiz-publisher/internal/app"
	"quiz-publisher/internal/domain"
)

// NewRunCmd executes one quiz run and prints its report as JSON.
func NewRunCmd(configPath *string) *cobra.Command {
	var req domain.RunRequest
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Publish one quiz now",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			b := newBackends(cfg, logger)
			defer b.Close()

			p, err := buildPipeline(ctx, cfg, b, logger)
			if err != nil {
				return err
			}
			report, err := p.runner.Run(ctx, req)
			if report.RunID != "" {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(report); encErr != nil {
					logger.Warn("print report", "err", encErr)
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&req.Topic, "topic", "", "topic collection to publish (random when empty)")
	cmd.Flags().IntVar(&req.Count, "count", 0, "number of questions (config questions.count when zero)")
	return cmd
}

// NewTopicsCmd lists the topics a run may pick from.
func NewTopicsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "topics",
		Short: "List selectable topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			b := newBackends(cfg, logger)
			defer b.Close()

			store, err := b.questions(cmd.Context())
			if err != nil {
				return err
			}
			all, err := store.ListTopics(cmd.Context())
			if err != nil {
				return err
			}
			for _, topic := range app.FilterTopics(all, cfg.Questions.IgnoreTopics) {
				cmd.Println(topic)
			}
			return nil
		},
	}
}
