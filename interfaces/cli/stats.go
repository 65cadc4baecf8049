package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/reinforce-go/application"
	"github.com/felixgeelhaar/reinforce-go/domain/episode"
)

// statsOptions holds options for the stats command.
type statsOptions struct {
	agent      string
	jsonOutput bool
	stored     bool
}

// newStatsCmd creates the stats command.
func (a *App) newStatsCmd() *cobra.Command {
	opts := &statsOptions{}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print learning statistics",
		Long: `Print per-agent learning statistics. With --stored the persisted
episode history is aggregated instead of the in-process counters,
which is what you want when inspecting a SQLite database from an
earlier run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runStats(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.agent, "agent", "", "Restrict to one agent type")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&opts.stored, "stored", false, "Aggregate the persisted episode history")

	return cmd
}

func (a *App) runStats(cmd *cobra.Command, opts *statsOptions) error {
	ctx := cmd.Context()
	registry, err := a.buildRegistry(ctx)
	if err != nil {
		return err
	}

	if opts.stored {
		return a.printStoredSummary(cmd, registry, opts)
	}

	var all []application.Statistics
	if opts.agent != "" {
		agentType, err := parseAgentType(opts.agent)
		if err != nil {
			return err
		}
		stats, err := registry.Statistics(agentType)
		if err != nil {
			return err
		}
		all = []application.Statistics{stats}
	} else {
		all = registry.AllStatistics()
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(all)
	}

	for _, stats := range all {
		printStatistics(a.stdout, stats)
	}
	return nil
}

func (a *App) printStoredSummary(cmd *cobra.Command, registry *application.Registry, opts *statsOptions) error {
	filter := episode.ListFilter{}
	if opts.agent != "" {
		agentType, err := parseAgentType(opts.agent)
		if err != nil {
			return err
		}
		filter.AgentType = agentType
	}

	summary, err := registry.Gateway().Summary(cmd.Context(), filter)
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	fmt.Fprintf(a.stdout, "Stored episodes\n")
	fmt.Fprintf(a.stdout, "  Total:        %d\n", summary.TotalEpisodes)
	fmt.Fprintf(a.stdout, "  Completed:    %d\n", summary.Completed)
	fmt.Fprintf(a.stdout, "  Failed:       %d\n", summary.Failed)
	fmt.Fprintf(a.stdout, "  Avg reward:   %.3f\n", summary.AverageReward)
	fmt.Fprintf(a.stdout, "  Success rate: %.1f%%\n", summary.SuccessRate*100)
	fmt.Fprintf(a.stdout, "  Avg duration: %s\n", summary.AverageDuration)
	return nil
}

// printStatistics writes one agent's statistics as text.
func printStatistics(w io.Writer, stats application.Statistics) {
	fmt.Fprintf(w, "Agent %s\n", stats.AgentType)
	fmt.Fprintf(w, "  Episodes:      %d\n", stats.Episodes)
	fmt.Fprintf(w, "  Avg reward:    %.3f\n", stats.AvgReward)
	fmt.Fprintf(w, "  Success rate:  %.1f%%\n", stats.SuccessRate*100)
	fmt.Fprintf(w, "  Q-table size:  %d\n", stats.QTableSize)
	fmt.Fprintf(w, "  Epsilon:       %.4f\n", stats.Epsilon)
	fmt.Fprintf(w, "  Buffer size:   %d\n", stats.BufferSize)
	fmt.Fprintf(w, "  Model version: %d\n", stats.ModelVersion)
	if stats.Degraded {
		fmt.Fprintf(w, "  Persistence:   DEGRADED\n")
	}
}
