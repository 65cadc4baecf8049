package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/reinforce-go/domain/model"
	"github.com/felixgeelhaar/reinforce-go/domain/rl"
)

// trainOptions holds options for the train command.
type trainOptions struct {
	agent     string
	batchSize int
	epochs    int
	fromStore bool
}

// newTrainCmd creates the train command.
func (a *App) newTrainCmd() *cobra.Command {
	opts := &trainOptions{}

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run one retraining pass for an agent type",
		Long: `Run one retraining pass. With --from-store the replay buffer is first
refilled from the persisted experience history, so a fresh process can
train on experiences recorded by earlier runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTrain(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.agent, "agent", "ddos", "Agent type to train (ddos, shell, exfil)")
	cmd.Flags().IntVar(&opts.batchSize, "batch", 32, "Experiences per epoch")
	cmd.Flags().IntVar(&opts.epochs, "epochs", 1, "Sampling passes")
	cmd.Flags().BoolVar(&opts.fromStore, "from-store", false, "Refill the buffer from persisted experiences first")

	return cmd
}

func (a *App) runTrain(cmd *cobra.Command, opts *trainOptions) error {
	ctx := cmd.Context()

	agentType, err := parseAgentType(opts.agent)
	if err != nil {
		return err
	}

	registry, err := a.buildRegistry(ctx)
	if err != nil {
		return err
	}

	// Continue from the last persisted snapshot when one exists.
	if _, err := registry.LoadModel(ctx, agentType); err != nil && !errors.Is(err, model.ErrModelNotFound) {
		return fmt.Errorf("failed to restore model: %w", err)
	}

	if opts.fromStore {
		n, err := registry.RefillBuffer(ctx, agentType)
		if err != nil {
			return fmt.Errorf("failed to refill buffer: %w", err)
		}
		fmt.Fprintf(a.stdout, "refilled buffer with %d stored experiences\n", n)
	}

	result, err := registry.Train(ctx, agentType, opts.batchSize, opts.epochs)
	if err != nil {
		var warning *rl.PersistenceWarning
		if !errors.As(err, &warning) {
			return err
		}
		fmt.Fprintf(a.stderr, "warning: %v\n", warning)
	}

	fmt.Fprintf(a.stdout, "Training pass complete\n")
	fmt.Fprintf(a.stdout, "  Agent:        %s\n", result.AgentType)
	fmt.Fprintf(a.stdout, "  Processed:    %d\n", result.Processed)
	fmt.Fprintf(a.stdout, "  New states:   %d\n", result.NewStates)
	fmt.Fprintf(a.stdout, "  Q-table size: %d\n", result.QTableSize)
	fmt.Fprintf(a.stdout, "  Version:      %d\n", result.Version)
	return nil
}
