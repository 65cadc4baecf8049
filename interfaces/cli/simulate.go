package cli

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/reinforce-go/application"
	"github.com/felixgeelhaar/reinforce-go/domain/rl"
)

// simulateOptions holds options for the simulate command.
type simulateOptions struct {
	agent    string
	episodes int
	maxSteps int
	seed     int64
	report   int
}

// newSimulateCmd creates the simulate command.
func (a *App) newSimulateCmd() *cobra.Command {
	opts := &simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run episodes against the built-in synthetic environment",
		Long: `Run a batch of episodes for one agent type against a synthetic
environment. The environment is a toy dynamical system: actions drift
the state features and the reward is the canonical weighted score.
Retraining triggers automatically on the configured interval.

Examples:
  # 500 DDOS episodes on in-memory storage
  reinforce simulate --agent ddos --episodes 500

  # Persist experiences and snapshots to SQLite
  reinforce simulate --agent shell --episodes 200 --storage sqlite --dsn file:run.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSimulation(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.agent, "agent", "ddos", "Agent type to simulate (ddos, shell, exfil)")
	cmd.Flags().IntVar(&opts.episodes, "episodes", 100, "Number of episodes to run")
	cmd.Flags().IntVar(&opts.maxSteps, "max-steps", 25, "Maximum steps per episode")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "Random seed (0 = time-based)")
	cmd.Flags().IntVar(&opts.report, "report", 50, "Print progress every N episodes")

	return cmd
}

func (a *App) runSimulation(ctx context.Context, opts *simulateOptions) error {
	agentType, err := parseAgentType(opts.agent)
	if err != nil {
		return err
	}
	if opts.episodes <= 0 || opts.maxSteps <= 0 {
		return fmt.Errorf("episodes and max-steps must be positive")
	}

	var regOpts []application.Option
	seed := opts.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	} else {
		regOpts = append(regOpts, application.WithSeed(seed))
	}

	registry, err := a.buildRegistry(ctx, regOpts...)
	if err != nil {
		return err
	}

	env := newEnvironment(seed)
	start := time.Now()

	for i := range opts.episodes {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := a.runOneEpisode(ctx, registry, env, agentType, opts.maxSteps); err != nil {
			return fmt.Errorf("episode %d: %w", i+1, err)
		}

		if registry.ShouldRetrain(agentType) {
			result, err := registry.TrainAgent(ctx, agentType)
			if err != nil {
				var warning *rl.PersistenceWarning
				if !errors.As(err, &warning) {
					return fmt.Errorf("retraining failed: %w", err)
				}
				fmt.Fprintf(a.stderr, "warning: %v\n", warning)
			}
			fmt.Fprintf(a.stdout, "retrained: version=%d processed=%d new_states=%d qtable=%d\n",
				result.Version, result.Processed, result.NewStates, result.QTableSize)
		}

		if opts.report > 0 && (i+1)%opts.report == 0 {
			stats, _ := registry.Statistics(agentType)
			fmt.Fprintf(a.stdout, "episode %d/%d: avg_reward=%.3f success=%.1f%% epsilon=%.3f states=%d\n",
				i+1, opts.episodes, stats.AvgReward, stats.SuccessRate*100, stats.Epsilon, stats.QTableSize)
		}
	}

	stats, err := registry.Statistics(agentType)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "\nSimulation complete in %s\n", time.Since(start).Round(time.Millisecond))
	printStatistics(a.stdout, stats)
	return nil
}

// runOneEpisode drives one episode of the synthetic environment.
func (a *App) runOneEpisode(ctx context.Context, registry *application.Registry, env *environment, agentType rl.AgentType, maxSteps int) error {
	if _, err := registry.StartEpisode(ctx, agentType); err != nil {
		return err
	}

	state := env.reset(agentType)
	var lastScore rl.Score

	for step := range maxSteps {
		action, err := registry.SelectAction(ctx, agentType, state, true)
		if err != nil {
			return err
		}

		next, score, done := env.step(state, action, step, maxSteps)
		lastScore = score

		exp, err := rl.NewExperience(agentType, state, action, env.weights.Reward(score), next, done, 0)
		if err != nil {
			return err
		}
		if err := registry.StoreExperience(ctx, agentType, exp); err != nil {
			return err
		}

		state = next
		if done {
			break
		}
	}

	success := lastScore.Success >= 0.5
	return registry.EndEpisode(ctx, agentType, success, 0, map[string]float64{
		"final_success_score": lastScore.Success,
		"final_detection":     lastScore.Detection,
	})
}

// environment is the synthetic dynamical system episodes run against.
// It has no connection to any real system: actions drift abstract
// numeric features and the score components are simple functions of
// those features.
type environment struct {
	rng     *rand.Rand
	weights rl.RewardWeights
}

func newEnvironment(seed int64) *environment {
	return &environment{
		rng:     rand.New(rand.NewSource(seed)),
		weights: rl.DefaultRewardWeights(),
	}
}

// reset produces a fresh initial state.
func (e *environment) reset(agentType rl.AgentType) rl.State {
	ports := []int{22, 80, 443}
	return rl.State{
		Target:        fmt.Sprintf("sim-%03d", e.rng.Intn(1000)),
		OpenPorts:     ports[:1+e.rng.Intn(len(ports))],
		LatencyMS:     20 + e.rng.Float64()*180,
		BandwidthMbps: float64(uint(1) << (3 + e.rng.Intn(5))),
		FirewallUp:    e.rng.Float64() < 0.5,
		RateLimited:   false,
	}
}

// step applies one action. Even ordinals push the system toward the
// goal but raise the detection pressure; odd ordinals back off.
func (e *environment) step(state rl.State, action rl.Action, step, maxSteps int) (rl.State, rl.Score, bool) {
	next := state.WithHistory(action.Tag)
	next.ElapsedSec = state.ElapsedSec + 5 + e.rng.Float64()*10

	aggressive := action.Ordinal()%2 == 0
	if aggressive {
		next.LatencyMS = state.LatencyMS * (1.1 + e.rng.Float64()*0.3)
		if e.rng.Float64() < 0.25 {
			next.Detections = state.Detections + 1
		}
		next.RateLimited = next.Detections > 2
	} else {
		next.LatencyMS = state.LatencyMS * (0.85 + e.rng.Float64()*0.1)
	}

	progress := float64(next.StepsTaken) / float64(maxSteps)
	detectionPressure := float64(next.Detections) * 0.2

	score := rl.Score{
		Success:   clamp01(progress*1.5 - detectionPressure*0.5),
		Speed:     clamp01(1 - next.ElapsedSec/(float64(maxSteps)*15)),
		Stealth:   clamp01(1 - detectionPressure),
		Damage:    clamp01(progress),
		Detection: clamp01(detectionPressure),
	}

	done := next.StepsTaken >= maxSteps ||
		score.Success >= 0.9 ||
		next.Detections > 4

	return next, score, done
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
