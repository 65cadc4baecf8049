package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/felixgeelhaar/reinforce-go/domain/episode"
	"github.com/felixgeelhaar/reinforce-go/domain/experience"
	"github.com/felixgeelhaar/reinforce-go/domain/model"
	"github.com/felixgeelhaar/reinforce-go/domain/rl"
)

func testRecord(t *testing.T, episodeID string, step int, done bool) experience.Record {
	t.Helper()
	state := rl.State{Target: "10.0.0.8", LatencyMS: 100, BandwidthMbps: 64}
	action, err := rl.NewAction(rl.AgentShell, rl.TagProbe, nil)
	if err != nil {
		t.Fatalf("NewAction: %v", err)
	}
	exp, err := rl.NewExperience(rl.AgentShell, state, action, 1.5, state, done, 0)
	if err != nil {
		t.Fatalf("NewExperience: %v", err)
	}
	return experience.Record{EpisodeID: episodeID, StepIndex: step, Experience: exp}
}

func TestExperienceStore_AppendAndList(t *testing.T) {
	store := NewExperienceStore()
	ctx := context.Background()

	for i := range 5 {
		if err := store.Append(ctx, testRecord(t, "ep-1", i, i == 4)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	records, err := store.List(ctx, experience.ListFilter{EpisodeID: "ep-1"}, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("List returned %d records, want 5", len(records))
	}

	done, err := store.List(ctx, experience.ListFilter{DoneOnly: true}, 0)
	if err != nil {
		t.Fatalf("List done: %v", err)
	}
	if len(done) != 1 || done[0].StepIndex != 4 {
		t.Errorf("DoneOnly returned %d records, want the terminal step", len(done))
	}

	limited, err := store.List(ctx, experience.ListFilter{}, 2)
	if err != nil {
		t.Fatalf("List limited: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limit=2 returned %d records", len(limited))
	}
}

func TestExperienceStore_DuplicateStep(t *testing.T) {
	store := NewExperienceStore()
	ctx := context.Background()

	if err := store.Append(ctx, testRecord(t, "ep-1", 0, false)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Append(ctx, testRecord(t, "ep-1", 0, false)); !errors.Is(err, experience.ErrDuplicateStep) {
		t.Errorf("duplicate Append error = %v, want ErrDuplicateStep", err)
	}
	if err := store.Append(ctx, experience.Record{StepIndex: 1}); !errors.Is(err, experience.ErrInvalidRecord) {
		t.Errorf("empty episode ID error = %v, want ErrInvalidRecord", err)
	}
}

func TestModelStore_AppendOnlyVersions(t *testing.T) {
	store := NewModelStore()
	ctx := context.Background()

	snapshot := model.Snapshot{AgentType: rl.AgentShell, Epsilon: 0.5}

	if err := store.Save(ctx, snapshot, model.Version{AgentType: rl.AgentShell, Number: 1}); err != nil {
		t.Fatalf("Save v1: %v", err)
	}
	if err := store.Save(ctx, snapshot, model.Version{AgentType: rl.AgentShell, Number: 2}); err != nil {
		t.Fatalf("Save v2: %v", err)
	}

	if err := store.Save(ctx, snapshot, model.Version{AgentType: rl.AgentShell, Number: 2}); !errors.Is(err, model.ErrVersionExists) {
		t.Errorf("re-save v2 error = %v, want ErrVersionExists", err)
	}
	if err := store.Save(ctx, snapshot, model.Version{AgentType: rl.AgentShell, Number: 1}); !errors.Is(err, model.ErrVersionRegression) {
		t.Errorf("save v1 after v2 error = %v, want ErrVersionRegression", err)
	}

	latest, err := store.LatestVersion(ctx, rl.AgentShell)
	if err != nil {
		t.Fatalf("LatestVersion: %v", err)
	}
	if latest.Number != 2 {
		t.Errorf("latest version = %d, want 2", latest.Number)
	}

	versions, err := store.Versions(ctx, rl.AgentShell)
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if len(versions) != 2 || versions[0].Number != 1 || versions[1].Number != 2 {
		t.Errorf("Versions = %+v, want [1 2]", versions)
	}
}

func TestModelStore_LoadRoundTrip(t *testing.T) {
	store := NewModelStore()
	ctx := context.Background()

	snapshot := model.Snapshot{
		AgentType: rl.AgentShell,
		Rows: []model.Row{
			{Key: 42, Values: []float64{1, 2, 3, 4, 5}, Visits: []uint64{1, 0, 0, 0, 2}},
		},
		Epsilon: 0.25,
	}

	if err := store.Save(ctx, snapshot, model.Version{AgentType: rl.AgentShell, Number: 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, version, err := store.Load(ctx, rl.AgentShell)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if version.Number != 1 {
		t.Errorf("version = %d, want 1", version.Number)
	}
	if loaded.Size() != 1 || loaded.Rows[0].Key != 42 || loaded.Rows[0].Values[1] != 2 {
		t.Errorf("loaded snapshot = %+v, want round-tripped rows", loaded)
	}
	if loaded.Epsilon != 0.25 {
		t.Errorf("epsilon = %v, want 0.25", loaded.Epsilon)
	}

	if _, _, err := store.Load(ctx, rl.AgentDDoS); !errors.Is(err, model.ErrModelNotFound) {
		t.Errorf("Load unknown agent error = %v, want ErrModelNotFound", err)
	}
}

func TestEpisodeStore_SummaryAndFilters(t *testing.T) {
	store := NewEpisodeStore()
	ctx := context.Background()

	for i, success := range []bool{true, true, false} {
		e := episode.New(string(rune('a'+i)), rl.AgentShell)
		e.Record(float64(i + 1))
		e.Finalize(success, 0, nil)
		if err := store.Save(ctx, e); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	other := episode.New("d", rl.AgentDDoS)
	other.Finalize(true, 5, nil)
	if err := store.Save(ctx, other); err != nil {
		t.Fatalf("Save: %v", err)
	}

	count, err := store.Count(ctx, episode.ListFilter{AgentType: rl.AgentShell})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 3 {
		t.Errorf("Count(shell) = %d, want 3", count)
	}

	summary, err := store.Summary(ctx, episode.ListFilter{AgentType: rl.AgentShell})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.TotalEpisodes != 3 || summary.Completed != 2 || summary.Failed != 1 {
		t.Errorf("Summary = %+v, want 3 total, 2 completed, 1 failed", summary)
	}
	if summary.AverageReward != 2 { // (1+2+3)/3
		t.Errorf("AverageReward = %v, want 2", summary.AverageReward)
	}
	if summary.SuccessRate < 0.66 || summary.SuccessRate > 0.67 {
		t.Errorf("SuccessRate = %v, want 2/3", summary.SuccessRate)
	}

	failed, err := store.List(ctx, episode.ListFilter{Status: []episode.Status{episode.StatusFailed}})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(failed) != 1 || failed[0].AgentType != rl.AgentShell {
		t.Errorf("failed list = %d entries, want 1 shell episode", len(failed))
	}
}
