package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/reinforce-go/domain/episode"
	"github.com/felixgeelhaar/reinforce-go/domain/experience"
	"github.com/felixgeelhaar/reinforce-go/domain/model"
	"github.com/felixgeelhaar/reinforce-go/domain/rl"
)

// testConfig returns an in-memory database unique to the test so that
// parallel tests don't share state.
func testConfig(name string) Config {
	cfg := DefaultConfig()
	cfg.DSN = "file:" + name + "?mode=memory&cache=shared"
	cfg.MaxOpenConns = 1
	cfg.JournalMode = ""
	return cfg
}

func testState(elapsed float64) rl.State {
	return rl.State{
		Target:        "10.0.0.7",
		OpenPorts:     []int{80, 443},
		LatencyMS:     120,
		BandwidthMbps: 64,
		ElapsedSec:    elapsed,
	}
}

func testExperience(t *testing.T, reward float64, done bool) rl.Experience {
	t.Helper()
	action, err := rl.NewAction(rl.AgentDDoS, rl.TagIncreaseIntensity, nil)
	if err != nil {
		t.Fatalf("NewAction() error = %v", err)
	}
	exp, err := rl.NewExperience(rl.AgentDDoS, testState(10), action, reward, testState(20), done, 0)
	if err != nil {
		t.Fatalf("NewExperience() error = %v", err)
	}
	return exp
}

func TestExperienceStore_AppendAndList(t *testing.T) {
	store, err := NewExperienceStore(testConfig("exp_append"))
	if err != nil {
		t.Fatalf("NewExperienceStore() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	for i := range 3 {
		record := experience.Record{
			EpisodeID:  "ep-1",
			StepIndex:  i,
			Experience: testExperience(t, float64(i), i == 2),
		}
		if err := store.Append(ctx, record); err != nil {
			t.Fatalf("Append(step %d) error = %v", i, err)
		}
	}

	records, err := store.List(ctx, experience.ListFilter{EpisodeID: "ep-1"}, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("List() returned %d records, want 3", len(records))
	}
	if records[0].StepIndex != 0 || records[2].StepIndex != 2 {
		t.Errorf("records out of order: %d, %d", records[0].StepIndex, records[2].StepIndex)
	}
	if !records[2].Experience.Done {
		t.Error("final record should be done")
	}
}

func TestExperienceStore_DuplicateStep(t *testing.T) {
	store, err := NewExperienceStore(testConfig("exp_dup"))
	if err != nil {
		t.Fatalf("NewExperienceStore() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	record := experience.Record{EpisodeID: "ep-1", StepIndex: 0, Experience: testExperience(t, 1, false)}

	if err := store.Append(ctx, record); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := store.Append(ctx, record); !errors.Is(err, experience.ErrDuplicateStep) {
		t.Errorf("Append(duplicate) error = %v, want ErrDuplicateStep", err)
	}
}

func TestExperienceStore_Filters(t *testing.T) {
	store, err := NewExperienceStore(testConfig("exp_filter"))
	if err != nil {
		t.Fatalf("NewExperienceStore() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	for i := range 4 {
		record := experience.Record{
			EpisodeID:  "ep-1",
			StepIndex:  i,
			Experience: testExperience(t, float64(i), i == 3),
		}
		if err := store.Append(ctx, record); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	done, err := store.List(ctx, experience.ListFilter{DoneOnly: true}, 0)
	if err != nil {
		t.Fatalf("List(done) error = %v", err)
	}
	if len(done) != 1 {
		t.Errorf("List(done) returned %d records, want 1", len(done))
	}

	// Rewards 0..3 produce priorities |r|+0.01, so MinPriority 2 keeps two.
	high, err := store.List(ctx, experience.ListFilter{MinPriority: 2}, 0)
	if err != nil {
		t.Fatalf("List(priority) error = %v", err)
	}
	if len(high) != 2 {
		t.Errorf("List(priority) returned %d records, want 2", len(high))
	}

	count, err := store.Count(ctx, experience.ListFilter{AgentType: rl.AgentDDoS})
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 4 {
		t.Errorf("Count() = %d, want 4", count)
	}

	limited, err := store.List(ctx, experience.ListFilter{}, 2)
	if err != nil {
		t.Fatalf("List(limit) error = %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("List(limit 2) returned %d records, want 2", len(limited))
	}
}

func TestModelStore_SaveAndLoad(t *testing.T) {
	store, err := NewModelStore(testConfig("model_save"))
	if err != nil {
		t.Fatalf("NewModelStore() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	snapshot := model.Snapshot{
		AgentType: rl.AgentShell,
		Epsilon:   0.42,
		Rows: []model.Row{
			{Key: 7, Values: []float64{1, 2, 3, 4, 5}, Visits: []uint64{1, 0, 0, 0, 2}},
		},
	}
	version := model.Version{
		AgentType:       rl.AgentShell,
		Number:          1,
		TrainedEpisodes: 100,
		AvgReward:       0.5,
		SuccessRate:     0.8,
		CreatedAt:       time.Now().UTC(),
	}

	if err := store.Save(ctx, snapshot, version); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, loadedVersion, err := store.Load(ctx, rl.AgentShell)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Epsilon != 0.42 {
		t.Errorf("Epsilon = %v, want 0.42", loaded.Epsilon)
	}
	if len(loaded.Rows) != 1 || loaded.Rows[0].Key != 7 {
		t.Errorf("unexpected rows: %+v", loaded.Rows)
	}
	if loadedVersion.Number != 1 || loadedVersion.TrainedEpisodes != 100 {
		t.Errorf("unexpected version: %+v", loadedVersion)
	}
}

func TestModelStore_VersionOrdering(t *testing.T) {
	store, err := NewModelStore(testConfig("model_versions"))
	if err != nil {
		t.Fatalf("NewModelStore() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	snapshot := model.Snapshot{AgentType: rl.AgentExfil, Epsilon: 1}

	save := func(n int) error {
		return store.Save(ctx, snapshot, model.Version{
			AgentType: rl.AgentExfil,
			Number:    n,
			CreatedAt: time.Now().UTC(),
		})
	}

	if err := save(1); err != nil {
		t.Fatalf("Save(1) error = %v", err)
	}
	if err := save(2); err != nil {
		t.Fatalf("Save(2) error = %v", err)
	}
	if err := save(2); !errors.Is(err, model.ErrVersionExists) {
		t.Errorf("Save(2 again) error = %v, want ErrVersionExists", err)
	}
	if err := save(1); !errors.Is(err, model.ErrVersionRegression) {
		t.Errorf("Save(1 after 2) error = %v, want ErrVersionRegression", err)
	}

	latest, err := store.LatestVersion(ctx, rl.AgentExfil)
	if err != nil {
		t.Fatalf("LatestVersion() error = %v", err)
	}
	if latest.Number != 2 {
		t.Errorf("LatestVersion().Number = %d, want 2", latest.Number)
	}

	versions, err := store.Versions(ctx, rl.AgentExfil)
	if err != nil {
		t.Fatalf("Versions() error = %v", err)
	}
	if len(versions) != 2 || versions[0].Number != 1 || versions[1].Number != 2 {
		t.Errorf("unexpected versions: %+v", versions)
	}
}

func TestModelStore_NotFound(t *testing.T) {
	store, err := NewModelStore(testConfig("model_missing"))
	if err != nil {
		t.Fatalf("NewModelStore() error = %v", err)
	}
	defer store.Close()

	if _, _, err := store.Load(context.Background(), rl.AgentDDoS); !errors.Is(err, model.ErrModelNotFound) {
		t.Errorf("Load(missing) error = %v, want ErrModelNotFound", err)
	}
}

func TestEpisodeStore_SaveAndGet(t *testing.T) {
	store, err := NewEpisodeStore(testConfig("ep_save"))
	if err != nil {
		t.Fatalf("NewEpisodeStore() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	e := episode.New("ep-1", rl.AgentDDoS)
	e.Record(1.5)
	e.Record(0.5)
	e.Finalize(true, 0, map[string]float64{"packets": 42})

	if err := store.Save(ctx, e); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Get(ctx, "ep-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != episode.StatusCompleted {
		t.Errorf("Status = %v, want completed", got.Status)
	}
	if got.CumulativeReward != 2.0 {
		t.Errorf("CumulativeReward = %v, want 2.0", got.CumulativeReward)
	}
	if got.Metrics["packets"] != 42 {
		t.Errorf("Metrics[packets] = %v, want 42", got.Metrics["packets"])
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, episode.ErrEpisodeNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrEpisodeNotFound", err)
	}
}

func TestEpisodeStore_SaveOverwrites(t *testing.T) {
	store, err := NewEpisodeStore(testConfig("ep_overwrite"))
	if err != nil {
		t.Fatalf("NewEpisodeStore() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	e := episode.New("ep-1", rl.AgentShell)
	if err := store.Save(ctx, e); err != nil {
		t.Fatalf("Save(active) error = %v", err)
	}

	e.Finalize(false, 0, nil)
	if err := store.Save(ctx, e); err != nil {
		t.Fatalf("Save(terminal) error = %v", err)
	}

	got, err := store.Get(ctx, "ep-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != episode.StatusFailed {
		t.Errorf("Status = %v, want failed", got.Status)
	}
}

func TestEpisodeStore_ListFilters(t *testing.T) {
	store, err := NewEpisodeStore(testConfig("ep_list"))
	if err != nil {
		t.Fatalf("NewEpisodeStore() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	a := episode.New("ep-a", rl.AgentDDoS)
	a.Finalize(true, 1.0, nil)
	b := episode.New("ep-b", rl.AgentDDoS)
	b.Finalize(false, -1.0, nil)
	c := episode.New("ep-c", rl.AgentShell)

	for _, e := range []*episode.Episode{a, b, c} {
		if err := store.Save(ctx, e); err != nil {
			t.Fatalf("Save(%s) error = %v", e.ID, err)
		}
	}

	ddos, err := store.List(ctx, episode.ListFilter{AgentType: rl.AgentDDoS})
	if err != nil {
		t.Fatalf("List(ddos) error = %v", err)
	}
	if len(ddos) != 2 {
		t.Errorf("List(ddos) returned %d, want 2", len(ddos))
	}

	completed, err := store.List(ctx, episode.ListFilter{Status: []episode.Status{episode.StatusCompleted}})
	if err != nil {
		t.Fatalf("List(completed) error = %v", err)
	}
	if len(completed) != 1 || completed[0].ID != "ep-a" {
		t.Errorf("unexpected completed list: %+v", completed)
	}

	count, err := store.Count(ctx, episode.ListFilter{})
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 3 {
		t.Errorf("Count() = %d, want 3", count)
	}
}

func TestEpisodeStore_Summary(t *testing.T) {
	store, err := NewEpisodeStore(testConfig("ep_summary"))
	if err != nil {
		t.Fatalf("NewEpisodeStore() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	a := episode.New("ep-a", rl.AgentDDoS)
	a.Record(2.0)
	a.Finalize(true, 0, nil)
	b := episode.New("ep-b", rl.AgentDDoS)
	b.Record(1.0)
	b.Finalize(false, 0, nil)
	c := episode.New("ep-c", rl.AgentShell)
	c.Finalize(true, 3.0, nil)

	for _, e := range []*episode.Episode{a, b, c} {
		if err := store.Save(ctx, e); err != nil {
			t.Fatalf("Save(%s) error = %v", e.ID, err)
		}
	}

	summary, err := store.Summary(ctx, episode.ListFilter{AgentType: rl.AgentDDoS})
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if summary.TotalEpisodes != 2 {
		t.Errorf("TotalEpisodes = %d, want 2", summary.TotalEpisodes)
	}
	if summary.Completed != 1 || summary.Failed != 1 {
		t.Errorf("Completed/Failed = %d/%d, want 1/1", summary.Completed, summary.Failed)
	}
	if summary.SuccessRate != 0.5 {
		t.Errorf("SuccessRate = %v, want 0.5", summary.SuccessRate)
	}
	if summary.AverageReward != 1.5 {
		t.Errorf("AverageReward = %v, want 1.5", summary.AverageReward)
	}

	all, err := store.Summary(ctx, episode.ListFilter{})
	if err != nil {
		t.Fatalf("Summary(all) error = %v", err)
	}
	if all.TotalEpisodes != 3 || all.Completed != 2 {
		t.Errorf("Summary(all) = %+v, want 3 total, 2 completed", all)
	}
}

func TestStores_CancelledContext(t *testing.T) {
	store, err := NewExperienceStore(testConfig("exp_ctx"))
	if err != nil {
		t.Fatalf("NewExperienceStore() error = %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	record := experience.Record{EpisodeID: "ep-1", StepIndex: 0, Experience: testExperience(t, 1, false)}
	if err := store.Append(ctx, record); !errors.Is(err, context.Canceled) {
		t.Errorf("Append(cancelled) error = %v, want context.Canceled", err)
	}
	if _, err := store.List(ctx, experience.ListFilter{}, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("List(cancelled) error = %v, want context.Canceled", err)
	}
}
