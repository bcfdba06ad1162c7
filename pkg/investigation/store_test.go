package investigation

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"slices"
	"testing"
	"time"

	"github.com/ritzau/bluecity/pkg/model"
	"github.com/ritzau/bluecity/pkg/persistence"
	"github.com/ritzau/bluecity/pkg/pubsub"
	"github.com/ritzau/bluecity/pkg/share"
)

const baseURL = "https://city.example/dashboard"

type fixture struct {
	store   *Store
	slot    *persistence.MemorySlot
	adapter *persistence.Adapter
	broker  *pubsub.Broker
}

// newFixture builds a store over an in-memory slot. Writes only happen on an
// explicit Flush so tests stay deterministic.
func newFixture(t *testing.T, seed *model.PersistedState) *fixture {
	t.Helper()

	slot := persistence.NewMemorySlot()
	adapter := persistence.NewAdapter(slot, persistence.DefaultKey)
	if seed != nil {
		adapter.Save(*seed)
	}

	broker := pubsub.NewBroker()
	seq := 0
	store := NewStore(Options{
		Publisher: broker,
		Writer:    persistence.NewWriter(adapter, time.Hour),
		Codec:     share.NewCodec(baseURL, ""),
		NewID: func() string {
			seq++
			return fmt.Sprintf("id-%d", seq)
		},
		Now: func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	})
	t.Cleanup(func() {
		store.Close()
		broker.Close()
	})
	return &fixture{store: store, slot: slot, adapter: adapter, broker: broker}
}

func seededState() *model.PersistedState {
	return &model.PersistedState{
		Projects: []*model.Project{
			{
				ID:   "p1",
				Name: "Centre",
				Investigations: []*model.Investigation{
					{
						ID:              "a",
						Name:            "Bridge closed",
						SelectedLayers:  []string{"roads"},
						SelectedSources: []string{"osm"},
						TrafficAnalysis: &model.TrafficAnalysis{
							RemovedEdges:        []model.RemovedEdge{{U: 1, V: 2, Name: "Pont"}},
							ActiveVisualization: model.VisualizationCO2,
						},
					},
					{
						ID:              "b",
						Name:            "Baseline",
						SelectedLayers:  []string{"buildings"},
						SelectedSources: []string{},
					},
				},
			},
			{ID: "p2", Name: "North", Investigations: []*model.Investigation{}},
		},
		ActiveInvestigationID: "b",
		Period:                "2023",
	}
}

func shareToken(t *testing.T, payload string) string {
	t.Helper()
	return baseURL + "?inv=" + url.QueryEscape(base64.StdEncoding.EncodeToString([]byte(payload)))
}

func TestInitRestoresActiveInvestigation(t *testing.T) {
	f := newFixture(t, seededState())

	cleaned := f.store.Init(baseURL)
	if cleaned != baseURL {
		t.Errorf("Init() = %q, want unchanged URL", cleaned)
	}
	if f.store.ActiveID() != "b" {
		t.Fatalf("ActiveID() = %q, want b", f.store.ActiveID())
	}
	if got := f.store.SelectedLayers(); !slices.Equal(got, []string{"buildings"}) {
		t.Errorf("SelectedLayers() = %v", got)
	}
	if f.store.Period() != "2023" {
		t.Errorf("Period() = %q", f.store.Period())
	}
}

func TestInitSharedURLWinsOverPersistedActive(t *testing.T) {
	f := newFixture(t, seededState())

	link := shareToken(t, `{"name":"Shared plan","selectedLayers":["bike"],"period":"2030"}`)
	cleaned := f.store.Init(link + "&zoom=3")

	if cleaned != baseURL+"?zoom=3" {
		t.Errorf("Init() = %q, want share parameter stripped", cleaned)
	}
	active := f.store.ActiveInvestigation()
	if active == nil || active.Name != "Shared plan"+SharedSuffix {
		t.Fatalf("ActiveInvestigation() = %+v, want imported one", active)
	}
	if !slices.Equal(active.SelectedLayers, []string{"bike"}) || active.SelectedSources == nil {
		t.Errorf("imported lists = %v / %v", active.SelectedLayers, active.SelectedSources)
	}
	projects := f.store.Projects()
	if projects[0].Investigations[0].ID != active.ID {
		t.Error("imported investigation should be first in the first project")
	}
	if !projects[0].Expanded {
		t.Error("import should expand the receiving project")
	}
	if f.store.Period() != "2030" {
		t.Errorf("Period() = %q, want 2030", f.store.Period())
	}
}

func TestImportCreatesSharedProject(t *testing.T) {
	f := newFixture(t, nil)
	f.store.Init("")

	if _, ok := f.store.ImportSharedURL(shareToken(t, `{"name":"Solo"}`)); !ok {
		t.Fatal("ImportSharedURL() = false")
	}
	projects := f.store.Projects()
	if len(projects) != 1 || projects[0].Name != SharedProjectName {
		t.Fatalf("Projects() = %+v", projects)
	}
	inv := projects[0].Investigations[0]
	if inv.SelectedLayers == nil || len(inv.SelectedLayers) != 0 {
		t.Errorf("absent lists should import as empty, got %v", inv.SelectedLayers)
	}
}

func TestImportRejectsInvalidTokens(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"bad base64", baseURL + "?inv=%%%not-base64"},
		{"not json", baseURL + "?inv=" + base64.StdEncoding.EncodeToString([]byte("hello"))},
		{"missing name", baseURL + "?inv=" + base64.StdEncoding.EncodeToString([]byte(`{"selectedLayers":["x"]}`))},
		{"wrong list type", baseURL + "?inv=" + base64.StdEncoding.EncodeToString([]byte(`{"name":"x","selectedLayers":"roads"}`))},
		{"no parameter", baseURL + "?zoom=2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, seededState())
			f.store.Init("")
			before := f.store.Projects()

			cleaned, ok := f.store.ImportSharedURL(tt.url)
			if ok {
				t.Fatal("ImportSharedURL() accepted an invalid token")
			}
			if cleaned != tt.url {
				t.Errorf("URL changed to %q", cleaned)
			}
			after := f.store.Projects()
			if len(after) != len(before) || len(after[0].Investigations) != len(before[0].Investigations) {
				t.Errorf("tree mutated: before=%d after=%d", len(before[0].Investigations), len(after[0].Investigations))
			}
		})
	}
}

func TestSwitchDoesNotWriteBack(t *testing.T) {
	f := newFixture(t, seededState())
	f.store.Init("")

	// A stray observer reacting to the restore must not overwrite the target
	f.broker.Listen(pubsub.TopicTraffic, func(pubsub.Event) {
		f.store.UpdateCurrentInvestigation()
	})
	f.store.SetSelectedLayers([]string{"noise"})
	before, err := f.store.Investigation("a")
	if err != nil {
		t.Fatal(err)
	}

	if !f.store.SwitchToInvestigation("a") {
		t.Fatal("SwitchToInvestigation(a) = false")
	}
	f.store.UpdateCurrentInvestigation()

	inv, err := f.store.Investigation("a")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(inv, before) {
		t.Errorf("investigation changed by switch:\n got %+v\nwant %+v", inv, before)
	}
	if got := inv.TrafficAnalysis.ActiveVisualization; got != model.VisualizationCO2 {
		t.Errorf("ActiveVisualization = %q, want co2", got)
	}
	if f.store.SuppressedWriteBacks() == 0 {
		t.Error("expected the stray write-back to be suppressed")
	}
	if f.store.IsLoadingInvestigation() {
		t.Error("loading flag left set after switch")
	}
}

func TestSwitchKeepsEmptyTrafficAnalysis(t *testing.T) {
	f := newFixture(t, seededState())
	f.store.Init("")
	f.store.SwitchToInvestigation("a")

	before, err := f.store.Investigation("b")
	if err != nil {
		t.Fatal(err)
	}
	if before.TrafficAnalysis != nil {
		t.Fatalf("seeded TrafficAnalysis = %+v, want nil", before.TrafficAnalysis)
	}

	f.store.SwitchToInvestigation("b")
	f.store.UpdateCurrentInvestigation()

	after, err := f.store.Investigation("b")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(after, before) {
		t.Errorf("investigation changed by switch:\n got %+v\nwant %+v", after, before)
	}
}

func TestSwitchUnknownIsNoop(t *testing.T) {
	f := newFixture(t, seededState())
	f.store.Init("")

	if f.store.SwitchToInvestigation("missing") {
		t.Error("SwitchToInvestigation(missing) = true")
	}
	if f.store.ActiveID() != "b" {
		t.Errorf("ActiveID() = %q, want b", f.store.ActiveID())
	}
}

func TestLiveEditsFlowIntoActive(t *testing.T) {
	f := newFixture(t, seededState())
	f.store.Init("")

	f.store.ToggleSource("census")
	f.store.Traffic().AddRemovedEdge(7, 8, "Quai")

	inv, _ := f.store.Investigation("b")
	if !slices.Equal(inv.SelectedSources, []string{"census"}) {
		t.Errorf("SelectedSources = %v", inv.SelectedSources)
	}
	if inv.TrafficAnalysis == nil || len(inv.TrafficAnalysis.RemovedEdges) != 1 {
		t.Errorf("TrafficAnalysis = %+v", inv.TrafficAnalysis)
	}
}

func TestSaveCurrentStateIsDeepCopy(t *testing.T) {
	f := newFixture(t, seededState())
	f.store.Init("")
	f.store.SetSelectedLayers([]string{"roads", "rail"})
	f.store.Traffic().AddRemovedEdge(3, 4, "")

	saved, err := f.store.SaveCurrentState("p2", "")
	if err != nil {
		t.Fatal(err)
	}
	if saved.Name != "Investigation 1" {
		t.Errorf("default name = %q", saved.Name)
	}
	if f.store.ActiveID() != saved.ID {
		t.Error("saved investigation should become active")
	}

	saved.SelectedLayers[0] = "tampered"
	stored, _ := f.store.Investigation(saved.ID)
	if stored.SelectedLayers[0] != "roads" {
		t.Error("returned investigation aliases the stored one")
	}

	// Switching away and editing must not touch the snapshot
	f.store.SwitchToInvestigation("b")
	f.store.Traffic().AddRemovedEdge(9, 10, "")
	stored, _ = f.store.Investigation(saved.ID)
	if n := len(stored.TrafficAnalysis.RemovedEdges); n != 1 {
		t.Errorf("snapshot has %d removed edges, want 1", n)
	}

	if _, err := f.store.SaveCurrentState("nope", "x"); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("SaveCurrentState(unknown) error = %v", err)
	}
}

func TestDeleteActiveFallsBack(t *testing.T) {
	f := newFixture(t, seededState())
	f.store.Init("")

	if err := f.store.DeleteInvestigation("b"); err != nil {
		t.Fatal(err)
	}
	if f.store.ActiveID() != "a" {
		t.Errorf("ActiveID() = %q, want fallback to a", f.store.ActiveID())
	}

	if err := f.store.DeleteProject("p1"); err != nil {
		t.Fatal(err)
	}
	if f.store.ActiveID() != "" {
		t.Errorf("ActiveID() = %q, want none", f.store.ActiveID())
	}
	if err := f.store.DeleteInvestigation("a"); !errors.Is(err, ErrInvestigationNotFound) {
		t.Errorf("DeleteInvestigation(gone) error = %v", err)
	}
}

func TestMoveAndRename(t *testing.T) {
	f := newFixture(t, seededState())
	f.store.Init("")

	if err := f.store.MoveInvestigation("a", "p2"); err != nil {
		t.Fatal(err)
	}
	if err := f.store.RenameInvestigation("a", "Moved"); err != nil {
		t.Fatal(err)
	}
	projects := f.store.Projects()
	if len(projects[0].Investigations) != 1 || projects[1].Investigations[0].Name != "Moved" {
		t.Errorf("tree after move = %+v / %+v", projects[0].Investigations, projects[1].Investigations)
	}

	expanded, err := f.store.ToggleProjectExpanded("p2")
	if err != nil || !expanded {
		t.Errorf("ToggleProjectExpanded() = %v, %v", expanded, err)
	}
}

func TestPersistenceIsDebounced(t *testing.T) {
	f := newFixture(t, seededState())
	f.store.Init("")
	writesBefore := f.slot.Writes()

	for i := range 5 {
		f.store.SetSelectedLayers([]string{fmt.Sprintf("layer-%d", i)})
	}
	if f.slot.Writes() != writesBefore {
		t.Fatal("writes happened before the quiet period")
	}

	f.store.Flush()
	if f.slot.Writes() != writesBefore+1 {
		t.Errorf("Writes() = %d, want one coalesced write", f.slot.Writes()-writesBefore)
	}
	loaded := f.adapter.Load()
	if !slices.Equal(loaded.SelectedLayers, []string{"layer-4"}) {
		t.Errorf("persisted layers = %v", loaded.SelectedLayers)
	}
	if loaded.ActiveInvestigationID != "b" {
		t.Errorf("persisted active = %q", loaded.ActiveInvestigationID)
	}
}

func TestReloadReplacesTree(t *testing.T) {
	f := newFixture(t, seededState())
	f.store.Init("")

	next := model.PersistedState{
		Projects: []*model.Project{{
			ID:             "p9",
			Name:           "Elsewhere",
			Investigations: []*model.Investigation{{ID: "z", Name: "Other", SelectedLayers: []string{"water"}}},
		}},
		ActiveInvestigationID: "z",
	}
	f.store.Reload(next)

	if f.store.ActiveID() != "z" {
		t.Errorf("ActiveID() = %q, want z", f.store.ActiveID())
	}
	if got := f.store.SelectedLayers(); !slices.Equal(got, []string{"water"}) {
		t.Errorf("SelectedLayers() = %v", got)
	}
	if _, err := f.store.Investigation("a"); err == nil {
		t.Error("reload should drop investigations not in the new state")
	}
}

func TestReloadDropsPendingWrite(t *testing.T) {
	f := newFixture(t, seededState())
	f.store.Init("")
	f.store.SetSelectedLayers([]string{"noise"})

	external := model.PersistedState{
		Projects: []*model.Project{{ID: "p9", Name: "Elsewhere", Investigations: []*model.Investigation{}}},
	}
	f.adapter.Save(external)
	f.store.Reload(external)
	f.store.Flush()

	got := f.adapter.Load()
	if len(got.Projects) != 1 || got.Projects[0].Name != "Elsewhere" {
		t.Errorf("stored projects = %+v, want the external replacement", got.Projects)
	}
}

func TestResetClearsEverything(t *testing.T) {
	f := newFixture(t, seededState())
	f.store.Init("")
	f.store.Reset()

	if len(f.store.Projects()) != 0 || f.store.ActiveID() != "" {
		t.Errorf("store not empty after reset")
	}
	if !f.adapter.Load().IsEmpty() {
		t.Error("slot not cleared")
	}
	if f.store.Traffic().RemovedEdgesCount() != 0 {
		t.Error("traffic state not cleared")
	}
}

func TestShareURLRoundTrip(t *testing.T) {
	f := newFixture(t, seededState())
	f.store.Init("")

	link, err := f.store.ShareURL("a")
	if err != nil {
		t.Fatal(err)
	}
	g := newFixture(t, nil)
	g.store.Init(link)

	active := g.store.ActiveInvestigation()
	if active == nil || active.Name != "Bridge closed"+SharedSuffix {
		t.Fatalf("imported = %+v", active)
	}
	if !slices.Equal(active.SelectedLayers, []string{"roads"}) || g.store.Period() != "2023" {
		t.Errorf("round trip lost data: %+v period=%q", active, g.store.Period())
	}
	if active.TrafficAnalysis != nil {
		t.Error("traffic analysis must not travel in share links")
	}

	if _, err := f.store.ShareURL("missing"); !errors.Is(err, ErrInvestigationNotFound) {
		t.Errorf("ShareURL(missing) error = %v", err)
	}
}
