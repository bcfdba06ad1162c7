package web

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ritzau/bluecity/pkg/investigation"
	"github.com/ritzau/bluecity/pkg/model"
	"github.com/ritzau/bluecity/pkg/pubsub"
	"github.com/ritzau/bluecity/pkg/share"
	"github.com/ritzau/bluecity/pkg/traffic"
)

type fakeSimulator struct {
	err error
}

func (f *fakeSimulator) Run(_ context.Context, state *traffic.State) error {
	if f.err != nil {
		return f.err
	}
	state.SetEdgeUsage(
		[]model.EdgeUsageStat{{U: 1, V: 2, Count: 4, Frequency: 1}},
		[]model.EdgeUsageStat{
			{U: 1, V: 2, Count: 0, Frequency: 0, DeltaCount: -4},
			{U: 1, V: 3, Count: 4, Frequency: 1, DeltaCount: 4},
		},
		&model.ImpactStatistics{TotalRoutes: 4, AffectedRoutes: 4},
	)
	return nil
}

func newTestServer(t *testing.T, sim Simulator) (*httptest.Server, *investigation.Store) {
	t.Helper()
	broker := pubsub.NewBroker()
	store := investigation.NewStore(investigation.Options{
		Publisher: broker,
		Codec:     share.NewCodec("https://city.example/", ""),
	})
	store.Init("")

	srv := httptest.NewServer(NewServer(store, broker, sim).Handler())
	t.Cleanup(func() {
		srv.Close()
		store.Close()
		broker.Close()
	})
	return srv, store
}

func call(t *testing.T, srv *httptest.Server, method, path, body string, out any) int {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestInvestigationLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	var project model.Project
	if code := call(t, srv, "POST", "/api/projects", `{"name":"Centre"}`, &project); code != http.StatusCreated {
		t.Fatalf("create project status = %d", code)
	}

	call(t, srv, "PUT", "/api/selection/layers", `{"ids":["roads","rail"]}`, nil)

	var inv model.Investigation
	if code := call(t, srv, "POST", "/api/projects/"+project.ID+"/investigations", `{"name":"Rail focus"}`, &inv); code != http.StatusCreated {
		t.Fatalf("save investigation status = %d", code)
	}
	if len(inv.SelectedLayers) != 2 {
		t.Errorf("saved layers = %v", inv.SelectedLayers)
	}

	// Live edits flow into the active investigation
	call(t, srv, "PUT", "/api/selection/layers", `{"ids":["water"]}`, nil)
	var state StateResponse
	call(t, srv, "GET", "/api/state", "", &state)
	if state.ActiveInvestigationID != inv.ID {
		t.Fatalf("active = %q, want %q", state.ActiveInvestigationID, inv.ID)
	}
	if got := state.Projects[0].Investigations[0].SelectedLayers; len(got) != 1 || got[0] != "water" {
		t.Errorf("write-back layers = %v", got)
	}

	var link map[string]string
	if code := call(t, srv, "GET", "/api/investigations/"+inv.ID+"/share", "", &link); code != http.StatusOK {
		t.Fatalf("share status = %d", code)
	}
	if !strings.HasPrefix(link["url"], "https://city.example/?inv=") {
		t.Errorf("share url = %q", link["url"])
	}

	var imported importResponse
	call(t, srv, "POST", "/api/import", `{"url":"`+link["url"]+`"}`, &imported)
	if !imported.Imported || imported.URL != "https://city.example/" || imported.ActiveID == inv.ID {
		t.Errorf("import = %+v", imported)
	}

	if code := call(t, srv, "DELETE", "/api/investigations/"+imported.ActiveID, "", nil); code != http.StatusNoContent {
		t.Errorf("delete status = %d", code)
	}
	if code := call(t, srv, "POST", "/api/investigations/missing/activate", "", nil); code != http.StatusNotFound {
		t.Errorf("activate missing status = %d", code)
	}
	if code := call(t, srv, "PATCH", "/api/projects/missing", `{"name":"x"}`, nil); code != http.StatusNotFound {
		t.Errorf("rename missing project status = %d", code)
	}
}

func TestTrafficEndpoints(t *testing.T) {
	srv, store := newTestServer(t, &fakeSimulator{})

	var toggled map[string]any
	call(t, srv, "POST", "/api/traffic/edges/toggle", `{"u":1,"v":2,"name":"Pont"}`, &toggled)
	call(t, srv, "POST", "/api/traffic/edges/toggle", `{"u":2,"v":1}`, &toggled)
	if toggled["removed"] != true || toggled["removedCount"] != float64(1) {
		t.Errorf("toggle response = %v", toggled)
	}

	var result TrafficResponse
	if code := call(t, srv, "POST", "/api/traffic/simulate", "", &result); code != http.StatusOK {
		t.Fatalf("simulate status = %d", code)
	}
	if !result.HasResults || result.Mode != model.VisualizationDelta || result.Legend == nil || result.Legend.Kind != "diverging" {
		t.Errorf("simulate response = %+v", result)
	}
	if len(result.Edges) != 2 || !result.HasRouteChange {
		t.Errorf("edges = %+v routeChange=%v", result.Edges, result.HasRouteChange)
	}
	if len(result.RemovedEdges) != 1 || !result.RemovedEdges[0].IsBidirectional {
		t.Errorf("removed edges = %+v", result.RemovedEdges)
	}

	if code := call(t, srv, "PUT", "/api/traffic/visualization", `{"mode":"sparkle"}`, nil); code != http.StatusBadRequest {
		t.Errorf("bad mode status = %d", code)
	}
	call(t, srv, "PUT", "/api/traffic/visualization", `{"mode":"frequency"}`, &result)
	if result.Legend == nil || result.Legend.Kind != "sequential" {
		t.Errorf("legend after mode change = %+v", result.Legend)
	}

	call(t, srv, "POST", "/api/traffic/clear", `{"edges":true}`, nil)
	if store.Traffic().HasResults() || store.Traffic().RemovedEdgesCount() != 0 {
		t.Error("clear left state behind")
	}
}

func TestSimulateFailure(t *testing.T) {
	srv, store := newTestServer(t, &fakeSimulator{err: errors.New("backend down")})
	if code := call(t, srv, "POST", "/api/traffic/simulate", "", nil); code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", code)
	}
	if store.Traffic().HasResults() {
		t.Error("failed simulation produced results")
	}

	srv, _ = newTestServer(t, nil)
	if code := call(t, srv, "POST", "/api/traffic/simulate", "", nil); code != http.StatusServiceUnavailable {
		t.Errorf("status without simulator = %d, want 503", code)
	}
}

func TestRejectsMalformedBodies(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	tests := []struct{ method, path, body string }{
		{"POST", "/api/projects", `{"name":`},
		{"PUT", "/api/selection/layers", `{"layers":["x"]}`},
		{"POST", "/api/traffic/edges/toggle", `{"u":-1,"v":2}`},
		{"PUT", "/api/selection/groups", `{"expanded":true}`},
	}
	for _, tt := range tests {
		if code := call(t, srv, tt.method, tt.path, tt.body, nil); code != http.StatusBadRequest {
			t.Errorf("%s %s %s: status = %d, want 400", tt.method, tt.path, tt.body, code)
		}
	}
}

func TestSubscribeStreamsEvents(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL+"/api/subscribe/investigations", nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	call(t, srv, "POST", "/api/projects", `{"name":"Live"}`, nil)

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") && strings.Contains(line, `"type":"tree_changed"`) {
			return
		}
	}
	t.Fatalf("no tree_changed event received: %v", scanner.Err())
}

func TestSubscribeUnknownTopic(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	if code := call(t, srv, "GET", "/api/subscribe/weather", "", nil); code != http.StatusNotFound {
		t.Errorf("status = %d", code)
	}
}
