package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/TrXuk/open-medtracker-sub000/internal/config"
	"github.com/TrXuk/open-medtracker-sub000/internal/db"
	"github.com/TrXuk/open-medtracker-sub000/internal/engine"
	"github.com/TrXuk/open-medtracker-sub000/internal/migrate"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	e.Now = func() time.Time { return testNow }
	handler, err := New(Config{Engine: e, BasePath: "/v1"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return envelope.Error.Code
}

func TestMedicationScheduleDoseFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/medications", map[string]any{
		"name":       "Levothyroxine",
		"dosage":     "50mcg",
		"start_date": "2024-01-01",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create medication: %d %s", res.StatusCode, string(data))
	}
	var med MedicationResponse
	if err := json.Unmarshal(data, &med); err != nil {
		t.Fatalf("unmarshal medication: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/schedules", map[string]any{
		"medication_id":  med.ID,
		"kind":           "time_of_day",
		"reference_zone": "UTC",
		"time_of_day":    "08:00",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create schedule: %d %s", res.StatusCode, string(data))
	}
	var sched ScheduleResponse
	if err := json.Unmarshal(data, &sched); err != nil {
		t.Fatalf("unmarshal schedule: %v", err)
	}
	if len(sched.Days) != 7 {
		t.Fatalf("expected all-day default, got %v", sched.Days)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/doses/generate", map[string]any{
		"from": "2024-06-14",
		"to":   "2024-06-14",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("generate doses: %d %s", res.StatusCode, string(data))
	}
	var doses []DoseResponse
	if err := json.Unmarshal(data, &doses); err != nil {
		t.Fatalf("unmarshal doses: %v", err)
	}
	if len(doses) != 1 {
		t.Fatalf("expected 1 dose, got %d", len(doses))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/doses/"+doses[0].ID+"/take", map[string]any{
		"zone": "US/Eastern",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("take dose: %d %s", res.StatusCode, string(data))
	}
	var taken DoseResponse
	if err := json.Unmarshal(data, &taken); err != nil {
		t.Fatal(err)
	}
	if taken.Status != "taken" || taken.RecordedZone != "America/New_York" {
		t.Fatalf("unexpected dose: %+v", taken)
	}

	// Taking a taken dose is a state-machine conflict.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/doses/"+doses[0].ID+"/skip", map[string]any{})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
	if errorCode(t, data) != "conflict" {
		t.Fatalf("expected conflict code, got %s", errorCode(t, data))
	}
}

func TestUnknownZoneRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/medications", map[string]any{
		"name":       "Metformin",
		"start_date": "2024-01-01",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create medication: %d %s", res.StatusCode, string(data))
	}
	var med MedicationResponse
	_ = json.Unmarshal(data, &med)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/schedules", map[string]any{
		"medication_id":  med.ID,
		"kind":           "time_of_day",
		"reference_zone": "Mars/Olympus_Mons",
		"time_of_day":    "08:00",
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", res.StatusCode, string(data))
	}
	if errorCode(t, data) != "unknown_zone" {
		t.Fatalf("expected unknown_zone code, got %s", errorCode(t, data))
	}
}

func TestMedicationNotFound(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/medications/nope", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
	if errorCode(t, data) != "not_found" {
		t.Fatalf("expected not_found code, got %s", errorCode(t, data))
	}
}

func TestTransitionFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/medications", map[string]any{
		"name":       "Warfarin",
		"start_date": "2024-01-01",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create medication: %d %s", res.StatusCode, string(data))
	}
	var med MedicationResponse
	_ = json.Unmarshal(data, &med)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/schedules", map[string]any{
		"medication_id":  med.ID,
		"kind":           "time_of_day",
		"reference_zone": "America/New_York",
		"time_of_day":    "08:00",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create schedule: %d %s", res.StatusCode, string(data))
	}
	var sched ScheduleResponse
	_ = json.Unmarshal(data, &sched)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/transitions/detect", map[string]any{
		"previous_zone": "America/New_York",
		"new_zone":      "Europe/London",
		"detection":     "automatic",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("detect: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/transitions/pending", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get pending: %d %s", res.StatusCode, string(data))
	}
	var pending PendingTransitionResponse
	if err := json.Unmarshal(data, &pending); err != nil {
		t.Fatal(err)
	}
	if pending.NewZone != "Europe/London" {
		t.Fatalf("unexpected pending: %+v", pending)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/transitions/pending/confirm", nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("confirm: %d %s", res.StatusCode, string(data))
	}
	var evt TransitionResponse
	if err := json.Unmarshal(data, &evt); err != nil {
		t.Fatal(err)
	}
	if !evt.UserConfirmed {
		t.Fatalf("confirmed event not flagged: %+v", evt)
	}

	// Confirming an empty slot conflicts.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/transitions/pending/confirm", nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/transitions/"+evt.ID+"/apply", map[string]any{
		"strategy": "keep_local_time",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("apply: %d %s", res.StatusCode, string(data))
	}
	var adjs []AdjustmentResponse
	if err := json.Unmarshal(data, &adjs); err != nil {
		t.Fatal(err)
	}
	if len(adjs) != 1 || adjs[0].NewZone != "Europe/London" || adjs[0].NewTime != "08:00" {
		t.Fatalf("unexpected adjustments: %+v", adjs)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/schedules/"+sched.ID, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get schedule: %d %s", res.StatusCode, string(data))
	}
	var moved ScheduleResponse
	_ = json.Unmarshal(data, &moved)
	if moved.ReferenceZone != "Europe/London" || moved.TimeOfDay != "08:00" {
		t.Fatalf("schedule not re-anchored: %+v", moved)
	}
}

func TestAdherenceReport(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/medications", map[string]any{
		"name":       "Atorvastatin",
		"start_date": "2024-01-01",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create medication: %d %s", res.StatusCode, string(data))
	}
	var med MedicationResponse
	_ = json.Unmarshal(data, &med)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/schedules", map[string]any{
		"medication_id":  med.ID,
		"kind":           "time_of_day",
		"reference_zone": "UTC",
		"time_of_day":    "08:00",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create schedule: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/doses/generate", map[string]any{
		"from": "2024-06-13",
		"to":   "2024-06-14",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("generate: %d %s", res.StatusCode, string(data))
	}
	var doses []DoseResponse
	_ = json.Unmarshal(data, &doses)
	if len(doses) != 2 {
		t.Fatalf("expected 2 doses, got %d", len(doses))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/doses/"+doses[0].ID+"/take", map[string]any{})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("take: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet,
		srv.URL+"/v1/reports/adherence?from=2024-06-13T00:00:00Z&to=2024-06-15T00:00:00Z", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("adherence: %d %s", res.StatusCode, string(data))
	}
	var rep AdherenceResponse
	if err := json.Unmarshal(data, &rep); err != nil {
		t.Fatal(err)
	}
	if rep.Total != 2 || rep.Taken != 1 || rep.Rate != 0.5 {
		t.Fatalf("unexpected report: %+v", rep)
	}
}
