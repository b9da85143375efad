package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"path/filepath"
	"testing"

	"razmkar/internal/config"
	"razmkar/internal/db"
	"razmkar/internal/domain"
	"razmkar/internal/engine"
	"razmkar/internal/migrate"
	"razmkar/internal/repo"
)

type testServer struct {
	URL    string
	Engine engine.Engine
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
	e := engine.New(conn, config.Default(), filepath.Join(workspace, "uploads"))
	if err := e.Settings.EnsureDefaults(context.Background()); err != nil {
		t.Fatalf("seed settings: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0"})
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
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
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
	for k, v := range headers {
		req.Header.Set(k, v)
	}
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

type errorEnvelope struct {
	OK    bool         `json:"ok"`
	Error apiErrorBody `json:"error"`
}

func decodeError(t *testing.T, data []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v: %s", err, string(data))
	}
	if env.OK {
		t.Fatalf("error envelope has ok=true: %s", string(data))
	}
	return env
}

func createProject(t *testing.T, srv *testServer) domain.Project {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"goal":        "parcel survey",
		"client_name": "Rahimi",
	}, map[string]string{ActorHeader: "sara"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project status %d: %s", res.StatusCode, string(data))
	}
	var p domain.Project
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	return p
}

func createMission(t *testing.T, srv *testServer, projectID int64, title string) domain.Mission {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, fmt.Sprintf("%s/v0/projects/%d/missions", srv.URL, projectID), map[string]any{
		"title": title,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create mission status %d: %s", res.StatusCode, string(data))
	}
	var m domain.Mission
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal mission: %v", err)
	}
	return m
}

func TestProjectLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	p := createProject(t, srv)
	if p.Status != domain.ProjectDraft {
		t.Fatalf("default status %s", p.Status)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{"client_name": "x"}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing goal status %d: %s", res.StatusCode, string(data))
	}
	decodeError(t, data)

	res, data = doJSON(t, client, http.MethodPatch, fmt.Sprintf("%s/v0/projects/%d", srv.URL, p.ID), map[string]any{"status": "active"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, fmt.Sprintf("%s/v0/projects/%d", srv.URL, p.ID), nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get status %d: %s", res.StatusCode, string(data))
	}
	var detail ProjectDetailResponse
	if err := json.Unmarshal(data, &detail); err != nil {
		t.Fatalf("unmarshal detail: %v", err)
	}
	if detail.Status != domain.ProjectActive || detail.StatusLabel == "" {
		t.Fatalf("unexpected detail %+v", detail)
	}

	res, _ = doJSON(t, client, http.MethodDelete, fmt.Sprintf("%s/v0/projects/%d", srv.URL, p.ID), nil, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d", res.StatusCode)
	}
	res, data = doJSON(t, client, http.MethodGet, fmt.Sprintf("%s/v0/projects/%d", srv.URL, p.ID), nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("get deleted status %d", res.StatusCode)
	}
	if env := decodeError(t, data); env.Error.Code != "not_found" {
		t.Fatalf("code %s", env.Error.Code)
	}
}

func TestMissionDetailCarriesCategory(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	p := createProject(t, srv)
	m := createMission(t, srv, p.ID, "بازدید از ملک #بازدید")

	res, data := doJSON(t, srv.Client(), http.MethodGet, fmt.Sprintf("%s/v0/missions/%d", srv.URL, m.ID), nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get mission status %d: %s", res.StatusCode, string(data))
	}
	var detail MissionDetailResponse
	if err := json.Unmarshal(data, &detail); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if detail.Category != "field" || detail.Points != 2 || len(detail.Tags) != 1 {
		t.Fatalf("unexpected classification %+v", detail)
	}
}

func TestMissionParentNullDetaches(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	p := createProject(t, srv)
	parent := createMission(t, srv, p.ID, "parent")
	res, data := doJSON(t, srv.Client(), http.MethodPost, fmt.Sprintf("%s/v0/projects/%d/missions", srv.URL, p.ID), map[string]any{
		"title":     "child",
		"parent_id": parent.ID,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create child status %d: %s", res.StatusCode, string(data))
	}
	var child domain.Mission
	json.Unmarshal(data, &child)

	res, data = doJSON(t, srv.Client(), http.MethodPatch, fmt.Sprintf("%s/v0/missions/%d", srv.URL, child.ID), map[string]any{"parent_id": nil}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch status %d: %s", res.StatusCode, string(data))
	}
	var updated domain.Mission
	json.Unmarshal(data, &updated)
	if updated.ParentID != nil {
		t.Fatalf("parent not detached: %v", *updated.ParentID)
	}
}

func TestAssignOverCapacity(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	p := createProject(t, srv)
	first := createMission(t, srv, p.ID, "site visit #بازدید")
	second := createMission(t, srv, p.ID, "second visit #بازدید")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/planning/assign", map[string]any{
		"date": "2025-03-10", "block": "MID", "mission_id": first.ID,
	}, map[string]string{ActorHeader: "sara"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("assign status %d: %s", res.StatusCode, string(data))
	}
	var ok ScheduleResponse
	if err := json.Unmarshal(data, &ok); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !ok.OK || ok.Week != "2025-11" || ok.Version != 1 {
		t.Fatalf("unexpected response %+v", ok)
	}
	if u := ok.Usage["2025-03-10_MID"]; u.Used != 2 || u.Capacity != 2 {
		t.Fatalf("usage %+v", u)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/planning/assign", map[string]any{
		"date": "2025-03-10", "block": "MID", "mission_id": second.ID,
	}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("over capacity status %d: %s", res.StatusCode, string(data))
	}
	env := decodeError(t, data)
	if env.Error.Code != "over_capacity" {
		t.Fatalf("code %s", env.Error.Code)
	}
	if env.Error.Details["used"] != float64(2) || env.Error.Details["capacity"] != float64(2) || env.Error.Details["points_new"] != float64(2) {
		t.Fatalf("details %v", env.Error.Details)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/planning/assign", map[string]any{
		"date": "2025-03-10", "block": "MID", "mission_id": second.ID, "force": true,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("forced assign status %d: %s", res.StatusCode, string(data))
	}
	json.Unmarshal(data, &ok)
	if u := ok.Usage["2025-03-10_MID"]; u.Used != 4 || !u.Over {
		t.Fatalf("forced usage %+v", u)
	}

	evs, err := srv.Engine.Repo.LatestEvents(context.Background(), repo.EventFilters{Type: "schedule.assign"})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evs) != 2 || evs[1].ActorID != "sara" {
		t.Fatalf("unexpected schedule events %+v", evs)
	}
}

func TestPlanningErrors(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	p := createProject(t, srv)
	m := createMission(t, srv, p.ID, "write report #گزارش")

	cases := []struct {
		name   string
		path   string
		body   map[string]any
		status int
		code   string
	}{
		{"missing params", "/v0/planning/assign", map[string]any{"block": "AM"}, http.StatusBadRequest, "params_required"},
		{"bad date", "/v0/planning/assign", map[string]any{"date": "2025-13-40", "block": "AM", "mission_id": m.ID}, http.StatusBadRequest, "invalid_date"},
		{"unknown mission", "/v0/planning/assign", map[string]any{"date": "2025-03-10", "block": "AM", "mission_id": 99999}, http.StatusNotFound, "mission_not_found"},
		{"cross week", "/v0/planning/move", map[string]any{
			"src_date": "2025-03-16", "src_block": "AM",
			"dst_date": "2025-03-17", "dst_block": "AM",
			"mission_id": m.ID,
		}, http.StatusUnprocessableEntity, "cross_week_not_supported"},
		{"pinned version", "/v0/planning/unassign", map[string]any{
			"date": "2025-03-10", "block": "AM", "mission_id": m.ID, "expected_version": 7,
		}, http.StatusConflict, "version_conflict"},
	}
	for _, c := range cases {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+c.path, c.body, nil)
		if res.StatusCode != c.status {
			t.Fatalf("%s: status %d: %s", c.name, res.StatusCode, string(data))
		}
		if env := decodeError(t, data); env.Error.Code != c.code {
			t.Fatalf("%s: code %s, want %s", c.name, env.Error.Code, c.code)
		}
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/planning/weeks/not-a-date", nil, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("week status %d: %s", res.StatusCode, string(data))
	}
}

func TestWeekView(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	p := createProject(t, srv)
	m := createMission(t, srv, p.ID, "survey #نقشه_برداری")
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/planning/assign", map[string]any{
		"date": "2025-03-12", "block": "AM", "mission_id": m.ID,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("assign status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/planning/weeks/2025-03-14", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("week status %d: %s", res.StatusCode, string(data))
	}
	var week WeekResponse
	if err := json.Unmarshal(data, &week); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !week.OK || week.Week != "2025-11" || week.Start != "2025-03-10" || len(week.Days) != 7 {
		t.Fatalf("unexpected week %+v", week)
	}
	if len(week.Missions) != 1 || week.Missions[0].Category != "field" {
		t.Fatalf("missions %+v", week.Missions)
	}
	if ids := week.Schedule["2025-03-12_AM"]; len(ids) != 1 || ids[0] != m.ID {
		t.Fatalf("schedule %v", week.Schedule)
	}
}

func TestCapacitySettingsIgnoreBadFields(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/settings/capacity", map[string]any{
		"capacity_block_points": map[string]int{"AM": 4, "MID": 2, "PM": 2},
		"workdays":              []string{"sat", "someday"},
		"colour":                "blue",
	}, map[string]string{ActorHeader: "admin"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("settings status %d: %s", res.StatusCode, string(data))
	}
	var out CapacitySettingsResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Update == nil || len(out.Update.Applied) != 1 || out.Update.Applied[0] != "capacity_block_points" {
		t.Fatalf("applied %+v", out.Update)
	}
	if len(out.Update.Ignored) != 2 {
		t.Fatalf("ignored %+v", out.Update.Ignored)
	}
	if out.BlockPoints["AM"] != 4 || len(out.Workdays) != 6 {
		t.Fatalf("stored capacity %+v", out.Capacity)
	}
}

func TestAttachmentUploadAndDownload(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	p := createProject(t, srv)
	m := createMission(t, srv, p.ID, "scan deeds")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "Deed.PDF")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	fw.Write([]byte("%PDF-1.4 fake"))
	mw.WriteField("note", "title deed")
	mw.Close()

	req, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/v0/missions/%d/attachments", srv.URL, m.ID), &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(ActorHeader, "sara")
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	data, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("upload status %d: %s", res.StatusCode, string(data))
	}
	var l domain.MissionLog
	if err := json.Unmarshal(data, &l); err != nil {
		t.Fatalf("unmarshal log: %v", err)
	}
	if l.Type != domain.LogFileUpload || l.Content != "title deed" || filepath.Ext(l.FilePath) != ".pdf" {
		t.Fatalf("unexpected log %+v", l)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, fmt.Sprintf("%s/v0/mission-logs/%d/file", srv.URL, l.ID), nil, nil)
	if res.StatusCode != http.StatusOK || string(data) != "%PDF-1.4 fake" {
		t.Fatalf("download status %d: %q", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, fmt.Sprintf("%s/v0/missions/%d/attachments", srv.URL, m.ID), nil, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("upload without file status %d: %s", res.StatusCode, string(data))
	}
	decodeError(t, data)
}

func TestEventsPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	p := createProject(t, srv)
	for i := 0; i < 3; i++ {
		createMission(t, srv, p.ID, fmt.Sprintf("m%d", i))
	}
	url := fmt.Sprintf("%s/v0/events?project_id=%d&type=mission.created&limit=2", srv.URL, p.ID)
	res, data := doJSON(t, srv.Client(), http.MethodGet, url, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var page paginatedEvents
	json.Unmarshal(data, &page)
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("first page %+v", page)
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, url+"&cursor="+page.NextCursor, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	page = paginatedEvents{}
	json.Unmarshal(data, &page)
	if len(page.Items) != 1 || page.NextCursor != "" {
		t.Fatalf("second page %+v", page)
	}
}
