package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"redirector/internal/database"
	"redirector/internal/database/models"
	"redirector/internal/database/repositories"

	"github.com/glebarez/sqlite"
	"github.com/pterm/pterm"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testEnv struct {
	server       *Server
	logRepo      repositories.LogEntryRepository
	campaignRepo repositories.CampaignRepository
	serverRepo   repositories.ServerRepository
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to access underlying connection: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := database.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	logger := pterm.DefaultLogger.WithLevel(pterm.LogLevelFatal)
	logRepo := repositories.NewLogEntryRepository(db, logger)
	campaignRepo := repositories.NewCampaignRepository(db, logger)
	statsRepo := repositories.NewStatsRepository(db, logger)
	serverRepo := repositories.NewServerRepository(db, logger)

	return &testEnv{
		server:       NewServer(opts, logRepo, campaignRepo, statsRepo, serverRepo, logger),
		logRepo:      logRepo,
		campaignRepo: campaignRepo,
		serverRepo:   serverRepo,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	e.server.Engine().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
	return body
}

func (e *testEnv) seedLogs(t *testing.T, campaign string, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		entry := &models.LogEntry{
			Campaign:  campaign,
			Method:    "GET",
			Path:      fmt.Sprintf("/p/%d", i),
			URL:       fmt.Sprintf("http://host/p/%d", i),
			ClientIP:  "203.0.113.10",
			Timestamp: time.Now().UTC().Add(time.Duration(i) * time.Second),
		}
		if err := e.logRepo.Append(entry); err != nil {
			t.Fatalf("Failed to seed log: %v", err)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, Options{ServerID: "srv-1234", Campaign: "c1"})

	w := env.do(t, "GET", "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	body := decode(t, w)
	if body["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", body["status"])
	}
	if body["server_id"] != "srv-1234" {
		t.Errorf("Expected server_id in health payload, got %v", body["server_id"])
	}
	if body["campaign"] != "c1" {
		t.Errorf("Expected campaign in health payload, got %v", body["campaign"])
	}
}

func TestBasicAuth(t *testing.T) {
	env := newTestEnv(t, Options{AuthUser: "admin", AuthPassword: "secret"})

	// Health stays open
	if w := env.do(t, "GET", "/api/health", ""); w.Code != http.StatusOK {
		t.Errorf("Expected health to bypass auth, got %d", w.Code)
	}

	// Everything else requires credentials
	if w := env.do(t, "GET", "/api/logs", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without credentials, got %d", w.Code)
	}

	req := httptest.NewRequest("GET", "/api/logs", nil)
	req.SetBasicAuth("admin", "secret")
	w := httptest.NewRecorder()
	env.server.Engine().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 with credentials, got %d", w.Code)
	}
}

func TestListLogs_Pagination(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.seedLogs(t, "c1", 25)

	w := env.do(t, "GET", "/api/logs?per_page=10&page=3", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	body := decode(t, w)
	if body["total"].(float64) != 25 {
		t.Errorf("Expected total 25, got %v", body["total"])
	}
	if body["pages"].(float64) != 3 {
		t.Errorf("Expected 3 pages, got %v", body["pages"])
	}
	logs := body["logs"].([]interface{})
	if len(logs) != 5 {
		t.Errorf("Expected 5 logs on the last page, got %d", len(logs))
	}
}

func TestListLogs_FilterByCampaign(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.seedLogs(t, "alpha", 3)
	env.seedLogs(t, "beta", 2)

	body := decode(t, env.do(t, "GET", "/api/logs?campaign=beta", ""))
	if body["total"].(float64) != 2 {
		t.Errorf("Expected 2 entries for beta, got %v", body["total"])
	}
}

func TestListLogs_BadPagination(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.seedLogs(t, "c1", 3)

	for _, query := range []string{
		"page=0",
		"page=-3",
		"page=abc",
		"per_page=0",
		"per_page=1001",
		"per_page=many",
	} {
		if w := env.do(t, "GET", "/api/logs?"+query, ""); w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for %s, got %d", query, w.Code)
		}
	}

	// Absent params still default
	if w := env.do(t, "GET", "/api/logs", ""); w.Code != http.StatusOK {
		t.Errorf("Expected 200 without pagination params, got %d", w.Code)
	}
}

func TestListLogs_BadTimeBound(t *testing.T) {
	env := newTestEnv(t, Options{})

	if w := env.do(t, "GET", "/api/logs?start_time=yesterday", ""); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed start_time, got %d", w.Code)
	}
}

func TestGetLog(t *testing.T) {
	env := newTestEnv(t, Options{})
	entry := &models.LogEntry{Campaign: "c1", Method: "POST", Path: "/x", URL: "http://h/x"}
	entry.SetHeaders(map[string]string{"Accept": "text/html"})
	if err := env.logRepo.Append(entry); err != nil {
		t.Fatalf("Failed to seed log: %v", err)
	}

	w := env.do(t, "GET", fmt.Sprintf("/api/logs/%d", entry.ID), "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	body := decode(t, w)
	headers := body["headers"].(map[string]interface{})
	if headers["Accept"] != "text/html" {
		t.Errorf("Expected stored headers in detail view, got %v", headers)
	}

	if w := env.do(t, "GET", "/api/logs/99999", ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for missing entry, got %d", w.Code)
	}
	if w := env.do(t, "GET", "/api/logs/abc", ""); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for non-numeric id, got %d", w.Code)
	}
}

func TestDeleteLogs(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.seedLogs(t, "alpha", 3)
	env.seedLogs(t, "beta", 2)

	body := decode(t, env.do(t, "DELETE", "/api/logs?campaign=alpha", ""))
	if body["deleted"].(float64) != 3 {
		t.Errorf("Expected 3 deleted, got %v", body["deleted"])
	}

	body = decode(t, env.do(t, "DELETE", "/api/logs", ""))
	if body["deleted"].(float64) != 2 {
		t.Errorf("Expected 2 deleted in full wipe, got %v", body["deleted"])
	}
}

func TestCampaignLifecycle(t *testing.T) {
	env := newTestEnv(t, Options{})

	w := env.do(t, "POST", "/api/campaigns", `{"name":"launch","description":"spring launch"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	created := decode(t, w)

	if w := env.do(t, "POST", "/api/campaigns", `{"name":"launch"}`); w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate name, got %d", w.Code)
	}
	if w := env.do(t, "POST", "/api/campaigns", `{"description":"no name"}`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing name, got %d", w.Code)
	}

	body := decode(t, env.do(t, "GET", "/api/campaigns", ""))
	if len(body["campaigns"].([]interface{})) != 1 {
		t.Errorf("Expected 1 campaign listed, got %v", body["campaigns"])
	}

	env.seedLogs(t, "launch", 4)
	id := int(created["id"].(float64))

	w = env.do(t, "DELETE", fmt.Sprintf("/api/campaigns/%d?purge=true", id), "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if deleted := decode(t, w)["logs_deleted"].(float64); deleted != 4 {
		t.Errorf("Expected 4 logs purged, got %v", deleted)
	}

	if w := env.do(t, "DELETE", fmt.Sprintf("/api/campaigns/%d", id), ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for already-deleted campaign, got %d", w.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.seedLogs(t, "c1", 5)

	body := decode(t, env.do(t, "GET", "/api/stats?campaign=c1", ""))
	if body["total_requests"].(float64) != 5 {
		t.Errorf("Expected 5 total requests, got %v", body["total_requests"])
	}
}

func TestCampaignCardsEndpoint(t *testing.T) {
	env := newTestEnv(t, Options{})
	if err := env.campaignRepo.EnsureExists("c1", ""); err != nil {
		t.Fatalf("EnsureExists failed: %v", err)
	}
	env.seedLogs(t, "c1", 2)

	body := decode(t, env.do(t, "GET", "/api/campaign-cards", ""))
	if body["total"].(float64) != 1 {
		t.Errorf("Expected 1 active campaign, got %v", body["total"])
	}
	cards := body["campaigns"].([]interface{})
	if len(cards) != 1 {
		t.Fatalf("Expected 1 card, got %d", len(cards))
	}
	card := cards[0].(map[string]interface{})
	if card["request_count"].(float64) != 2 {
		t.Errorf("Expected request count 2 on card, got %v", card["request_count"])
	}

	for _, query := range []string{"page=0", "per_page=101"} {
		if w := env.do(t, "GET", "/api/campaign-cards?"+query, ""); w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for %s, got %d", query, w.Code)
		}
	}
}

func TestServerEndpoints(t *testing.T) {
	env := newTestEnv(t, Options{})
	err := env.serverRepo.Register(repositories.RegisterParams{
		ServerID: "srv-1", Campaign: "c1", RedirectURL: "https://example.com",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	body := decode(t, env.do(t, "GET", "/api/servers", ""))
	servers := body["servers"].([]interface{})
	if len(servers) != 1 {
		t.Fatalf("Expected 1 server, got %d", len(servers))
	}
	view := servers[0].(map[string]interface{})
	if view["is_active"] != true {
		t.Errorf("Expected freshly registered server to be active, got %v", view["is_active"])
	}

	body = decode(t, env.do(t, "GET", "/api/servers/active?campaign=c1", ""))
	if len(body["servers"].([]interface{})) != 1 {
		t.Errorf("Expected 1 active server for c1")
	}
	body = decode(t, env.do(t, "GET", "/api/servers/active?campaign=other", ""))
	if len(body["servers"].([]interface{})) != 0 {
		t.Errorf("Expected no active servers for unrelated campaign")
	}

	body = decode(t, env.do(t, "GET", "/api/servers/fleet", ""))
	if body["active_servers"].(float64) != 1 {
		t.Errorf("Expected 1 active server in fleet stats, got %v", body["active_servers"])
	}

	body = decode(t, env.do(t, "POST", "/api/servers/cleanup?max_age_hours=1", ""))
	if body["deleted"].(float64) != 0 {
		t.Errorf("Expected nothing cleaned up, got %v", body["deleted"])
	}
	if w := env.do(t, "POST", "/api/servers/cleanup?max_age_hours=-2", ""); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for negative max_age_hours, got %d", w.Code)
	}
}

func TestExportCSV(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.seedLogs(t, "c1", 3)

	w := env.do(t, "GET", "/api/export/csv?campaign=c1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Expected CSV content type, got '%s'", ct)
	}
	disposition := w.Header().Get("Content-Disposition")
	if !strings.Contains(disposition, "redirector_logs_c1_") || !strings.Contains(disposition, ".csv") {
		t.Errorf("Expected campaign-scoped CSV filename, got '%s'", disposition)
	}

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 4 { // header + 3 rows
		t.Errorf("Expected 4 CSV lines, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "id,timestamp,client_ip") {
		t.Errorf("Expected CSV header row, got '%s'", lines[0])
	}
}

func TestExportJSONL(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.seedLogs(t, "c1", 2)

	w := env.do(t, "GET", "/api/export/jsonl", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "redirector_logs_all_") {
		t.Errorf("Expected 'all' scope in filename, got '%s'", w.Header().Get("Content-Disposition"))
	}

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 JSONL lines, got %d", len(lines))
	}
	for _, line := range lines {
		var row map[string]interface{}
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			t.Errorf("Expected each line to be valid JSON: %v", err)
		}
	}
}
