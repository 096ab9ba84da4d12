package repositories

import (
	"errors"
	"testing"
	"time"

	"redirector/internal/database/models"
)

func TestLogEntryRepository_Append_SetsTimestamp(t *testing.T) {
	db := newTestDB(t)
	repo := NewLogEntryRepository(db, testLogger())

	entry := &models.LogEntry{Campaign: "c1", Method: "GET", Path: "/"}
	if err := repo.Append(entry); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if entry.Timestamp.IsZero() {
		t.Error("Expected Append to stamp the entry")
	}
	if entry.ID == 0 {
		t.Error("Expected entry to receive an id")
	}
}

func TestLogEntryRepository_FindByID(t *testing.T) {
	db := newTestDB(t)
	repo := NewLogEntryRepository(db, testLogger())

	entry := &models.LogEntry{Campaign: "c1", Method: "POST", Path: "/submit", UserAgent: "curl/8.0"}
	seedLog(t, repo, entry)

	found, err := repo.FindByID(entry.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if found.UserAgent != "curl/8.0" {
		t.Errorf("Expected user agent 'curl/8.0', got '%s'", found.UserAgent)
	}

	if _, err := repo.FindByID(99999); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestLogEntryRepository_Search_CampaignFilter(t *testing.T) {
	db := newTestDB(t)
	repo := NewLogEntryRepository(db, testLogger())

	seedLog(t, repo, &models.LogEntry{Campaign: "alpha", Method: "GET", Path: "/a"})
	seedLog(t, repo, &models.LogEntry{Campaign: "alpha", Method: "GET", Path: "/b"})
	seedLog(t, repo, &models.LogEntry{Campaign: "beta", Method: "GET", Path: "/c"})

	entries, err := repo.Search(LogFilter{Campaign: "alpha"}, LogPage{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("Expected 2 entries for campaign alpha, got %d", len(entries))
	}
}

func TestLogEntryRepository_Search_CountMatchesSearch(t *testing.T) {
	db := newTestDB(t)
	repo := NewLogEntryRepository(db, testLogger())

	seedLog(t, repo, &models.LogEntry{Campaign: "c1", Method: "GET", Path: "/api/users"})
	seedLog(t, repo, &models.LogEntry{Campaign: "c1", Method: "POST", Path: "/api/users"})
	seedLog(t, repo, &models.LogEntry{Campaign: "c1", Method: "GET", Path: "/login"})

	filter := LogFilter{Campaign: "c1", PathContains: "api"}

	entries, err := repo.Search(filter, LogPage{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	count, err := repo.Count(filter)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if int64(len(entries)) != count {
		t.Errorf("Expected count %d to match search result size %d", count, len(entries))
	}
	if count != 2 {
		t.Errorf("Expected 2 matching entries, got %d", count)
	}
}

func TestLogEntryRepository_Search_IPFilterChecksForwardedFor(t *testing.T) {
	db := newTestDB(t)
	repo := NewLogEntryRepository(db, testLogger())

	seedLog(t, repo, &models.LogEntry{Campaign: "c1", Method: "GET", Path: "/", ClientIP: "10.0.0.5"})
	seedLog(t, repo, &models.LogEntry{Campaign: "c1", Method: "GET", Path: "/",
		ClientIP: "172.16.0.1", XForwardedFor: "10.0.0.9, 172.16.0.1"})
	seedLog(t, repo, &models.LogEntry{Campaign: "c1", Method: "GET", Path: "/", ClientIP: "192.168.1.1"})

	entries, err := repo.Search(LogFilter{IPContains: "10.0.0"}, LogPage{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("Expected IP filter to match both transport and forwarded IPs, got %d entries", len(entries))
	}
}

func TestLogEntryRepository_Search_TimeRange(t *testing.T) {
	db := newTestDB(t)
	repo := NewLogEntryRepository(db, testLogger())

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seedLog(t, repo, &models.LogEntry{
			Campaign:  "c1",
			Method:    "GET",
			Path:      "/",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		})
	}

	start := base.Add(time.Hour)
	end := base.Add(3 * time.Hour)
	entries, err := repo.Search(LogFilter{StartTime: &start, EndTime: &end}, LogPage{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	// Bounds are inclusive on both ends
	if len(entries) != 3 {
		t.Errorf("Expected 3 entries in range, got %d", len(entries))
	}
}

func TestLogEntryRepository_Search_PaginationAndOrder(t *testing.T) {
	db := newTestDB(t)
	repo := NewLogEntryRepository(db, testLogger())

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	paths := []string{"/one", "/two", "/three"}
	for i, path := range paths {
		seedLog(t, repo, &models.LogEntry{
			Campaign:  "c1",
			Method:    "GET",
			Path:      path,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}

	newest, err := repo.Search(LogFilter{}, LogPage{Limit: 1})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(newest) != 1 || newest[0].Path != "/three" {
		t.Fatalf("Expected newest entry '/three' first, got %+v", newest)
	}

	second, err := repo.Search(LogFilter{}, LogPage{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(second) != 1 || second[0].Path != "/two" {
		t.Fatalf("Expected '/two' at offset 1, got %+v", second)
	}

	oldest, err := repo.Search(LogFilter{}, LogPage{Limit: 1, SortAsc: true})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(oldest) != 1 || oldest[0].Path != "/one" {
		t.Fatalf("Expected oldest entry '/one' first when ascending, got %+v", oldest)
	}
}

func TestLogEntryRepository_Search_NegativePageRejected(t *testing.T) {
	db := newTestDB(t)
	repo := NewLogEntryRepository(db, testLogger())

	if _, err := repo.Search(LogFilter{}, LogPage{Offset: -1}); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation for negative offset, got %v", err)
	}
	if _, err := repo.Search(LogFilter{}, LogPage{Limit: -5}); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation for negative limit, got %v", err)
	}
}

func TestLogEntryRepository_DeleteByCampaign(t *testing.T) {
	db := newTestDB(t)
	repo := NewLogEntryRepository(db, testLogger())

	seedLog(t, repo, &models.LogEntry{Campaign: "gone", Method: "GET", Path: "/"})
	seedLog(t, repo, &models.LogEntry{Campaign: "gone", Method: "GET", Path: "/"})
	seedLog(t, repo, &models.LogEntry{Campaign: "stays", Method: "GET", Path: "/"})

	deleted, err := repo.DeleteByCampaign("gone")
	if err != nil {
		t.Fatalf("DeleteByCampaign failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Expected 2 deleted, got %d", deleted)
	}

	count, err := repo.Count(LogFilter{})
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 remaining entry, got %d", count)
	}
}

func TestLogEntryRepository_DeleteAll(t *testing.T) {
	db := newTestDB(t)
	repo := NewLogEntryRepository(db, testLogger())

	seedLog(t, repo, &models.LogEntry{Campaign: "a", Method: "GET", Path: "/"})
	seedLog(t, repo, &models.LogEntry{Campaign: "b", Method: "GET", Path: "/"})

	deleted, err := repo.DeleteAll()
	if err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Expected 2 deleted, got %d", deleted)
	}

	count, err := repo.Count(LogFilter{})
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected empty store, got %d entries", count)
	}
}

func TestLogEntry_HeaderRoundTrip(t *testing.T) {
	entry := &models.LogEntry{}

	if err := entry.SetHeaders(map[string]string{"Accept": "text/html", "Host": "example.com"}); err != nil {
		t.Fatalf("SetHeaders failed: %v", err)
	}

	headers, err := entry.HeaderMap()
	if err != nil {
		t.Fatalf("HeaderMap failed: %v", err)
	}
	if headers["Accept"] != "text/html" {
		t.Errorf("Expected Accept header to survive round trip, got '%s'", headers["Accept"])
	}

	empty := &models.LogEntry{}
	headers, err = empty.HeaderMap()
	if err != nil {
		t.Fatalf("HeaderMap on empty entry failed: %v", err)
	}
	if len(headers) != 0 {
		t.Errorf("Expected empty map for entry without headers, got %v", headers)
	}
}
