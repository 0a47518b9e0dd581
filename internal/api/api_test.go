package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/bilgisen/feedcaster/internal/feed"
	"github.com/bilgisen/feedcaster/internal/models"
	"github.com/bilgisen/feedcaster/internal/scheduler"
	"github.com/bilgisen/feedcaster/internal/service"
	"github.com/bilgisen/feedcaster/internal/storage"
)

const testKey = "secret-key"

type stubReader struct{}

func (stubReader) Fetch(context.Context, string, string) feed.FetchResult {
	return feed.FetchResult{}
}

func (stubReader) Discover(context.Context, string) ([]feed.DiscoveredFeed, error) {
	return []feed.DiscoveredFeed{{URL: "https://example.com/feed", Title: "Example", Entries: 3}}, nil
}

type stubTransformer struct{}

func (stubTransformer) Transform(_ context.Context, e models.FeedEntry, _ models.ChannelSettings) string {
	return e.Title
}

type stubSink struct{}

func (stubSink) Publish(context.Context, string, string, []string) (int64, error) { return 1, nil }
func (stubSink) Edit(context.Context, string, int64, string) bool { return true }
func (stubSink) Delete(context.Context, string, int64) bool { return true }

type stubCycles struct {
	ingestErr error
}

func (s *stubCycles) RunIngest(context.Context) (scheduler.IngestStats, error) {
	return scheduler.IngestStats{RunID: "run-1", Created: 2}, s.ingestErr
}

func (s *stubCycles) RunPublish(context.Context) (scheduler.PublishStats, error) {
	return scheduler.PublishStats{RunID: "run-2", Published: 1}, nil
}

func (s *stubCycles) Stats() (scheduler.IngestStats, scheduler.PublishStats) {
	return scheduler.IngestStats{RunID: "last"}, scheduler.PublishStats{}
}

func newTestApp(t *testing.T, cycles *stubCycles) (*fiber.App, *storage.Store) {
	t.Helper()
	ctx := context.Background()
	store, err := storage.Open(ctx, storage.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if _, err := store.Migrate(); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	svc := service.New(store, stubReader{}, stubTransformer{}, stubSink{})
	app := NewApp(fiber.Config{})
	SetupRoutes(app, NewHandlers(svc, cycles, store), testKey)
	return app, store
}

func do(t *testing.T, app *fiber.App, method, path, body string, authed bool) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("X-API-Key", testKey)
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	out := map[string]any{}
	data, _ := io.ReadAll(resp.Body)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("Invalid JSON from %s %s: %s", method, path, data)
		}
	}
	return resp.StatusCode, out
}

func TestHealthCheck(t *testing.T) {
	app, _ := newTestApp(t, &stubCycles{})

	code, body := do(t, app, http.MethodGet, "/health", "", false)
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if body["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", body["status"])
	}
	ingest, ok := body["ingest"].(map[string]any)
	if !ok || ingest["run_id"] != "last" {
		t.Errorf("Expected ingest stats, got %v", body["ingest"])
	}
}

func TestAdminRequiresKey(t *testing.T) {
	app, _ := newTestApp(t, &stubCycles{})

	code, _ := do(t, app, http.MethodGet, "/api/v1/admin/channels", "", false)
	if code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without key, got %d", code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/channels", nil)
	req.Header.Set("Authorization", "Bearer "+testKey)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected bearer token to be accepted, got %d", resp.StatusCode)
	}
}

func TestAdminDisabledWithoutConfiguredKey(t *testing.T) {
	ctx := context.Background()
	store, err := storage.Open(ctx, storage.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if _, err := store.Migrate(); err != nil {
		t.Fatal(err)
	}

	app := NewApp(fiber.Config{})
	svc := service.New(store, stubReader{}, stubTransformer{}, stubSink{})
	SetupRoutes(app, NewHandlers(svc, &stubCycles{}, store), "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/channels", nil)
	req.Header.Set("X-API-Key", "anything")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", resp.StatusCode)
	}
}

func TestChannelEndpoints(t *testing.T) {
	app, _ := newTestApp(t, &stubCycles{})

	code, body := do(t, app, http.MethodPost, "/api/v1/admin/channels",
		`{"external_id":"@tech","name":"Tech","topic":"IT","post_interval":600}`, true)
	if code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %v", code, body)
	}
	if body["active"] != true || body["post_interval"] != float64(600) {
		t.Errorf("Unexpected channel: %v", body)
	}
	id := int(body["id"].(float64))
	path := "/api/v1/admin/channels/" + itoa(id)

	code, _ = do(t, app, http.MethodPost, "/api/v1/admin/channels", `{"external_id":"@tech","name":"Again"}`, true)
	if code != http.StatusConflict {
		t.Errorf("Expected 409 for a duplicate, got %d", code)
	}

	code, body = do(t, app, http.MethodPost, "/api/v1/admin/channels", `{"name":"No id"}`, true)
	if code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422, got %d", code)
	}
	if fields, _ := body["fields"].(map[string]any); fields["ExternalID"] != "required" {
		t.Errorf("Expected field errors, got %v", body)
	}

	code, body = do(t, app, http.MethodPatch, path, `{"moderation":true}`, true)
	if code != http.StatusOK || body["moderation"] != true || body["topic"] != "IT" {
		t.Errorf("Unexpected update result %d: %v", code, body)
	}

	code, body = do(t, app, http.MethodPost, path+"/toggle", "", true)
	if code != http.StatusOK || body["active"] != false {
		t.Errorf("Unexpected toggle result %d: %v", code, body)
	}

	code, body = do(t, app, http.MethodPost, path+"/sources", `{"url":"https://feeds.example.com/a"}`, true)
	if code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %v", code, body)
	}
	code, _ = do(t, app, http.MethodPost, path+"/sources", `{"url":"nope"}`, true)
	if code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for a bad url, got %d", code)
	}

	code, body = do(t, app, http.MethodGet, path+"/sources", "", true)
	if code != http.StatusOK || body["total"] != float64(1) {
		t.Errorf("Unexpected sources %d: %v", code, body)
	}

	code, body = do(t, app, http.MethodGet, path+"/queue", "", true)
	if code != http.StatusOK || body["total"] != float64(0) {
		t.Errorf("Unexpected queue %d: %v", code, body)
	}

	code, _ = do(t, app, http.MethodPost, path+"/manual-post", "", true)
	if code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 without entries, got %d", code)
	}

	code, _ = do(t, app, http.MethodDelete, path, "", true)
	if code != http.StatusOK {
		t.Errorf("Expected 200 on delete, got %d", code)
	}
	code, _ = do(t, app, http.MethodGet, path, "", true)
	if code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", code)
	}
	code, _ = do(t, app, http.MethodGet, "/api/v1/admin/channels/abc", "", true)
	if code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a bad id, got %d", code)
	}
}

func TestModerationEndpoints(t *testing.T) {
	app, store := newTestApp(t, &stubCycles{})
	ctx := context.Background()

	ch := &models.Channel{ExternalID: "@tech", Name: "Tech", Active: true, Moderation: true}
	if err := store.CreateChannel(ctx, ch); err != nil {
		t.Fatal(err)
	}
	post := &models.Post{ChannelID: ch.ID, Title: "T", Processed: "T", Fingerprint: "fp", Status: models.StatusModeration}
	if err := store.CreatePost(ctx, post); err != nil {
		t.Fatal(err)
	}

	code, body := do(t, app, http.MethodGet, "/api/v1/admin/moderation", "", true)
	if code != http.StatusOK || body["total"] != float64(1) {
		t.Fatalf("Unexpected moderation list %d: %v", code, body)
	}

	postPath := "/api/v1/admin/posts/" + itoa(int(post.ID))
	code, body = do(t, app, http.MethodPost, postPath+"/approve", "", true)
	if code != http.StatusOK || body["status"] != "published" {
		t.Errorf("Unexpected approve result %d: %v", code, body)
	}
	code, _ = do(t, app, http.MethodPost, postPath+"/reject", "", true)
	if code != http.StatusConflict {
		t.Errorf("Expected 409 rejecting a published post, got %d", code)
	}

	code, body = do(t, app, http.MethodPatch, postPath, `{"content":"<b>new</b>"}`, true)
	if code != http.StatusOK || body["edited"] != true {
		t.Errorf("Unexpected edit result %d: %v", code, body)
	}
	code, body = do(t, app, http.MethodDelete, postPath, "", true)
	if code != http.StatusOK || body["deleted"] != true {
		t.Errorf("Unexpected delete result %d: %v", code, body)
	}
}

func TestCycleAndDiscoverEndpoints(t *testing.T) {
	cycles := &stubCycles{}
	app, _ := newTestApp(t, cycles)

	code, body := do(t, app, http.MethodPost, "/api/v1/admin/cycles/ingest", "", true)
	if code != http.StatusOK || body["created"] != float64(2) {
		t.Errorf("Unexpected ingest result %d: %v", code, body)
	}
	code, _ = do(t, app, http.MethodPost, "/api/v1/admin/cycles/nope", "", true)
	if code != http.StatusNotFound {
		t.Errorf("Expected 404 for an unknown cycle, got %d", code)
	}

	cycles.ingestErr = scheduler.ErrCycleRunning
	code, _ = do(t, app, http.MethodPost, "/api/v1/admin/cycles/ingest", "", true)
	if code != http.StatusConflict {
		t.Errorf("Expected 409 while running, got %d", code)
	}

	code, body = do(t, app, http.MethodPost, "/api/v1/admin/discover", `{"url":"https://example.com"}`, true)
	if code != http.StatusOK || body["total"] != float64(1) {
		t.Errorf("Unexpected discover result %d: %v", code, body)
	}
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
