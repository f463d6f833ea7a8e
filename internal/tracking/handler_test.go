package tracking

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"github.com/medmentor/backend/internal/auth"
	"github.com/medmentor/backend/internal/models"
)

func newTestRouter(f *fixture, userID string) http.Handler {
	r := mux.NewRouter()
	NewHandler(f.svc).Register(r)
	if userID == "" {
		return r
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx := auth.WithPrincipal(req.Context(), models.Principal{UserID: userID})
		r.ServeHTTP(w, req.WithContext(ctx))
	})
}

func TestHandlerStatusCodes(t *testing.T) {
	f := newFixture(t, true)
	h := newTestRouter(f, "u1")

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{"PUT", "/progress/c1", `{"lesson_id":"l1","minutes_watched":5}`, http.StatusOK},
		{"PUT", "/progress/c1", `{"minutes_watched":5}`, http.StatusBadRequest},
		{"PUT", "/progress/c1", `not json`, http.StatusBadRequest},
		{"GET", "/progress/c1", "", http.StatusOK},
		{"GET", "/progress", "", http.StatusOK},
		{"POST", "/progress/c1/lessons/l2/complete", "", http.StatusOK},
		{"PUT", "/progress/c1/daily", `{"minutes_watched":20,"lessons_completed":1}`, http.StatusOK},
		{"PUT", "/progress/c1/daily-goal", `{"target":1}`, http.StatusBadRequest},
		{"PUT", "/progress/c1/daily-goal", `{"target":60}`, http.StatusOK},
		{"GET", "/progress/c1/estimate", "", http.StatusOK},
		{"GET", "/progress/nope/estimate", "", http.StatusNotFound},
		{"GET", "/progress/c1/achievements", "", http.StatusOK},
		{"POST", "/progress/c1/achievements/check", "", http.StatusOK},
		{"POST", "/progress/c1/triggers/speed", `{"speed":2}`, http.StatusOK},
		{"POST", "/progress/c1/triggers/speed", `{"speed":0}`, http.StatusBadRequest},
		{"POST", "/progress/c1/triggers/late", "", http.StatusOK},
		{"POST", "/progress/c1/triggers/bogus", "", http.StatusNotFound},
		{"GET", "/achievements", "", http.StatusOK},
		{"GET", "/achievements/catalog", "", http.StatusOK},
		{"GET", "/sync/status", "", http.StatusOK},
		{"GET", "/sync/queue", "", http.StatusOK},
		{"POST", "/sync/drain", "", http.StatusOK},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body)))
		if rec.Code != tt.want {
			t.Errorf("%s %s = %d, want %d (%s)", tt.method, tt.path, rec.Code, tt.want, rec.Body.String())
		}
	}
}

func TestHandlerRequiresUser(t *testing.T) {
	f := newFixture(t, true)
	h := newTestRouter(f, "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/progress/c1", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("GET /progress/c1 without user = %d, want 401", rec.Code)
	}
}

func TestHandlerSaveUsesAuthenticatedUser(t *testing.T) {
	f := newFixture(t, false)
	h := newTestRouter(f, "u9")

	body := `{"user_id":"someone-else","lesson_id":"l1","minutes_watched":8}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("PUT", "/progress/c1", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT = %d: %s", rec.Code, rec.Body.String())
	}

	var resp models.SaveProgressResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Record.UserID != "u9" || !resp.Queued {
		t.Errorf("record user = %s queued = %v, want u9 true", resp.Record.UserID, resp.Queued)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/sync/queue", nil))
	var ops []models.OfflineOperation
	json.NewDecoder(rec.Body).Decode(&ops)
	if len(ops) != 1 {
		t.Errorf("queue for u9 = %d ops, want 1", len(ops))
	}
}

func TestHandlerSyncViewsAreScopedToUser(t *testing.T) {
	f := newFixture(t, false)
	alice, bob := newTestRouter(f, "alice"), newTestRouter(f, "bob")

	rec := httptest.NewRecorder()
	alice.ServeHTTP(rec, httptest.NewRequest("PUT", "/progress/c1", strings.NewReader(`{"lesson_id":"l1","minutes_watched":4}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT = %d: %s", rec.Code, rec.Body.String())
	}

	var st models.SyncStatus
	rec = httptest.NewRecorder()
	bob.ServeHTTP(rec, httptest.NewRequest("GET", "/sync/status", nil))
	json.NewDecoder(rec.Body).Decode(&st)
	if st.PendingOperationCount != 0 {
		t.Errorf("bob sees %d pending, want 0", st.PendingOperationCount)
	}

	rec = httptest.NewRecorder()
	alice.ServeHTTP(rec, httptest.NewRequest("GET", "/sync/status", nil))
	json.NewDecoder(rec.Body).Decode(&st)
	if st.PendingOperationCount != 1 {
		t.Errorf("alice sees %d pending, want 1", st.PendingOperationCount)
	}

	f.conn.Set(true)
	var res models.DrainResponse
	rec = httptest.NewRecorder()
	bob.ServeHTTP(rec, httptest.NewRequest("POST", "/sync/drain", nil))
	json.NewDecoder(rec.Body).Decode(&res)
	if res.Attempted != 0 || len(f.svc.Pending()) != 1 {
		t.Errorf("bob's drain = %+v with %d left, want alice's op untouched", res, len(f.svc.Pending()))
	}
}
