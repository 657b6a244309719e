package history

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/peerlearn/collab/internal/middleware"
	"github.com/peerlearn/collab/internal/models"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newRouter(agg *Aggregator, user uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(agg, nil)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if user != uuid.Nil {
			c.Set(middleware.ContextUserID, user)
		}
		c.Next()
	})
	r.GET("/me/history", h.List)
	r.GET("/me/stats", h.Stats)
	return r
}

func get(t *testing.T, r http.Handler, path string) (int, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("GET %s: decode %q: %v", path, rec.Body.String(), err)
	}
	return rec.Code, env
}

func TestHandler_History(t *testing.T) {
	f := newFixture()
	user := uuid.New()
	for i := 1; i <= 3; i++ {
		f.ended(t, user, time.Duration(i)*time.Hour, 60)
	}
	r := newRouter(f.agg, user)

	code, env := get(t, r, "/me/history?limit=2&offset=1")
	if code != http.StatusOK {
		t.Fatalf("status = %d (%s)", code, env.Error)
	}
	var page struct {
		Entries []models.HistoryEntry `json:"entries"`
		Limit   int                   `json:"limit"`
		Offset  int                   `json:"offset"`
	}
	if err := json.Unmarshal(env.Data, &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page.Entries) != 2 || page.Limit != 2 || page.Offset != 1 {
		t.Errorf("page = %+v", page)
	}
	if !page.Entries[0].EndedAt.After(page.Entries[1].EndedAt) {
		t.Error("entries not newest first")
	}

	code, env = get(t, r, "/me/history?limit=500")
	if err := json.Unmarshal(env.Data, &page); err != nil || code != http.StatusOK {
		t.Fatalf("status %d, decode: %v", code, err)
	}
	if page.Limit != MaxLimit || len(page.Entries) != 3 {
		t.Errorf("clamped page = limit %d, %d entries", page.Limit, len(page.Entries))
	}

	code, env = get(t, r, "/me/stats")
	if code != http.StatusOK {
		t.Fatalf("stats status = %d", code)
	}
	var stats models.UsageStats
	if err := json.Unmarshal(env.Data, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalSessions != 3 || stats.TotalDurationSeconds != 180 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestHandler_EmptyHistoryIsArray(t *testing.T) {
	r := newRouter(newFixture().agg, uuid.New())
	_, env := get(t, r, "/me/history")
	var page map[string]json.RawMessage
	if err := json.Unmarshal(env.Data, &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(page["entries"]) != "[]" {
		t.Errorf("entries = %s, want []", page["entries"])
	}
}

func TestHandler_Errors(t *testing.T) {
	tests := []struct {
		name string
		agg  *Aggregator
		user uuid.UUID
		path string
		want int
	}{
		{name: "bad limit", agg: newFixture().agg, user: uuid.New(), path: "/me/history?limit=abc", want: http.StatusBadRequest},
		{name: "negative offset", agg: newFixture().agg, user: uuid.New(), path: "/me/history?offset=-1", want: http.StatusBadRequest},
		{name: "no user", agg: newFixture().agg, path: "/me/stats", want: http.StatusUnauthorized},
		{name: "source failure", agg: NewAggregator(failingSource{}, nil), user: uuid.New(), path: "/me/history", want: http.StatusInternalServerError},
		{name: "stats failure", agg: NewAggregator(failingSource{}, nil), user: uuid.New(), path: "/me/stats", want: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, env := get(t, newRouter(tc.agg, tc.user), tc.path)
			if code != tc.want || env.Success {
				t.Errorf("status = %d success=%v, want %d", code, env.Success, tc.want)
			}
		})
	}
}
