package config

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SESSION_STORE_BACKEND", "")
	t.Setenv("WHITEBOARD_STORE_BACKEND", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Session.Backend != BackendPostgres {
		t.Errorf("session backend = %q, want %q", cfg.Session.Backend, BackendPostgres)
	}
	if cfg.Session.ProvisionTimeout != 5*time.Second {
		t.Errorf("provision timeout = %v, want 5s", cfg.Session.ProvisionTimeout)
	}
	if !cfg.Whiteboard.AllowUnversionedSave {
		t.Error("unversioned saves should be allowed by default")
	}
	if cfg.Whiteboard.ClearCreates {
		t.Error("clear must not create whiteboards by default")
	}
	if !cfg.NeedsPostgres() {
		t.Error("default config should need postgres")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SESSION_STORE_BACKEND", "memory")
	t.Setenv("WHITEBOARD_STORE_BACKEND", "redis")
	t.Setenv("SESSION_PROVISION_TIMEOUT_MS", "250")
	t.Setenv("WHITEBOARD_ALLOW_UNVERSIONED_SAVE", "false")
	t.Setenv("WHITEBOARD_CLEAR_CREATES", "true")
	t.Setenv("ZEGO_JOIN_BASE_URL", "https://media.example.com/rooms/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Session.ProvisionTimeout != 250*time.Millisecond {
		t.Errorf("provision timeout = %v, want 250ms", cfg.Session.ProvisionTimeout)
	}
	if cfg.Whiteboard.AllowUnversionedSave {
		t.Error("unversioned saves should be disabled")
	}
	if !cfg.Whiteboard.ClearCreates {
		t.Error("clear-creates should be enabled")
	}
	if cfg.Zego.JoinBaseURL != "https://media.example.com/rooms" {
		t.Errorf("join base url = %q", cfg.Zego.JoinBaseURL)
	}
	if cfg.NeedsPostgres() {
		t.Error("memory/redis config should not need postgres")
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "session", key: "SESSION_STORE_BACKEND", val: "redis"},
		{name: "whiteboard", key: "WHITEBOARD_STORE_BACKEND", val: "mongo"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil {
				t.Fatalf("Load with %s=%s: expected error", tc.key, tc.val)
			}
		})
	}
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "collab", SSLMode: "disable"}
	if got, want := c.DSN(), "postgres://u:p@db:5432/collab?sslmode=disable"; got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
	c.URL = "postgres://override"
	if got := c.DSN(); got != "postgres://override" {
		t.Errorf("DSN with URL = %q", got)
	}
}

func TestParseRoster(t *testing.T) {
	s, u1, u2 := uuid.New(), uuid.New(), uuid.New()

	entries, err := ParseRoster(" " + s.String() + ":" + u1.String() + ":tutor, " + s.String() + ":" + u2.String() + ",")
	if err != nil {
		t.Fatalf("ParseRoster: %v", err)
	}
	want := []RosterEntry{{s, u1, RoleTutor}, {s, u2, RoleLearner}}
	if len(entries) != len(want) {
		t.Fatalf("entries = %+v", entries)
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, entries[i], want[i])
		}
	}

	if entries, err := ParseRoster(""); err != nil || len(entries) != 0 {
		t.Errorf("empty = %v, %v", entries, err)
	}

	bad := []string{
		"not-a-uuid:" + u1.String(),
		s.String(),
		s.String() + ":" + u1.String() + ":admin",
		s.String() + ":" + u1.String() + ":tutor:x",
	}
	for _, in := range bad {
		if _, err := ParseRoster(in); err == nil {
			t.Errorf("ParseRoster(%q): expected error", in)
		}
	}
}

func TestLoadRosterSeed(t *testing.T) {
	s, u := uuid.New(), uuid.New()
	t.Setenv("SESSION_ROSTER_SEED", s.String()+":"+u.String()+":tutor")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Session.RosterSeed) != 1 || cfg.Session.RosterSeed[0].UserID != u {
		t.Errorf("roster = %+v", cfg.Session.RosterSeed)
	}

	t.Setenv("SESSION_ROSTER_SEED", "garbage")
	if _, err := Load(); err == nil {
		t.Error("Load with bad roster: expected error")
	}
}
