package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "draw.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(Default(), *cfg); diff != "" {
		t.Errorf("config (-want +got):\n%s", diff)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
schedule:
  weekdays: [tuesday, friday]
  time: "18:30"
  grace: 5m
draw:
  amount: 50
viewer:
  animation: 8s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if diff := cmp.Diff([]string{"tuesday", "friday"}, cfg.Schedule.Weekdays); diff != "" {
		t.Errorf("weekdays (-want +got):\n%s", diff)
	}
	if cfg.Schedule.Time != "18:30" || cfg.Schedule.Grace != 5*time.Minute {
		t.Errorf("schedule = %+v", cfg.Schedule)
	}
	if cfg.Schedule.Timezone != "Europe/Zurich" {
		t.Errorf("unset keys should keep defaults, timezone = %q", cfg.Schedule.Timezone)
	}
	if cfg.Draw.Amount != 50 || cfg.Draw.RecentGuard != 30*time.Minute {
		t.Errorf("draw = %+v", cfg.Draw)
	}
	if cfg.Viewer.Animation != 8*time.Second || cfg.Viewer.DisplayWindow != 5*time.Minute {
		t.Errorf("viewer = %+v", cfg.Viewer)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DRAW_BYPASS_WINDOW", "true")
	t.Setenv("DRAW_AMOUNT", "25")

	cfg, err := Load(writeFile(t, "draw:\n  amount: 50\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Draw.BypassWindow || cfg.Draw.Amount != 25 {
		t.Errorf("draw = %+v", cfg.Draw)
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	if _, err := Load(writeFile(t, "schedule: [")); err == nil {
		t.Error("expected parse error")
	}

	t.Setenv("DRAW_AMOUNT", "twenty")
	if _, err := Load(writeFile(t, "")); err == nil {
		t.Error("expected error for non-numeric DRAW_AMOUNT")
	}
}

func TestRequireEnv(t *testing.T) {
	t.Setenv("ADMIN_TOKEN", "secret")
	t.Setenv("CRON_SECRET", "")

	err := RequireEnv("ADMIN_TOKEN", "CRON_SECRET", "GIVEAWAY_UNSET_FOR_TEST")
	if err == nil {
		t.Fatal("expected error")
	}
	want := "missing required environment variables: CRON_SECRET, GIVEAWAY_UNSET_FOR_TEST"
	if err.Error() != want {
		t.Errorf("err = %q, want %q", err, want)
	}
	if err := RequireEnv("ADMIN_TOKEN"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
