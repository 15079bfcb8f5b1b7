package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %s, want 8080", cfg.Port)
	}
	if cfg.DBPath != "./data/campaigns.db" {
		t.Errorf("DBPath = %s", cfg.DBPath)
	}
	if cfg.JobPollInterval != 5*time.Second {
		t.Errorf("JobPollInterval = %s", cfg.JobPollInterval)
	}
	if cfg.StageTimeout != 2*time.Minute {
		t.Errorf("StageTimeout = %s", cfg.StageTimeout)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STAGE_TIMEOUT", "90s")
	t.Setenv("JOB_MAX_WAIT", "600")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %s, want 9090", cfg.Port)
	}
	if cfg.StageTimeout != 90*time.Second {
		t.Errorf("StageTimeout = %s, want 90s", cfg.StageTimeout)
	}
	// Bare integers are seconds.
	if cfg.JobMaxWait != 600*time.Second {
		t.Errorf("JobMaxWait = %s, want 10m", cfg.JobMaxWait)
	}
}

func TestDurationFallbackOnGarbage(t *testing.T) {
	t.Setenv("MONITOR_WINDOW", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MonitorWindow != 2*time.Second {
		t.Errorf("MonitorWindow = %s, want default", cfg.MonitorWindow)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Port:            "8080",
		DBPath:          "./data/campaigns.db",
		JobPollInterval: 5 * time.Second,
		JobMaxWait:      time.Minute,
		StageTimeout:    time.Minute,
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Valid config rejected: %v", err)
	}

	bad := *cfg
	bad.JobMaxWait = time.Second
	if err := bad.Validate(); err == nil {
		t.Error("JobMaxWait below poll interval should be rejected")
	}

	bad = *cfg
	bad.DBPath = ""
	if err := bad.Validate(); err == nil {
		t.Error("Empty DBPath should be rejected")
	}
}

func TestIsDevelopment(t *testing.T) {
	cases := []struct {
		frontendURL string
		want        bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://127.0.0.1:3000", true},
		{"https://dashboard.example.com", false},
	}
	for _, tc := range cases {
		cfg := &Config{FrontendURL: tc.frontendURL}
		if got := cfg.IsDevelopment(); got != tc.want {
			t.Errorf("IsDevelopment(%q) = %v, want %v", tc.frontendURL, got, tc.want)
		}
	}
}
