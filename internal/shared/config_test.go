package shared

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./viewsync.db" {
			t.Errorf("expected database path ./viewsync.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 3000 {
			t.Errorf("expected server port 3000, got %d", config.Server.Port)
		}

		if config.Tracking.MaxRetries != 5 {
			t.Errorf("expected max retries 5, got %d", config.Tracking.MaxRetries)
		}

		if config.Tracking.ThrottleIntervalMS != 2000 {
			t.Errorf("expected throttle interval 2000ms, got %d", config.Tracking.ThrottleIntervalMS)
		}

		if config.Tracking.PlaybackCompletePercent != "100%" {
			t.Errorf("expected percent 100%%, got %s", config.Tracking.PlaybackCompletePercent)
		}

		if config.Service.URL != "http://127.0.0.1:3000/api_v3/" {
			t.Errorf("unexpected service url %s", config.Service.URL)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		if config.Database.Path != DefaultConfig().Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[tracking]
track_viewed = true
playback_context = "Mediaspace"
playback_complete_percent = 80
playback_complete_seconds = 10

[service]
url = "http://localhost:9090/api_v3/"
proxy_url = "http://localhost:8080/api_v3/"
ks = "djJ8MTIzfA=="
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if !config.Tracking.TrackViewed {
			t.Error("expected track_viewed to be true")
		}
		if config.Tracking.PlaybackCompletePercent != "80" {
			t.Errorf("expected numeric percent to load as \"80\", got %q", config.Tracking.PlaybackCompletePercent)
		}
		if config.Tracking.PlaybackCompleteSeconds != 10 {
			t.Errorf("expected seconds 10, got %v", config.Tracking.PlaybackCompleteSeconds)
		}
		if config.Service.ProxyURL != "http://localhost:8080/api_v3/" {
			t.Errorf("unexpected proxy url %s", config.Service.ProxyURL)
		}
		if config.Tracking.MaxRetries != 5 {
			t.Errorf("expected missing max_retries to keep default 5, got %d", config.Tracking.MaxRetries)
		}
	})

	t.Run("LoadConfig rejects invalid values", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := os.WriteFile(configPath, []byte("[tracking]\nmax_retries = -1\n"), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if _, err := LoadConfig(configPath); err == nil {
			t.Error("expected negative max_retries to be rejected")
		}
	})

	t.Run("LoadConfig missing file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}
