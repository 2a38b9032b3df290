package config

import (
	"sync"
	"testing"
)

func TestHolder_ConfigAndPath(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	h := NewHolder(cfg, "/etc/cloudmirror/config.toml")

	if h.Config() != cfg {
		t.Error("Config(): did not return the constructed config")
	}

	if h.Path() != "/etc/cloudmirror/config.toml" {
		t.Errorf("Path() = %q, want %q", h.Path(), "/etc/cloudmirror/config.toml")
	}
}

func TestHolder_UpdateIsVisible(t *testing.T) {
	t.Parallel()

	h := NewHolder(DefaultConfig(), "path.toml")

	updated := DefaultConfig()
	updated.Sync.PollInterval = "5s"
	h.Update(updated)

	if h.Config().Sync.PollInterval != "5s" {
		t.Errorf("Config().Sync.PollInterval = %q, want %q", h.Config().Sync.PollInterval, "5s")
	}
}

func TestHolder_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	h := NewHolder(DefaultConfig(), "path.toml")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)

		go func() {
			defer wg.Done()
			_ = h.Config()
		}()

		go func() {
			defer wg.Done()
			h.Update(DefaultConfig())
		}()
	}

	wg.Wait()
}
