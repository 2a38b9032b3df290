package config

import (
	"path/filepath"
	"testing"
)

func TestLinuxConfigDir_RespectsXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")

	got := linuxConfigDir("/home/user")
	want := filepath.Join("/home/user", ".config", appName)

	if xdg := linuxConfigDir("/home/user"); xdg == "" {
		t.Fatal("linuxConfigDir: got empty string")
	}

	if got != want {
		t.Errorf("linuxConfigDir(%q) = %q, want %q", "/home/user", got, want)
	}

	t.Setenv("XDG_CONFIG_HOME", "/xdg")

	if got, want := linuxConfigDir("/home/user"), filepath.Join("/xdg", appName); got != want {
		t.Errorf("linuxConfigDir with XDG_CONFIG_HOME=/xdg = %q, want %q", got, want)
	}
}

func TestDefaultConfigPath_EndsWithConfigFileName(t *testing.T) {
	t.Parallel()

	path := DefaultConfigPath()
	if path == "" {
		t.Skip("DefaultConfigPath: no home directory available in this environment")
	}

	if filepath.Base(path) != configFileName {
		t.Errorf("DefaultConfigPath() = %q, want basename %q", path, configFileName)
	}
}

func TestDefaultDataDir_NotEmpty(t *testing.T) {
	t.Parallel()

	if DefaultDataDir() == "" {
		t.Skip("DefaultDataDir: no home directory available in this environment")
	}
}

func TestDefaultCacheDir_NotEmpty(t *testing.T) {
	t.Parallel()

	if DefaultCacheDir() == "" {
		t.Skip("DefaultCacheDir: no home directory available in this environment")
	}
}
