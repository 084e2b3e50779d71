package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func setTestHomeDir(t *testing.T, tempDir string) func() {
	t.Helper()
	if runtime.GOOS == "windows" {
		orig := os.Getenv("USERPROFILE")
		os.Setenv("USERPROFILE", tempDir)
		return func() { os.Setenv("USERPROFILE", orig) }
	}
	orig := os.Getenv("HOME")
	os.Setenv("HOME", tempDir)
	return func() { os.Setenv("HOME", orig) }
}

func TestIsValidFormat(t *testing.T) {
	if !isValidFormat("yaml") {
		t.Error("expected yaml to be a valid format")
	}
	if isValidFormat("toml") {
		t.Error("expected toml to be rejected, only yaml is supported")
	}
}

func TestGenerateConfigWritesDefaultsForShoveld(t *testing.T) {
	tempDir := t.TempDir()
	cleanup := setTestHomeDir(t, tempDir)
	defer cleanup()

	path, err := GenerateConfig(AppShoveld, "yaml")
	if err != nil {
		t.Fatalf("GenerateConfig failed: %v", err)
	}
	want := filepath.Join(tempDir, ".config", AppShoveld, "config.yaml")
	if path != want {
		t.Errorf("expected config path %q, got %q", want, path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected config file to exist at %s: %v", path, err)
	}
}

func TestGenerateConfigRejectsUnsupportedFormat(t *testing.T) {
	tempDir := t.TempDir()
	cleanup := setTestHomeDir(t, tempDir)
	defer cleanup()

	if _, err := GenerateConfig(AppShoveld, "toml"); err == nil {
		t.Error("expected an error for an unsupported format")
	}
}

func TestGenerateConfigRefusesToOverwriteExisting(t *testing.T) {
	tempDir := t.TempDir()
	cleanup := setTestHomeDir(t, tempDir)
	defer cleanup()

	if _, err := GenerateConfig(AppShovelctl, "yaml"); err != nil {
		t.Fatalf("first GenerateConfig failed: %v", err)
	}
	if _, err := GenerateConfig(AppShovelctl, "yaml"); err == nil {
		t.Error("expected second GenerateConfig to fail because the file already exists")
	}
}

func TestGenerateConfigIfNotExistsGeneratesOnce(t *testing.T) {
	tempDir := t.TempDir()
	cleanup := setTestHomeDir(t, tempDir)
	defer cleanup()

	path1, created1, err := GenerateConfigIfNotExists(AppShoveld, "yaml")
	if err != nil {
		t.Fatalf("GenerateConfigIfNotExists failed: %v", err)
	}
	if !created1 {
		t.Error("expected the first call to report created = true")
	}

	path2, created2, err := GenerateConfigIfNotExists(AppShoveld, "yaml")
	if err != nil {
		t.Fatalf("GenerateConfigIfNotExists failed: %v", err)
	}
	if created2 {
		t.Error("expected the second call to report created = false")
	}
	if path1 != path2 {
		t.Errorf("expected both calls to return the same path, got %q and %q", path1, path2)
	}
}

func TestGenerateConfigRejectsUnknownApp(t *testing.T) {
	tempDir := t.TempDir()
	cleanup := setTestHomeDir(t, tempDir)
	defer cleanup()

	if _, err := GenerateConfig("not-an-app", "yaml"); err == nil {
		t.Error("expected an error for an unrecognized app name")
	}
}
