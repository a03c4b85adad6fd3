package tui

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveHostKeyCreatesDirectory(t *testing.T) {
	want := filepath.Join(t.TempDir(), "keys", "host_key")

	got, err := resolveHostKey(want)
	if err != nil {
		t.Fatalf("resolveHostKey() failed: %v", err)
	}
	if got != want {
		t.Errorf("resolveHostKey() = %q, want %q", got, want)
	}
	info, err := os.Stat(filepath.Dir(want))
	if err != nil {
		t.Fatalf("key directory not created: %v", err)
	}
	if info.Mode().Perm() != 0o700 {
		t.Errorf("key directory mode = %v, want 0700", info.Mode().Perm())
	}
}

func TestResolveHostKeyDefaultsToHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := resolveHostKey("")
	if err != nil {
		t.Fatalf("resolveHostKey() failed: %v", err)
	}
	if want := filepath.Join(home, ".pilot", "host_key"); got != want {
		t.Errorf("resolveHostKey() = %q, want %q", got, want)
	}
}
