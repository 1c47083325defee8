package projwasm

import (
	"strings"
	"testing"
)

func TestDefaultConfigEmbedded(t *testing.T) {
	if len(DefaultConfig) == 0 {
		t.Fatal("DefaultConfig is empty")
	}
	if !strings.HasPrefix(DefaultConfig, "[general]") {
		t.Fatal("DefaultConfig does not start with the [general] section")
	}
	if !strings.Contains(DefaultConfig, "network = off") {
		t.Fatal("DefaultConfig must keep network access disabled")
	}
	t.Logf("DefaultConfig size: %d bytes", len(DefaultConfig))
}

func TestGuestPaths(t *testing.T) {
	if GuestDatabasePath != "/proj/proj.db" {
		t.Fatalf("unexpected database path %q", GuestDatabasePath)
	}
	if GuestGridDir != "/proj/grids" {
		t.Fatalf("unexpected grid dir %q", GuestGridDir)
	}
}
