package proj

import "testing"

func TestDetectEnvironment(t *testing.T) {
	cases := map[string]Environment{
		"linux":   EnvironmentServer,
		"darwin":  EnvironmentServer,
		"windows": EnvironmentServer,
		"js":      EnvironmentBrowser,
		"wasip1":  EnvironmentUnknown,
	}
	for goos, want := range cases {
		if got := detectEnvironment(goos); got != want {
			t.Fatalf("detectEnvironment(%q) = %v, want %v", goos, got, want)
		}
	}

	switch DetectEnvironment() {
	case EnvironmentServer, EnvironmentBrowser, EnvironmentUnknown:
	default:
		t.Fatal("DetectEnvironment returned an unlabeled environment")
	}
}

func TestEnvironmentString(t *testing.T) {
	if s := Environment(0).String(); s != "auto" {
		t.Fatalf("expected auto for the zero value, got %q", s)
	}
	if s := EnvironmentBrowser.String(); s != "browser" {
		t.Fatalf("expected browser, got %q", s)
	}
}
