package version

import "testing"

func TestInfo(t *testing.T) {
	orig := Version
	Version = "1.2.3"
	defer func() { Version = orig }()

	info := Get()
	if info.Version != "1.2.3" {
		t.Errorf("Version = %q, want 1.2.3", info.Version)
	}
	if got, want := info.String(), "1.2.3 (unknown) built unknown"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
