package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestShort(t *testing.T) {
	if Short() != Version {
		t.Errorf("Short() = %q, want %q", Short(), Version)
	}
}

func TestInfo(t *testing.T) {
	info := Info()
	if !strings.HasPrefix(info, "ganauditor ") {
		t.Errorf("Info() = %q, want ganauditor prefix", info)
	}
	for _, want := range []string{Version, BuildDate, runtime.Version(), runtime.GOOS} {
		if !strings.Contains(info, want) {
			t.Errorf("Info() = %q, missing %q", info, want)
		}
	}
}

func TestInfo_TruncatesLongCommit(t *testing.T) {
	orig := Commit
	defer func() { Commit = orig }()

	Commit = "0123456789abcdef"
	if !strings.Contains(Info(), "0123456") {
		t.Errorf("Info() = %q, want truncated commit", Info())
	}
	if strings.Contains(Info(), "0123456789abcdef") {
		t.Errorf("Info() = %q, commit not truncated", Info())
	}
}
