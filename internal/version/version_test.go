package version

import (
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	orig := Version
	defer func() { Version = orig }()
	Version = "1.2.3"

	if Short() != "1.2.3" {
		t.Errorf("Short() = %q", Short())
	}
	if !strings.HasPrefix(Info(), "guardian 1.2.3 ") {
		t.Errorf("Info() = %q", Info())
	}
	if Map()["version"] != "1.2.3" {
		t.Errorf("Map()[version] = %q", Map()["version"])
	}
}
