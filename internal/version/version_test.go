package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	oldVersion, oldSHA := Version, GitSHA
	defer func() { Version, GitSHA = oldVersion, oldSHA }()

	Version, GitSHA = "0.3.1", "abc1234"
	got := String()
	if !strings.HasPrefix(got, "0.3.1 (git abc1234") {
		t.Errorf("String() = %q", got)
	}
}
