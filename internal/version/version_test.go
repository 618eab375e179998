package version

import (
	"strings"
	"testing"
)

func TestUserAgent(t *testing.T) {
	origVersion, origSHA := Version, GitSHA
	defer func() { Version, GitSHA = origVersion, origSHA }()

	Version = "1.2.3"
	GitSHA = "abc123"

	if got := UserAgent(); got != "gpsreport/1.2.3 (abc123)" {
		t.Errorf("UserAgent() = %q", got)
	}
	if got := String(); !strings.Contains(got, "1.2.3") || !strings.Contains(got, "abc123") {
		t.Errorf("String() = %q", got)
	}
}
