package version

import (
	"strings"
	"testing"
)

func TestBuildInfo(t *testing.T) {
	orig := Version
	Version = "1.2.3"
	defer func() { Version = orig }()

	if got := UserAgent(); got != "lendingdash/1.2.3" {
		t.Fatalf("UserAgent 不正确: %s", got)
	}
	if !strings.HasPrefix(String(), "version: 1.2.3\n") {
		t.Fatalf("版本信息不正确: %q", String())
	}
}
