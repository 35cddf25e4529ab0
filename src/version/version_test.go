package version

import (
	"strings"
	"testing"
)

func TestVersionCarriesFlag(t *testing.T) {
	if Flag == "" {
		t.Skip("release build")
	}
	if !strings.HasSuffix(Version, "-"+Flag) {
		t.Fatalf("Version should end with -%s, not %s", Flag, Version)
	}
}
