package blob

import (
	"strings"
	"testing"
)

func TestObjectKeyKeepsSanitizedExtension(t *testing.T) {
	key := ObjectKey("prj_1", "Screenshot Final.PNG")
	if !strings.HasPrefix(key, "projects/prj_1/") {
		t.Fatalf("key should live under the project prefix: %s", key)
	}
	if !strings.HasSuffix(key, ".png") {
		t.Fatalf("key should keep a lowercased extension: %s", key)
	}
}

func TestObjectKeyDropsSuspiciousExtension(t *testing.T) {
	cases := []string{
		"noextension",
		"weird.ext with space",
		"trailingdot.",
		"archive.averylongextensionname",
	}
	for _, name := range cases {
		key := ObjectKey("prj_1", name)
		if strings.Contains(strings.TrimPrefix(key, "projects/prj_1/"), "/") {
			t.Errorf("ObjectKey(%q) leaked a path separator: %s", name, key)
		}
		if strings.Contains(key, " ") {
			t.Errorf("ObjectKey(%q) kept whitespace: %s", name, key)
		}
	}
}

func TestObjectKeyUnique(t *testing.T) {
	a := ObjectKey("prj_1", "a.png")
	b := ObjectKey("prj_1", "a.png")
	if a == b {
		t.Fatal("object keys for identical uploads must not collide")
	}
}
