package pathbuilder

import (
	"strings"
	"testing"
)

func TestDefaultIsDeterministic(t *testing.T) {
	b := NewDefault("/var/cache/derivcache")
	a := b.Derive([]byte("some-fingerprint"))
	c := b.Derive([]byte("some-fingerprint"))
	if a != c {
		t.Errorf("Derive() not deterministic: %+v != %+v", a, c)
	}
}

func TestDefaultDistinctKeysDiverge(t *testing.T) {
	b := NewDefault("/var/cache/derivcache")
	a := b.Derive([]byte("one"))
	c := b.Derive([]byte("two"))
	if a.StringKey == c.StringKey {
		t.Error("distinct keys produced the same StringKey")
	}
	if a.PhysicalPath == c.PhysicalPath {
		t.Error("distinct keys produced the same PhysicalPath")
	}
}

func TestDefaultPhysicalPathUnderBaseDir(t *testing.T) {
	b := NewDefault("/var/cache/derivcache")
	e := b.Derive([]byte("x"))
	if !strings.HasPrefix(e.PhysicalPath, "/var/cache/derivcache/") {
		t.Errorf("PhysicalPath = %q, want prefix /var/cache/derivcache/", e.PhysicalPath)
	}
	if strings.Contains(e.RelativePath, "/var/cache") {
		t.Errorf("RelativePath = %q, should not contain baseDir", e.RelativePath)
	}
}
