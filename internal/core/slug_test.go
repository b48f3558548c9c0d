package core

import (
	"strings"
	"testing"
)

func TestSlugify_Basic(t *testing.T) {
	got := Slugify("My Cool App")
	if got != "my-cool-app" {
		t.Errorf("expected my-cool-app, got %s", got)
	}
}

func TestSlugify_CollapsesSeparators(t *testing.T) {
	got := Slugify("  hello -- world!! ")
	if got != "hello-world" {
		t.Errorf("expected hello-world, got %s", got)
	}
}

func TestSlugify_EmptyFallsBack(t *testing.T) {
	if got := Slugify("!!!"); got != "lab" {
		t.Errorf("expected fallback slug, got %s", got)
	}
	if got := Slugify(""); got != "lab" {
		t.Errorf("expected fallback slug, got %s", got)
	}
}

func TestForkSlug_DerivedAndUnique(t *testing.T) {
	s1 := ForkSlug("my-app")
	s2 := ForkSlug("my-app")
	if !strings.HasPrefix(s1, "my-app-fork-") {
		t.Errorf("fork slug not derived from source: %s", s1)
	}
	if s1 == s2 {
		t.Errorf("two fork slugs collided: %s", s1)
	}
}
