package runner

import (
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestStageSurfacesPanics(t *testing.T) {
	var finished bool
	var g errgroup.Group
	g.Go(stage("quality", func() { panic("scorer blew up") }))
	g.Go(stage("scenarios", func() { finished = true }))

	err := g.Wait()
	if err == nil {
		t.Fatal("expected error from panicking stage")
	}
	if got := err.Error(); got != "quality stage: panic: scorer blew up" {
		t.Errorf("error: got %q", got)
	}
	if !finished {
		t.Error("sibling stage should still run to completion")
	}
}

func TestStageWithoutPanic(t *testing.T) {
	ran := false
	if err := stage("analyzers", func() { ran = true })(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Error("stage did not run its function")
	}
}
