package main

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/vango-dev/viewstate/internal/scenario"
	"github.com/vango-dev/viewstate/pkg/binding"
	"github.com/vango-dev/viewstate/pkg/devtools"
	"github.com/vango-dev/viewstate/pkg/scheduler"
	"github.com/vango-dev/viewstate/pkg/telemetry"
)

func TestReplayLoopRunsOnLoop(t *testing.T) {
	s, err := scenario.Parse([]byte(`
name: ticker
initial: {count: 0}
steps:
  - {op: set, path: count, value: 1}
`))
	if err != nil {
		t.Fatal(err)
	}

	logger := telemetry.NewLogger(io.Discard, telemetry.LoggerOptions{})
	hub := devtools.NewHub(16, logger)
	ro := scenario.RunOptions{Logger: logger, Debug: hub.Hook()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := scheduler.NewLoop()
	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(ctx) }()

	replayDone := make(chan error, 1)
	go func() {
		replayDone <- replayLoop(ctx, loop, []*scenario.Scenario{s}, binding.StrategyPatch, time.Hour, hub, ro)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for len(hub.Recent()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("hub saw %d flushes, want 2", len(hub.Recent()))
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	if err := <-replayDone; err != nil {
		t.Errorf("replayLoop = %v, want nil", err)
	}
	if err := <-loopDone; err != context.Canceled {
		t.Errorf("loop.Run = %v, want context.Canceled", err)
	}
}
