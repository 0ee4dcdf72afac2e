// Package devtools streams binding flush telemetry to browser tooling.
//
// A Hub is a telemetry.DebugHook sink: attach Hub.Hook to a binding and
// every flush is broadcast as JSON over a WebSocket, with the most recent
// flushes replayed to clients that connect late.
//
//	hub := devtools.NewHub(256, logger)
//	b := binding.New(rt, state, adapter, binding.WithDebug(hub.Hook(), binding.DebugAlways, 1))
//
//	srv := devtools.NewServer(devtools.ServerConfig{Address: ":7070", Hub: hub})
//	go srv.Run(ctx)
//
// Routes:
//
//	GET /events        WebSocket stream of Event
//	GET /api/events    backlog as JSON (?fallback=1 for fallbacks only)
//	GET /api/clients   connected client count
//	GET /metrics       Prometheus exposition
//	GET /healthz       liveness
package devtools
