// Package adapters groups the ready-made analytics backends.
//
// Each subpackage implements analytics.EventLogger, analytics.UserDataDirector
// or both:
//
//   - logsink: structured log lines through logrus
//   - promsink: Prometheus counters per event and property operation
//   - otelsink: OpenTelemetry span events and metric counters
//   - redisprofile: user profiles kept in a Redis hash
//   - sqlsink: events and profiles in PostgreSQL or SQLite
//   - memsink: in-process recorder and LRU-bounded profile store
//   - filesink: rotating newline-delimited JSON event files
//   - asyncsink: worker pool wrapper that takes a slow logger off the caller's goroutine
package adapters
