/*
Package log provides structured logging for warp using zerolog.

It wraps zerolog behind the small surface the warp subsystems share:
one process-wide root logger configured by Init, and scoped child
loggers obtained through WithComponent or ForGraph. The subsystems
that log (materialization and patch commits, the checkpoint sweeper,
fork) do so through a child logger, so every line carries a
"component" field (plus "graph" and "writer" fields where a graph is
in play) that a log aggregator can filter on.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	logger := log.ForGraph("engine", graphName, writerID)
	logger.Info().Uint64("lamport", p.Lamport).Msg("patch committed")

The global Logger is safe for concurrent use once Init has run; Init
itself is expected to run once at process startup, matching the rest
of the ambient stack (pkg/config, pkg/metrics).
*/
package log
