// Package logging provides structured logging for horizon runs.
//
// It wraps Go's log/slog with a JSON handler and persistent context
// attributes, so a single log file can hold several concurrent runs and still
// be filtered per run, packet, or phase after the fact.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/log/horizon", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	runLog := logger.WithRun("3f2a9c1d").WithPacket("add-auth")
//	runLog.WithPhase("scaffold").Info("phase started", "max_retries", 5)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"phase started","run_id":"3f2a9c1d","packet":"add-auth","phase":"scaffold","max_retries":5}
//
// # Rotation
//
// [NewLoggerWithRotation] writes through a size-based rotating file. When the
// file would grow past MaxSizeMB it is renamed to horizon.log.1, older
// backups shift up, and anything beyond MaxBackups is removed.
//
// # Testing
//
// Every constructor in the module that accepts a logger falls back to
// [NopLogger] when given nil.
package logging
