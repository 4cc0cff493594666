// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components receive a named child logger:
//
//	logger := logging.NewFromLevel(cfg.Logging.Level, cfg.Logging.Development)
//	fetchLog := logger.Component("fetch")
//	fetchLog.Warn("resource skipped", zap.String("url", u), zap.Error(err))
package logging
