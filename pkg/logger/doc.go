// Package logger provides the structured logging interface used across igengage.
//
// It wraps zerolog behind a small Logger interface so packages can take a
// logger as a dependency and tests can swap in TestLogger or NewNopLogger.
//
// Basic usage:
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	log := logger.GetLogger().WithField("shortcode", sc)
//	log.Info("Fetching post")
//
// Every retrieval run gets a run id which travels on the context:
//
//	ctx = logger.ContextWithRunID(ctx, logger.NewRunID())
//	log = log.WithContext(ctx)
package logger
