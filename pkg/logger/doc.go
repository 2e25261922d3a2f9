// Package logger builds the service's *slog.Logger.
//
// Records are JSON by default and text in development. Request-scoped
// values such as the request id are added by ContextExtractor functions:
//
//	log := logger.New(
//		logger.WithEnvironment(environment.Production, "launchpad"),
//		logger.WithConfig(cfg),
//		logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)
package logger
