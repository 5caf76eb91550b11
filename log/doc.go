// Package log provides the leveled logger used by the pdfqa pipeline.
//
// Every stage of the pipeline (loading, splitting, indexing, answering) reports
// progress through the package-level logger. The default implementation wraps
// github.com/kataras/golog and writes to stderr at info level:
//
//	log.SetLogLevel(log.LogLevelDebug)
//	log.Info("loaded %d pages from %s", n, path)
//
// A custom golog instance can be wrapped directly:
//
//	glogger := golog.New()
//	glogger.SetPrefix("[api] ")
//	logger := log.NewGologLogger(glogger)
//	logger.SetLevel(log.LogLevelWarn)
//	log.SetDefaultLogger(logger)
//
// Tests usually install a NoOpLogger.
package log
