//go:build !nolog && !stdlog

package build

// LoggingType is a log type that routes through the host's sub-loggers.
const LoggingType = LogTypeDefault
