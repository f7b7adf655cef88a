//go:build stdlog && !nolog

package build

// LoggingType is a log type that writes directly to stdout.
const LoggingType = LogTypeStdOut
