//go:build !nolog && trace

package build

// LogLevel specifies a trace log level.
var LogLevel = "trace"
