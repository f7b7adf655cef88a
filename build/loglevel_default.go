//go:build !nolog && !debug && !trace

package build

// LogLevel specifies the default log level.
var LogLevel = "info"
