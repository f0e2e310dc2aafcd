package version

// Build information, overridden at build time via -ldflags.
var (
	Version   = "0.3.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)
