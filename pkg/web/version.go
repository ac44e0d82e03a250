package web

import "sync"

// BuildInfo describes the running binary
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

var (
	verMu     sync.RWMutex
	buildInfo = BuildInfo{Version: "dev", Commit: "unknown", BuildTime: "unknown"}
)

// SetVersionInfo sets the build information reported by /api/status
func SetVersionInfo(version, commit, buildTime string) {
	verMu.Lock()
	defer verMu.Unlock()
	buildInfo = BuildInfo{Version: version, Commit: commit, BuildTime: buildTime}
}

// GetVersionInfo returns the current build information
func GetVersionInfo() BuildInfo {
	verMu.RLock()
	defer verMu.RUnlock()
	return buildInfo
}
