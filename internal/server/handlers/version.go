package handlers

import "net/http"

// VersionInfo is injected at build time via main.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
}

var versionInfo = VersionInfo{Version: "dev"}

// SetVersionInfo installs the build metadata served by VersionHandler.
func SetVersionInfo(info VersionInfo) {
	versionInfo = info
}

// VersionHandler reports the running build.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, versionInfo)
}
