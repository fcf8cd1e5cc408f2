package config

import (
	"os"
	"path/filepath"
)

// HomeEnv, when set, roots both the data directory and the apps file.
const HomeEnv = "RTM_HOME"

const appsFileName = "apps.yaml"

// dataDirRule yields a candidate data directory, or "" to pass.
type dataDirRule func(home string) string

var dataDirRules = []dataDirRule{
	func(string) string {
		if h := os.Getenv(HomeEnv); h != "" {
			return filepath.Join(h, "data")
		}
		return ""
	},
	func(string) string {
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "rtm")
		}
		return ""
	},
	func(string) string { return ifDir("/var/lib", "rtm") },
	func(home string) string { return ifDir(filepath.Join(home, "Library"), "Application Support", "Rtm") },
	func(home string) string { return ifDir(filepath.Join(home, "AppData"), "Local", "Rtm") },
	func(home string) string { return filepath.Join(home, ".rtm") },
}

// DefaultDataDir picks where embedded channel logs live: RTM_HOME, then
// XDG_DATA_HOME, then the platform's usual location, then ~/.rtm. It
// falls back to ./data when there is no home directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if (err != nil || home == "") && os.Getenv(HomeEnv) == "" {
		return "./data"
	}
	for _, rule := range dataDirRules {
		if dir := rule(home); dir != "" {
			return dir
		}
	}
	return "./data"
}

// DefaultAppsPath is the credential store used when none is configured.
func DefaultAppsPath() string {
	if h := os.Getenv(HomeEnv); h != "" {
		return filepath.Join(h, appsFileName)
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".rtm.yaml"
	}
	return filepath.Join(home, ".rtm.yaml")
}

// ifDir joins base with elems when base is an existing directory.
func ifDir(base string, elems ...string) string {
	info, err := os.Stat(base)
	if err != nil || !info.IsDir() {
		return ""
	}
	return filepath.Join(append([]string{base}, elems...)...)
}
