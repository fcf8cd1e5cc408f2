// Package config loads the broker and lognode configuration with viper:
// built-in defaults, an optional YAML/JSON/TOML file and RTM_* environment
// overrides (server.port -> RTM_SERVER_PORT). The credential store is a
// separate file handled by package apps.
//
// Example:
//
//	cfg, err := config.Load("/etc/rtm/rtm.yaml")
//	if err != nil {
//	    return err
//	}
//	fsync, _ := cfg.Store.FsyncMode()
//	rt, _ := runtime.Open(runtime.Options{DataDir: cfg.Store.DataDir, Fsync: fsync})
package config
