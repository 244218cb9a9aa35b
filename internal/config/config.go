package config

import "os"

// Load builds one immutable Config snapshot from the process environment
// plus an optional TOML file (path taken from IMGRESIZE_CONFIG_FILE, empty
// meaning "defaults only"). Each call returns a fresh snapshot; callers
// that want hot reload poll Load on a timer and atomically swap the
// snapshot their in-flight requests already closed over.
func Load() (Config, error) {
	env := LoadEnv()
	file, err := LoadFile(os.Getenv("IMGRESIZE_CONFIG_FILE"))
	if err != nil {
		return Config{}, err
	}
	return Config{Env: env, File: file}, nil
}
