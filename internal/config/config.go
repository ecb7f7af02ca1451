// Package config holds the harness runtime configuration: where the server
// binary lives, how long convergence waits are allowed to take, and logging.
//
// Configuration comes from the environment, optionally seeded from a local
// env file so a developer checkout can pin a server build without exporting
// variables in every shell.
package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultWaitTimeout bounds every convergence wait in the harness.
	DefaultWaitTimeout = 15 * time.Second
	// DefaultRetryInterval is the pause between condition re-evaluations.
	DefaultRetryInterval = 500 * time.Millisecond
)

// Harness is the resolved harness configuration.
type Harness struct {
	// ServerBin is the path to the server executable under test. Empty means
	// no binary is available; end-to-end scenarios skip themselves.
	ServerBin string
	// ServerLogLevel is passed through to every launched peer.
	ServerLogLevel string
	// WaitTimeout and RetryInterval parameterize all condition polling.
	WaitTimeout   time.Duration
	RetryInterval time.Duration
}

// FromEnv builds the harness configuration from the process environment,
// after merging in an env file if one is present.
func FromEnv() Harness {
	LoadEnvFile()

	h := Harness{
		ServerBin:      os.Getenv("VECSTORE_SERVER_BIN"),
		ServerLogLevel: os.Getenv("VECSTORE_LOG_LEVEL"),
		WaitTimeout:    DefaultWaitTimeout,
		RetryInterval:  DefaultRetryInterval,
	}
	if h.ServerLogLevel == "" {
		h.ServerLogLevel = "debug"
	}
	if v := os.Getenv("HARNESS_WAIT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			h.WaitTimeout = d
		}
	}
	if v := os.Getenv("HARNESS_RETRY_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			h.RetryInterval = d
		}
	}
	return h
}

// LoadEnvFile loads variables from the first of HARNESS_ENV_FILE,
// ".env.harness" or "harness.env" (searched in the working directory and next
// to the executable). Variables already present in the environment win.
func LoadEnvFile() {
	if path := os.Getenv("HARNESS_ENV_FILE"); path != "" {
		loadEnvFile(path)
		return
	}

	roots := []string{""}
	if wd, err := os.Getwd(); err == nil {
		roots = append(roots, wd)
	}
	if exe, err := os.Executable(); err == nil {
		roots = append(roots, filepath.Dir(exe))
	}
	for _, root := range roots {
		for _, name := range []string{".env.harness", "harness.env"} {
			path := name
			if root != "" {
				path = filepath.Join(root, name)
			}
			if _, err := os.Stat(path); err == nil {
				loadEnvFile(path)
				return
			}
		}
	}
}

func loadEnvFile(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, val, ok := splitEnvLine(line)
		if !ok {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
}

func splitEnvLine(line string) (string, string, bool) {
	idx := strings.Index(line, "=")
	if idx <= 0 {
		return "", "", false
	}
	key := strings.TrimSpace(line[:idx])
	val := strings.TrimSpace(line[idx+1:])
	if key == "" {
		return "", "", false
	}
	if len(val) >= 2 {
		if (val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'') {
			val = val[1 : len(val)-1]
		}
	}
	return key, val, true
}
