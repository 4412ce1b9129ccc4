// Package config resolves host-local flashing settings from a .env file
// plus environment-variable overrides, the same two-tier scheme the
// teacher repo uses for its device connection settings.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cubieflash/felflash/internal/usb"
)

// FlashConfig holds the settings a flash run needs beyond its firmware
// blobs: where to find them, which device to target, and how long to wait
// on each bulk transfer.
type FlashConfig struct {
	BlobDir  string
	VID      uint16
	PID      uint16
	Timeout  time.Duration
	URBTrace bool
}

var (
	flashConfig  *FlashConfig
	configLoaded bool
)

const (
	defaultVID     = usb.DefaultVID
	defaultPID     = usb.DefaultPID
	defaultTimeout = 60 * time.Second
)

// LoadFlashConfig resolves settings from ./.env (or a parent directory's,
// walking up to the module root) and then environment-variable overrides.
// The result is cached; call order does not matter.
func LoadFlashConfig() (*FlashConfig, error) {
	if flashConfig != nil && configLoaded {
		return flashConfig, nil
	}

	cfg := &FlashConfig{
		BlobDir: "./blobs",
		VID:     defaultVID,
		PID:     defaultPID,
		Timeout: defaultTimeout,
	}

	envPath := filepath.Join(findProjectRoot(), ".env")
	if data, err := os.ReadFile(envPath); err == nil {
		parseEnvFile(string(data), cfg)
	}

	if v := os.Getenv("FELFLASH_BLOB_DIR"); v != "" {
		cfg.BlobDir = v
	}
	if v := os.Getenv("FELFLASH_VID"); v != "" {
		if id, err := parseHexID(v); err == nil {
			cfg.VID = id
		}
	}
	if v := os.Getenv("FELFLASH_PID"); v != "" {
		if id, err := parseHexID(v); err == nil {
			cfg.PID = id
		}
	}
	if v := os.Getenv("FELFLASH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = d
		}
	}
	if v := os.Getenv("FELFLASH_URB_TRACE"); v != "" {
		cfg.URBTrace = isTruthy(v)
	}

	flashConfig = cfg
	configLoaded = true
	return cfg, nil
}

func parseEnvFile(content string, cfg *FlashConfig) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "FELFLASH_BLOB_DIR":
			cfg.BlobDir = value
		case "FELFLASH_VID":
			if id, err := parseHexID(value); err == nil {
				cfg.VID = id
			}
		case "FELFLASH_PID":
			if id, err := parseHexID(value); err == nil {
				cfg.PID = id
			}
		case "FELFLASH_TIMEOUT":
			if d, err := time.ParseDuration(value); err == nil {
				cfg.Timeout = d
			}
		case "FELFLASH_URB_TRACE":
			cfg.URBTrace = isTruthy(value)
		}
	}
}

func parseHexID(s string) (uint16, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 16)
	return uint16(v), err
}

func isTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func findProjectRoot() string {
	cwd, _ := os.Getwd()
	if _, err := os.Stat(filepath.Join(cwd, ".env")); err == nil {
		return cwd
	}
	for {
		if _, err := os.Stat(filepath.Join(cwd, "go.mod")); err == nil {
			return cwd
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return cwd
		}
		cwd = parent
	}
}
