// control/config.go
// Author: momentics <momentics@gmail.com>
//
// NI environment tunables (spec §6 "Environment / configuration") plus
// a thread-safe dynamic key/value store with its own OnReload listeners.
// The store is standalone: LoadNIConfig does not write to it and cmd/
// does not use it.

package control

import (
	"os"
	"strconv"
	"sync"
	"time"
)

// NIConfig holds the process-wide tunables spec §6 lists. Fields not
// present in the environment fall back to the conservative defaults an
// interactive ni.DefaultLimits()-sized NI already assumes.
type NIConfig struct {
	WCCount        int
	SRQRepostSize  int
	RDMATimeout    time.Duration
	MaxQPSendWR    int
	MaxInlineData  int
	LogLevel       string
	CheckBuild     bool
}

// DefaultNIConfig returns the tunables a standalone daemon run without
// any environment overrides should use.
func DefaultNIConfig() NIConfig {
	return NIConfig{
		WCCount:       64,
		SRQRepostSize: 16,
		RDMATimeout:   5 * time.Second,
		MaxQPSendWR:   256,
		MaxInlineData: 256,
		LogLevel:      "info",
		CheckBuild:    false,
	}
}

// LoadNIConfig reads spec §6's tunables from the environment, starting
// from DefaultNIConfig and overriding only the variables actually set.
// A malformed value is ignored in favor of the default rather than
// failing the whole load — this is a convenience daemon entry point,
// not a strict validating parser.
func LoadNIConfig() NIConfig {
	cfg := DefaultNIConfig()
	if v, ok := os.LookupEnv("WC_COUNT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WCCount = n
		}
	}
	if v, ok := os.LookupEnv("SRQ_REPOST_SIZE"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SRQRepostSize = n
		}
	}
	if v, ok := os.LookupEnv("RDMA_TIMEOUT"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RDMATimeout = d
		}
	}
	if v, ok := os.LookupEnv("MAX_QP_SEND_WR"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxQPSendWR = n
		}
	}
	if v, ok := os.LookupEnv("MAX_INLINE_DATA"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxInlineData = n
		}
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("CHECK_BUILD"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.CheckBuild = b
		}
	}
	return cfg
}

// ConfigStore is a dynamic key/value map with atomic snapshot and
// listener support. No caller in this module populates it; cmd/'s
// SIGHUP handler re-reads NIConfig with LoadNIConfig and calls
// TriggerHotReload without going through a ConfigStore.
type ConfigStore struct {
	mu        sync.RWMutex
	config    map[string]any
	listeners []func()
}

// NewConfigStore initializes a new config store with empty data.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		config:    make(map[string]any),
		listeners: make([]func(), 0),
	}
}

// GetSnapshot returns a copy of all config values.
func (cs *ConfigStore) GetSnapshot() map[string]any {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make(map[string]any, len(cs.config))
	for k, v := range cs.config {
		out[k] = v
	}
	return out
}

// SetConfig merges new values and dispatches reload if needed.
func (cs *ConfigStore) SetConfig(newCfg map[string]any) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for k, v := range newCfg {
		cs.config[k] = v
	}
	cs.dispatchReload()
}

// OnReload registers a listener hook called on config changes.
func (cs *ConfigStore) OnReload(fn func()) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}

// dispatchReload invokes all listeners.
func (cs *ConfigStore) dispatchReload() {
	for _, fn := range cs.listeners {
		go fn()
	}
}
