// Package config loads the per-node environment a lattice daemon starts
// from (§6): node identity, listen/external addresses, an optional seed to
// discover the rest of the cluster through, and the heartbeat thresholds
// that drive liveness classification.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/lattice-run/lattice/internal/cluster"
)

// NodeConfig is the environment a node receives at startup (§6).
type NodeConfig struct {
	NodeID       uint64
	NodeTag      string
	ListenAddr   string
	ExternalAddr string
	SeedAddr     string
}

// Env var names, matching the teacher's flag-naming convention
// (cmd/substrated's flag.String/flag.Int) but sourced from the
// environment since "no command-line surface is prescribed" (§6).
const (
	envNodeID       = "LATTICE_NODE_ID"
	envNodeTag      = "LATTICE_NODE_TAG"
	envListenAddr   = "LATTICE_LISTEN_ADDR"
	envExternalAddr = "LATTICE_EXTERNAL_ADDR"
	envSeedAddr     = "LATTICE_SEED_ADDR"

	envHeartbeatInterval = "LATTICE_HEARTBEAT_INTERVAL"
	envUnhealthyTimeout  = "LATTICE_UNHEALTHY_TIMEOUT"
	envTerminatedTimeout = "LATTICE_TERMINATED_TIMEOUT"

	defaultListenAddr = ":7946"
)

// LoadNodeConfig reads a NodeConfig from the process environment.
// LATTICE_NODE_ID is required; every other field has a spec-compliant
// default.
func LoadNodeConfig() (NodeConfig, error) {
	idStr := os.Getenv(envNodeID)
	if idStr == "" {
		return NodeConfig{}, fmt.Errorf("%s is required", envNodeID)
	}
	nodeID, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return NodeConfig{}, fmt.Errorf("parsing %s: %w", envNodeID, err)
	}

	listenAddr := os.Getenv(envListenAddr)
	if listenAddr == "" {
		listenAddr = defaultListenAddr
	}

	return NodeConfig{
		NodeID:       nodeID,
		NodeTag:      os.Getenv(envNodeTag),
		ListenAddr:   listenAddr,
		ExternalAddr: os.Getenv(envExternalAddr),
		SeedAddr:     os.Getenv(envSeedAddr),
	}, nil
}

// LoadHeartbeatConfig reads a cluster.HeartbeatConfig from the process
// environment, falling back to cluster's package defaults for any unset
// value.
func LoadHeartbeatConfig() (cluster.HeartbeatConfig, error) {
	cfg := cluster.DefaultHeartbeatConfig()

	if v := os.Getenv(envHeartbeatInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", envHeartbeatInterval, err)
		}
		cfg.PingInterval = d
	}
	if v := os.Getenv(envUnhealthyTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", envUnhealthyTimeout, err)
		}
		cfg.UnhealthyTimeout = d
	}
	if v := os.Getenv(envTerminatedTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", envTerminatedTimeout, err)
		}
		cfg.TerminatedTimeout = d
	}

	return cfg, nil
}
