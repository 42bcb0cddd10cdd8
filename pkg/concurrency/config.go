package concurrency

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"strconv"

	"go.uber.org/automaxprocs/maxprocs"
)

// ConfigSource indicates where a configuration value came from.
type ConfigSource string

const (
	ConfigSourceEnvVar     ConfigSource = "environment_variable"
	ConfigSourceAutoDetect ConfigSource = "auto_detect"
)

// Config holds the concurrency knobs for the execution service: how many
// kernel sessions may run at once and how many queue workers to start.
type Config struct {
	MaxSessions   int
	QueueWorkers  int
	Source        ConfigSource
	IsKubernetes  bool
	EffectiveCPUs int
}

// LoadConfig resolves concurrency settings with priority: explicit env vars,
// then CPU-based auto-detection tuned for the deployment environment.
func LoadConfig() *Config {
	config := &Config{
		IsKubernetes:  isKubernetes(),
		EffectiveCPUs: runtime.GOMAXPROCS(0),
	}

	if n := getEnvInt("DAEDALUS_MAX_SESSIONS", 0); n > 0 {
		config.MaxSessions = n
		config.Source = ConfigSourceEnvVar
	} else if multiplier := getEnvInt("DAEDALUS_SESSION_MULTIPLIER", 0); multiplier > 0 {
		config.MaxSessions = config.EffectiveCPUs * multiplier
		config.Source = ConfigSourceEnvVar
	} else {
		config.MaxSessions = defaultMaxSessions(config.IsKubernetes, config.EffectiveCPUs)
		config.Source = ConfigSourceAutoDetect
	}
	if config.MaxSessions < 1 {
		config.MaxSessions = 1
	}

	if n := getEnvInt("DAEDALUS_QUEUE_WORKERS", 0); n > 0 {
		config.QueueWorkers = n
	} else {
		config.QueueWorkers = defaultQueueWorkers(config.IsKubernetes, config.EffectiveCPUs)
	}

	return config
}

// InitializeForKubernetes aligns GOMAXPROCS with the container CPU quota.
// Call at the very start of main, before any other initialization. Returns an
// undo function restoring the original value.
func InitializeForKubernetes() func() {
	undo, err := maxprocs.Set(maxprocs.Logger(log.Printf))
	if err != nil {
		log.Printf("Failed to set maxprocs: %v", err)
		return func() {}
	}
	return undo
}

func isKubernetes() bool {
	// Kubernetes sets this in every container.
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}

// Sessions each hold a live JS runtime, so stay conservative under cgroup
// CPU quotas and looser on bare metal.
func defaultMaxSessions(isK8s bool, cpus int) int {
	if isK8s {
		return cpus * 2
	}
	return cpus * 4
}

func defaultQueueWorkers(isK8s bool, cpus int) int {
	if isK8s {
		return max(cpus, 4)
	}
	return max(cpus*2, 8)
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// String formats the config for startup logging.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{MaxSessions: %d, QueueWorkers: %d, IsK8s: %t, CPUs: %d, Source: %s}",
		c.MaxSessions, c.QueueWorkers, c.IsKubernetes, c.EffectiveCPUs, c.Source,
	)
}
