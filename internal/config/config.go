// Package config loads governance configuration from .governance/config.yaml
// and GOV_* environment variables.
//
// Precedence, highest first: environment variables, config file values,
// built-in defaults. Environment variables use the GOV_ prefix with dots and
// dashes mapped to underscores (queue.visibility-timeout becomes
// GOV_QUEUE_VISIBILITY_TIMEOUT).
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/regsuite/governance/internal/metering"
	"github.com/regsuite/governance/internal/taskqueue"
	"github.com/regsuite/governance/internal/types"
)

// v is the package-level viper instance, set by Initialize.
var v *viper.Viper

// Initialize loads configuration. A missing config file is not an error;
// defaults and environment variables still apply.
func Initialize() error {
	nv := viper.New()

	setDefaults(nv)

	nv.SetEnvPrefix("GOV")
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	nv.AutomaticEnv()

	if path := configFilePath(); path != "" {
		nv.SetConfigFile(path)
		nv.SetConfigType("yaml")
		if err := nv.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v = nv
	return nil
}

func setDefaults(nv *viper.Viper) {
	nv.SetDefault("json", false)
	nv.SetDefault("tenant", "default")
	nv.SetDefault("actor", "")

	nv.SetDefault("nats-url", "nats://127.0.0.1:4222")

	nv.SetDefault("queue.name", "governance")
	nv.SetDefault("queue.visibility-timeout", 30*time.Second)
	retry := types.DefaultRetryPolicy()
	nv.SetDefault("queue.retry.max_retries", retry.MaxRetries)
	nv.SetDefault("queue.retry.initial_delay", retry.InitialDelay)
	nv.SetDefault("queue.retry.multiplier", retry.Multiplier)
	nv.SetDefault("queue.retry.max_delay", retry.MaxDelay)

	scaler := taskqueue.DefaultScalerConfig()
	nv.SetDefault("scaler.min_workers", scaler.MinWorkers)
	nv.SetDefault("scaler.max_workers", scaler.MaxWorkers)
	nv.SetDefault("scaler.scale_up_threshold", scaler.ScaleUpThreshold)
	nv.SetDefault("scaler.scale_down_threshold", scaler.ScaleDownThreshold)
	nv.SetDefault("scaler.scale_up_increment", scaler.ScaleUpIncrement)
	nv.SetDefault("scaler.scale_down_increment", scaler.ScaleDownIncrement)
	nv.SetDefault("scaler.scale_up_cooldown", scaler.ScaleUpCooldown)
	nv.SetDefault("scaler.scale_down_cooldown", scaler.ScaleDownCooldown)

	nv.SetDefault("identity.secret", "")
	nv.SetDefault("identity.issuer", "")
}

// configFilePath locates the config file. GOV_CONFIG overrides discovery;
// otherwise parents of the working directory are searched for
// .governance/config.yaml.
func configFilePath() string {
	if explicit := os.Getenv("GOV_CONFIG"); explicit != "" {
		return explicit
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for dir := cwd; ; dir = filepath.Dir(dir) {
		path := filepath.Join(dir, ".governance", "config.yaml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
		if dir == filepath.Dir(dir) {
			return ""
		}
	}
}

// Watch enables hot reload of the config file. onChange runs after each
// reload; it may be nil. No-op when no config file was loaded.
func Watch(onChange func()) {
	if v == nil || v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Printf("config reloaded: %s", e.Name)
		if onChange != nil {
			onChange()
		}
	})
	v.WatchConfig()
}

// ── Scalar getters (nil-safe before Initialize) ─────────────────────────────

// GetString returns a string config value.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool returns a boolean config value.
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt returns an integer config value.
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration returns a duration config value.
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// GetStringSlice returns a string-slice config value.
func GetStringSlice(key string) []string {
	if v == nil {
		return []string{}
	}
	return v.GetStringSlice(key)
}

// AllSettings returns the merged configuration map.
func AllSettings() map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	return v.AllSettings()
}

// ── Typed sections ──────────────────────────────────────────────────────────

// RetryPolicy returns the queue redelivery policy.
func RetryPolicy() types.RetryPolicy {
	policy := types.DefaultRetryPolicy()
	if v == nil {
		return policy
	}
	if err := v.UnmarshalKey("queue.retry", &policy); err != nil {
		log.Printf("config: invalid queue.retry, using defaults: %v", err)
		return types.DefaultRetryPolicy()
	}
	return policy
}

// ScalerConfig returns the worker auto-scaler settings.
func ScalerConfig() taskqueue.ScalerConfig {
	cfg := taskqueue.DefaultScalerConfig()
	if v == nil {
		return cfg
	}
	if err := v.UnmarshalKey("scaler", &cfg); err != nil {
		log.Printf("config: invalid scaler section, using defaults: %v", err)
		return taskqueue.DefaultScalerConfig()
	}
	return cfg
}

// QuotaLimits returns the configured per-metric quota limits. Absent or
// invalid sections yield no limits (everything unlimited).
func QuotaLimits() []metering.QuotaLimit {
	if v == nil {
		return nil
	}
	var limits []metering.QuotaLimit
	if err := v.UnmarshalKey("quotas", &limits); err != nil {
		log.Printf("config: invalid quotas section, ignoring: %v", err)
		return nil
	}
	return limits
}
