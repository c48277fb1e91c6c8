package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// FeePolicy controls how the platform fee is split out of a gross charge at
// settlement time. The percentage observed at settlement is written onto the
// transaction and never re-derived afterwards.
type FeePolicy struct {
	DefaultPercent float64            `mapstructure:"defaultPercent"`
	Providers      map[string]float64 `mapstructure:"providers"`
}

func DefaultFeePolicy() FeePolicy {
	return FeePolicy{
		DefaultPercent: 10,
		Providers:      map[string]float64{},
	}
}

// PercentFor returns the fee percentage for a provider.
func (p FeePolicy) PercentFor(provider string) float64 {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if pct, ok := p.Providers[provider]; ok {
		return pct
	}
	return p.DefaultPercent
}

type FeePolicyHolder struct {
	current atomic.Value // holds FeePolicy
}

// NewFeePolicyHolder reads fees.yml and keeps it hot-reloadable.
func NewFeePolicyHolder() (*FeePolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("fees")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/ovation/config")
	v.AddConfigPath("/etc/ovation")
	v.AddConfigPath(".")

	v.SetEnvPrefix("OVATION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultFeePolicy()
		v.SetDefault("fees.defaultPercent", defaults.DefaultPercent)
		v.SetDefault("fees.providers", defaults.Providers)
	}

	var policy FeePolicy
	if err := v.UnmarshalKey("fees", &policy); err != nil {
		return nil, err
	}
	if err := validateFeePolicy(policy); err != nil {
		return nil, err
	}

	holder := &FeePolicyHolder{}
	holder.current.Store(policy)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated FeePolicy
		if err := v.UnmarshalKey("fees", &updated); err != nil {
			log.Printf("[fee-policy] reload failed: %v", err)
			return
		}
		if err := validateFeePolicy(updated); err != nil {
			log.Printf("[fee-policy] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[fee-policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticFeePolicyHolder wraps a fixed policy, used in tests.
func NewStaticFeePolicyHolder(policy FeePolicy) *FeePolicyHolder {
	holder := &FeePolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func (h *FeePolicyHolder) Get() FeePolicy {
	return h.current.Load().(FeePolicy)
}

func validateFeePolicy(policy FeePolicy) error {
	if policy.DefaultPercent < 0 || policy.DefaultPercent > 100 {
		return errors.New("fees.defaultPercent must be between 0 and 100")
	}
	for provider, pct := range policy.Providers {
		if pct < 0 || pct > 100 {
			return errors.New("fees.providers." + provider + " must be between 0 and 100")
		}
	}
	return nil
}
