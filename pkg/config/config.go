package config

// Package config loads the rollup's threshold set via viper, mirroring the
// teacher's version-pinned loader shape (package-level AppConfig, Load /
// LoadFromEnv) but replacing the network/consensus/VM/storage sections with
// the thresholds every core component consults (SPEC_FULL.md §12). There is
// no CLI surface here — configuration loading is an ambient concern carried
// regardless of spec.md's "CLI... out of scope" non-goal, but the CLI
// flag-parsing layer itself is not.

import (
	"fmt"

	"github.com/spf13/viper"

	"driftlayer-network/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified threshold set a SystemState is constructed from.
type Config struct {
	Batch struct {
		MaxBatchSize int    `mapstructure:"max_batch_size" json:"max_batch_size"`
		MinBatchAge  uint64 `mapstructure:"min_batch_age" json:"min_batch_age"`
		MaxBatchAge  uint64 `mapstructure:"max_batch_age" json:"max_batch_age"`
	} `mapstructure:"batch" json:"batch"`

	Finalization struct {
		ConfirmationsN  int    `mapstructure:"confirmations_n" json:"confirmations_n"`
		QuorumBps       uint64 `mapstructure:"quorum_bps" json:"quorum_bps"`
		ChallengeWindow uint64 `mapstructure:"challenge_window" json:"challenge_window"`
		ForcedTimeout   uint64 `mapstructure:"forced_timeout" json:"forced_timeout"`
	} `mapstructure:"finalization" json:"finalization"`

	Bisection struct {
		StepTimeout       uint64 `mapstructure:"step_timeout" json:"step_timeout"`
		MaxBisectionDepth uint32 `mapstructure:"max_bisection_depth" json:"max_bisection_depth"`
	} `mapstructure:"bisection" json:"bisection"`

	Incentive struct {
		MinBond                 uint64 `mapstructure:"min_bond" json:"min_bond"`
		RewardBps               uint64 `mapstructure:"reward_bps" json:"reward_bps"`
		PenaltyBps              uint64 `mapstructure:"penalty_bps" json:"penalty_bps"`
		DefenderBps             uint64 `mapstructure:"defender_bps" json:"defender_bps"`
		SystemBps               uint64 `mapstructure:"system_bps" json:"system_bps"`
		MaxConcurrentChallenges int    `mapstructure:"max_concurrent_challenges" json:"max_concurrent_challenges"`
	} `mapstructure:"incentive" json:"incentive"`

	Bridge struct {
		DelayPeriod      uint64 `mapstructure:"delay_period" json:"delay_period"`
		WithdrawalExpiry uint64 `mapstructure:"withdrawal_expiry" json:"withdrawal_expiry"`
		MaxGas           uint64 `mapstructure:"max_gas" json:"max_gas"`
		MaxPrice         uint64 `mapstructure:"max_price" json:"max_price"`
		LiquidityFeeBps  uint64 `mapstructure:"liquidity_fee_bps" json:"liquidity_fee_bps"`
		RelayWindowSize  int    `mapstructure:"relay_window_size" json:"relay_window_size"`
	} `mapstructure:"bridge" json:"bridge"`

	Security struct {
		RateWindow     uint64 `mapstructure:"rate_window" json:"rate_window"`
		RateMax        int    `mapstructure:"rate_max" json:"rate_max"`
		AmountWindow   uint64 `mapstructure:"amount_window" json:"amount_window"`
		AmountMax      uint64 `mapstructure:"amount_max" json:"amount_max"`
		FrontRunWindow uint64 `mapstructure:"front_run_window" json:"front_run_window"`
		NonceTTL       uint64 `mapstructure:"nonce_ttl" json:"nonce_ttl"`
		MaxStoreSize   int    `mapstructure:"max_store_size" json:"max_store_size"`
	} `mapstructure:"security" json:"security"`

	Validators struct {
		PubKeysHex []string `mapstructure:"pub_keys_hex" json:"pub_keys_hex"`
		Threshold  int      `mapstructure:"threshold" json:"threshold"`
	} `mapstructure:"validators" json:"validators"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads the base configuration and merges any environment-specific
// overrides named by env. If env is empty, only the default configuration
// is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the DRIFT_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("DRIFT_ENV", ""))
}
