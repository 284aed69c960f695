// Package config holds the engine's explicit configuration struct,
// replacing the source's global-singleton config object (spec.md section 9,
// "Global singletons for config ... replace with an explicit configuration
// struct passed into UpdateStrategy"). Shaped like node.Config /
// node.ValidateConfig: one struct, one Default func, one Validate func.
package config

import (
	"errors"
	"fmt"
	"strings"
)

type Dialect string

const (
	DialectAccount Dialect = "account"
	DialectUTXO    Dialect = "utxo"
)

type ApplyMode string

const (
	ApplyModeBatch ApplyMode = "batch"
	ApplyModePerTx ApplyMode = "per_tx"
)

type Config struct {
	Network string  `json:"network"`
	Dialect Dialect `json:"dialect"`

	RawKeyspace         string `json:"raw_keyspace"`
	TransformedKeyspace string `json:"transformed_keyspace"`

	BatchSize       int `json:"batch_size"`
	BlockBucketSize int `json:"block_bucket_size"`
	PartitionSize   int `json:"partition_size"`
	SecondaryGroups int `json:"secondary_groups"`

	ApplyMode ApplyMode `json:"apply_mode"`

	ForwardFillRates    bool `json:"forward_fill_rates"`
	DisableSafetyChecks bool `json:"disable_safety_checks"`
	StrictExchangeRates bool `json:"strict_exchange_rates"`
	PatchMode           bool `json:"patch_mode"`
	ValidationMode      bool `json:"validation_mode"` // pedantic ChangeBuilder pre-checks, see spec.md 4.8
	DisableDeltaUpdates bool `json:"disable_delta_updates"`

	StartBlock int64 `json:"start_block"` // -1 = infer from delta_updater_status
	EndBlock   int64 `json:"end_block"`   // -1 = unbounded (until rate gap)

	LogLevel string `json:"log_level"`

	LockTimeoutMillis int `json:"lock_timeout_millis"`
}

func DefaultConfig() Config {
	return Config{
		Network:             "eth",
		Dialect:             DialectAccount,
		RawKeyspace:         "raw_eth",
		TransformedKeyspace: "transformed_eth",
		BatchSize:           10,
		BlockBucketSize:     1_000,
		PartitionSize:       100_000,
		SecondaryGroups:     100,
		ApplyMode:           ApplyModeBatch,
		ForwardFillRates:    false,
		DisableSafetyChecks: false,
		StrictExchangeRates: false,
		PatchMode:           false,
		ValidationMode:      false,
		DisableDeltaUpdates: false,
		StartBlock:          -1,
		EndBlock:            -1,
		LogLevel:            "info",
		LockTimeoutMillis:   1_000,
	}
}

var allowedLogLevels = map[string]struct{}{
	"debug": {}, "info": {}, "warn": {}, "error": {},
}

func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Network) == "" {
		return errors.New("network is required")
	}
	if cfg.Dialect != DialectAccount && cfg.Dialect != DialectUTXO {
		return fmt.Errorf("invalid dialect %q", cfg.Dialect)
	}
	if strings.TrimSpace(cfg.RawKeyspace) == "" {
		return errors.New("raw_keyspace is required")
	}
	if strings.TrimSpace(cfg.TransformedKeyspace) == "" {
		return errors.New("transformed_keyspace is required")
	}
	if cfg.BatchSize <= 0 {
		return errors.New("batch_size must be > 0")
	}
	if cfg.BlockBucketSize <= 0 {
		return errors.New("block_bucket_size must be > 0")
	}
	if cfg.PartitionSize <= 0 {
		return errors.New("partition_size must be > 0")
	}
	if cfg.SecondaryGroups <= 0 {
		return errors.New("secondary_groups must be > 0")
	}
	if cfg.ApplyMode != ApplyModeBatch && cfg.ApplyMode != ApplyModePerTx {
		return fmt.Errorf("invalid apply_mode %q", cfg.ApplyMode)
	}
	if cfg.ApplyMode == ApplyModePerTx && cfg.Dialect == DialectAccount {
		return errors.New("per_tx apply mode is not supported for the account dialect")
	}
	if cfg.EndBlock >= 0 && cfg.StartBlock >= 0 && cfg.EndBlock < cfg.StartBlock {
		return errors.New("end_block must be >= start_block")
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	if cfg.LockTimeoutMillis <= 0 {
		return errors.New("lock_timeout_millis must be > 0")
	}
	return nil
}
