// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads the settings of the lzread binary from flags,
// LZREAD_* environment variables and an optional config file.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	log "github.com/inconshreveable/log15"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/omnichain-devtools/lzread/chain"
)

const (
	ConfigFileKey       = "config"
	LogLevelKey         = "log-level"
	ListenAddressKey    = "listen-address"
	ChainKey            = "chain"
	ChainsKey           = "chains"
	RetryAttemptsKey    = "retry.num-attempts"
	RetryBaseDelayKey   = "retry.base-delay"
	RetryMaxDelayKey    = "retry.max-delay"
	FactoryCacheSizeKey = "factory-cache-size"

	envPrefix = "lzread"
)

var (
	errNoChains       = errors.New("no chains configured")
	errMalformedChain = errors.New("chain must be formatted as <eid>=<rpc-url>")
)

// Chain is the JSON-RPC endpoint serving endpoint id EID
type Chain struct {
	EID    uint32 `mapstructure:"eid" json:"eid"`
	RPCURL string `mapstructure:"rpc-url" json:"rpcURL"`
}

type Config struct {
	LogLevel         string            `mapstructure:"log-level"`
	ListenAddress    string            `mapstructure:"listen-address"`
	Chains           []Chain           `mapstructure:"chains"`
	Retry            chain.RetryConfig `mapstructure:"retry"`
	FactoryCacheSize int               `mapstructure:"factory-cache-size"`
}

func Default() Config {
	return Config{
		LogLevel:         log.LvlInfo.String(),
		ListenAddress:    "127.0.0.1:9650",
		Retry:            chain.DefaultRetryConfig,
		FactoryCacheSize: chain.DefaultFactoryCacheSize,
	}
}

// BuildFlagSet returns the flags every lzread command accepts
func BuildFlagSet() *pflag.FlagSet {
	d := Default()
	fs := pflag.NewFlagSet("lzread", pflag.ContinueOnError)

	fs.String(ConfigFileKey, "", "Path to a YAML, JSON or TOML config file")
	fs.String(LogLevelKey, d.LogLevel, "Log level. One of crit, error, warn, info, debug")
	fs.String(ListenAddressKey, d.ListenAddress, "Address the JSON-RPC service listens on")
	fs.StringSlice(ChainKey, nil, "Chain RPC endpoint as <eid>=<rpc-url>. Can be repeated")
	fs.Uint64("retry-attempts", d.Retry.NumAttempts, "Attempts per chain read before giving up")
	fs.Duration("retry-base-delay", d.Retry.BaseDelay, "Initial backoff between chain read attempts")
	fs.Duration("retry-max-delay", d.Retry.MaxDelay, "Maximum backoff between chain read attempts")
	fs.Int(FactoryCacheSizeKey, d.FactoryCacheSize, "Number of chain clients kept open")

	return fs
}

// BindFlags makes the flags of [fs] visible to [v] under their config keys
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	if err := v.BindPFlags(fs); err != nil {
		return err
	}
	nested := map[string]string{
		RetryAttemptsKey:  "retry-attempts",
		RetryBaseDelayKey: "retry-base-delay",
		RetryMaxDelayKey:  "retry-max-delay",
	}
	for key, flag := range nested {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return err
		}
	}
	return nil
}

// NewViper returns a viper reading LZREAD_* environment variables
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	d := Default()
	v.SetDefault(LogLevelKey, d.LogLevel)
	v.SetDefault(ListenAddressKey, d.ListenAddress)
	v.SetDefault(RetryAttemptsKey, d.Retry.NumAttempts)
	v.SetDefault(RetryBaseDelayKey, d.Retry.BaseDelay)
	v.SetDefault(RetryMaxDelayKey, d.Retry.MaxDelay)
	v.SetDefault(FactoryCacheSizeKey, d.FactoryCacheSize)
	return v
}

// Load reads the config file named by [ConfigFileKey], if any, and builds
// the config. Chains given with --chain or LZREAD_CHAIN replace the ones of
// the file.
func Load(v *viper.Viper) (Config, error) {
	if path := v.GetString(ConfigFileKey); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("couldn't read config file %q: %w", path, err)
		}
	}

	config := Default()
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, err
	}
	if flags := v.GetStringSlice(ChainKey); len(flags) > 0 {
		chains, err := ParseChains(flags)
		if err != nil {
			return Config{}, err
		}
		config.Chains = chains
	}
	return config, config.Verify()
}

// ParseChains parses <eid>=<rpc-url> pairs
func ParseChains(pairs []string) ([]Chain, error) {
	chains := make([]Chain, 0, len(pairs))
	for _, pair := range pairs {
		for _, entry := range strings.Split(pair, ",") {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				continue
			}
			eid, url, ok := strings.Cut(entry, "=")
			if !ok || url == "" {
				return nil, fmt.Errorf("%w: %q", errMalformedChain, entry)
			}
			parsed, err := strconv.ParseUint(eid, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: %q: %v", errMalformedChain, entry, err)
			}
			chains = append(chains, Chain{EID: uint32(parsed), RPCURL: url})
		}
	}
	return chains, nil
}

// Verify reports every problem of the config at once
func (c Config) Verify() error {
	var result *multierror.Error
	if _, err := log.LvlFromString(c.LogLevel); err != nil {
		result = multierror.Append(result, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err))
	}
	if c.Retry.NumAttempts == 0 {
		result = multierror.Append(result, errors.New("retry attempts must be at least 1"))
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		result = multierror.Append(result, fmt.Errorf("invalid retry delays: base %s, max %s", c.Retry.BaseDelay, c.Retry.MaxDelay))
	}
	seen := make(map[uint32]struct{}, len(c.Chains))
	for _, ch := range c.Chains {
		if _, ok := seen[ch.EID]; ok {
			result = multierror.Append(result, fmt.Errorf("eid %d configured twice", ch.EID))
		}
		seen[ch.EID] = struct{}{}
		if ch.RPCURL == "" {
			result = multierror.Append(result, fmt.Errorf("eid %d has no rpc url", ch.EID))
		}
	}
	return result.ErrorOrNil()
}

// RequireChains fails unless at least one chain is configured
func (c Config) RequireChains() error {
	if len(c.Chains) == 0 {
		return errNoChains
	}
	return nil
}

// RPCURLs maps endpoint ids to their RPC URLs
func (c Config) RPCURLs() map[uint32]string {
	urls := make(map[uint32]string, len(c.Chains))
	for _, ch := range c.Chains {
		urls[ch.EID] = ch.RPCURL
	}
	return urls
}

// Level returns the parsed log level, info if it cannot be parsed
func (c Config) Level() log.Lvl {
	lvl, err := log.LvlFromString(c.LogLevel)
	if err != nil {
		return log.LvlInfo
	}
	return lvl
}
