package config

/*
 * Licensed under LGPL-3.0.
 *
 * You can get a copy of the LGPL-3.0 License at
 *
 * https://www.gnu.org/licenses/lgpl-3.0.en.html
 *
 * @wcgcyx - https://github.com/wcgcyx
 */

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	logging "github.com/ipfs/go-log"
	"github.com/spf13/viper"
)

// Logger
var log = logging.Logger("config")

const (
	defaultConfigPath = ".callsim"
)

type Config struct {
	// Global
	GlobalLoggingLevel string        `mapstructure:"LOGGING"`    // Log Level: FATAL, PANIC, ERROR, WARN, INFO, DEBUG.
	Path               string        `mapstructure:"DATA_DIR"`   // Main datastore path.
	DSTimeout          time.Duration `mapstructure:"DS_TIMEOUT"` // Datastore timeout.

	// Chain
	Chain    string                      `mapstructure:"CHAIN"`     // Chain to simulate: dev, mainnet, sepolia, holesky.
	DevAlloc map[common.Address]*big.Int `mapstructure:"DEV_ALLOC"` // Accounts prefunded at genesis, as "addr=wei,addr=wei".

	// Statestore
	StateStoreGCPeriod time.Duration `mapstructure:"STATESTORE_GC_PERIOD"` // Statestore GC period.

	// WorldState
	WorldStateMaxLayerToRetain uint64 `mapstructure:"WORLDSTATE_MAX_LAYER_TO_RETAIN"` // World state max layer to retain.

	// RPC
	RPCHost         string        `mapstructure:"RPC_HOST"`          // RPC Server host.
	RPCPort         uint64        `mapstructure:"RPC_PORT"`          // RPC Server port.
	RPCCORSOrigins  []string      `mapstructure:"RPC_CORS_ORIGINS"`  // Allowed cross origin domains.
	RPCGasCap       uint64        `mapstructure:"RPC_GAS_CAP"`       // RPC gas cap for answering calls.
	RPCEVMTimeout   time.Duration `mapstructure:"RPC_EVM_TIMEOUT"`   // RPC evm timeout for answering calls.
	RPCTraceTimeout time.Duration `mapstructure:"RPC_TRACE_TIMEOUT"` // Default timeout of a trace.

	// EVM
	EVMMinGasPercent uint64 `mapstructure:"EVM_MIN_GAS_PERCENT"` // Min share of the gas limit charged, in percent.

	// Node
	SealPeriod time.Duration `mapstructure:"SEAL_PERIOD"` // Block sealing period, 0 seals on every transaction.
}

// Default configs
var DefaultConfig Config = Config{
	Path:                       ".callsim",
	GlobalLoggingLevel:         "INFO",
	DSTimeout:                  5 * time.Second,
	Chain:                      "dev",
	DevAlloc:                   map[common.Address]*big.Int{},
	StateStoreGCPeriod:         30 * time.Minute,
	WorldStateMaxLayerToRetain: 256,
	RPCHost:                    "localhost",
	RPCPort:                    8545,
	RPCCORSOrigins:             []string{"*"},
	RPCGasCap:                  25000000,
	RPCEVMTimeout:              5 * time.Second,
	RPCTraceTimeout:            5 * time.Second,
	EVMMinGasPercent:           50,
	SealPeriod:                 0,
}

// NewConfig creates a new configuration.
//
// @input - config file path, empty to search $HOME/.callsim.
//
// @output - configuration, error.
func NewConfig(configFile string) (Config, error) {
	v := viper.New()
	// Try to load config file from $HOME/.callsim
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/" + defaultConfigPath)
	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configFile != "" {
			return Config{}, err
		}
		log.Infof("No config file loaded: %v", err.Error())
	}
	v.AutomaticEnv()

	conf := Config{}

	// Parse global config
	conf.GlobalLoggingLevel = v.GetString("LOGGING")
	if conf.GlobalLoggingLevel == "" {
		conf.GlobalLoggingLevel = DefaultConfig.GlobalLoggingLevel
	}
	logLevel, err := logging.LevelFromString(conf.GlobalLoggingLevel)
	if err != nil {
		return Config{}, err
	}
	logging.SetAllLoggers(logLevel)
	conf.Path = v.GetString("DATA_DIR")
	if conf.Path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, err
		}
		conf.Path = filepath.Join(home, DefaultConfig.Path)
		log.Infof("DATA_DIR not defined, use default: %v", conf.Path)
	}
	conf.DSTimeout = v.GetDuration("DS_TIMEOUT")
	if conf.DSTimeout <= 0 {
		conf.DSTimeout = DefaultConfig.DSTimeout
		log.Infof("Invalid DS_TIMEOUT found, use default: %v", conf.DSTimeout)
	}

	// Parse chain config
	conf.Chain = strings.ToLower(v.GetString("CHAIN"))
	switch conf.Chain {
	case "dev", "mainnet", "sepolia", "holesky":
	default:
		if conf.Chain != "" {
			log.Infof("Unsupported CHAIN %v", conf.Chain)
		}
		conf.Chain = DefaultConfig.Chain
		log.Infof("CHAIN not set, use default: %v", conf.Chain)
	}
	conf.DevAlloc, err = ParseAlloc(v.GetString("DEV_ALLOC"))
	if err != nil {
		return Config{}, err
	}

	// Parse statestore config
	conf.StateStoreGCPeriod = v.GetDuration("STATESTORE_GC_PERIOD")
	if conf.StateStoreGCPeriod < 10*time.Minute {
		conf.StateStoreGCPeriod = DefaultConfig.StateStoreGCPeriod
		log.Infof("STATESTORE_GC_PERIOD is smaller than min 10m, use default %v", conf.StateStoreGCPeriod)
	}

	// Parse worldstate config
	conf.WorldStateMaxLayerToRetain = uint64(v.GetInt64("WORLDSTATE_MAX_LAYER_TO_RETAIN"))
	if conf.WorldStateMaxLayerToRetain < 16 || conf.WorldStateMaxLayerToRetain > 1024 {
		conf.WorldStateMaxLayerToRetain = DefaultConfig.WorldStateMaxLayerToRetain
		log.Infof("WORLDSTATE_MAX_LAYER_TO_RETAIN is not between 16 and 1024, use default: %v", conf.WorldStateMaxLayerToRetain)
	}

	// Parse RPC config
	conf.RPCHost = v.GetString("RPC_HOST")
	if conf.RPCHost == "" {
		conf.RPCHost = DefaultConfig.RPCHost
		log.Infof("RPC_HOST not set, use default %v", conf.RPCHost)
	}
	conf.RPCPort = uint64(v.GetInt64("RPC_PORT"))
	if conf.RPCPort == 0 || conf.RPCPort > 65535 {
		conf.RPCPort = DefaultConfig.RPCPort
		log.Infof("RPC_PORT not set, use default %v", conf.RPCPort)
	}
	conf.RPCCORSOrigins = splitList(v.GetString("RPC_CORS_ORIGINS"))
	if len(conf.RPCCORSOrigins) == 0 {
		conf.RPCCORSOrigins = DefaultConfig.RPCCORSOrigins
		log.Infof("RPC_CORS_ORIGINS not set, use default %v", conf.RPCCORSOrigins)
	}
	conf.RPCGasCap = uint64(v.GetInt64("RPC_GAS_CAP"))
	if conf.RPCGasCap == 0 {
		conf.RPCGasCap = DefaultConfig.RPCGasCap
		log.Infof("RPC_GAS_CAP not set, use default %v", conf.RPCGasCap)
	}
	conf.RPCEVMTimeout = v.GetDuration("RPC_EVM_TIMEOUT")
	if conf.RPCEVMTimeout <= 0 {
		conf.RPCEVMTimeout = DefaultConfig.RPCEVMTimeout
		log.Infof("Invalid RPC_EVM_TIMEOUT found, use default: %v", conf.RPCEVMTimeout)
	}
	conf.RPCTraceTimeout = v.GetDuration("RPC_TRACE_TIMEOUT")
	if conf.RPCTraceTimeout <= 0 {
		conf.RPCTraceTimeout = DefaultConfig.RPCTraceTimeout
		log.Infof("Invalid RPC_TRACE_TIMEOUT found, use default: %v", conf.RPCTraceTimeout)
	}

	// Parse EVM config, 0 disables the minimum
	conf.EVMMinGasPercent = DefaultConfig.EVMMinGasPercent
	if v.IsSet("EVM_MIN_GAS_PERCENT") {
		percent := v.GetInt64("EVM_MIN_GAS_PERCENT")
		if percent < 0 || percent > 100 {
			log.Infof("EVM_MIN_GAS_PERCENT is not between 0 and 100, use default: %v", conf.EVMMinGasPercent)
		} else {
			conf.EVMMinGasPercent = uint64(percent)
		}
	}

	// Parse node config
	conf.SealPeriod = v.GetDuration("SEAL_PERIOD")
	if conf.SealPeriod < 0 {
		conf.SealPeriod = DefaultConfig.SealPeriod
		log.Infof("Invalid SEAL_PERIOD found, seal on every transaction")
	}

	return conf, nil
}

// ParseAlloc parses a list of "address=balance" pairs separated by commas.
// Balances are in wei, decimal or 0x prefixed hex.
func ParseAlloc(str string) (map[common.Address]*big.Int, error) {
	alloc := make(map[common.Address]*big.Int)
	for _, entry := range splitList(str) {
		addr, balance, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid DEV_ALLOC entry %v, expect address=balance", entry)
		}
		addr = strings.TrimSpace(addr)
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid DEV_ALLOC address %v", addr)
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(balance), 0)
		if !ok || amount.Sign() < 0 {
			return nil, fmt.Errorf("invalid DEV_ALLOC balance %v", balance)
		}
		alloc[common.HexToAddress(addr)] = amount
	}
	return alloc, nil
}

func splitList(str string) []string {
	res := make([]string, 0)
	for _, item := range strings.Split(str, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			res = append(res, item)
		}
	}
	return res
}
