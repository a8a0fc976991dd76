// Package config builds the relayer's runtime Config from flags and
// environment variables, in the same BuildFlagSet/BuildViper/BuildConfig
// shape the node binaries use to wire spf13/pflag into spf13/viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	AleoRPCKey             = "aleo-rpc"
	AleoProgramIDKey       = "aleo-program-id"
	AleoPollIntervalKey    = "aleo-poll-interval-ms"
	AleoRateLimitRPSKey    = "aleo-rate-limit-rps"
	AleoRateLimitRPMKey    = "aleo-rate-limit-rpm"
	SepoliaRPCKey          = "sepolia-rpc"
	PolygonAmoyRPCKey      = "polygon-amoy-rpc"
	RelayerPKsKey          = "relayer-pks"
	RelayerPKKey           = "relayer-pk"
	RelayerPK2Key          = "relayer-pk-2"
	MaxBatchSizeKey        = "max-batch-size"
	MaxBatchWaitTimeKey    = "max-batch-wait-time-ms"
	LogFileKey             = "relayer-log-file"
	LogLevelKey            = "relayer-log-level"
	WalletBalanceFloorKey  = "wallet-balance-floor"
	QueueHighWaterMarkKey  = "queue-high-water-mark"
	HTTPAddrKey            = "http-addr"
	StoreDirKey            = "store-dir"
)

// BuildFlagSet declares every flag this binary accepts, each bound to the
// env var of the same name (upper-snake) via viper.
func BuildFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("relayer", pflag.ContinueOnError)

	fs.String(AleoRPCKey, "https://api.explorer.aleo.org/v1", "primary Aleo REST endpoint")
	fs.String(AleoProgramIDKey, "privacy_box_mvp.aleo", "Aleo program id to watch for transfer intents")
	fs.Int(AleoPollIntervalKey, 10000, "Aleo block poll interval in milliseconds")
	fs.Int(AleoRateLimitRPSKey, 5, "Aleo client requests-per-second limit")
	fs.Int(AleoRateLimitRPMKey, 100, "Aleo client requests-per-minute limit")
	fs.String(SepoliaRPCKey, "", "Sepolia JSON-RPC endpoint (required)")
	fs.String(PolygonAmoyRPCKey, "", "Polygon Amoy JSON-RPC endpoint (required)")
	fs.String(RelayerPKsKey, "", "comma-separated hex wallet private keys (at least 2)")
	fs.String(RelayerPKKey, "", "first wallet private key, used with relayer-pk-2 if relayer-pks is unset")
	fs.String(RelayerPK2Key, "", "second wallet private key, used with relayer-pk if relayer-pks is unset")
	fs.Int(MaxBatchSizeKey, 5, "maximum intents per batch before a size-triggered flush")
	fs.Int(MaxBatchWaitTimeKey, 10000, "maximum time in milliseconds a batch waits before a time-triggered flush")
	fs.String(LogFileKey, "", "optional rotating log file destination")
	fs.String(LogLevelKey, "info", "log level: trace|debug|info|warn|error|crit")
	fs.String(WalletBalanceFloorKey, "0.01", "wallet balance floor (native units); validated at startup and stored in each wallet pool's config, HealthAPI does not check balances against it")
	fs.Int(QueueHighWaterMarkKey, 50, "per-chain batch queue depth above which the listener logs a back-pressure warning")
	fs.String(HTTPAddrKey, ":3001", "HealthAPI listen address")
	fs.String(StoreDirKey, "./relayer-data", "persistent store directory")

	return fs
}

// BuildViper binds fs to both CLI args and identically-named (upper-snake)
// environment variables, so --relayer-pks given on the command line
// overrides RELAYER_PKS, which overrides the flag default, in that
// precedence order.
func BuildViper(fs *pflag.FlagSet, args []string) (*viper.Viper, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	return v, nil
}

// Config is the fully resolved, validated runtime configuration.
type Config struct {
	AleoRPC          []string
	AleoProgramID    string
	AleoPollInterval time.Duration
	AleoRateLimitRPS int
	AleoRateLimitRPM int

	SepoliaRPC     string
	PolygonAmoyRPC string

	RelayerPrivateKeys []string

	MaxBatchSize    int
	MaxBatchWaitTime time.Duration

	LogFile  string
	LogLevel string

	WalletBalanceFloor string
	QueueHighWaterMark int

	HTTPAddr string
	StoreDir string
}

// BuildConfig resolves and validates a Config from v, applying the
// RELAYER_PKS-or-(RELAYER_PK+RELAYER_PK_2) fallback and rejecting any
// required-but-missing configuration.
func BuildConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		AleoRPC:            []string{v.GetString(AleoRPCKey)},
		AleoProgramID:      v.GetString(AleoProgramIDKey),
		AleoPollInterval:   time.Duration(v.GetInt(AleoPollIntervalKey)) * time.Millisecond,
		AleoRateLimitRPS:   v.GetInt(AleoRateLimitRPSKey),
		AleoRateLimitRPM:   v.GetInt(AleoRateLimitRPMKey),
		SepoliaRPC:         v.GetString(SepoliaRPCKey),
		PolygonAmoyRPC:     v.GetString(PolygonAmoyRPCKey),
		MaxBatchSize:       v.GetInt(MaxBatchSizeKey),
		MaxBatchWaitTime:   time.Duration(v.GetInt(MaxBatchWaitTimeKey)) * time.Millisecond,
		LogFile:            v.GetString(LogFileKey),
		LogLevel:           v.GetString(LogLevelKey),
		WalletBalanceFloor: v.GetString(WalletBalanceFloorKey),
		QueueHighWaterMark: v.GetInt(QueueHighWaterMarkKey),
		HTTPAddr:           v.GetString(HTTPAddrKey),
		StoreDir:           v.GetString(StoreDirKey),
	}

	if cfg.SepoliaRPC == "" {
		return nil, fmt.Errorf("%s is required", SepoliaRPCKey)
	}
	if cfg.PolygonAmoyRPC == "" {
		return nil, fmt.Errorf("%s is required", PolygonAmoyRPCKey)
	}

	keys, err := resolvePrivateKeys(v)
	if err != nil {
		return nil, err
	}
	cfg.RelayerPrivateKeys = keys

	return cfg, nil
}

func resolvePrivateKeys(v *viper.Viper) ([]string, error) {
	if raw := v.GetString(RelayerPKsKey); raw != "" {
		var keys []string
		for _, k := range strings.Split(raw, ",") {
			k = strings.TrimSpace(k)
			if k != "" {
				keys = append(keys, k)
			}
		}
		if len(keys) < 2 {
			return nil, fmt.Errorf("%s must list at least 2 keys", RelayerPKsKey)
		}
		return keys, nil
	}

	pk1 := v.GetString(RelayerPKKey)
	pk2 := v.GetString(RelayerPK2Key)
	if pk1 == "" || pk2 == "" {
		return nil, fmt.Errorf("at least 2 wallet private keys are required: set %s, or both %s and %s", RelayerPKsKey, RelayerPKKey, RelayerPK2Key)
	}
	return []string{pk1, pk2}, nil
}
