package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"

	"github.com/ilyakaznacheev/cleanenv"
)

type (
	Config struct {
		App     `json:"app"     toml:"app"`
		HTTP    `json:"http"    toml:"http"`
		DB      `json:"db"      toml:"db"`
		Log     `json:"logger"  toml:"logger"`
		Network `json:"network" toml:"network"`
		Wallet  `json:"wallet"  toml:"wallet"`
		Workers `json:"workers" toml:"workers"`

		Chains []Chain `json:"chains" toml:"chains"`
	}

	App struct {
		Name        string `json:"name"        toml:"name"        env:"APP_NAME"`
		Environment string `json:"environment" toml:"environment" env:"ENV_NAME" env-default:"dev"`
		Debug       bool   `json:"debug"       toml:"debug"       env:"DEBUG"    env-default:"false"`
	}

	HTTP struct {
		Port string `json:"port" toml:"port" env:"HTTP_PORT" env-default:"8080"`
	}

	DB struct {
		DatabaseURL       string `json:"database_url"        toml:"database_url"        env:"DATABASE_URL"`
		PoolMax           int32  `json:"pool_max"            toml:"pool_max"            env:"PG_POOL_MAX" env-required:"true"`
		ConnectTimeout    int    `json:"connect_timeout"     toml:"connect_timeout"     env:"PG_POOL_CONN_TIMEOUT" env-default:"5"`
		HealthCheckPeriod int    `json:"health_check_period" toml:"health_check_period" env:"PG_POOL_HEALTHCHECK" env-default:"1"`
	}

	Log struct {
		Level slog.Level `json:"level" toml:"level" env:"LOG_LEVEL"`
	}

	// Network configures the connection to the off-chain settlement node.
	Network struct {
		WSURL          string `json:"ws_url"          toml:"ws_url"          env:"NETWORK_WS_URL" env-default:"wss://clearnet.yellow.com/ws"`
		Application    string `json:"application"     toml:"application"     env:"NETWORK_APPLICATION" env-default:"custody-wallet"`
		Scope          string `json:"scope"           toml:"scope"           env:"NETWORK_SCOPE" env-default:"console"`
		SessionChain   string `json:"session_chain"   toml:"session_chain"   env:"NETWORK_SESSION_CHAIN" env-default:"polygon"`
		SessionTTL     int    `json:"session_ttl"     toml:"session_ttl"     env:"NETWORK_SESSION_TTL" env-default:"3600"`
		RequestTimeout int    `json:"request_timeout" toml:"request_timeout" env:"NETWORK_REQUEST_TIMEOUT" env-default:"30"`
	}

	Wallet struct {
		Seed string `json:"seed" toml:"seed" env:"WALLET_SEED" env-required:"true"`
	}

	Workers struct {
		SnapshotTTL     int    `json:"snapshot_ttl"     toml:"snapshot_ttl"     env:"WORKERS_SNAPSHOT_TTL" env-default:"1440"`
		SnapshotCleanup string `json:"snapshot_cleanup" toml:"snapshot_cleanup" env:"WORKERS_SNAPSHOT_CLEANUP" env-default:"@every 30m"`
	}

	// Chain describes one EVM chain the custody flow can operate on.
	Chain struct {
		Name           string  `json:"name"            toml:"name"`
		ChainID        uint64  `json:"chain_id"        toml:"chain_id"`
		RPCURL         string  `json:"rpc_url"         toml:"rpc_url"`
		CustodyAddress string  `json:"custody_address" toml:"custody_address"`
		Assets         []Asset `json:"assets"          toml:"assets"`
	}

	Asset struct {
		Symbol   string `json:"symbol"   toml:"symbol"`
		Address  string `json:"address"  toml:"address"`
		Decimals int32  `json:"decimals" toml:"decimals"`
	}
)

func LoadConfig() (*Config, error) {
	cfg := &Config{}

	_, b, _, _ := runtime.Caller(0)
	basePath := filepath.Dir(b)

	configTomlPath := filepath.Join(basePath, "config.toml")
	err := cleanenv.ReadConfig(configTomlPath, cfg)
	if err != nil {
		configJsonPath := filepath.Join(basePath, "config.json")
		err = cleanenv.ReadConfig(configJsonPath, cfg)
		if err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	}

	err = cleanenv.ReadEnv(cfg)
	if err != nil {
		return nil, fmt.Errorf("env read error: %w", err)
	}

	return cfg, nil
}
