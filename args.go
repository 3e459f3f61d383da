package main

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"solbid/api"
)

func ParseArgs() Args {
	// server config
	pflag.String("server-url", "0.0.0.0:8080", "")
	pflag.String("server-id", "solbid-1", "")

	// db config
	pflag.String("db-user", "", "")
	pflag.String("db-password", "", "")
	pflag.String("db-host", "", "")
	pflag.Int("db-port", 5432, "")
	pflag.String("db-database", "", "")
	pflag.String("db-schema", "", "")

	// redis config
	pflag.String("redis-addr", "", "")
	pflag.String("redis-password", "", "")
	pflag.Int("redis-db", 15, "")

	// redis stream keys
	pflag.String("redis-stream-key-for-game-events", "solbid-shared-game-events", "")
	pflag.String("redis-stream-key-for-persist-retry", "solbid-persist-retry", "")

	// ledger config
	pflag.String("ledger-endpoint", "", "")
	pflag.String("ledger-program-id", "", "")
	pflag.String("ledger-platform-account", "", "")
	pflag.Duration("ledger-confirm-timeout", api.DefaultConfirmTimeout, "")
	pflag.Duration("ledger-poll-interval", api.DefaultPollInterval, "")

	// auth config
	pflag.String("auth-jwt-secret", "", "")

	// bind pflag to viper
	pflag.Parse()
	viper.BindPFlags(pflag.CommandLine)
	viper.AutomaticEnv()
	viper.SetEnvPrefix("SOLBID")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// initial arguments
	return Args{
		ServerURL: viper.GetString("server-url"),
		ServerConfig: api.ServerConfig{
			ID: viper.GetString("server-id"),
			DB: api.DBConfig{
				User:     viper.GetString("db-user"),
				Password: viper.GetString("db-password"),
				Host:     viper.GetString("db-host"),
				Port:     viper.GetInt("db-port"),
				Database: viper.GetString("db-database"),
				Schema:   viper.GetString("db-schema"),
			},
			Redis: api.RedisConfig{
				Addr:     viper.GetString("redis-addr"),
				Password: viper.GetString("redis-password"),
				DB:       viper.GetInt("redis-db"),
				StreamKeys: api.RedisStreamKeys{
					GameEvents:   viper.GetString("redis-stream-key-for-game-events"),
					PersistRetry: viper.GetString("redis-stream-key-for-persist-retry"),
				},
			},
			Ledger: api.LedgerConfig{
				Endpoint:        viper.GetString("ledger-endpoint"),
				ProgramID:       viper.GetString("ledger-program-id"),
				PlatformAccount: viper.GetString("ledger-platform-account"),
				ConfirmTimeout:  viper.GetDuration("ledger-confirm-timeout"),
				PollInterval:    viper.GetDuration("ledger-poll-interval"),
			},
			Auth: api.AuthConfig{
				JWTSecret: viper.GetString("auth-jwt-secret"),
			},
		},
	}
}

type Args struct {
	ServerURL    string
	ServerConfig api.ServerConfig
}

func (args Args) Validate() bool {
	return args.ServerURL != "" &&
		args.ServerConfig.Ledger.Endpoint != "" &&
		args.ServerConfig.Ledger.ProgramID != "" &&
		args.ServerConfig.Auth.JWTSecret != ""
}
