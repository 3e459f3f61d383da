package api

import "time"

const (
	DefaultConfirmTimeout = 60 * time.Second
	DefaultPollInterval   = 2 * time.Second
)

type ServerConfig struct {
	// ID 是這個節點的識別名稱，consumer group 用它區分成員
	ID     string
	DB     DBConfig
	Redis  RedisConfig
	Ledger LedgerConfig
	Auth   AuthConfig
}

type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     int
	Database string
	Schema   string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	StreamKeys RedisStreamKeys
}

type RedisStreamKeys struct {
	// GameEvents 是跨節點廣播已確認遊戲狀態的 stream
	GameEvents string
	// PersistRetry 是落庫失敗重試的 stream
	PersistRetry string
}

type LedgerConfig struct {
	Endpoint        string
	ProgramID       string
	PlatformAccount string
	ConfirmTimeout  time.Duration
	PollInterval    time.Duration
}

type AuthConfig struct {
	// JWTSecret 是驗證 bearer token 用的 HMAC 金鑰，發行由外部系統負責
	JWTSecret string
}
