package config

const (
	StoreDriverSQLite = "sqlite"
	StoreDriverRedis  = "redis"
	StoreDriverMemory = "memory"
)

type StoreConfig interface {
	GetStoreDriver() string
	GetStorePath() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetStoreKeyPrefix() string
}

type Store struct {
	StoreDriver    string `env:"SESSION_STORE" envDefault:"sqlite"`
	StorePath      string `env:"SESSION_STORE_PATH" envDefault:"./data/session.db"`
	RedisAddr      string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`
	StoreKeyPrefix string `env:"SESSION_KEY_PREFIX"`
}

var _ StoreConfig = Store{}

func (s Store) GetStoreDriver() string {
	return s.StoreDriver
}

func (s Store) GetStorePath() string {
	return s.StorePath
}

func (s Store) GetRedisAddr() string {
	return s.RedisAddr
}

func (s Store) GetRedisPassword() string {
	return s.RedisPassword
}

func (s Store) GetRedisDB() int {
	return s.RedisDB
}

// GetStoreKeyPrefix namespaces session keys when several devices share one
// redis instance.
func (s Store) GetStoreKeyPrefix() string {
	return s.StoreKeyPrefix
}
