package config

type DatabaseConfig interface {
	GetDatabaseURL() string
	GetDatabaseMaxConns() int32
}

type Database struct {
	DatabaseURL      string `env:"DATABASE_URL"`
	DatabaseMaxConns int32  `env:"DATABASE_MAX_CONNS" envDefault:"5"`
}

var _ DatabaseConfig = Database{}

// GetDatabaseURL returns the postgres DSN for the real-database backend. An
// empty value disables that backend.
func (d Database) GetDatabaseURL() string {
	return d.DatabaseURL
}

func (d Database) GetDatabaseMaxConns() int32 {
	return d.DatabaseMaxConns
}
