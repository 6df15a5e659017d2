package pg

import "time"

// Config describes the PostgreSQL connection pool settings.
//
// The pool is deliberately small: the service scales by adding instances,
// not by widening any single instance's connection budget, so each process
// holds only a handful of connections against the shared database.
type Config struct {
	ConnectionString string        `env:"PG_CONN_URL,required"`             // Connection string in postgres:// form.
	MaxOpenConns     int32         `env:"PG_MAX_OPEN_CONNS" envDefault:"5"` // Maximum number of open connections per instance.
	MaxIdleConns     int32         `env:"PG_MAX_IDLE_CONNS" envDefault:"2"` // Minimum number of warm connections kept in the pool.
	MaxConnIdleTime  time.Duration `env:"PG_MAX_CONN_IDLE_TIME" envDefault:"10m"`
	MaxConnLifetime  time.Duration `env:"PG_MAX_CONN_LIFETIME" envDefault:"30m"`

	RetryAttempts int           `env:"PG_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval time.Duration `env:"PG_RETRY_INTERVAL" envDefault:"5s"`

	MigrationsPath  string `env:"PG_MIGRATIONS_PATH" envDefault:"migrations"`
	MigrationsTable string `env:"PG_MIGRATIONS_TABLE" envDefault:"schema_migrations"`
}
