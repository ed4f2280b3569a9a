package metrics

import (
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RecordPgxPoolMetrics updates pool gauges from a pgx pool.
func RecordPgxPoolMetrics(pool *pgxpool.Pool) {
	stats := pool.Stat()

	DBPoolConnections.WithLabelValues("postgres", "in_use").Set(float64(stats.AcquiredConns()))
	DBPoolConnections.WithLabelValues("postgres", "idle").Set(float64(stats.IdleConns()))
	DBPoolConnections.WithLabelValues("postgres", "max").Set(float64(stats.MaxConns()))
}

// RecordSQLDBMetrics updates pool gauges from a database/sql handle.
func RecordSQLDBMetrics(db *sql.DB) {
	stats := db.Stats()

	DBPoolConnections.WithLabelValues("sqlite", "in_use").Set(float64(stats.InUse))
	DBPoolConnections.WithLabelValues("sqlite", "idle").Set(float64(stats.Idle))
	DBPoolConnections.WithLabelValues("sqlite", "max").Set(float64(stats.MaxOpenConnections))
}
