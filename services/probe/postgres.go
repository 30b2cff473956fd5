package probe

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
)

const markerTable = "deploy_commander_marker"

// PostgresDSN builds a connection URL for the database published on the host.
func PostgresDSN(host string, port int, user, password, database string) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, password),
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     "/" + database,
		RawQuery: "sslmode=disable&connect_timeout=5",
	}
	return u.String()
}

func connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	cfg.MaxConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create db pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

// PostgresReady waits until the database accepts connections.
func PostgresReady(ctx context.Context, dsn string, b Backoff) error {
	if _, err := pgx.ParseConfig(dsn); err != nil {
		return fmt.Errorf("parse db config: %w", err)
	}
	return b.do(ctx, func(ctx context.Context) error {
		pool, err := connect(ctx, dsn)
		if err != nil {
			return retry.RetryableError(err)
		}
		pool.Close()
		return nil
	})
}

// PersistenceRoundTrip writes a marker row, restarts the database through
// restart, and checks the marker is still there afterwards.
func PersistenceRoundTrip(ctx context.Context, dsn string, b Backoff, restart func(context.Context) error) error {
	marker := uuid.New()

	// 1) write
	if err := PostgresReady(ctx, dsn, b); err != nil {
		return err
	}
	pool, err := connect(ctx, dsn)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+markerTable+` (id uuid PRIMARY KEY, written_at timestamptz NOT NULL DEFAULT now())`)
	if err == nil {
		_, err = pool.Exec(ctx, `INSERT INTO `+markerTable+` (id) VALUES ($1)`, marker)
	}
	pool.Close()
	if err != nil {
		return fmt.Errorf("write marker: %w", err)
	}

	// 2) restart
	if err := restart(ctx); err != nil {
		return fmt.Errorf("restart database: %w", err)
	}

	// 3) read back
	if err := PostgresReady(ctx, dsn, b); err != nil {
		return fmt.Errorf("database after restart: %w", err)
	}
	pool, err = connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer pool.Close()

	var found bool
	if err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+markerTable+` WHERE id = $1)`, marker).Scan(&found); err != nil {
		return fmt.Errorf("read marker: %w", err)
	}
	if !found {
		return fmt.Errorf("marker %s was lost across the restart", marker)
	}

	if _, err := pool.Exec(ctx, `DELETE FROM `+markerTable+` WHERE id = $1`, marker); err != nil {
		return fmt.Errorf("delete marker: %w", err)
	}
	return nil
}
