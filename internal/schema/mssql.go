package schema

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	_ "github.com/microsoft/go-mssqldb"
)

// ConnConfig describes how to reach SQL Server.
type ConnConfig struct {
	Server                 string
	Port                   int
	User                   string
	Password               string
	Database               string
	Encrypt                string
	TrustServerCertificate bool
	MaxOpenConns           int
}

// DSN renders the sqlserver:// connection URL understood by go-mssqldb.
func (c ConnConfig) DSN() string {
	port := c.Port
	if port == 0 {
		port = 1433
	}
	q := url.Values{}
	if c.Database != "" {
		q.Set("database", c.Database)
	}
	if c.Encrypt != "" {
		q.Set("encrypt", c.Encrypt)
	}
	if c.TrustServerCertificate {
		q.Set("TrustServerCertificate", "true")
	}
	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Server, strconv.Itoa(port)),
		RawQuery: q.Encode(),
	}
	return u.String()
}

// OpenMSSQL opens a pooled connection to SQL Server and verifies it with a ping.
func OpenMSSQL(ctx context.Context, cfg ConnConfig) (*sql.DB, error) {
	if cfg.Server == "" {
		return nil, fmt.Errorf("database server is not configured")
	}

	db, err := sql.Open("sqlserver", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open sqlserver: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlserver: %w", err)
	}
	return db, nil
}
