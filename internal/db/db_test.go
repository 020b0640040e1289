package db

import (
	"net/url"
	"testing"

	"github.com/jjudge-oj/accountserver/config"
	"github.com/stretchr/testify/require"
)

func TestPostgresURL(t *testing.T) {
	cfg := config.Config{Database: config.DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "accounts",
		Password: "p@ss/word",
		DBName:   "accounts_db",
	}}

	u, err := url.Parse(PostgresURL(cfg))
	require.NoError(t, err)
	require.Equal(t, "postgres", u.Scheme)
	require.Equal(t, "db.internal:5433", u.Host)
	require.Equal(t, "/accounts_db", u.Path)
	pw, _ := u.User.Password()
	require.Equal(t, "p@ss/word", pw)
	require.Equal(t, "disable", u.Query().Get("sslmode"))

	cfg.Database.UseSSL = true
	u, err = url.Parse(PostgresURL(cfg))
	require.NoError(t, err)
	require.Equal(t, "require", u.Query().Get("sslmode"))
}
