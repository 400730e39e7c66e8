package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/ege-ayan/discloned/internal/config"
)

// applicationName tags relay sessions in pg_stat_activity, where the
// long-lived LISTEN connection is easy to pick out.
const applicationName = "discloned-relay"

// BuildConnString turns the chat database settings into a postgres:// URL
// accepted by pgxpool.ParseConfig.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	query := url.Values{}
	query.Set("sslmode", sslMode)
	query.Set("application_name", applicationName)

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: query.Encode(),
	}
	return u.String()
}
