package repository

import (
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/opensource-finance/harrier/internal/domain"
)

func TestPostgresDSN(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		dsn := postgresDSN(domain.RepositoryConfig{Driver: "postgres"})
		u, err := url.Parse(dsn)
		if err != nil {
			t.Fatalf("dsn is not a URL: %v", err)
		}
		if u.Host != "localhost:5432" || u.Path != "/harrier" {
			t.Errorf("unexpected target %s%s", u.Host, u.Path)
		}
		if got := u.Query().Get("sslmode"); got != "disable" {
			t.Errorf("expected sslmode disable, got %q", got)
		}
		if u.User != nil {
			t.Errorf("expected no credentials, got %v", u.User)
		}
	})

	t.Run("EscapesCredentials", func(t *testing.T) {
		dsn := postgresDSN(domain.RepositoryConfig{
			PostgresHost:     "db.internal",
			PostgresPort:     6543,
			PostgresUser:     "harrier",
			PostgresPassword: "p@ss word",
			PostgresDB:       "decisions",
			PostgresSSLMode:  "require",
		})
		u, err := url.Parse(dsn)
		if err != nil {
			t.Fatalf("dsn is not a URL: %v", err)
		}
		if pw, _ := u.User.Password(); pw != "p@ss word" {
			t.Errorf("password not round-tripped, got %q", pw)
		}
		if u.Host != "db.internal:6543" || u.Path != "/decisions" {
			t.Errorf("unexpected target %s%s", u.Host, u.Path)
		}
		if got := u.Query().Get("sslmode"); got != "require" {
			t.Errorf("expected sslmode require, got %q", got)
		}
	})
}

func TestSQLiteDSN(t *testing.T) {
	dsn := sqliteDSN("/var/lib/harrier/harrier.db")
	if !strings.HasPrefix(dsn, "file:/var/lib/harrier/harrier.db?") {
		t.Fatalf("unexpected dsn %q", dsn)
	}

	q, err := url.ParseQuery(strings.SplitN(dsn, "?", 2)[1])
	if err != nil {
		t.Fatalf("bad query: %v", err)
	}
	if len(q["_pragma"]) != 4 {
		t.Errorf("expected 4 pragmas, got %v", q["_pragma"])
	}
	if q.Get("_time_format") != "sqlite" {
		t.Errorf("expected _time_format=sqlite, got %q", q.Get("_time_format"))
	}

	if got := sqliteDSN(""); !strings.HasPrefix(got, "file:./harrier.db?") {
		t.Errorf("expected default path, got %q", got)
	}
}

func TestDataSourceRejectsUnknownDriver(t *testing.T) {
	_, _, err := dataSource(domain.RepositoryConfig{Driver: "mysql"})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}
