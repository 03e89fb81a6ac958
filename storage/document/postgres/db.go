package pgdoc

import (
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
)

// ConnInfo builds the connection string; the change-feed listener needs it
// besides the pooled handle.
func ConnInfo(conf *core.Config) string {
	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   conf.Database.Engine,
		User:     url.UserPassword(conf.Database.User, conf.Database.Password),
		Host:     conf.Database.Address(),
		Path:     conf.Database.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func Open(conf *core.Config) (*sqlx.DB, error) {
	db, err := sqlx.Open(conf.Database.Engine, ConnInfo(conf))
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err = ping(db); err != nil {
		return nil, err
	}
	if err = bootstrap(db); err != nil {
		return nil, err
	}
	return db, nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(db *sqlx.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = db.Ping()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

// bootstrap creates the document tables. The store keeps whole documents in
// jsonb columns addressed by their composite keys; there is no relational
// schema to migrate.
func bootstrap(db *sqlx.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS courses (
			id  text PRIMARY KEY,
			doc jsonb NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS students (
			id  text PRIMARY KEY,
			doc jsonb NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS attendance_rollups (
			course_id text NOT NULL,
			date      text NOT NULL,
			doc       jsonb NOT NULL,
			PRIMARY KEY (course_id, date)
		)`,
		`CREATE TABLE IF NOT EXISTS attendance_dates (
			date text PRIMARY KEY,
			doc  jsonb NOT NULL
		)`,
	}
	for _, q := range schema {
		if _, err := db.Exec(q); err != nil {
			return errors.Wrap(err, "bootstrapping document tables")
		}
	}
	return nil
}
