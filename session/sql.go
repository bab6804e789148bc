package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/idtrust/rpflow/oidc"
)

// DefaultTableName is the table SQL keeps its sessions in.
const DefaultTableName = "rpflow_session"

var tableNameRx = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQL keeps sessions in a database/sql table, one row per session key. The
// statements are written for sqlite and postgres compatible upserts.
type SQL struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

var _ Backend = (*SQL)(nil)

// NewSQL creates a SQL backend on db and creates its table if it does not
// exist. The caller owns db and closes it.
//
// Supported options: WithTableName, WithNow
func NewSQL(ctx context.Context, db *sql.DB, opt ...oidc.Option) (*SQL, error) {
	const op = "session.NewSQL"
	if db == nil {
		return nil, oidc.NewError(oidc.KindConfiguration, oidc.WithOp(op), oidc.WithMsg("db is nil"), oidc.WithWrap(oidc.ErrNilParameter))
	}
	opts := getSQLOpts(opt...)
	if !tableNameRx.MatchString(opts.withTableName) {
		return nil, oidc.NewError(oidc.KindConfiguration, oidc.WithOp(op), oidc.WithMsg(fmt.Sprintf("table name %q is invalid", opts.withTableName)), oidc.WithWrap(oidc.ErrInvalidParameter))
	}
	s := &SQL{db: db, table: opts.withTableName, now: opts.withNowFunc}
	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			session_id  TEXT NOT NULL,
			key         TEXT NOT NULL,
			value       TEXT NOT NULL,
			updated_at  INTEGER NOT NULL,
			PRIMARY KEY (session_id, key)
		);`, s.table)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, oidc.NewError(oidc.KindInternal, oidc.WithOp(op), oidc.WithMsg(fmt.Sprintf("unable to create table %s", s.table)), oidc.WithWrap(err))
	}
	return s, nil
}

// Store returns the oidc.Store of sessionID.
func (s *SQL) Store(sessionID string) oidc.Store {
	return &sqlStore{s: s, sessionID: sessionID}
}

// Purge deletes the values of every session not written to since before and
// returns how many values it deleted. Sessions of abandoned flows are only
// ever removed by Purge.
func (s *SQL) Purge(ctx context.Context, before time.Time) (int64, error) {
	const op = "SQL.Purge"
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE updated_at < ?`, s.table), before.Unix())
	if err != nil {
		return 0, oidc.NewError(oidc.KindInternal, oidc.WithOp(op), oidc.WithWrap(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, oidc.NewError(oidc.KindInternal, oidc.WithOp(op), oidc.WithWrap(err))
	}
	return n, nil
}

type sqlStore struct {
	s         *SQL
	sessionID string
}

func (st *sqlStore) Set(ctx context.Context, key, value string) error {
	q := fmt.Sprintf(`
		INSERT INTO %s (session_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (session_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`, st.s.table)
	_, err := st.s.db.ExecContext(ctx, q, st.sessionID, key, value, st.s.now().Unix())
	return err
}

func (st *sqlStore) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := st.s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT value FROM %s WHERE session_id = ? AND key = ?`, st.s.table), st.sessionID, key).Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	return v, true, nil
}

func (st *sqlStore) RemoveAll(ctx context.Context) error {
	_, err := st.s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE session_id = ?`, st.s.table), st.sessionID)
	return err
}

// sqlOptions is the set of available options for SQL
type sqlOptions struct {
	withTableName string
	withNowFunc   func() time.Time
}

// sqlDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func sqlDefaults() sqlOptions {
	return sqlOptions{
		withTableName: DefaultTableName,
		withNowFunc:   time.Now,
	}
}

// getSQLOpts gets the defaults and applies the opt overrides passed in.
func getSQLOpts(opt ...oidc.Option) sqlOptions {
	opts := sqlDefaults()
	oidc.ApplyOpts(&opts, opt...)
	return opts
}

// WithTableName provides an optional table name for SQL.
func WithTableName(name string) oidc.Option {
	return func(o interface{}) {
		if o, ok := o.(*sqlOptions); ok {
			o.withTableName = name
		}
	}
}

// WithNow provides an optional func for the time SQL stamps its rows with.
func WithNow(now func() time.Time) oidc.Option {
	return func(o interface{}) {
		if o, ok := o.(*sqlOptions); ok && now != nil {
			o.withNowFunc = now
		}
	}
}
