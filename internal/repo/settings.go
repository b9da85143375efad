package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"razmkar/internal/domain"
)

// GlobalScope is the only settings scope in use.
const GlobalScope = "global"

// AnyVersion skips the optimistic check on PutSetting.
const AnyVersion int64 = -1

// ErrVersionConflict reports that a row changed since it was read.
var ErrVersionConflict = errors.New("version conflict")

func (r Repo) GetSetting(ctx context.Context, scope, key string) (domain.Setting, error) {
	return getSetting(ctx, r.DB, scope, key)
}

func (r Repo) GetSettingTx(ctx context.Context, tx *sql.Tx, scope, key string) (domain.Setting, error) {
	return getSetting(ctx, tx, scope, key)
}

func getSetting(ctx context.Context, q queryer, scope, key string) (domain.Setting, error) {
	var s domain.Setting
	err := q.QueryRowContext(ctx, `SELECT scope,key,value,version,updated_at FROM app_settings WHERE scope=? AND key=?`, scope, key).
		Scan(&s.Scope, &s.Key, &s.Value, &s.Version, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

// ListSettings returns rows whose key starts with prefix, ordered by key.
func (r Repo) ListSettings(ctx context.Context, scope, prefix string) ([]domain.Setting, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT scope,key,value,version,updated_at FROM app_settings WHERE scope=? AND substr(key,1,?)=? ORDER BY key`, scope, len(prefix), prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Setting
	for rows.Next() {
		var s domain.Setting
		if err := rows.Scan(&s.Scope, &s.Key, &s.Value, &s.Version, &s.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// PutSetting writes value and returns the new version.
// expected is the version the caller read: 0 means the row must not exist yet,
// AnyVersion overwrites unconditionally. A mismatch yields ErrVersionConflict.
func (r Repo) PutSetting(ctx context.Context, scope, key, value string, expected int64) (int64, error) {
	return putSetting(ctx, r.DB, scope, key, value, expected)
}

func (r Repo) PutSettingTx(ctx context.Context, tx *sql.Tx, scope, key, value string, expected int64) (int64, error) {
	return putSetting(ctx, tx, scope, key, value, expected)
}

func putSetting(ctx context.Context, q queryer, scope, key, value string, expected int64) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	switch {
	case expected == AnyVersion:
		if _, err := q.ExecContext(ctx, `INSERT INTO app_settings(scope,key,value,version,updated_at) VALUES (?,?,?,1,?)
ON CONFLICT(scope,key) DO UPDATE SET value=excluded.value, version=app_settings.version+1, updated_at=excluded.updated_at`,
			scope, key, value, now); err != nil {
			return 0, err
		}
		s, err := getSetting(ctx, q, scope, key)
		if err != nil {
			return 0, err
		}
		return s.Version, nil
	case expected == 0:
		res, err := q.ExecContext(ctx, `INSERT INTO app_settings(scope,key,value,version,updated_at) VALUES (?,?,?,1,?)
ON CONFLICT(scope,key) DO NOTHING`, scope, key, value, now)
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return 0, ErrVersionConflict
		}
		return 1, nil
	case expected > 0:
		res, err := q.ExecContext(ctx, `UPDATE app_settings SET value=?, version=version+1, updated_at=? WHERE scope=? AND key=? AND version=?`,
			value, now, scope, key, expected)
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return 0, ErrVersionConflict
		}
		return expected + 1, nil
	default:
		return 0, errors.New("invalid expected version")
	}
}

func (r Repo) DeleteSetting(ctx context.Context, scope, key string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM app_settings WHERE scope=? AND key=?`, scope, key)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
