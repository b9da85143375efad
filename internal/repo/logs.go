package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"razmkar/internal/domain"
)

func scanProjectLog(row rowScanner) (domain.ProjectLog, error) {
	var (
		l  domain.ProjectLog
		by sql.NullString
	)
	err := row.Scan(&l.ID, &l.ProjectID, &l.Type, &l.Note, &by, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	l.CreatedBy = by.String
	return l, err
}

func (r Repo) InsertProjectLogTx(ctx context.Context, tx *sql.Tx, l domain.ProjectLog) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO project_logs(project_id,type,note,created_by,created_at) VALUES (?,?,?,?,?)`,
		l.ProjectID, l.Type, l.Note, nullable(l.CreatedBy), l.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetProjectLog(ctx context.Context, id int64) (domain.ProjectLog, error) {
	return scanProjectLog(r.DB.QueryRowContext(ctx, `SELECT id,project_id,type,note,created_by,created_at FROM project_logs WHERE id=?`, id))
}

func (r Repo) ListProjectLogs(ctx context.Context, projectID int64) ([]domain.ProjectLog, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,project_id,type,note,created_by,created_at FROM project_logs WHERE project_id=? ORDER BY created_at DESC, id DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ProjectLog
	for rows.Next() {
		l, err := scanProjectLog(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func (r Repo) UpdateProjectLogTx(ctx context.Context, tx *sql.Tx, id int64, logType, note, createdBy *string) error {
	var (
		fields []string
		args   []any
	)
	if logType != nil {
		fields = append(fields, "type=?")
		args = append(args, *logType)
	}
	if note != nil {
		fields = append(fields, "note=?")
		args = append(args, *note)
	}
	if createdBy != nil {
		fields = append(fields, "created_by=?")
		args = append(args, nullable(*createdBy))
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE project_logs SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProjectLogTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM project_logs WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMissionLog(row rowScanner) (domain.MissionLog, error) {
	var (
		l                 domain.MissionLog
		content, path, by sql.NullString
	)
	err := row.Scan(&l.ID, &l.MissionID, &l.Type, &content, &path, &by, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	l.Content = content.String
	l.FilePath = path.String
	l.CreatedBy = by.String
	return l, err
}

func (r Repo) InsertMissionLogTx(ctx context.Context, tx *sql.Tx, l domain.MissionLog) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO mission_logs(mission_id,type,content,file_path,created_by,created_at) VALUES (?,?,?,?,?,?)`,
		l.MissionID, l.Type, nullable(l.Content), nullable(l.FilePath), nullable(l.CreatedBy), l.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetMissionLog(ctx context.Context, id int64) (domain.MissionLog, error) {
	return scanMissionLog(r.DB.QueryRowContext(ctx, `SELECT id,mission_id,type,content,file_path,created_by,created_at FROM mission_logs WHERE id=?`, id))
}

// ListMissionLogs returns newest entries first.
func (r Repo) ListMissionLogs(ctx context.Context, missionID int64) ([]domain.MissionLog, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,mission_id,type,content,file_path,created_by,created_at FROM mission_logs WHERE mission_id=? ORDER BY created_at DESC, id DESC`, missionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.MissionLog
	for rows.Next() {
		l, err := scanMissionLog(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func (r Repo) DeleteMissionLogTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM mission_logs WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AttachmentPaths lists stored files referenced by the given missions' logs.
func (r Repo) AttachmentPaths(ctx context.Context, tx *sql.Tx, missionIDs []int64) ([]string, error) {
	if len(missionIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(missionIDs))
	args := []any{domain.LogFileUpload}
	for i, id := range missionIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	rows, err := tx.QueryContext(ctx, `SELECT file_path FROM mission_logs WHERE type=? AND file_path IS NOT NULL AND mission_id IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}
