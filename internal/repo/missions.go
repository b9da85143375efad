package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"razmkar/internal/domain"
)

const missionColumns = `id,project_id,parent_id,title,COALESCE(note,''),COALESCE(description,''),due_date,status,created_at,updated_at`

func scanMission(row rowScanner) (domain.Mission, error) {
	var (
		m      domain.Mission
		parent sql.NullInt64
		due    sql.NullString
	)
	err := row.Scan(&m.ID, &m.ProjectID, &parent, &m.Title, &m.Note, &m.Description, &due, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	if parent.Valid {
		id := parent.Int64
		m.ParentID = &id
	}
	if due.Valid && due.String != "" {
		d := due.String
		m.DueDate = &d
	}
	return m, nil
}

func collectMissions(rows *sql.Rows) ([]domain.Mission, error) {
	var res []domain.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) InsertMissionTx(ctx context.Context, tx *sql.Tx, m domain.Mission) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO missions(project_id,parent_id,title,note,description,due_date,status,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		m.ProjectID, nullableInt64Ptr(m.ParentID), m.Title, nullable(m.Note), nullable(m.Description), nullableStringPtr(m.DueDate), m.Status, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) UpdateMissionTx(ctx context.Context, tx *sql.Tx, m domain.Mission) error {
	res, err := tx.ExecContext(ctx, `UPDATE missions SET parent_id=?, title=?, note=?, description=?, due_date=?, status=?, updated_at=? WHERE id=?`,
		nullableInt64Ptr(m.ParentID), m.Title, nullable(m.Note), nullable(m.Description), nullableStringPtr(m.DueDate), m.Status, m.UpdatedAt, m.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetMission(ctx context.Context, id int64) (domain.Mission, error) {
	return scanMission(r.DB.QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE id=?`, id))
}

func (r Repo) GetMissionTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Mission, error) {
	return scanMission(tx.QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE id=?`, id))
}

// GetMissions resolves many ids at once; unknown ids are simply absent.
func (r Repo) GetMissions(ctx context.Context, ids []int64) (map[int64]domain.Mission, error) {
	res := map[int64]domain.Mission{}
	if len(ids) == 0 {
		return res, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE id IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items, err := collectMissions(rows)
	if err != nil {
		return nil, err
	}
	for _, m := range items {
		res[m.ID] = m
	}
	return res, nil
}

func (r Repo) DeleteMissionTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM missions WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MissionFilters narrow a project's missions.
type MissionFilters struct {
	ProjectID int64
	Status    string
	Q         string
	TopOnly   bool
	Limit     int
}

func (f MissionFilters) where() (string, []any) {
	clauses := []string{"project_id=?"}
	args := []any{f.ProjectID}
	if f.TopOnly {
		clauses = append(clauses, "parent_id IS NULL")
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if q := strings.TrimSpace(f.Q); q != "" {
		like := "%" + q + "%"
		clauses = append(clauses, "(title LIKE ? OR COALESCE(note,'') LIKE ?)")
		args = append(args, like, like)
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// ListMissions orders by due date (undated last) then newest first.
func (r Repo) ListMissions(ctx context.Context, f MissionFilters) ([]domain.Mission, error) {
	where, args := f.where()
	query := `SELECT ` + missionColumns + ` FROM missions ` + where + ` ORDER BY due_date IS NULL, due_date ASC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMissions(rows)
}

// ProjectMissions returns every mission of a project in insertion order.
func (r Repo) ProjectMissions(ctx context.Context, projectID int64) ([]domain.Mission, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE project_id=? ORDER BY id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMissions(rows)
}

// CountMissionsByStatus ignores Status, Q and Limit so counters cover the whole project.
func (r Repo) CountMissionsByStatus(ctx context.Context, f MissionFilters) (map[string]int, error) {
	where, args := MissionFilters{ProjectID: f.ProjectID, TopOnly: f.TopOnly}.where()
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM missions `+where+` GROUP BY status`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for _, s := range domain.MissionStatuses {
		res[s] = 0
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

// DueFilter selects open missions by due date.
type DueFilter struct {
	From string
	To   string
	// Before selects missions due strictly before this date.
	Before string
}

// OpenMissionsDue lists missions that are not done, matched on due date.
func (r Repo) OpenMissionsDue(ctx context.Context, f DueFilter) ([]domain.Mission, error) {
	clauses := []string{"status != ?", "due_date IS NOT NULL"}
	args := []any{domain.MissionDone}
	switch {
	case f.Before != "":
		clauses = append(clauses, "due_date < ?")
		args = append(args, f.Before)
	case f.From != "" && f.To != "":
		clauses = append(clauses, "due_date BETWEEN ? AND ?")
		args = append(args, f.From, f.To)
	default:
		return nil, fmt.Errorf("due filter needs before or from/to")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE `+strings.Join(clauses, " AND ")+` ORDER BY due_date, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMissions(rows)
}

// SubtreeIDs returns the mission and all of its descendants.
func (r Repo) SubtreeIDs(ctx context.Context, tx *sql.Tx, id int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, `WITH RECURSIVE sub(id) AS (
  SELECT id FROM missions WHERE id=?
  UNION ALL
  SELECT m.id FROM missions m JOIN sub ON m.parent_id = sub.id
) SELECT id FROM sub`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		ids = append(ids, v)
	}
	return ids, rows.Err()
}
