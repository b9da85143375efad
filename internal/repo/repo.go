package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"razmkar/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const projectColumns = `id,goal,client_name,status,created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (domain.Project, error) {
	var p domain.Project
	err := row.Scan(&p.ID, &p.Goal, &p.ClientName, &p.Status, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) InsertProjectTx(ctx context.Context, tx *sql.Tx, p domain.Project) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO projects(goal,client_name,status,created_at) VALUES (?,?,?,?)`,
		p.Goal, p.ClientName, p.Status, p.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetProject(ctx context.Context, id int64) (domain.Project, error) {
	return scanProject(r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Project, error) {
	return scanProject(tx.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

// RecentProjects returns the newest projects first.
func (r Repo) RecentProjects(ctx context.Context, limit int) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProjects(rows)
}

// ProjectFilters drive the project management listing.
type ProjectFilters struct {
	Q       string
	Status  string
	Sort    string
	Order   string
	PerPage int
	Page    int
}

var projectSortColumns = map[string]string{
	"id":      "id",
	"client":  "client_name",
	"created": "created_at",
	"status":  "status",
}

// ListProjects returns one page of projects plus the total matching rows.
func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, int, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if q := strings.TrimSpace(f.Q); q != "" {
		if id, ok := hashID(q); ok {
			clauses = append(clauses, "id=?")
			args = append(args, id)
		} else {
			clauses = append(clauses, "(client_name LIKE ? OR goal LIKE ?)")
			like := "%" + q + "%"
			args = append(args, like, like)
		}
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM projects `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	col, ok := projectSortColumns[f.Sort]
	if !ok {
		col = "created_at"
	}
	dir := "DESC"
	if f.Order == "asc" {
		dir = "ASC"
	}
	perPage := f.PerPage
	if perPage <= 0 {
		perPage = 50
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	query := fmt.Sprintf(`SELECT %s FROM projects %s ORDER BY %s %s, id %s LIMIT ? OFFSET ?`, projectColumns, where, col, dir, dir)
	args = append(args, perPage, (page-1)*perPage)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collectProjects(rows)
	return items, total, err
}

func collectProjects(rows *sql.Rows) ([]domain.Project, error) {
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// hashID parses "#<digits>" search input as an id lookup.
func hashID(q string) (int64, bool) {
	if !strings.HasPrefix(q, "#") || len(q) < 2 {
		return 0, false
	}
	id, err := strconv.ParseInt(q[1:], 10, 64)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

func (r Repo) UpdateProjectTx(ctx context.Context, tx *sql.Tx, id int64, goal, clientName, status *string) error {
	var (
		fields []string
		args   []any
	)
	if goal != nil {
		fields = append(fields, "goal=?")
		args = append(args, *goal)
	}
	if clientName != nil {
		fields = append(fields, "client_name=?")
		args = append(args, *clientName)
	}
	if status != nil {
		fields = append(fields, "status=?")
		args = append(args, *status)
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProjectTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountProjectsByStatus reports every known status, zero when absent.
func (r Repo) CountProjectsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM projects GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for _, s := range domain.ProjectStatuses {
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

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableInt64Ptr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
