package findings

import (
	"context"
	"database/sql"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Save upserts by token so re-validated candidates refresh their outcome
// instead of duplicating rows.
func (r *PostgresRepo) Save(ctx context.Context, f *Finding) error {
	query := `INSERT INTO findings (id, token, login, outcome, cause, repo_name, file_path, file_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (token) DO UPDATE SET login = EXCLUDED.login, outcome = EXCLUDED.outcome, cause = EXCLUDED.cause`
	_, err := r.db.ExecContext(ctx, query, f.ID, f.Token, f.Login, f.Outcome, f.Cause, f.RepoName, f.FilePath, f.FileURL, f.CreatedAt)
	return err
}

func (r *PostgresRepo) CountByOutcome(ctx context.Context) (map[string]int, error) {
	query := `SELECT outcome, COUNT(*) FROM findings GROUP BY outcome`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, err
		}
		counts[outcome] = count
	}
	return counts, rows.Err()
}

func (r *PostgresRepo) ListRecent(ctx context.Context, limit int) ([]Finding, error) {
	query := `SELECT id, token, login, outcome, cause, repo_name, file_path, file_url, created_at
		FROM findings ORDER BY created_at DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Finding
	for rows.Next() {
		var f Finding
		if err := rows.Scan(&f.ID, &f.Token, &f.Login, &f.Outcome, &f.Cause, &f.RepoName, &f.FilePath, &f.FileURL, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
