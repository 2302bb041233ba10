package main

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
)

// DaySummary aggregates the final tick of every recorded attempt of one date
// and source.
type DaySummary struct {
	Date      string
	Source    string
	Attempts  int64
	Wins      int64
	Losses    int64
	Abandoned int64
	AvgTicks  float64
	BestWin   sql.NullInt64
}

// replayFiles lists parquet files under roots, skipping in-progress writes.
func replayFiles(roots []string) ([]string, error) {
	var files []string
	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() && d.Name() == "tmp" {
				return filepath.SkipDir
			}
			if !d.IsDir() && strings.HasSuffix(path, ".parquet") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

// openReplays exposes files as a "ticks" view in an in-memory DuckDB.
func openReplays(files []string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, err
	}
	_, _ = db.Exec("PRAGMA threads=4")

	quoted := make([]string, 0, len(files))
	for _, f := range files {
		quoted = append(quoted, "'"+escapeSQLString(f)+"'")
	}
	sqlText := `CREATE OR REPLACE VIEW ticks AS
		SELECT * FROM read_parquet([` + strings.Join(quoted, ",") + `], filename=true, union_by_name=true)`
	if _, err := db.Exec(sqlText); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// summarise reports per date and source, newest date first. An empty date
// covers every date.
func summarise(ctx context.Context, db *sql.DB, date string) ([]DaySummary, error) {
	query := `
	WITH attempts AS (
		SELECT
			attempt_id,
			any_value(date) AS date,
			any_value(source) AS source,
			max(tick) AS ticks,
			arg_max(state, tick) AS state
		FROM ticks
		GROUP BY attempt_id
	)
	SELECT
		date,
		source,
		count(*),
		count_if(state = 'won'),
		count_if(state = 'lost'),
		count_if(state = 'abandoned'),
		avg(ticks),
		min(CASE WHEN state = 'won' THEN ticks END)
	FROM attempts
	WHERE ? = '' OR date = ?
	GROUP BY date, source
	ORDER BY date DESC, source`

	rows, err := db.QueryContext(ctx, query, date, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DaySummary
	for rows.Next() {
		var s DaySummary
		if err := rows.Scan(&s.Date, &s.Source, &s.Attempts, &s.Wins, &s.Losses, &s.Abandoned, &s.AvgTicks, &s.BestWin); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
