package database

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/TobiSchelling/keibareview/internal/store"
)

// updatable maps store field names to columns per table. Fields outside
// this set are rejected.
var updatable = map[string]map[string]string{
	store.TableSites: {
		"SiteQuality":     "site_quality",
		"DisplayPriority": "display_priority",
		"IsApproved":      "is_approved",
	},
	store.TableReviews: {
		"Status":     "status",
		"IsApproved": "is_approved",
	},
}

// UpdateRecords applies at most store.MaxBatch updates in one transaction.
// Either every record is updated or none is.
func (db *DB) UpdateRecords(ctx context.Context, table string, updates []store.RecordUpdate) (int, error) {
	if len(updates) > store.MaxBatch {
		return 0, fmt.Errorf("%d records exceeds batch limit of %d", len(updates), store.MaxBatch)
	}
	columns, ok := updatable[table]
	if !ok {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	sqlTable := strings.ToLower(table)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	for _, u := range updates {
		if len(u.Fields) == 0 {
			continue
		}
		names := make([]string, 0, len(u.Fields))
		for name := range u.Fields {
			names = append(names, name)
		}
		sort.Strings(names)

		sets := make([]string, 0, len(names))
		args := make([]any, 0, len(names)+1)
		for _, name := range names {
			col, ok := columns[name]
			if !ok {
				return 0, fmt.Errorf("field %q is not updatable on %s", name, table)
			}
			sets = append(sets, col+" = ?")
			args = append(args, columnValue(u.Fields[name]))
		}
		args = append(args, u.ID)

		res, err := tx.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", sqlTable, strings.Join(sets, ", ")), args...)
		if err != nil {
			return 0, fmt.Errorf("updating %s: %w", u.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return 0, fmt.Errorf("record %s not found in %s", u.ID, table)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(updates), nil
}

func columnValue(v any) any {
	if b, ok := v.(bool); ok {
		return boolInt(b)
	}
	return v
}
