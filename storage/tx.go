package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Tx is a transaction addressing tables and columns by name.
type Tx struct {
	tx *sqlx.Tx
}

// Select returns the row of table matching key, or ErrNotFound.
func (t *Tx) Select(ctx context.Context, table string, key Record) (Record, error) {
	rows, err := t.SelectAll(ctx, table, key)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s %v", ErrNotFound, table, key)
	}
	return rows[0], nil
}

// SelectAll returns the rows of table matching where, ordered by the table key.
func (t *Tx) SelectAll(ctx context.Context, table string, where Record) ([]Record, error) {
	if err := checkIdentifier(table); err != nil {
		return nil, err
	}
	clause, args, err := whereClause(where)
	if err != nil {
		return nil, err
	}

	query := "SELECT * FROM " + table + clause
	if desc, err := LookupTable(table); err == nil {
		query += " ORDER BY " + strings.Join(desc.Key, ", ")
	}

	rows, err := t.tx.QueryxContext(ctx, t.tx.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, normalizeRow(row))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return out, nil
}

// Count returns the number of rows of table matching where.
func (t *Tx) Count(ctx context.Context, table string, where Record) (int64, error) {
	if err := checkIdentifier(table); err != nil {
		return 0, err
	}
	clause, args, err := whereClause(where)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := t.tx.GetContext(ctx, &n, t.tx.Rebind("SELECT COUNT(*) FROM "+table+clause), args...); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// NextID returns one more than the highest value of an integer column.
func (t *Tx) NextID(ctx context.Context, table, column string) (int64, error) {
	if err := checkIdentifier(table); err != nil {
		return 0, err
	}
	if err := checkIdentifier(column); err != nil {
		return 0, err
	}
	var n int64
	query := "SELECT COALESCE(MAX(" + column + "), 0) + 1 FROM " + table
	if err := t.tx.GetContext(ctx, &n, query); err != nil {
		return 0, fmt.Errorf("next id of %s: %w", table, err)
	}
	return n, nil
}

// Insert adds a row.
func (t *Tx) Insert(ctx context.Context, table string, values Record) error {
	if err := checkIdentifier(table); err != nil {
		return err
	}
	cols := sortedColumns(values)
	if len(cols) == 0 {
		return fmt.Errorf("insert %s: no values", table)
	}
	args := make([]any, len(cols))
	for i, c := range cols {
		if err := checkIdentifier(c); err != nil {
			return err
		}
		args[i] = values[c]
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
	if _, err := t.tx.ExecContext(ctx, t.tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

// Update sets values on the rows matching key.
func (t *Tx) Update(ctx context.Context, table string, key, values Record) error {
	if err := checkIdentifier(table); err != nil {
		return err
	}
	cols := sortedColumns(values)
	if len(cols) == 0 {
		return fmt.Errorf("update %s: no values", table)
	}
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+len(key))
	for i, c := range cols {
		if err := checkIdentifier(c); err != nil {
			return err
		}
		sets[i] = c + " = ?"
		args = append(args, values[c])
	}

	clause, whereArgs, err := whereClause(key)
	if err != nil {
		return err
	}
	args = append(args, whereArgs...)

	query := "UPDATE " + table + " SET " + strings.Join(sets, ", ") + clause
	if _, err := t.tx.ExecContext(ctx, t.tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	return nil
}

// Delete removes the rows matching where and returns how many were removed.
func (t *Tx) Delete(ctx context.Context, table string, where Record) (int64, error) {
	if err := checkIdentifier(table); err != nil {
		return 0, err
	}
	clause, args, err := whereClause(where)
	if err != nil {
		return 0, err
	}
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind("DELETE FROM "+table+clause), args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	return res.RowsAffected()
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback aborts the transaction.
func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

func whereClause(where Record) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}
	cols := sortedColumns(where)
	parts := make([]string, len(cols))
	var args []any
	for i, c := range cols {
		if err := checkIdentifier(c); err != nil {
			return "", nil, err
		}
		if where[c] == nil {
			parts[i] = c + " IS NULL"
			continue
		}
		parts[i] = c + " = ?"
		args = append(args, where[c])
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func sortedColumns(r Record) []string {
	cols := make([]string, 0, len(r))
	for c := range r {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// normalizeRow turns driver byte slices into strings.
func normalizeRow(row map[string]any) Record {
	out := make(Record, len(row))
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		out[k] = v
	}
	return out
}
