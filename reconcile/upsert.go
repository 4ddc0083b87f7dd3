package reconcile

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/shopspring/decimal"

	"github.com/data-for-good-bg/semantic-schools/config"
	"github.com/data-for-good-bg/semantic-schools/storage"
)

// Upserter inserts or updates single rows.
type Upserter struct {
	opener  Opener
	opts    config.RunOptions
	summary *Summary
	logger  *slog.Logger
}

// NewUpserter creates an upserter counting into summary.
func NewUpserter(opener Opener, opts config.RunOptions, summary *Summary, logger *slog.Logger) *Upserter {
	if logger == nil {
		logger = slog.Default()
	}
	if summary == nil {
		summary = NewSummary()
	}
	return &Upserter{opener: opener, opts: opts, summary: summary, logger: logger}
}

// Summary returns the counts collected so far.
func (u *Upserter) Summary() *Summary {
	return u.summary
}

// Options returns the run options.
func (u *Upserter) Options() config.RunOptions {
	return u.opts
}

// Lookup reads one row by key.
func (u *Upserter) Lookup(ctx context.Context, table storage.Table, key storage.Record) (storage.Record, error) {
	var row storage.Record
	err := readAll(ctx, u.opener, func(s Session) error {
		var err error
		row, err = s.Select(ctx, table.Name, key)
		return err
	})
	return row, err
}

// Upsert writes values into table. The row is identified by the table key;
// only the given columns are compared and written. The edit stamp is set on
// every write and never compared.
func (u *Upserter) Upsert(ctx context.Context, table storage.Table, values storage.Record) (ImportAction, error) {
	action, err := u.upsert(ctx, table, values)
	u.summary.Add(table.Name, action)
	if err != nil {
		u.logger.Error("Upsert failed", "table", table.Name, "key", table.KeyOf(values), "error", err)
	}
	return action, err
}

func (u *Upserter) upsert(ctx context.Context, table storage.Table, values storage.Record) (ImportAction, error) {
	sess, err := u.opener.Open(ctx)
	if err != nil {
		return Failed, err
	}
	defer sess.Rollback()

	key := table.KeyOf(values)
	existing, err := sess.Select(ctx, table.Name, key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return u.insert(ctx, sess, table, values)
	case err != nil:
		return Failed, err
	}

	changed := changedColumns(table, existing, values)
	if len(changed) == 0 {
		u.logger.Debug("Found", "table", table.Name, "key", key)
		return AlreadyExists, nil
	}

	update := make(storage.Record, len(changed)+1)
	for _, c := range changed {
		update[c] = values[c]
	}
	if u.opts.DryRun {
		u.logger.Debug("Would update", "table", table.Name, "key", key, "columns", changed)
		return Update, nil
	}
	update[storage.EditStamp] = u.opts.EditStamp
	if err := sess.Update(ctx, table.Name, key, update); err != nil {
		return Failed, err
	}
	if err := sess.Commit(); err != nil {
		return Failed, fmt.Errorf("commit %s: %w", table.Name, err)
	}
	u.logger.Debug("Updated", "table", table.Name, "key", key, "columns", changed)
	return Update, nil
}

func (u *Upserter) insert(ctx context.Context, sess Session, table storage.Table, values storage.Record) (ImportAction, error) {
	row := maps.Clone(values)
	if table.Serial != "" && row[table.Serial] == nil {
		id, err := sess.NextID(ctx, table.Name, table.Serial)
		if err != nil {
			return Failed, err
		}
		row[table.Serial] = id
	}

	if u.opts.DryRun {
		u.logger.Debug("Would insert", "table", table.Name, "key", table.KeyOf(row))
		return Insert, nil
	}
	row[storage.EditStamp] = u.opts.EditStamp
	if err := sess.Insert(ctx, table.Name, row); err != nil {
		return Failed, err
	}
	if err := sess.Commit(); err != nil {
		return Failed, fmt.Errorf("commit %s: %w", table.Name, err)
	}
	u.logger.Debug("Inserted", "table", table.Name, "key", table.KeyOf(row))
	return Insert, nil
}

// changedColumns lists the given columns whose stored value differs.
func changedColumns(table storage.Table, existing, values storage.Record) []string {
	var changed []string
	for _, c := range table.Columns {
		want, ok := values[c]
		if !ok || c == table.Serial {
			continue
		}
		if !sameValue(table.IsNumeric(c), existing[c], want) {
			changed = append(changed, c)
		}
	}
	return changed
}

func sameValue(numeric bool, stored, wanted any) bool {
	stored, wanted = driverValue(stored), driverValue(wanted)
	if stored == nil || wanted == nil {
		return stored == nil && wanted == nil
	}
	if numeric {
		a, errA := decimal.NewFromString(fmt.Sprint(stored))
		b, errB := decimal.NewFromString(fmt.Sprint(wanted))
		if errA == nil && errB == nil {
			return a.Equal(b)
		}
	}
	return fmt.Sprint(stored) == fmt.Sprint(wanted)
}

func driverValue(v any) any {
	if valuer, ok := v.(driver.Valuer); ok {
		out, err := valuer.Value()
		if err != nil {
			return v
		}
		return out
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
