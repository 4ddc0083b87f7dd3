// Package reconcile writes refined exam data into the store.
//
// Every dimension and fact row goes through an Upserter: the row is looked up
// by its key, compared, and then inserted, updated or left alone. Each upsert
// runs in its own transaction so a constraint violation only fails that row.
// Dry-run is checked right before each write; reads and matching always run.
package reconcile

import (
	"context"

	"github.com/data-for-good-bg/semantic-schools/storage"
)

// Session is a transactional view of the store.
type Session interface {
	Select(ctx context.Context, table string, key storage.Record) (storage.Record, error)
	SelectAll(ctx context.Context, table string, where storage.Record) ([]storage.Record, error)
	Count(ctx context.Context, table string, where storage.Record) (int64, error)
	NextID(ctx context.Context, table, column string) (int64, error)
	Insert(ctx context.Context, table string, values storage.Record) error
	Update(ctx context.Context, table string, key, values storage.Record) error
	Delete(ctx context.Context, table string, where storage.Record) (int64, error)
	Commit() error
	Rollback() error
}

// Opener starts sessions.
type Opener interface {
	Open(ctx context.Context) (Session, error)
}

type storeOpener struct {
	store *storage.Store
}

// StoreOpener opens sessions as transactions on store.
func StoreOpener(store *storage.Store) Opener {
	return storeOpener{store: store}
}

func (o storeOpener) Open(ctx context.Context) (Session, error) {
	tx, err := o.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// readAll runs fn in a session that is always rolled back.
func readAll(ctx context.Context, opener Opener, fn func(Session) error) error {
	sess, err := opener.Open(ctx)
	if err != nil {
		return err
	}
	defer sess.Rollback()
	return fn(sess)
}
