package database

import (
	"context"
	"database/sql"
	"sync"
)

// to cache prepared sql statement, which maps query string to stmt.
type StmtCache struct {
	db *sql.DB
	m  sync.Map
}

func NewStmtCache(db *sql.DB) *StmtCache {
	return &StmtCache{db: db}
}

func (sc *StmtCache) Prepare(query string) (*sql.Stmt, error) {
	cached, _ := sc.m.Load(query)
	if cached == nil {
		stmt, err := sc.db.Prepare(query)
		if err != nil {
			return nil, err
		}
		if prev, loaded := sc.m.LoadOrStore(query, stmt); loaded {
			_ = stmt.Close()
			return prev.(*sql.Stmt), nil
		}
		cached = stmt
	}
	return cached.(*sql.Stmt), nil
}

// PrepareTx returns a statement bound to tx, reusing the cached one when the
// query was prepared before. It never takes a new connection from the pool
// since tx may hold the only one. The returned statement is closed together
// with the transaction.
func (sc *StmtCache) PrepareTx(ctx context.Context, tx *sql.Tx, query string) (*sql.Stmt, error) {
	if cached, ok := sc.m.Load(query); ok {
		return tx.StmtContext(ctx, cached.(*sql.Stmt)), nil
	}
	return tx.PrepareContext(ctx, query)
}

func (sc *StmtCache) Clear() {
	sc.m.Range(func(k, v interface{}) bool {
		_ = v.(*sql.Stmt).Close()
		sc.m.Delete(k)
		return true
	})
}
