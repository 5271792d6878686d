// Package store provides the relational and object-storage backends behind
// the pure protocol/domain packages: a MySQL-backed ref and lock store, and
// an S3-backed LFS object store.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mega-forge/mega/modules/lfs"
	"github.com/mega-forge/mega/modules/plumbing"
	"github.com/mega-forge/mega/modules/transport"
)

// RefStore is the relational backend behind transport.Backend's ref surface:
// listing refs, resolving HEAD, and applying CAS updates. A full
// transport.Backend additionally needs an object graph (Closure/Store),
// which is composed from a separate pack-aware type — see DESIGN.md.
type RefStore struct {
	db  *sql.DB
	rid int64
	log *logrus.Entry
}

// OpenDB dials MySQL with the pooling parameters pkg/serve/database used
// (25 idle / 50 open / 5m max lifetime), shared by every relational store
// in this package.
func OpenDB(cfg *mysql.Config) (*sql.DB, error) {
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("new connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxIdleConns(25)
	db.SetMaxOpenConns(50)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// NewRefStore opens a MySQL-backed ref store scoped to a single repository
// id, matching the one-database-per-platform, rid-scoped-rows shape of
// pkg/serve/database.
func NewRefStore(cfg *mysql.Config, rid int64) (*RefStore, error) {
	db, err := OpenDB(cfg)
	if err != nil {
		return nil, err
	}
	return &RefStore{db: db, rid: rid, log: logrus.WithField("component", "store.refs")}, nil
}

func (s *RefStore) Close() error {
	return s.db.Close()
}

// Refs lists every ref row for the store's repository except the HEAD row,
// which Head reads.
func (s *RefStore) Refs(ctx context.Context) ([]transport.Ref, error) {
	rows, err := s.db.QueryContext(ctx, "select name, hash from refs where rid = ? and name <> ? order by name", s.rid, "HEAD")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var refs []transport.Ref
	for rows.Next() {
		var name, hash string
		if err := rows.Scan(&name, &hash); err != nil {
			return nil, err
		}
		h, err := plumbing.NewHashEx(hash)
		if err != nil {
			return nil, err
		}
		refs = append(refs, transport.Ref{Name: name, Hash: h})
	}
	return refs, rows.Err()
}

// Head returns the hash stored in the repository's HEAD row, or the zero
// hash for an empty repository.
func (s *RefStore) Head(ctx context.Context) (plumbing.Hash, error) {
	row := s.db.QueryRowContext(ctx, "select hash from refs where rid = ? and name = ?", s.rid, "HEAD")
	var hash string
	if err := row.Scan(&hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return transport.Zero, nil
		}
		return transport.Zero, err
	}
	return plumbing.NewHashEx(hash)
}

// ApplyUpdates runs every ref update inside its own CAS transaction,
// following the select-then-conditional-update shape of
// pkg/serve/database/update.go's DoBranchUpdate: old must still match what's
// on disk, or the update is rejected without touching other rows.
func (s *RefStore) ApplyUpdates(ctx context.Context, updates []transport.RefUpdate) ([]transport.RefUpdateResult, error) {
	results := make([]transport.RefUpdateResult, len(updates))
	for i, u := range updates {
		ok, reason := s.applyOne(ctx, u)
		results[i] = transport.RefUpdateResult{Name: u.Name, OK: ok, Reason: reason}
		s.log.WithField("ref", u.Name).WithField("ok", ok).Debug("applied ref update")
	}
	return results, nil
}

func (s *RefStore) applyOne(ctx context.Context, u transport.RefUpdate) (ok bool, reason string) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err.Error()
	}
	defer func() { _ = tx.Rollback() }()

	switch u.Kind() {
	case transport.Create:
		res, err := tx.ExecContext(ctx, "insert into refs(rid, name, hash, created_at, updated_at) values(?,?,?,?,?)",
			s.rid, u.Name, u.New.String(), time.Now(), time.Now())
		if isDupEntry(err) {
			return false, "already exists"
		}
		if err != nil {
			return false, err.Error()
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return false, "already exists"
		}
	case transport.Delete:
		res, err := tx.ExecContext(ctx, "delete from refs where rid = ? and name = ? and hash = ?", s.rid, u.Name, u.Old.String())
		if err != nil {
			return false, err.Error()
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return false, "stale info"
		}
	case transport.Update:
		res, err := tx.ExecContext(ctx, "update refs set hash = ?, updated_at = ? where rid = ? and name = ? and hash = ?",
			u.New.String(), time.Now(), s.rid, u.Name, u.Old.String())
		if err != nil {
			return false, err.Error()
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return false, "stale info"
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err.Error()
	}
	return true, ""
}

func isDupEntry(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return false
}

// LockStore is a MySQL-backed lfs.LockStore, enforcing the (ref, path)
// uniqueness invariant via a unique index instead of in-process state.
type LockStore struct {
	db *sql.DB
}

func NewLockStore(db *sql.DB) *LockStore {
	return &LockStore{db: db}
}

func (s *LockStore) Create(ctx context.Context, ref, path, owner string) (*lfs.Lock, error) {
	id := uuid.NewString()
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		"insert into lfs_locks(id, ref, path, owner, locked_at) values(?,?,?,?,?)", id, ref, path, owner, now)
	if isDupEntry(err) {
		existing, findErr := s.findByRefPath(ctx, ref, path)
		if findErr != nil {
			return nil, findErr
		}
		return nil, lfs.NewLockConflictError(existing)
	}
	if err != nil {
		return nil, err
	}
	return &lfs.Lock{ID: id, Ref: ref, Path: path, Owner: owner, LockedAt: now}, nil
}

func (s *LockStore) findByRefPath(ctx context.Context, ref, path string) (*lfs.Lock, error) {
	row := s.db.QueryRowContext(ctx, "select id, owner, locked_at from lfs_locks where ref = ? and path = ?", ref, path)
	l := &lfs.Lock{Ref: ref, Path: path}
	if err := row.Scan(&l.ID, &l.Owner, &l.LockedAt); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *LockStore) Find(ctx context.Context, ref string) ([]*lfs.Lock, error) {
	rows, err := s.db.QueryContext(ctx, "select id, path, owner, locked_at from lfs_locks where ref = ?", ref)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*lfs.Lock
	for rows.Next() {
		l := &lfs.Lock{Ref: ref}
		if err := rows.Scan(&l.ID, &l.Path, &l.Owner, &l.LockedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *LockStore) Delete(ctx context.Context, id, owner string, force bool) (*lfs.Lock, error) {
	row := s.db.QueryRowContext(ctx, "select ref, path, owner, locked_at from lfs_locks where id = ?", id)
	l := &lfs.Lock{ID: id}
	if err := row.Scan(&l.Ref, &l.Path, &l.Owner, &l.LockedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if force {
				return nil, nil
			}
			return nil, lfs.NewLockNotHeldError(id)
		}
		return nil, err
	}
	if l.Owner != owner && !force {
		return nil, lfs.NewLockNotHeldError(id)
	}
	if _, err := s.db.ExecContext(ctx, "delete from lfs_locks where id = ?", id); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *LockStore) List(ctx context.Context, path, cursor string, limit int) ([]*lfs.Lock, string, error) {
	if limit <= 0 {
		limit = 100
	}
	query := "select id, ref, path, owner, locked_at from lfs_locks where id > ?"
	args := []any{cursor}
	if path != "" {
		query += " and path = ?"
		args = append(args, path)
	}
	query += " order by id limit ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	var out []*lfs.Lock
	for rows.Next() {
		l := &lfs.Lock{}
		if err := rows.Scan(&l.ID, &l.Ref, &l.Path, &l.Owner, &l.LockedAt); err != nil {
			return nil, "", err
		}
		out = append(out, l)
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, rows.Err()
}

var _ lfs.LockStore = (*LockStore)(nil)
