/*
Package sqlite provides a SQLite-backed ledger.Store.

PURPOSE:
  Vouchers are stored as JSON documents, with their legs mirrored into a
  details table so that query trees can be compiled to SQL (compile.go)
  instead of being evaluated row by row in Go.

KEY TABLES:
  vouchers: id, date (NULL when undated), type, remark, doc (JSON)
  details:  one row per leg, keyed by (voucher_id, seq)

ORDERING:
  Every select orders undated vouchers first, then by date and id, the
  same order ledger.SortVouchers produces.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, and a single connection so that
  ":memory:" databases are shared by every statement.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  l := ledger.New(store)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - ledger/store.go: interface definitions
  - compile.go: query tree to SQL
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/ledger-engine/generic"
	"github.com/warp/ledger-engine/ledger"
)

// Store implements ledger.Store and ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// dbtx is the subset shared by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS vouchers (
		id TEXT PRIMARY KEY,
		date TEXT,
		type TEXT NOT NULL DEFAULT 'ordinary',
		remark TEXT NOT NULL DEFAULT '',
		doc TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_vouchers_date
		ON vouchers(date);

	CREATE TABLE IF NOT EXISTS details (
		voucher_id TEXT NOT NULL REFERENCES vouchers(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		currency TEXT NOT NULL DEFAULT '',
		title INTEGER NOT NULL,
		subtitle INTEGER NOT NULL DEFAULT 0,
		content TEXT NOT NULL DEFAULT '',
		remark TEXT NOT NULL DEFAULT '',
		fund TEXT,
		fund_num REAL,
		PRIMARY KEY (voucher_id, seq)
	);

	-- Hot path: subtotals by account
	CREATE INDEX IF NOT EXISTS idx_details_title
		ON details(title, subtitle);
	CREATE INDEX IF NOT EXISTS idx_details_user_currency
		ON details(user_id, currency);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// READS
// =============================================================================

func (s *Store) SelectVouchers(ctx context.Context, q ledger.VoucherQuery) ([]ledger.Voucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return selectVouchers(ctx, s.db, q)
}

func (s *Store) SelectVoucher(ctx context.Context, id string) (*ledger.Voucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return selectVoucher(ctx, s.db, id)
}

func (s *Store) SelectDetails(ctx context.Context, q ledger.DetailQuery) ([]ledger.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return selectDetails(ctx, s.db, q)
}

func selectVouchers(ctx context.Context, db dbtx, q ledger.VoucherQuery) ([]ledger.Voucher, error) {
	query, args, err := CompileSelectVouchers(q)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vouchers: %w", err)
	}
	defer rows.Close()

	var out []ledger.Voucher
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan voucher: %w", err)
		}
		var v ledger.Voucher
		if err := json.Unmarshal([]byte(doc), &v); err != nil {
			return nil, fmt.Errorf("failed to decode voucher: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func selectVoucher(ctx context.Context, db dbtx, id string) (*ledger.Voucher, error) {
	var doc string
	err := db.QueryRowContext(ctx, "SELECT doc FROM vouchers WHERE id = ?", id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get voucher: %w", err)
	}
	var v ledger.Voucher
	if err := json.Unmarshal([]byte(doc), &v); err != nil {
		return nil, fmt.Errorf("failed to decode voucher: %w", err)
	}
	return &v, nil
}

func selectDetails(ctx context.Context, db dbtx, q ledger.DetailQuery) ([]ledger.Balance, error) {
	query, args, err := CompileSelectDetails(q)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query details: %w", err)
	}
	defer rows.Close()

	var out []ledger.Balance
	for rows.Next() {
		var (
			b    ledger.Balance
			date sql.NullString
			fund sql.NullString
		)
		err := rows.Scan(&b.VoucherID, &date, &b.Title, &b.SubTitle, &b.Content, &b.Remark,
			&b.Currency, &b.User, &fund)
		if err != nil {
			return nil, fmt.Errorf("failed to scan detail: %w", err)
		}
		if date.Valid {
			d, err := generic.ParseDate(date.String)
			if err != nil {
				return nil, fmt.Errorf("voucher %s: %w", b.VoucherID, err)
			}
			b.Date = &d
		}
		if fund.Valid {
			if b.Fund, err = decimal.NewFromString(fund.String); err != nil {
				return nil, fmt.Errorf("voucher %s: %w", b.VoucherID, err)
			}
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// =============================================================================
// WRITES
// =============================================================================

func (s *Store) Upsert(ctx context.Context, v *ledger.Voucher) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existed bool
	err := s.inTx(ctx, func(db dbtx) error {
		var err error
		existed, err = upsert(ctx, db, v)
		return err
	})
	return existed, err
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existed bool
	err := s.inTx(ctx, func(db dbtx) error {
		var err error
		existed, err = deleteVoucher(ctx, db, id)
		return err
	})
	return existed, err
}

func (s *Store) DeleteVouchers(ctx context.Context, q ledger.VoucherQuery) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	err := s.inTx(ctx, func(db dbtx) error {
		var err error
		n, err = deleteVouchers(ctx, db, q)
		return err
	})
	return n, err
}

func (s *Store) inTx(ctx context.Context, fn func(dbtx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func upsert(ctx context.Context, db dbtx, v *ledger.Voucher) (bool, error) {
	if v.ID == "" {
		v.ID = ledger.NewID()
	}
	existing, err := selectVoucher(ctx, db, v.ID)
	if err != nil {
		return false, err
	}

	doc, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("failed to encode voucher: %w", err)
	}
	var date any
	if v.Date != nil {
		date = v.Date.String()
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO vouchers (id, date, type, remark, doc)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date = excluded.date, type = excluded.type,
			remark = excluded.remark, doc = excluded.doc
	`, v.ID, date, string(v.Kind()), v.Remark, string(doc))
	if err != nil {
		return false, fmt.Errorf("failed to upsert voucher: %w", err)
	}

	if _, err := db.ExecContext(ctx, "DELETE FROM details WHERE voucher_id = ?", v.ID); err != nil {
		return false, fmt.Errorf("failed to clear details: %w", err)
	}
	for i, d := range v.Details {
		var fund, fundNum any
		if d.Fund != nil {
			fund = d.Fund.String()
			fundNum = d.Fund.InexactFloat64()
		}
		_, err := db.ExecContext(ctx, `
			INSERT INTO details
			(voucher_id, seq, user_id, currency, title, subtitle, content, remark, fund, fund_num)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, v.ID, i, d.User, d.Currency, d.Title, d.SubTitle, d.Content, d.Remark, fund, fundNum)
		if err != nil {
			return false, fmt.Errorf("failed to insert detail %d: %w", i, err)
		}
	}
	return existing != nil, nil
}

func deleteVoucher(ctx context.Context, db dbtx, id string) (bool, error) {
	if _, err := db.ExecContext(ctx, "DELETE FROM details WHERE voucher_id = ?", id); err != nil {
		return false, fmt.Errorf("failed to delete details: %w", err)
	}
	res, err := db.ExecContext(ctx, "DELETE FROM vouchers WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete voucher: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func deleteVouchers(ctx context.Context, db dbtx, q ledger.VoucherQuery) (int64, error) {
	sub, args, err := CompileMatchingIDs(q)
	if err != nil {
		return 0, err
	}
	// Resolve ids before deleting anything: conditions on legs stop
	// matching as soon as the details rows are gone.
	rows, err := db.QueryContext(ctx, sub, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to select vouchers: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan voucher id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	var n int64
	for _, id := range ids {
		ok, err := deleteVoucher(ctx, db, id)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// Reset clears all data.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM details; DELETE FROM vouchers;")
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(db dbtx) error {
		return fn(&txStore{tx: db})
	})
}

type txStore struct {
	tx dbtx
}

func (ts *txStore) SelectVouchers(ctx context.Context, q ledger.VoucherQuery) ([]ledger.Voucher, error) {
	return selectVouchers(ctx, ts.tx, q)
}

func (ts *txStore) SelectVoucher(ctx context.Context, id string) (*ledger.Voucher, error) {
	return selectVoucher(ctx, ts.tx, id)
}

func (ts *txStore) SelectDetails(ctx context.Context, q ledger.DetailQuery) ([]ledger.Balance, error) {
	return selectDetails(ctx, ts.tx, q)
}

func (ts *txStore) Upsert(ctx context.Context, v *ledger.Voucher) (bool, error) {
	return upsert(ctx, ts.tx, v)
}

func (ts *txStore) Delete(ctx context.Context, id string) (bool, error) {
	return deleteVoucher(ctx, ts.tx, id)
}

func (ts *txStore) DeleteVouchers(ctx context.Context, q ledger.VoucherQuery) (int64, error) {
	return deleteVouchers(ctx, ts.tx, q)
}
