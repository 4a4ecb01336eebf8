/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements chit.TxStore and chit.AuditSink using SQLite. In production, the
  same patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  groups:         Group records (chit value, start month, tenure, commission)
  group_members:  One row per member slot, ordered by position
  ledger_entries: Monthly obligations, keyed by (group, user, month)
  requests:       Member requests awaiting or past admin resolution
  counters:       Named atomic sequences (group numbers)
  audit_log:      Append-only record of admin decisions

CONSTRAINTS:
  Uniqueness the engine relies on is enforced at the schema level, not just
  in application code:
  - idx_ledger_unique:        one ledger row per (group, user, month)
  - idx_pending_join:         one pending join request per user
  - idx_pending_month_scoped: one pending prebook/cash-confirm per
                              (user, group, type, month)
  - idx_prebooked_month:      one member per prebooked month per group
  Constraint violations are translated back into domain errors by the
  violated column list (see translateUnique).

MONEY AND MONTHS:
  Money is stored as decimal TEXT, never floating point. Months are stored
  in their display form ("July 2025") plus a numeric month_index for
  ordering and range queries.

CONCURRENCY:
  Uses sync.RWMutex at the public entry points only. Internal operations
  take a dbtx and never lock, so WithTx can hold the write lock while the
  callback reads and writes through the same transaction.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/chit.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := chit.NewWorkflow(store, store, nil)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - chit/store.go: Interface definitions and the transactional contract
  - store/memory:  In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/chit-engine/chit"
)

// Store implements chit.TxStore and chit.AuditSink using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ chit.TxStore = (*Store)(nil)
var _ chit.AuditSink = (*Store)(nil)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
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

	// SQLite allows one writer; a single pooled connection also keeps
	// ":memory:" databases from resetting per connection.
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

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS groups (
		id TEXT PRIMARY KEY,
		group_no TEXT NOT NULL UNIQUE,
		chit_value TEXT NOT NULL,
		start_month TEXT NOT NULL,
		tenure INTEGER NOT NULL,
		foreman_commission TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- One row per member slot; position preserves the join order.
	CREATE TABLE IF NOT EXISTS group_members (
		group_id TEXT NOT NULL REFERENCES groups(id),
		user_id TEXT NOT NULL,
		share_amount TEXT NOT NULL,
		status TEXT NOT NULL,
		prebooked_month TEXT,
		position INTEGER NOT NULL,
		PRIMARY KEY (group_id, user_id)
	);

	-- CRITICAL: at most one active member may hold a given payout month
	CREATE UNIQUE INDEX IF NOT EXISTS idx_prebooked_month
		ON group_members(group_id, prebooked_month)
		WHERE prebooked_month IS NOT NULL AND status = 'active';

	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL REFERENCES groups(id),
		user_id TEXT NOT NULL,
		month_name TEXT NOT NULL,
		month_index INTEGER NOT NULL,
		status TEXT NOT NULL,
		month_due TEXT NOT NULL,
		payment_method TEXT,
		payment_date TEXT,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: one obligation per member per calendar month
	CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_unique
		ON ledger_entries(group_id, user_id, month_name);
	CREATE INDEX IF NOT EXISTS idx_ledger_member
		ON ledger_entries(group_id, user_id, month_index);
	CREATE INDEX IF NOT EXISTS idx_ledger_user
		ON ledger_entries(user_id, month_index);

	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		group_id TEXT,
		type TEXT NOT NULL,
		month_name TEXT,
		amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TEXT NOT NULL
	);

	-- CRITICAL: one pending join request per user
	CREATE UNIQUE INDEX IF NOT EXISTS idx_pending_join
		ON requests(user_id)
		WHERE status = 'pending' AND type = 'join_group';

	-- CRITICAL: one pending month-scoped request per (user, group, type, month)
	CREATE UNIQUE INDEX IF NOT EXISTS idx_pending_month_scoped
		ON requests(user_id, group_id, type, month_name)
		WHERE status = 'pending' AND type IN ('month_prebook', 'confirm_cash_payment');

	CREATE INDEX IF NOT EXISTS idx_requests_status
		ON requests(status);
	CREATE INDEX IF NOT EXISTS idx_requests_user
		ON requests(user_id);

	CREATE TABLE IF NOT EXISTS counters (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		performed_by TEXT NOT NULL,
		target_id TEXT NOT NULL,
		details_json TEXT,
		timestamp TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_target
		ON audit_log(target_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (chit.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction. Reads inside the
// callback observe the transaction's own writes.
func (s *Store) WithTx(ctx context.Context, fn func(store chit.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx, parent: s}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore routes every operation through the open transaction. No locking:
// the parent's write lock is already held for the transaction's lifetime.
type txStore struct {
	tx     *sql.Tx
	parent *Store
}

var _ chit.Store = (*txStore)(nil)

func (ts *txStore) CreateGroup(ctx context.Context, g *chit.Group) error {
	return ts.parent.createGroup(ctx, ts.tx, g)
}
func (ts *txStore) GetGroup(ctx context.Context, id chit.GroupID) (*chit.Group, error) {
	return ts.parent.getGroup(ctx, ts.tx, id)
}
func (ts *txStore) ListGroups(ctx context.Context) ([]chit.Group, error) {
	return ts.parent.listGroups(ctx, ts.tx)
}
func (ts *txStore) GroupsForUser(ctx context.Context, userID chit.UserID) ([]chit.Group, error) {
	return ts.parent.groupsForUser(ctx, ts.tx, userID)
}
func (ts *txStore) UpdateMembers(ctx context.Context, id chit.GroupID, members []chit.Member) error {
	return ts.parent.updateMembers(ctx, ts.tx, id, members)
}
func (ts *txStore) InsertLedgerEntries(ctx context.Context, entries []chit.LedgerEntry) error {
	return ts.parent.insertLedgerEntries(ctx, ts.tx, entries)
}
func (ts *txStore) GetLedgerEntry(ctx context.Context, groupID chit.GroupID, userID chit.UserID, month chit.MonthKey) (*chit.LedgerEntry, error) {
	return ts.parent.getLedgerEntry(ctx, ts.tx, groupID, userID, month)
}
func (ts *txStore) LedgerForMember(ctx context.Context, groupID chit.GroupID, userID chit.UserID) ([]chit.LedgerEntry, error) {
	return ts.parent.ledgerForMember(ctx, ts.tx, groupID, userID)
}
func (ts *txStore) LedgerForUser(ctx context.Context, userID chit.UserID, groupIDs []chit.GroupID) ([]chit.LedgerEntry, error) {
	return ts.parent.ledgerForUser(ctx, ts.tx, userID, groupIDs)
}
func (ts *txStore) UpdateLedgerEntry(ctx context.Context, e *chit.LedgerEntry) error {
	return ts.parent.updateLedgerEntry(ctx, ts.tx, e)
}
func (ts *txStore) DeleteLedgerForMember(ctx context.Context, groupID chit.GroupID, userID chit.UserID) (int, error) {
	return ts.parent.deleteLedgerForMember(ctx, ts.tx, groupID, userID)
}
func (ts *txStore) CreateRequest(ctx context.Context, r *chit.Request) error {
	return ts.parent.createRequest(ctx, ts.tx, r)
}
func (ts *txStore) GetRequest(ctx context.Context, id chit.RequestID) (*chit.Request, error) {
	return ts.parent.getRequest(ctx, ts.tx, id)
}
func (ts *txStore) HasPendingRequest(ctx context.Context, userID chit.UserID, t chit.RequestType, groupID chit.GroupID, month *chit.MonthKey) (bool, error) {
	return ts.parent.hasPendingRequest(ctx, ts.tx, userID, t, groupID, month)
}
func (ts *txStore) ListPendingRequests(ctx context.Context) ([]chit.Request, error) {
	return ts.parent.listPendingRequests(ctx, ts.tx)
}
func (ts *txStore) RequestsForUser(ctx context.Context, userID chit.UserID) ([]chit.Request, error) {
	return ts.parent.requestsForUser(ctx, ts.tx, userID)
}
func (ts *txStore) ResolveRequest(ctx context.Context, id chit.RequestID, status chit.RequestStatus, groupID chit.GroupID) error {
	return ts.parent.resolveRequest(ctx, ts.tx, id, status, groupID)
}
func (ts *txStore) DeletePendingRequest(ctx context.Context, userID chit.UserID, t chit.RequestType, amount chit.Money) error {
	return ts.parent.deletePendingRequest(ctx, ts.tx, userID, t, amount)
}
func (ts *txStore) NextSequence(ctx context.Context, name string) (int64, error) {
	return ts.parent.nextSequence(ctx, ts.tx, name)
}

// =============================================================================
// GROUPS
// =============================================================================

// CreateGroup persists a group and its initial member rows.
func (s *Store) CreateGroup(ctx context.Context, g *chit.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := s.createGroup(ctx, sqlTx, g); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) createGroup(ctx context.Context, db dbtx, g *chit.Group) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO groups (id, group_no, chit_value, start_month, tenure, foreman_commission, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(g.ID),
		g.GroupNo,
		g.ChitValue.String(),
		g.StartMonth.UTC().Format(time.RFC3339),
		g.Tenure,
		g.ForemanCommission.String(),
		g.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return translateUnique(err)
		}
		return fmt.Errorf("failed to insert group: %w", err)
	}
	return s.replaceMembers(ctx, db, g.ID, g.Members)
}

// GetGroup loads a group with its full member list.
func (s *Store) GetGroup(ctx context.Context, id chit.GroupID) (*chit.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getGroup(ctx, s.db, id)
}

func (s *Store) getGroup(ctx context.Context, db dbtx, id chit.GroupID) (*chit.Group, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, group_no, chit_value, start_month, tenure, foreman_commission, created_at
		FROM groups WHERE id = ?`, string(id))

	g, err := scanGroup(row)
	if err == sql.ErrNoRows {
		return nil, chit.ErrGroupNotFound
	}
	if err != nil {
		return nil, err
	}

	g.Members, err = s.loadMembers(ctx, db, g.ID)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// ListGroups returns all groups, ordered by group number.
func (s *Store) ListGroups(ctx context.Context) ([]chit.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listGroups(ctx, s.db)
}

func (s *Store) listGroups(ctx context.Context, db dbtx) ([]chit.Group, error) {
	return s.queryGroups(ctx, db, `
		SELECT id, group_no, chit_value, start_month, tenure, foreman_commission, created_at
		FROM groups
		ORDER BY group_no ASC`)
}

// GroupsForUser returns the groups where the user is an active member.
func (s *Store) GroupsForUser(ctx context.Context, userID chit.UserID) ([]chit.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groupsForUser(ctx, s.db, userID)
}

func (s *Store) groupsForUser(ctx context.Context, db dbtx, userID chit.UserID) ([]chit.Group, error) {
	return s.queryGroups(ctx, db, `
		SELECT g.id, g.group_no, g.chit_value, g.start_month, g.tenure, g.foreman_commission, g.created_at
		FROM groups g
		JOIN group_members m ON m.group_id = g.id
		WHERE m.user_id = ? AND m.status = 'active'
		ORDER BY g.group_no ASC`, string(userID))
}

func (s *Store) queryGroups(ctx context.Context, db dbtx, query string, args ...any) ([]chit.Group, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var groups []chit.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range groups {
		groups[i].Members, err = s.loadMembers(ctx, db, groups[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return groups, nil
}

// UpdateMembers replaces the group's member rows.
func (s *Store) UpdateMembers(ctx context.Context, id chit.GroupID, members []chit.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := s.updateMembers(ctx, sqlTx, id, members); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) updateMembers(ctx context.Context, db dbtx, id chit.GroupID, members []chit.Member) error {
	var exists int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM groups WHERE id = ?", string(id)).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return chit.ErrGroupNotFound
	}
	return s.replaceMembers(ctx, db, id, members)
}

func (s *Store) replaceMembers(ctx context.Context, db dbtx, id chit.GroupID, members []chit.Member) error {
	if _, err := db.ExecContext(ctx, "DELETE FROM group_members WHERE group_id = ?", string(id)); err != nil {
		return fmt.Errorf("failed to clear members: %w", err)
	}
	for i := range members {
		m := &members[i]
		var prebooked *string
		if m.PreBookedMonth != nil {
			v := m.PreBookedMonth.String()
			prebooked = &v
		}
		_, err := db.ExecContext(ctx, `
			INSERT INTO group_members (group_id, user_id, share_amount, status, prebooked_month, position)
			VALUES (?, ?, ?, ?, ?, ?)`,
			string(id), string(m.UserID), m.ShareAmount.String(), string(m.Status), prebooked, i,
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return translateUnique(err)
			}
			return fmt.Errorf("failed to insert member: %w", err)
		}
	}
	return nil
}

func (s *Store) loadMembers(ctx context.Context, db dbtx, id chit.GroupID) ([]chit.Member, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT user_id, share_amount, status, prebooked_month
		FROM group_members
		WHERE group_id = ?
		ORDER BY position ASC`, string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []chit.Member
	for rows.Next() {
		var m chit.Member
		var userID, share, status string
		var prebooked sql.NullString
		if err := rows.Scan(&userID, &share, &status, &prebooked); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.UserID = chit.UserID(userID)
		m.ShareAmount, err = chit.ParseMoney(share)
		if err != nil {
			return nil, fmt.Errorf("corrupt share amount for member %s: %w", userID, err)
		}
		m.Status = chit.MemberStatus(status)
		if prebooked.Valid {
			mk, err := chit.ParseMonthKey(prebooked.String)
			if err != nil {
				return nil, err
			}
			m.PreBookedMonth = &mk
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanGroup(row scannable) (*chit.Group, error) {
	var g chit.Group
	var id, chitValue, startMonth, commission, createdAt string
	err := row.Scan(&id, &g.GroupNo, &chitValue, &startMonth, &g.Tenure, &commission, &createdAt)
	if err != nil {
		return nil, err
	}
	g.ID = chit.GroupID(id)
	g.ChitValue, err = chit.ParseMoney(chitValue)
	if err != nil {
		return nil, fmt.Errorf("corrupt chit value for group %s: %w", id, err)
	}
	commissionValue, err := chit.ParseMoney(commission)
	if err != nil {
		return nil, fmt.Errorf("corrupt foreman commission for group %s: %w", id, err)
	}
	g.ForemanCommission = commissionValue.Value
	g.StartMonth, err = time.Parse(time.RFC3339, startMonth)
	if err != nil {
		return nil, fmt.Errorf("corrupt start month for group %s: %w", id, err)
	}
	g.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("corrupt created_at for group %s: %w", id, err)
	}
	return &g, nil
}

// =============================================================================
// LEDGER
// =============================================================================

// InsertLedgerEntries appends a member's generated obligation batch.
func (s *Store) InsertLedgerEntries(ctx context.Context, entries []chit.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := s.insertLedgerEntries(ctx, sqlTx, entries); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) insertLedgerEntries(ctx context.Context, db dbtx, entries []chit.LedgerEntry) error {
	for i := range entries {
		e := &entries[i]
		var method *string
		if e.PaymentMethod != "" {
			method = &e.PaymentMethod
		}
		var paid *string
		if e.PaymentDate != nil {
			v := e.PaymentDate.UTC().Format(time.RFC3339)
			paid = &v
		}
		_, err := db.ExecContext(ctx, `
			INSERT INTO ledger_entries
			(id, group_id, user_id, month_name, month_index, status, month_due, payment_method, payment_date, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, string(e.GroupID), string(e.UserID),
			e.Month.String(), e.Month.Index(),
			string(e.Status), e.MonthDue.String(),
			method, paid,
			e.CreatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return translateUnique(err)
			}
			return fmt.Errorf("failed to insert ledger entry: %w", err)
		}
	}
	return nil
}

// GetLedgerEntry loads one obligation by its natural key.
func (s *Store) GetLedgerEntry(ctx context.Context, groupID chit.GroupID, userID chit.UserID, month chit.MonthKey) (*chit.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLedgerEntry(ctx, s.db, groupID, userID, month)
}

func (s *Store) getLedgerEntry(ctx context.Context, db dbtx, groupID chit.GroupID, userID chit.UserID, month chit.MonthKey) (*chit.LedgerEntry, error) {
	entries, err := s.queryLedger(ctx, db, `
		SELECT id, group_id, user_id, month_name, status, month_due, payment_method, payment_date, created_at
		FROM ledger_entries
		WHERE group_id = ? AND user_id = ? AND month_name = ?`,
		string(groupID), string(userID), month.String())
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, chit.ErrLedgerEntryNotFound
	}
	return &entries[0], nil
}

// LedgerForMember returns one member's entries for a group, in month order.
func (s *Store) LedgerForMember(ctx context.Context, groupID chit.GroupID, userID chit.UserID) ([]chit.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledgerForMember(ctx, s.db, groupID, userID)
}

func (s *Store) ledgerForMember(ctx context.Context, db dbtx, groupID chit.GroupID, userID chit.UserID) ([]chit.LedgerEntry, error) {
	return s.queryLedger(ctx, db, `
		SELECT id, group_id, user_id, month_name, status, month_due, payment_method, payment_date, created_at
		FROM ledger_entries
		WHERE group_id = ? AND user_id = ?
		ORDER BY month_index ASC`,
		string(groupID), string(userID))
}

// LedgerForUser returns a user's entries across the given groups.
func (s *Store) LedgerForUser(ctx context.Context, userID chit.UserID, groupIDs []chit.GroupID) ([]chit.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledgerForUser(ctx, s.db, userID, groupIDs)
}

func (s *Store) ledgerForUser(ctx context.Context, db dbtx, userID chit.UserID, groupIDs []chit.GroupID) ([]chit.LedgerEntry, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(groupIDs))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(groupIDs)+1)
	args = append(args, string(userID))
	for _, id := range groupIDs {
		args = append(args, string(id))
	}

	return s.queryLedger(ctx, db, `
		SELECT id, group_id, user_id, month_name, status, month_due, payment_method, payment_date, created_at
		FROM ledger_entries
		WHERE user_id = ? AND group_id IN (`+placeholders+`)
		ORDER BY month_index ASC`, args...)
}

// UpdateLedgerEntry persists an in-place mutation (payment confirmation).
func (s *Store) UpdateLedgerEntry(ctx context.Context, e *chit.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLedgerEntry(ctx, s.db, e)
}

func (s *Store) updateLedgerEntry(ctx context.Context, db dbtx, e *chit.LedgerEntry) error {
	var method *string
	if e.PaymentMethod != "" {
		method = &e.PaymentMethod
	}
	var paid *string
	if e.PaymentDate != nil {
		v := e.PaymentDate.UTC().Format(time.RFC3339)
		paid = &v
	}
	res, err := db.ExecContext(ctx, `
		UPDATE ledger_entries
		SET status = ?, payment_method = ?, payment_date = ?
		WHERE id = ?`,
		string(e.Status), method, paid, e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update ledger entry: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return chit.ErrLedgerEntryNotFound
	}
	return nil
}

// DeleteLedgerForMember removes every ledger row for (group, user).
func (s *Store) DeleteLedgerForMember(ctx context.Context, groupID chit.GroupID, userID chit.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLedgerForMember(ctx, s.db, groupID, userID)
}

func (s *Store) deleteLedgerForMember(ctx context.Context, db dbtx, groupID chit.GroupID, userID chit.UserID) (int, error) {
	res, err := db.ExecContext(ctx,
		"DELETE FROM ledger_entries WHERE group_id = ? AND user_id = ?",
		string(groupID), string(userID))
	if err != nil {
		return 0, fmt.Errorf("failed to delete ledger entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *Store) queryLedger(ctx context.Context, db dbtx, query string, args ...any) ([]chit.LedgerEntry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var entries []chit.LedgerEntry
	for rows.Next() {
		var e chit.LedgerEntry
		var groupID, userID, monthName, status, monthDue, createdAt string
		var method, paid sql.NullString

		if err := rows.Scan(&e.ID, &groupID, &userID, &monthName, &status, &monthDue, &method, &paid, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}

		e.GroupID = chit.GroupID(groupID)
		e.UserID = chit.UserID(userID)
		e.Month, err = chit.ParseMonthKey(monthName)
		if err != nil {
			return nil, err
		}
		e.Status = chit.EntryStatus(status)
		e.MonthDue, err = chit.ParseMoney(monthDue)
		if err != nil {
			return nil, fmt.Errorf("corrupt month due for ledger entry %s: %w", e.ID, err)
		}
		e.PaymentMethod = method.String
		if paid.Valid {
			t, err := time.Parse(time.RFC3339, paid.String)
			if err != nil {
				return nil, fmt.Errorf("corrupt payment date for ledger entry %s: %w", e.ID, err)
			}
			e.PaymentDate = &t
		}
		e.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("corrupt created_at for ledger entry %s: %w", e.ID, err)
		}

		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// REQUESTS
// =============================================================================

// CreateRequest inserts a pending request. Constraint violations on the
// pending-uniqueness indexes surface as chit.ErrDuplicatePending.
func (s *Store) CreateRequest(ctx context.Context, r *chit.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createRequest(ctx, s.db, r)
}

func (s *Store) createRequest(ctx context.Context, db dbtx, r *chit.Request) error {
	var groupID *string
	if r.GroupID != "" {
		v := string(r.GroupID)
		groupID = &v
	}
	var month *string
	if r.Month != nil {
		v := r.Month.String()
		month = &v
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO requests (id, user_id, group_id, type, month_name, amount, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(r.ID), string(r.UserID), groupID, string(r.Type), month,
		r.Amount.String(), string(r.Status),
		r.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return translateUnique(err)
		}
		return fmt.Errorf("failed to insert request: %w", err)
	}
	return nil
}

// GetRequest loads a request by ID.
func (s *Store) GetRequest(ctx context.Context, id chit.RequestID) (*chit.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getRequest(ctx, s.db, id)
}

func (s *Store) getRequest(ctx context.Context, db dbtx, id chit.RequestID) (*chit.Request, error) {
	requests, err := s.queryRequests(ctx, db, `
		SELECT id, user_id, group_id, type, month_name, amount, status, created_at
		FROM requests WHERE id = ?`, string(id))
	if err != nil {
		return nil, err
	}
	if len(requests) == 0 {
		return nil, chit.ErrRequestNotFound
	}
	return &requests[0], nil
}

// HasPendingRequest checks the duplicate-pending predicates.
func (s *Store) HasPendingRequest(ctx context.Context, userID chit.UserID, t chit.RequestType, groupID chit.GroupID, month *chit.MonthKey) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasPendingRequest(ctx, s.db, userID, t, groupID, month)
}

func (s *Store) hasPendingRequest(ctx context.Context, db dbtx, userID chit.UserID, t chit.RequestType, groupID chit.GroupID, month *chit.MonthKey) (bool, error) {
	query := "SELECT COUNT(*) FROM requests WHERE status = 'pending' AND user_id = ? AND type = ?"
	args := []any{string(userID), string(t)}
	if groupID != "" {
		query += " AND group_id = ?"
		args = append(args, string(groupID))
	}
	if month != nil {
		query += " AND month_name = ?"
		args = append(args, month.String())
	}

	var count int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check pending requests: %w", err)
	}
	return count > 0, nil
}

// ListPendingRequests returns the admin queue, oldest first.
func (s *Store) ListPendingRequests(ctx context.Context) ([]chit.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listPendingRequests(ctx, s.db)
}

func (s *Store) listPendingRequests(ctx context.Context, db dbtx) ([]chit.Request, error) {
	return s.queryRequests(ctx, db, `
		SELECT id, user_id, group_id, type, month_name, amount, status, created_at
		FROM requests
		WHERE status = 'pending'
		ORDER BY created_at ASC`)
}

// RequestsForUser returns all of a user's requests, oldest first.
func (s *Store) RequestsForUser(ctx context.Context, userID chit.UserID) ([]chit.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requestsForUser(ctx, s.db, userID)
}

func (s *Store) requestsForUser(ctx context.Context, db dbtx, userID chit.UserID) ([]chit.Request, error) {
	return s.queryRequests(ctx, db, `
		SELECT id, user_id, group_id, type, month_name, amount, status, created_at
		FROM requests
		WHERE user_id = ?
		ORDER BY created_at DESC`, string(userID))
}

// ResolveRequest moves a pending request to a terminal status. The WHERE
// clause on the current status is the double-processing guard: a request
// resolved by another admin a moment earlier affects zero rows.
func (s *Store) ResolveRequest(ctx context.Context, id chit.RequestID, status chit.RequestStatus, groupID chit.GroupID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveRequest(ctx, s.db, id, status, groupID)
}

func (s *Store) resolveRequest(ctx context.Context, db dbtx, id chit.RequestID, status chit.RequestStatus, groupID chit.GroupID) error {
	res, err := db.ExecContext(ctx, `
		UPDATE requests
		SET status = ?,
		    group_id = CASE WHEN ? != '' THEN ? ELSE group_id END
		WHERE id = ? AND status = 'pending'`,
		string(status), string(groupID), string(groupID), string(id),
	)
	if err != nil {
		return fmt.Errorf("failed to resolve request: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		return nil
	}

	var exists int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM requests WHERE id = ?", string(id)).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return chit.ErrRequestNotFound
	}
	return chit.ErrAlreadyProcessed
}

// DeletePendingRequest removes the owner's matching pending request.
func (s *Store) DeletePendingRequest(ctx context.Context, userID chit.UserID, t chit.RequestType, amount chit.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletePendingRequest(ctx, s.db, userID, t, amount)
}

func (s *Store) deletePendingRequest(ctx context.Context, db dbtx, userID chit.UserID, t chit.RequestType, amount chit.Money) error {
	res, err := db.ExecContext(ctx, `
		DELETE FROM requests
		WHERE user_id = ? AND type = ? AND amount = ? AND status = 'pending'`,
		string(userID), string(t), amount.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to delete request: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return chit.ErrRequestNotFound
	}
	return nil
}

func (s *Store) queryRequests(ctx context.Context, db dbtx, query string, args ...any) ([]chit.Request, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var requests []chit.Request
	for rows.Next() {
		var r chit.Request
		var id, userID, rtype, amount, status, createdAt string
		var groupID, monthName sql.NullString

		if err := rows.Scan(&id, &userID, &groupID, &rtype, &monthName, &amount, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}

		r.ID = chit.RequestID(id)
		r.UserID = chit.UserID(userID)
		r.GroupID = chit.GroupID(groupID.String)
		r.Type = chit.RequestType(rtype)
		if monthName.Valid {
			mk, err := chit.ParseMonthKey(monthName.String)
			if err != nil {
				return nil, err
			}
			r.Month = &mk
		}
		r.Amount, err = chit.ParseMoney(amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount for request %s: %w", id, err)
		}
		r.Status = chit.RequestStatus(status)
		r.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("corrupt created_at for request %s: %w", id, err)
		}

		requests = append(requests, r)
	}
	return requests, rows.Err()
}

// =============================================================================
// COUNTERS
// =============================================================================

// NextSequence atomically fetch-and-increments a named counter.
func (s *Store) NextSequence(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextSequence(ctx, s.db, name)
}

func (s *Store) nextSequence(ctx context.Context, db dbtx, name string) (int64, error) {
	var value int64
	err := db.QueryRowContext(ctx, `
		INSERT INTO counters (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = counters.value + 1
		RETURNING value`, name,
	).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter %q: %w", name, err)
	}
	return value, nil
}

// =============================================================================
// AUDIT SINK (chit.AuditSink interface)
// =============================================================================

// Record appends an audit entry.
func (s *Store) Record(ctx context.Context, e chit.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	detailsJSON, _ := json.Marshal(e.Details)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, action, performed_by, target_id, details_json, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Action, string(e.PerformedBy), e.TargetID, string(detailsJSON),
		e.Timestamp.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// AuditLog returns recorded entries for a target, oldest first.
func (s *Store) AuditLog(ctx context.Context, targetID string) ([]chit.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, performed_by, target_id, details_json, timestamp
		FROM audit_log
		WHERE target_id = ?
		ORDER BY timestamp ASC`, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []chit.AuditEntry
	for rows.Next() {
		var e chit.AuditEntry
		var performedBy, detailsJSON, timestamp string
		if err := rows.Scan(&e.ID, &e.Action, &performedBy, &e.TargetID, &detailsJSON, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.PerformedBy = chit.UserID(performedBy)
		if detailsJSON != "" {
			json.Unmarshal([]byte(detailsJSON), &e.Details)
		}
		e.Timestamp, err = time.Parse(time.RFC3339, timestamp)
		if err != nil {
			return nil, fmt.Errorf("corrupt timestamp for audit entry %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// translateUnique maps a unique-constraint violation back onto the domain
// error its constraint stands for. SQLite reports the violated columns, not
// the index name, so matching is on column lists. The prebooked-month check
// must run before the generic group_members one: both name group_members
// columns.
func translateUnique(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "group_members.prebooked_month"):
		return chit.ErrMonthAlreadyBooked
	case strings.Contains(msg, "requests."):
		return chit.ErrDuplicatePending
	case strings.Contains(msg, "ledger_entries."), strings.Contains(msg, "group_members."):
		return chit.ErrAlreadyMember
	default:
		return fmt.Errorf("unique constraint violated: %w", err)
	}
}
