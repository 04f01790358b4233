package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"retail-bank/database"
	"retail-bank/models"
)

// SQLStore keeps users, accounts and history as rows. Each Update is one
// database transaction; balance writes carry an optimistic version check so
// a concurrent writer turns into ErrConflict instead of a lost update.
type SQLStore struct {
	db      *sql.DB
	dialect database.Dialect
}

func NewSQLStore(db *sql.DB, dialect database.Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// snapshot makes every statement of a View read from the same snapshot, so a
// transfer committing between two reads is either fully visible or not at all.
var snapshot = sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}

func (s *SQLStore) View(ctx context.Context, fn func(Tx) error) error {
	opts := snapshot
	return s.run(ctx, &opts, fn)
}

func (s *SQLStore) Update(ctx context.Context, fn func(Tx) error) error {
	return s.run(ctx, nil, fn)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) run(ctx context.Context, opts *sql.TxOptions, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	readOnly := opts != nil && opts.ReadOnly
	if err := fn(&sqlTx{tx: tx, dialect: s.dialect, readOnly: readOnly}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type sqlTx struct {
	tx       *sql.Tx
	dialect  database.Dialect
	readOnly bool
}

func (t *sqlTx) q(query string) string {
	return database.Rebind(t.dialect, query)
}

func (t *sqlTx) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

const userColumns = `id, full_name, contact, contact_type, password_hash, kyc_status,
	biometric_enabled, language, theme, notifications_enabled, created_at`

func scanUser(row *sql.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.FullName, &u.Contact, &u.ContactType, &u.PasswordHash, &u.KYCStatus,
		&u.BiometricEnabled, &u.Language, &u.Theme, &u.NotificationsEnabled, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return u, err
}

func (t *sqlTx) User(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(t.tx.QueryRowContext(ctx, t.q("SELECT "+userColumns+" FROM users WHERE id = ?"), id))
	if err != nil {
		return nil, fmt.Errorf("user %d: %w", id, err)
	}
	if u.Accounts, err = t.accounts(ctx, id); err != nil {
		return nil, err
	}
	return u, nil
}

func (t *sqlTx) UserByContact(ctx context.Context, contact string) (*models.User, error) {
	u, err := scanUser(t.tx.QueryRowContext(ctx,
		t.q("SELECT "+userColumns+" FROM users WHERE LOWER(contact) = LOWER(?)"), contact))
	if err != nil {
		return nil, fmt.Errorf("contact %q: %w", contact, err)
	}
	if u.Accounts, err = t.accounts(ctx, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

const accountColumns = "iban, user_id, name, balance, version, created_at"

func (t *sqlTx) accounts(ctx context.Context, userID int64) ([]*models.Account, error) {
	rows, err := t.tx.QueryContext(ctx,
		t.q("SELECT "+accountColumns+" FROM accounts WHERE user_id = ? ORDER BY seq"), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		a := &models.Account{}
		if err := rows.Scan(&a.IBAN, &a.UserID, &a.Name, &a.Balance, &a.Version, &a.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (t *sqlTx) FindAccount(ctx context.Context, iban string) (*models.Account, error) {
	a := &models.Account{}
	err := t.tx.QueryRowContext(ctx, t.q("SELECT "+accountColumns+" FROM accounts WHERE iban = ?"), iban).
		Scan(&a.IBAN, &a.UserID, &a.Name, &a.Balance, &a.Version, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("account %s: %w", iban, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (t *sqlTx) IBANs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := t.tx.QueryContext(ctx, "SELECT iban FROM accounts")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

func (t *sqlTx) CreateUser(ctx context.Context, u *models.User) error {
	if err := t.writable(); err != nil {
		return err
	}
	const insert = `INSERT INTO users (full_name, contact, contact_type, password_hash, kyc_status,
		biometric_enabled, language, theme, notifications_enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	args := []any{u.FullName, u.Contact, u.ContactType, u.PasswordHash, u.KYCStatus,
		u.BiometricEnabled, u.Language, u.Theme, u.NotificationsEnabled, u.CreatedAt}

	if t.dialect == database.Postgres {
		err := t.tx.QueryRowContext(ctx, t.q(insert+" RETURNING id"), args...).Scan(&u.ID)
		return uniqueViolation(err)
	}
	res, err := t.tx.ExecContext(ctx, insert, args...)
	if err != nil {
		return uniqueViolation(err)
	}
	u.ID, err = res.LastInsertId()
	return err
}

func (t *sqlTx) CreateAccount(ctx context.Context, a *models.Account) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx,
		t.q("INSERT INTO accounts (iban, user_id, name, balance, version, created_at) VALUES (?, ?, ?, ?, ?, ?)"),
		a.IBAN, a.UserID, a.Name, a.Balance, a.Version, a.CreatedAt)
	if err != nil {
		return uniqueViolation(err)
	}
	// Seeded history is recorded as-is; it does not move the opening balance.
	for i := len(a.Transactions) - 1; i >= 0; i-- {
		if err := t.insertTransaction(ctx, a.UserID, a.Transactions[i]); err != nil {
			return err
		}
	}
	return nil
}

func (t *sqlTx) Post(ctx context.Context, a *models.Account, e models.Transaction) error {
	if err := t.writable(); err != nil {
		return err
	}
	balance := a.Balance.Add(e.Amount).Round(2)
	res, err := t.tx.ExecContext(ctx,
		t.q("UPDATE accounts SET balance = ?, version = version + 1 WHERE iban = ? AND version = ?"),
		balance, a.IBAN, a.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("account %s moved past version %d: %w", a.IBAN, a.Version, ErrConflict)
	}
	if err := t.insertTransaction(ctx, a.UserID, e); err != nil {
		return err
	}
	a.Apply(e)
	return nil
}

func (t *sqlTx) insertTransaction(ctx context.Context, userID int64, e models.Transaction) error {
	_, err := t.tx.ExecContext(ctx, t.q(`INSERT INTO transactions
		(id, correlation_id, account_iban, user_id, occurred_at, description, amount, channel, counterparty)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		e.ID, e.CorrelationID, e.AccountIBAN, userID, e.Time, e.Description, e.Amount, e.Channel, e.Counterparty)
	return err
}

func (t *sqlTx) Notify(ctx context.Context, userID int64, n models.Notification) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx,
		t.q("INSERT INTO notifications (user_id, title, body, created_at) VALUES (?, ?, ?, ?)"),
		userID, n.Title, n.Body, n.Timestamp)
	return err
}

func (t *sqlTx) UpsertSubscription(ctx context.Context, userID int64, s models.Subscription) error {
	if err := t.writable(); err != nil {
		return err
	}
	query := `INSERT INTO subscriptions (user_id, biller, customer_no, subscriber, autopay)
		VALUES (?, ?, ?, ?, ?) ON DUPLICATE KEY UPDATE autopay = VALUES(autopay)`
	if t.dialect == database.Postgres {
		query = `INSERT INTO subscriptions (user_id, biller, customer_no, subscriber, autopay)
		VALUES (?, ?, ?, ?, ?) ON CONFLICT (user_id, biller, customer_no) DO UPDATE SET autopay = EXCLUDED.autopay`
	}
	_, err := t.tx.ExecContext(ctx, t.q(query), userID, s.Biller, s.CustomerNo, s.Subscriber, s.Autopay)
	return err
}

// clearUser lists the deletes in foreign-key order: history before accounts.
var clearUser = []string{
	"DELETE FROM transactions WHERE user_id = ?",
	"DELETE FROM accounts WHERE user_id = ?",
	"DELETE FROM notifications WHERE user_id = ?",
	"DELETE FROM subscriptions WHERE user_id = ?",
}

func (t *sqlTx) ClearUser(ctx context.Context, userID int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	for _, query := range clearUser {
		if _, err := t.tx.ExecContext(ctx, t.q(query), userID); err != nil {
			return err
		}
	}
	return nil
}

const transactionColumns = "id, correlation_id, account_iban, occurred_at, description, amount, channel, counterparty"

func (t *sqlTx) Transactions(ctx context.Context, userID int64, limit int) ([]models.Transaction, error) {
	return t.listTransactions(ctx, "user_id = ?", userID, limit)
}

func (t *sqlTx) AccountTransactions(ctx context.Context, iban string, limit int) ([]models.Transaction, error) {
	if _, err := t.FindAccount(ctx, iban); err != nil {
		return nil, err
	}
	return t.listTransactions(ctx, "account_iban = ?", iban, limit)
}

func (t *sqlTx) listTransactions(ctx context.Context, where string, arg any, limit int) ([]models.Transaction, error) {
	query := "SELECT " + transactionColumns + " FROM transactions WHERE " + where +
		" ORDER BY occurred_at DESC, seq DESC" + limitClause(limit)
	rows, err := t.tx.QueryContext(ctx, t.q(query), arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Transaction{}
	for rows.Next() {
		var e models.Transaction
		if err := rows.Scan(&e.ID, &e.CorrelationID, &e.AccountIBAN, &e.Time, &e.Description,
			&e.Amount, &e.Channel, &e.Counterparty); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t *sqlTx) Notifications(ctx context.Context, userID int64, limit int) ([]models.Notification, error) {
	rows, err := t.tx.QueryContext(ctx,
		t.q("SELECT title, body, created_at FROM notifications WHERE user_id = ? ORDER BY seq DESC"+limitClause(limit)), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.Title, &n.Body, &n.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (t *sqlTx) Subscriptions(ctx context.Context, userID int64) ([]models.Subscription, error) {
	rows, err := t.tx.QueryContext(ctx,
		t.q("SELECT biller, subscriber, customer_no, autopay FROM subscriptions WHERE user_id = ? ORDER BY biller, customer_no"), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Subscription{}
	for rows.Next() {
		var s models.Subscription
		if err := rows.Scan(&s.Biller, &s.Subscriber, &s.CustomerNo, &s.Autopay); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (t *sqlTx) Billers(ctx context.Context) ([]models.Biller, error) {
	rows, err := t.tx.QueryContext(ctx, "SELECT id, name FROM billers ORDER BY position")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Biller{}
	for rows.Next() {
		var b models.Biller
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}

// uniqueViolation maps duplicate-key errors from either driver to ErrConflict.
func uniqueViolation(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return fmt.Errorf("%s: %w", myErr.Message, ErrConflict)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%s: %w", pqErr.Message, ErrConflict)
	}
	return err
}
