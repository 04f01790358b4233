// Package store holds the account store contract and the persistence
// gateways behind it. The ledger only sees Gateway and Tx; whether state is
// a JSON document or relational rows is invisible to it.
package store

import (
	"context"
	"errors"

	"retail-bank/models"
)

var (
	// ErrNotFound is returned when a user or account does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an account changed underneath an update.
	// The whole unit of work is rolled back and may be retried.
	ErrConflict = errors.New("concurrent update conflict")
)

// Gateway runs units of work against persisted state.
type Gateway interface {
	// View runs fn against a consistent snapshot. Writes through the Tx fail.
	View(ctx context.Context, fn func(Tx) error) error
	// Update runs fn as one all-or-nothing unit. If fn returns an error
	// nothing it did is visible to later reads.
	Update(ctx context.Context, fn func(Tx) error) error
	Close() error
}

// Tx is the account store seen from inside a unit of work.
type Tx interface {
	// User loads a user with its accounts, primary account first.
	User(ctx context.Context, id int64) (*models.User, error)
	UserByContact(ctx context.Context, contact string) (*models.User, error)
	// FindAccount looks an identifier up across all users.
	FindAccount(ctx context.Context, iban string) (*models.Account, error)
	// IBANs returns every identifier currently assigned.
	IBANs(ctx context.Context) (map[string]struct{}, error)

	CreateUser(ctx context.Context, u *models.User) error
	// CreateAccount stores a new account with its opening balance and any
	// seeded history, which does not move the balance.
	CreateAccount(ctx context.Context, a *models.Account) error
	// Post books e against a: balance and history change together. a must
	// have been read in this unit of work; a stale version yields ErrConflict.
	Post(ctx context.Context, a *models.Account, e models.Transaction) error
	Notify(ctx context.Context, userID int64, n models.Notification) error
	UpsertSubscription(ctx context.Context, userID int64, s models.Subscription) error
	// ClearUser drops the user's accounts with their history, notifications
	// and subscriptions. The user row itself stays.
	ClearUser(ctx context.Context, userID int64) error

	// Transactions lists the user's entries across accounts, newest first.
	// limit <= 0 means no limit.
	Transactions(ctx context.Context, userID int64, limit int) ([]models.Transaction, error)
	AccountTransactions(ctx context.Context, iban string, limit int) ([]models.Transaction, error)
	Notifications(ctx context.Context, userID int64, limit int) ([]models.Notification, error)
	Subscriptions(ctx context.Context, userID int64) ([]models.Subscription, error)
	Billers(ctx context.Context) ([]models.Biller, error)
}

var errReadOnly = errors.New("write attempted in read-only view")

func head[T any](list []T, limit int) []T {
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	out := make([]T, len(list))
	copy(out, list)
	return out
}
