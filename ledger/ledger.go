// Package ledger applies transfers and payments to account balances.
//
// Each operation validates its input, then runs as a single unit of work on
// the store gateway: either every balance change, history entry and
// notification it produces becomes visible, or none does. Concurrent writers
// are detected by the gateway and the unit of work is retried a bounded
// number of times.
//
// A transfer to an identifier that is well-formed but unknown to this system
// succeeds as an outgoing-only instruction: the source is debited and the
// raw identifier is kept as the counterparty. This models payment to another
// bank and is intentional.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"retail-bank/iban"
	"retail-bank/models"
	"retail-bank/money"
	"retail-bank/store"
)

const (
	defaultDescription = "IBAN transfer"
	defaultRetries     = 3
)

type Options struct {
	// Retries bounds how often a unit of work is rerun after a conflict.
	Retries int
	Logger  zerolog.Logger
	Now     func() time.Time
}

type Ledger struct {
	store   store.Gateway
	retries int
	log     zerolog.Logger
	now     func() time.Time
}

func New(gw store.Gateway, opts Options) *Ledger {
	l := &Ledger{store: gw, retries: opts.Retries, log: opts.Logger, now: opts.Now}
	if l.retries <= 0 {
		l.retries = defaultRetries
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

type TransferRequest struct {
	// Source is one of the user's own identifiers; empty means the primary account.
	Source      string
	Destination string
	Amount      string
	Description string
	Channel     string
}

type PaymentRequest struct {
	Biller     string
	CustomerNo string
	Amount     string
	Autopay    bool
}

type Registration struct {
	FullName     string
	Contact      string
	ContactType  string
	PasswordHash string
}

// Receipt describes a committed transfer or payment.
type Receipt struct {
	CorrelationID string               `json:"correlation_id"`
	Source        string               `json:"source"`
	Balance       decimal.Decimal      `json:"balance"`
	Destination   string               `json:"destination"`
	Internal      bool                 `json:"internal"`
	Amount        decimal.Decimal      `json:"amount"`
	Entries       []models.Transaction `json:"entries"`
}

// Transfer moves amount from one of the user's accounts to destination.
// When destination names an account in this system, that account is
// credited in the same unit of work.
func (l *Ledger) Transfer(ctx context.Context, userID int64, req TransferRequest) (*Receipt, error) {
	dest := iban.Normalize(req.Destination)
	if !iban.Valid(dest) {
		return nil, l.reject("transfer", userID, ErrInvalidDestination)
	}
	amount, err := parsePositive(req.Amount)
	if err != nil {
		return nil, l.reject("transfer", userID, err)
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = defaultDescription
	}
	channel := strings.TrimSpace(req.Channel)
	if channel == "" {
		channel = models.ChannelWire
	}

	var receipt *Receipt
	err = l.update(ctx, "transfer", func(tx store.Tx) error {
		user, err := loadUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		source := user.Primary()
		if req.Source != "" {
			source = user.Account(iban.Normalize(req.Source))
		}
		if source == nil {
			return ErrUnknownAccount
		}

		target, err := resolve(ctx, tx, user, dest)
		if err != nil {
			return err
		}
		if target != nil && target.IBAN == source.IBAN {
			return ErrSameAccountTransfer
		}
		if source.Balance.LessThan(amount) {
			return ErrInsufficientFunds
		}

		now := l.now()
		correlation := uuid.NewString()
		debit := models.Transaction{
			ID:            uuid.NewString(),
			CorrelationID: correlation,
			AccountIBAN:   source.IBAN,
			Time:          now,
			Description:   description,
			Amount:        amount.Neg(),
			Channel:       channel,
			Counterparty:  dest,
		}
		if err := tx.Post(ctx, source, debit); err != nil {
			return err
		}
		receipt = &Receipt{
			CorrelationID: correlation,
			Source:        source.IBAN,
			Balance:       source.Balance,
			Destination:   dest,
			Amount:        amount,
			Entries:       []models.Transaction{debit},
		}

		if target != nil {
			credit := debit
			credit.ID = uuid.NewString()
			credit.AccountIBAN = target.IBAN
			credit.Amount = amount
			credit.Counterparty = source.IBAN
			if err := tx.Post(ctx, target, credit); err != nil {
				return err
			}
			receipt.Internal = true
			receipt.Entries = append(receipt.Entries, credit)
		}

		if err := tx.Notify(ctx, userID, models.Notification{
			Title:     "Transfer sent",
			Body:      fmt.Sprintf("%s sent to %s", money.Format(amount), dest),
			Timestamp: now,
		}); err != nil {
			return err
		}
		if target != nil && target.UserID != userID {
			return tx.Notify(ctx, target.UserID, models.Notification{
				Title:     "Transfer received",
				Body:      fmt.Sprintf("%s received from %s", money.Format(amount), source.IBAN),
				Timestamp: now,
			})
		}
		return nil
	})
	if err != nil {
		return nil, l.reject("transfer", userID, err)
	}

	l.log.Info().
		Int64("user_id", userID).
		Str("correlation_id", receipt.CorrelationID).
		Str("amount", money.Format(amount)).
		Bool("internal", receipt.Internal).
		Msg("transfer committed")
	return receipt, nil
}

// resolve finds destination among the user's own accounts first, then among
// everyone else's. A nil account with nil error means the identifier is
// external to this system.
func resolve(ctx context.Context, tx store.Tx, user *models.User, dest string) (*models.Account, error) {
	if own := user.Account(dest); own != nil {
		return own, nil
	}
	other, err := tx.FindAccount(ctx, dest)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return other, err
}

// PayBiller debits the primary account and records or updates the biller
// subscription for (biller, customer number).
func (l *Ledger) PayBiller(ctx context.Context, userID int64, req PaymentRequest) (*Receipt, error) {
	biller := strings.TrimSpace(req.Biller)
	if biller == "" {
		return nil, l.reject("payment", userID, ErrInvalidDestination)
	}
	amount, err := parsePositive(req.Amount)
	if err != nil {
		return nil, l.reject("payment", userID, err)
	}
	customerNo := strings.TrimSpace(req.CustomerNo)
	counterparty := customerNo
	if counterparty == "" {
		counterparty = biller
	}

	var receipt *Receipt
	err = l.update(ctx, "payment", func(tx store.Tx) error {
		user, err := loadUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		source := user.Primary()
		if source == nil {
			return ErrUnknownAccount
		}
		if source.Balance.LessThan(amount) {
			return ErrInsufficientFunds
		}

		now := l.now()
		entry := models.Transaction{
			ID:            uuid.NewString(),
			CorrelationID: uuid.NewString(),
			AccountIBAN:   source.IBAN,
			Time:          now,
			Description:   biller + " payment",
			Amount:        amount.Neg(),
			Channel:       models.ChannelPayment,
			Counterparty:  counterparty,
		}
		if err := tx.Post(ctx, source, entry); err != nil {
			return err
		}
		if err := tx.UpsertSubscription(ctx, userID, models.Subscription{
			Biller:     biller,
			Subscriber: biller,
			CustomerNo: customerNo,
			Autopay:    req.Autopay,
		}); err != nil {
			return err
		}
		receipt = &Receipt{
			CorrelationID: entry.CorrelationID,
			Source:        source.IBAN,
			Balance:       source.Balance,
			Destination:   counterparty,
			Amount:        amount,
			Entries:       []models.Transaction{entry},
		}
		return tx.Notify(ctx, userID, models.Notification{
			Title:     biller + " payment completed",
			Body:      fmt.Sprintf("%s paid to %s", money.Format(amount), biller),
			Timestamp: now,
		})
	})
	if err != nil {
		return nil, l.reject("payment", userID, err)
	}

	l.log.Info().
		Int64("user_id", userID).
		Str("correlation_id", receipt.CorrelationID).
		Str("amount", money.Format(amount)).
		Str("biller", biller).
		Msg("payment committed")
	return receipt, nil
}

// Register creates a user with the demo account set. Identifiers are
// allocated against every identifier in the store inside the same unit of
// work that creates the accounts.
func (l *Ledger) Register(ctx context.Context, r Registration) (*models.User, error) {
	r.FullName = strings.TrimSpace(r.FullName)
	r.Contact = strings.TrimSpace(r.Contact)
	if r.FullName == "" || r.Contact == "" {
		return nil, l.reject("register", 0, ErrInvalidProfile)
	}

	var user *models.User
	err := l.update(ctx, "register", func(tx store.Tx) error {
		if _, err := tx.UserByContact(ctx, r.Contact); err == nil {
			return ErrContactTaken
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		now := l.now()
		user = newUser(r, now)
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}
		existing, err := tx.IBANs(ctx)
		if err != nil {
			return err
		}
		return seedDemo(ctx, tx, user, existing, now)
	})
	if err != nil {
		return nil, l.reject("register", 0, err)
	}

	l.log.Info().Int64("user_id", user.ID).Msg("user registered")
	return user, nil
}

// Reset rebuilds the user's accounts, history, subscriptions and
// notifications from the demo seed. The profile and credentials stay. The new
// accounts get fresh identifiers, so the old ones stop resolving and later
// transfers to them are treated as external.
func (l *Ledger) Reset(ctx context.Context, userID int64) (*models.User, error) {
	var user *models.User
	err := l.update(ctx, "reset", func(tx store.Tx) error {
		var err error
		if user, err = loadUser(ctx, tx, userID); err != nil {
			return err
		}
		// Taken before clearing so the reseed cannot hand back a retired identifier.
		existing, err := tx.IBANs(ctx)
		if err != nil {
			return err
		}
		if err := tx.ClearUser(ctx, userID); err != nil {
			return err
		}
		return seedDemo(ctx, tx, user, existing, l.now())
	})
	if err != nil {
		return nil, l.reject("reset", userID, err)
	}

	l.log.Info().Int64("user_id", userID).Msg("demo data reset")
	return user, nil
}

// seedDemo gives user the demo primary and savings accounts, subscriptions
// and a welcome notification.
func seedDemo(ctx context.Context, tx store.Tx, user *models.User, existing map[string]struct{}, now time.Time) error {
	primary, err := newAccount(existing, user.ID, primaryAccountName, primaryOpening, now)
	if err != nil {
		return err
	}
	primary.Transactions = demoHistory(primary.IBAN, now)
	if err := tx.CreateAccount(ctx, primary); err != nil {
		return err
	}
	savings, err := newAccount(existing, user.ID, savingsAccountName, savingsOpening, now)
	if err != nil {
		return err
	}
	if err := tx.CreateAccount(ctx, savings); err != nil {
		return err
	}

	for _, s := range demoSubscriptions() {
		if err := tx.UpsertSubscription(ctx, user.ID, s); err != nil {
			return err
		}
	}
	if err := tx.Notify(ctx, user.ID, models.Notification{Title: "Welcome", Timestamp: now}); err != nil {
		return err
	}
	user.Accounts = []*models.Account{primary, savings}
	return nil
}

// AllocateAccount opens an empty account for the user under a fresh identifier.
func (l *Ledger) AllocateAccount(ctx context.Context, userID int64, name string) (*models.Account, error) {
	var account *models.Account
	err := l.update(ctx, "allocate", func(tx store.Tx) error {
		user, err := loadUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		existing, err := tx.IBANs(ctx)
		if err != nil {
			return err
		}
		if strings.TrimSpace(name) == "" {
			name = fmt.Sprintf("Account %d", len(user.Accounts)+1)
		}
		account, err = newAccount(existing, userID, strings.TrimSpace(name), decimal.Zero, l.now())
		if err != nil {
			return err
		}
		return tx.CreateAccount(ctx, account)
	})
	if err != nil {
		return nil, l.reject("allocate", userID, err)
	}
	return account, nil
}

// newAccount reserves a fresh identifier in existing and builds the account.
func newAccount(existing map[string]struct{}, userID int64, name string, opening decimal.Decimal, now time.Time) (*models.Account, error) {
	id, err := iban.Allocate(existing)
	if err != nil {
		return nil, err
	}
	return &models.Account{
		IBAN:         id,
		UserID:       userID,
		Name:         name,
		Balance:      money.Round(opening),
		CreatedAt:    now,
		Transactions: []models.Transaction{},
	}, nil
}

// ListTransactions returns the user's history across accounts, newest first.
func (l *Ledger) ListTransactions(ctx context.Context, userID int64, limit int) ([]models.Transaction, error) {
	var out []models.Transaction
	err := l.view(ctx, func(tx store.Tx) error {
		if _, err := loadUser(ctx, tx, userID); err != nil {
			return err
		}
		var err error
		out, err = tx.Transactions(ctx, userID, limit)
		return err
	})
	return out, err
}

// AccountTransactions returns one of the user's own accounts' history, newest first.
func (l *Ledger) AccountTransactions(ctx context.Context, userID int64, accountIBAN string, limit int) ([]models.Transaction, error) {
	var out []models.Transaction
	err := l.view(ctx, func(tx store.Tx) error {
		user, err := loadUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		a := user.Account(iban.Normalize(accountIBAN))
		if a == nil {
			return ErrUnknownAccount
		}
		out, err = tx.AccountTransactions(ctx, a.IBAN, limit)
		return err
	})
	return out, err
}

// Profile returns the user with balances, recent activity, notifications and
// saved billers, read from one consistent snapshot.
func (l *Ledger) Profile(ctx context.Context, userID int64, recent int) (*models.User, error) {
	var user *models.User
	err := l.view(ctx, func(tx store.Tx) error {
		var err error
		if user, err = loadUser(ctx, tx, userID); err != nil {
			return err
		}
		if user.Transactions, err = tx.Transactions(ctx, userID, recent); err != nil {
			return err
		}
		if user.Notifications, err = tx.Notifications(ctx, userID, recent); err != nil {
			return err
		}
		user.Payments, err = tx.Subscriptions(ctx, userID)
		return err
	})
	return user, err
}

// LookupContact finds a user by contact identifier, case-insensitively.
func (l *Ledger) LookupContact(ctx context.Context, contact string) (*models.User, error) {
	var user *models.User
	err := l.view(ctx, func(tx store.Tx) error {
		var err error
		user, err = tx.UserByContact(ctx, strings.TrimSpace(contact))
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnknownUser
		}
		return err
	})
	return user, err
}

func (l *Ledger) Billers(ctx context.Context) ([]models.Biller, error) {
	var out []models.Biller
	err := l.view(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.Billers(ctx)
		return err
	})
	return out, err
}

func loadUser(ctx context.Context, tx store.Tx, userID int64) (*models.User, error) {
	user, err := tx.User(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownUser
	}
	return user, err
}

func parsePositive(text string) (decimal.Decimal, error) {
	amount, err := money.Parse(text)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, text)
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: must be positive", ErrInvalidAmount)
	}
	return amount, nil
}

// update runs fn as one unit of work, rerunning it while the store reports
// a conflict and the retry budget lasts.
func (l *Ledger) update(ctx context.Context, op string, fn func(store.Tx) error) error {
	var err error
	for attempt := 1; attempt <= l.retries+1; attempt++ {
		err = l.store.Update(ctx, fn)
		if !errors.Is(err, store.ErrConflict) {
			return classify(err)
		}
		l.log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("conflicting update, retrying")
	}
	return fmt.Errorf("%w: %w", ErrPersistenceConflict, err)
}

func (l *Ledger) view(ctx context.Context, fn func(store.Tx) error) error {
	return classify(l.store.View(ctx, fn))
}

func (l *Ledger) reject(op string, userID int64, err error) error {
	level := zerolog.DebugLevel
	if errors.Is(err, ErrStorageUnavailable) {
		level = zerolog.ErrorLevel
	}
	l.log.WithLevel(level).Err(err).Str("op", op).Int64("user_id", userID).Str("kind", Kind(err)).Msg("operation rejected")
	return err
}
