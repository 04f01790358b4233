package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"retail-bank/models"
)

// DocumentStore keeps the whole user/account graph as one JSON document.
// Every Update re-reads the document, mutates it and rewrites it under a
// process-wide write lock, so load-mutate-save cycles never interleave.
// A failed unit of work is never written back.
type DocumentStore struct {
	mu   sync.RWMutex
	blob blob
}

type blob interface {
	read() ([]byte, error)
	write([]byte) error
}

// NewDocumentStore persists to the JSON file at path. A missing file is an
// empty store with the default biller catalog.
func NewDocumentStore(path string) *DocumentStore {
	return &DocumentStore{blob: fileBlob(path)}
}

// NewMemoryStore keeps the encoded document in memory.
func NewMemoryStore() *DocumentStore {
	return &DocumentStore{blob: &memBlob{}}
}

func (s *DocumentStore) View(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, err := s.load()
	if err != nil {
		return err
	}
	return fn(&docTx{state: state, readOnly: true})
}

func (s *DocumentStore) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(&docTx{state: state}); err != nil {
		return err
	}
	return s.save(state)
}

func (s *DocumentStore) Close() error { return nil }

// Snapshot returns a decoded copy of the current document.
func (s *DocumentStore) Snapshot() (*models.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load()
}

func (s *DocumentStore) load() (*models.State, error) {
	data, err := s.blob.read()
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if len(data) == 0 {
		return models.NewState(), nil
	}
	var state models.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &state, nil
}

func (s *DocumentStore) save(state *models.State) error {
	state.Meta.Storage = "json_document"
	state.Meta.Timestamp = time.Now()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := s.blob.write(data); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}

type fileBlob string

func (p fileBlob) read() ([]byte, error) {
	data, err := os.ReadFile(string(p))
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}

// write replaces the file atomically: a torn write leaves the old document.
func (p fileBlob) write(data []byte) error {
	tmp := string(p) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, string(p))
}

type memBlob struct {
	data []byte
}

func (m *memBlob) read() ([]byte, error) { return m.data, nil }

func (m *memBlob) write(data []byte) error {
	m.data = data
	return nil
}

type docTx struct {
	state    *models.State
	readOnly bool
}

func (t *docTx) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

func (t *docTx) User(_ context.Context, id int64) (*models.User, error) {
	u := t.state.User(id)
	if u == nil {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return u, nil
}

func (t *docTx) UserByContact(_ context.Context, contact string) (*models.User, error) {
	for _, u := range t.state.Users {
		if models.SameContact(u.Contact, contact) {
			return u, nil
		}
	}
	return nil, fmt.Errorf("contact %q: %w", contact, ErrNotFound)
}

func (t *docTx) FindAccount(_ context.Context, iban string) (*models.Account, error) {
	a, _ := t.state.FindAccount(iban)
	if a == nil {
		return nil, fmt.Errorf("account %s: %w", iban, ErrNotFound)
	}
	return a, nil
}

func (t *docTx) IBANs(context.Context) (map[string]struct{}, error) {
	return t.state.IBANs(), nil
}

func (t *docTx) CreateUser(_ context.Context, u *models.User) error {
	if err := t.writable(); err != nil {
		return err
	}
	u.ID = t.state.NextUserID
	t.state.NextUserID++
	t.state.Users = append(t.state.Users, u)
	return nil
}

func (t *docTx) CreateAccount(_ context.Context, a *models.Account) error {
	if err := t.writable(); err != nil {
		return err
	}
	owner := t.state.User(a.UserID)
	if owner == nil {
		return fmt.Errorf("user %d: %w", a.UserID, ErrNotFound)
	}
	if existing, _ := t.state.FindAccount(a.IBAN); existing != nil {
		return fmt.Errorf("identifier %s taken: %w", a.IBAN, ErrConflict)
	}
	owner.Accounts = append(owner.Accounts, a)
	if len(a.Transactions) > 0 {
		owner.Transactions = append(owner.Transactions, a.Transactions...)
		sort.SliceStable(owner.Transactions, func(i, j int) bool {
			return owner.Transactions[i].Time.After(owner.Transactions[j].Time)
		})
	}
	return nil
}

func (t *docTx) Post(_ context.Context, a *models.Account, e models.Transaction) error {
	if err := t.writable(); err != nil {
		return err
	}
	target, owner := t.state.FindAccount(a.IBAN)
	if target == nil {
		return fmt.Errorf("account %s: %w", a.IBAN, ErrNotFound)
	}
	if target.Version != a.Version {
		return fmt.Errorf("account %s at version %d, have %d: %w", a.IBAN, target.Version, a.Version, ErrConflict)
	}
	target.Apply(e)
	if target != a {
		a.Apply(e)
	}
	owner.Transactions = models.Prepend(owner.Transactions, e)
	return nil
}

func (t *docTx) Notify(_ context.Context, userID int64, n models.Notification) error {
	if err := t.writable(); err != nil {
		return err
	}
	u := t.state.User(userID)
	if u == nil {
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	u.Notifications = append([]models.Notification{n}, u.Notifications...)
	return nil
}

func (t *docTx) UpsertSubscription(_ context.Context, userID int64, s models.Subscription) error {
	if err := t.writable(); err != nil {
		return err
	}
	u := t.state.User(userID)
	if u == nil {
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	for i := range u.Payments {
		if u.Payments[i].Biller == s.Biller && u.Payments[i].CustomerNo == s.CustomerNo {
			u.Payments[i].Autopay = s.Autopay
			return nil
		}
	}
	u.Payments = append(u.Payments, s)
	return nil
}

func (t *docTx) ClearUser(_ context.Context, userID int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	u := t.state.User(userID)
	if u == nil {
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	u.Accounts = []*models.Account{}
	u.Transactions = []models.Transaction{}
	u.Notifications = []models.Notification{}
	u.Payments = []models.Subscription{}
	return nil
}

func (t *docTx) Transactions(_ context.Context, userID int64, limit int) ([]models.Transaction, error) {
	u := t.state.User(userID)
	if u == nil {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	return head(u.Transactions, limit), nil
}

func (t *docTx) AccountTransactions(_ context.Context, iban string, limit int) ([]models.Transaction, error) {
	a, _ := t.state.FindAccount(iban)
	if a == nil {
		return nil, fmt.Errorf("account %s: %w", iban, ErrNotFound)
	}
	return head(a.Transactions, limit), nil
}

func (t *docTx) Notifications(_ context.Context, userID int64, limit int) ([]models.Notification, error) {
	u := t.state.User(userID)
	if u == nil {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	return head(u.Notifications, limit), nil
}

func (t *docTx) Subscriptions(_ context.Context, userID int64) ([]models.Subscription, error) {
	u := t.state.User(userID)
	if u == nil {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	return head(u.Payments, 0), nil
}

func (t *docTx) Billers(context.Context) ([]models.Biller, error) {
	return head(t.state.Billers, 0), nil
}
