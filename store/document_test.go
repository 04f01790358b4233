package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"retail-bank/models"
)

func seedUser(t *testing.T, s *DocumentStore, iban, balance string) int64 {
	t.Helper()
	var id int64
	err := s.Update(context.Background(), func(tx Tx) error {
		u := &models.User{FullName: "Ayşe", Contact: "ayse@example.com"}
		if err := tx.CreateUser(context.Background(), u); err != nil {
			return err
		}
		id = u.ID
		return tx.CreateAccount(context.Background(), &models.Account{
			IBAN:    iban,
			UserID:  u.ID,
			Name:    "Vadesiz TRY",
			Balance: decimal.RequireFromString(balance),
		})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return id
}

func debit(iban, amount string) models.Transaction {
	return models.Transaction{
		ID:          "e-" + amount,
		AccountIBAN: iban,
		Time:        time.Now(),
		Amount:      decimal.RequireFromString(amount),
		Channel:     models.ChannelWire,
	}
}

func TestDocumentStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.json")
	s := NewDocumentStore(path)
	id := seedUser(t, s, "TR000000000000000000000001", "100.00")

	err := s.Update(context.Background(), func(tx Tx) error {
		a, err := tx.FindAccount(context.Background(), "TR000000000000000000000001")
		if err != nil {
			return err
		}
		return tx.Post(context.Background(), a, debit(a.IBAN, "-40.00"))
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temporary file left behind: %v", err)
	}

	reopened := NewDocumentStore(path)
	err = reopened.View(context.Background(), func(tx Tx) error {
		u, err := tx.User(context.Background(), id)
		if err != nil {
			return err
		}
		if got := u.Primary().Balance.StringFixed(2); got != "60.00" {
			t.Errorf("balance = %s, want 60.00", got)
		}
		if u.Primary().Version != 1 {
			t.Errorf("version = %d, want 1", u.Primary().Version)
		}
		entries, err := tx.Transactions(context.Background(), id, 0)
		if err != nil {
			return err
		}
		if len(entries) != 1 {
			t.Errorf("entries = %d, want 1", len(entries))
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	snap, err := reopened.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if snap.Meta.Storage != "json_document" || len(snap.Billers) != 3 {
		t.Fatalf("meta = %+v, billers = %d", snap.Meta, len(snap.Billers))
	}
}

func TestDocumentStoreMissingFileIsEmpty(t *testing.T) {
	s := NewDocumentStore(filepath.Join(t.TempDir(), "absent.json"))
	err := s.View(context.Background(), func(tx Tx) error {
		_, err := tx.User(context.Background(), 1)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("User on empty store: %v", err)
		}
		billers, err := tx.Billers(context.Background())
		if len(billers) != 3 {
			t.Errorf("billers = %v", billers)
		}
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestDocumentStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	err := NewDocumentStore(path).View(context.Background(), func(Tx) error { return nil })
	if err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDocumentStoreFailedUpdateLeavesNoTrace(t *testing.T) {
	s := NewMemoryStore()
	id := seedUser(t, s, "TR000000000000000000000001", "100.00")
	boom := errors.New("second leg failed")

	err := s.Update(context.Background(), func(tx Tx) error {
		a, err := tx.FindAccount(context.Background(), "TR000000000000000000000001")
		if err != nil {
			return err
		}
		if err := tx.Post(context.Background(), a, debit(a.IBAN, "-40.00")); err != nil {
			return err
		}
		if err := tx.Notify(context.Background(), id, models.Notification{Title: "Transfer sent"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update = %v", err)
	}

	snap, err := s.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	u := snap.User(id)
	if got := u.Primary().Balance.StringFixed(2); got != "100.00" {
		t.Fatalf("balance = %s after failed unit", got)
	}
	if len(u.Transactions) != 0 || len(u.Notifications) != 0 {
		t.Fatalf("failed unit left history %v / %v", u.Transactions, u.Notifications)
	}
}

func TestDocumentStoreViewIsReadOnly(t *testing.T) {
	s := NewMemoryStore()
	id := seedUser(t, s, "TR000000000000000000000001", "100.00")

	err := s.View(context.Background(), func(tx Tx) error {
		return tx.Notify(context.Background(), id, models.Notification{Title: "nope"})
	})
	if !errors.Is(err, errReadOnly) {
		t.Fatalf("View write = %v", err)
	}
}

func TestDocumentStoreStaleVersion(t *testing.T) {
	s := NewMemoryStore()
	seedUser(t, s, "TR000000000000000000000001", "100.00")

	err := s.Update(context.Background(), func(tx Tx) error {
		a, err := tx.FindAccount(context.Background(), "TR000000000000000000000001")
		if err != nil {
			return err
		}
		stale := *a
		stale.Version--
		return tx.Post(context.Background(), &stale, debit(a.IBAN, "-1.00"))
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("Post with stale version = %v", err)
	}
}

func TestDocumentStoreDuplicateIdentifier(t *testing.T) {
	s := NewMemoryStore()
	id := seedUser(t, s, "TR000000000000000000000001", "0")

	err := s.Update(context.Background(), func(tx Tx) error {
		return tx.CreateAccount(context.Background(), &models.Account{IBAN: "TR000000000000000000000001", UserID: id})
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate identifier = %v", err)
	}
}

func TestDocumentStoreUpsertSubscription(t *testing.T) {
	s := NewMemoryStore()
	id := seedUser(t, s, "TR000000000000000000000001", "0")

	for _, autopay := range []bool{true, false} {
		err := s.Update(context.Background(), func(tx Tx) error {
			return tx.UpsertSubscription(context.Background(), id, models.Subscription{Biller: "Su", CustomerNo: "42", Autopay: autopay})
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	err := s.View(context.Background(), func(tx Tx) error {
		subs, err := tx.Subscriptions(context.Background(), id)
		if len(subs) != 1 || subs[0].Autopay {
			t.Errorf("subscriptions = %+v", subs)
		}
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestHeadCopies(t *testing.T) {
	list := []int{1, 2, 3}
	got := head(list, 2)
	got[0] = 9
	if list[0] != 1 || len(got) != 2 {
		t.Fatalf("head aliased or mis-sized: %v %v", list, got)
	}
	if len(head(list, 0)) != 3 {
		t.Fatal("limit 0 should return everything")
	}
}

func TestDocumentStoreClearUser(t *testing.T) {
	s := NewMemoryStore()
	id := seedUser(t, s, "TR000000000000000000000001", "100.00")

	err := s.Update(context.Background(), func(tx Tx) error {
		if err := tx.Notify(context.Background(), id, models.Notification{Title: "Welcome"}); err != nil {
			return err
		}
		return tx.ClearUser(context.Background(), id)
	})
	if err != nil {
		t.Fatal(err)
	}

	err = s.View(context.Background(), func(tx Tx) error {
		if _, err := tx.FindAccount(context.Background(), "TR000000000000000000000001"); !errors.Is(err, ErrNotFound) {
			t.Errorf("cleared account still found: %v", err)
		}
		u, err := tx.User(context.Background(), id)
		if err != nil {
			return err
		}
		if len(u.Accounts) != 0 || len(u.Notifications) != 0 || u.Contact != "ayse@example.com" {
			t.Errorf("user after clear = %+v", u)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
