package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account belongs to exactly one user. IBAN is immutable once assigned.
type Account struct {
	IBAN         string          `json:"iban"`
	UserID       int64           `json:"user_id"`
	Name         string          `json:"name"`
	Balance      decimal.Decimal `json:"balance"`
	Version      int64           `json:"version"`
	CreatedAt    time.Time       `json:"created_at"`
	Transactions []Transaction   `json:"transactions"`
}

// Apply books e against the account: the balance moves by e.Amount, rounded
// to two places, e is prepended to the history and the version advances.
func (a *Account) Apply(e Transaction) {
	a.Balance = a.Balance.Add(e.Amount).Round(2)
	a.Transactions = Prepend(a.Transactions, e)
	a.Version++
}

// Prepend inserts e at the head of list, keeping newest-first order.
func Prepend(list []Transaction, e Transaction) []Transaction {
	out := make([]Transaction, 0, len(list)+1)
	out = append(out, e)
	return append(out, list...)
}
