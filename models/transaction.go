package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ChannelInstant = "instant"
	ChannelWire    = "wire"
	ChannelCard    = "card"
	ChannelPayment = "payment"
)

// Transaction is immutable once created. Amount is signed: negative leaves the
// account, positive arrives. Both legs of one transfer share CorrelationID.
type Transaction struct {
	ID            string          `json:"id"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	AccountIBAN   string          `json:"account_iban"`
	Time          time.Time       `json:"date"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	Channel       string          `json:"channel"`
	Counterparty  string          `json:"counterparty"`
}
