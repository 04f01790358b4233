package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"retail-bank/models"
)

const (
	primaryAccountName = "Vadesiz TRY"
	savingsAccountName = "Birikim TRY"
)

var (
	primaryOpening = decimal.RequireFromString("12850.75")
	savingsOpening = decimal.RequireFromString("3250.00")
)

// demoHistory is the statement a fresh primary account starts with. It is
// history only; the opening balance is set independently.
func demoHistory(iban string, now time.Time) []models.Transaction {
	day := 24 * time.Hour
	entry := func(age time.Duration, desc, amount, channel, counterparty string) models.Transaction {
		return models.Transaction{
			ID:           uuid.NewString(),
			AccountIBAN:  iban,
			Time:         now.Add(-age),
			Description:  desc,
			Amount:       decimal.RequireFromString(amount),
			Channel:      channel,
			Counterparty: counterparty,
		}
	}
	return []models.Transaction{
		entry(2*day, "Elektrik Faturası", "-352.40", models.ChannelInstant, "CK Boğaziçi"),
		entry(5*day, "Market harcaması", "-189.90", models.ChannelCard, "Migros"),
		entry(6*day, "Maaş ödemesi", "24500.00", models.ChannelWire, "Alternatif Teknoloji"),
	}
}

func demoSubscriptions() []models.Subscription {
	return []models.Subscription{
		{Biller: "Elektrik", Subscriber: "CK Boğaziçi", CustomerNo: "21900345", Autopay: true},
		{Biller: "GSM", Subscriber: "Alternatif GSM", CustomerNo: "5301234567", Autopay: false},
	}
}

func newUser(r Registration, now time.Time) *models.User {
	contactType := r.ContactType
	if contactType == "" {
		contactType = "email"
	}
	return &models.User{
		FullName:             r.FullName,
		Contact:              r.Contact,
		ContactType:          contactType,
		PasswordHash:         r.PasswordHash,
		KYCStatus:            "pending",
		Language:             "tr",
		Theme:                "light",
		NotificationsEnabled: true,
		CreatedAt:            now,
		Accounts:             []*models.Account{},
		Transactions:         []models.Transaction{},
		Notifications:        []models.Notification{},
		Payments:             []models.Subscription{},
	}
}
