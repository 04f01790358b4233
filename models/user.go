package models

import (
	"strings"
	"time"
)

type User struct {
	ID                   int64          `json:"id"`
	FullName             string         `json:"full_name"`
	Contact              string         `json:"contact"`
	ContactType          string         `json:"contact_type"`
	PasswordHash         string         `json:"password_hash,omitempty"`
	KYCStatus            string         `json:"kyc_status"`
	BiometricEnabled     bool           `json:"biometric_enabled"`
	Language             string         `json:"language"`
	Theme                string         `json:"theme"`
	NotificationsEnabled bool           `json:"notifications_enabled"`
	CreatedAt            time.Time      `json:"created_at"`
	Accounts             []*Account     `json:"accounts"`
	Transactions         []Transaction  `json:"transactions"`
	Notifications        []Notification `json:"notifications"`
	Payments             []Subscription `json:"payments"`
}

// Primary returns the account that payments and default transfers debit.
func (u *User) Primary() *Account {
	if len(u.Accounts) == 0 {
		return nil
	}
	return u.Accounts[0]
}

// Account finds one of the user's own accounts by identifier.
func (u *User) Account(iban string) *Account {
	for _, a := range u.Accounts {
		if a.IBAN == iban {
			return a
		}
	}
	return nil
}

// SameContact compares contact identifiers case-insensitively.
func SameContact(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

type Notification struct {
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Subscription is a saved biller/customer-number pair. It never touches a balance.
type Subscription struct {
	Biller     string `json:"biller"`
	Subscriber string `json:"subscriber"`
	CustomerNo string `json:"customer_no"`
	Autopay    bool   `json:"autopay"`
}

type Biller struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
