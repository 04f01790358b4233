package models

import "time"

// Meta describes the persisted document so older snapshots can be migrated.
type Meta struct {
	Storage   string    `json:"storage"`
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the whole persisted graph of the document-store variant.
type State struct {
	Meta       Meta     `json:"_meta"`
	NextUserID int64    `json:"next_user_id"`
	Users      []*User  `json:"users"`
	Billers    []Biller `json:"billers"`
}

// DefaultBillers is the static catalog every fresh store starts with.
func DefaultBillers() []Biller {
	return []Biller{
		{ID: "electricity", Name: "Elektrik"},
		{ID: "water", Name: "Su"},
		{ID: "gsm", Name: "GSM"},
	}
}

func NewState() *State {
	return &State{
		Meta:       Meta{Storage: "json_document", Version: 1},
		NextUserID: 1,
		Users:      []*User{},
		Billers:    DefaultBillers(),
	}
}

func (s *State) User(id int64) *User {
	for _, u := range s.Users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

// FindAccount searches every user's accounts and returns the account with its owner.
func (s *State) FindAccount(iban string) (*Account, *User) {
	for _, u := range s.Users {
		if a := u.Account(iban); a != nil {
			return a, u
		}
	}
	return nil, nil
}

// IBANs returns the live identifier population.
func (s *State) IBANs() map[string]struct{} {
	out := make(map[string]struct{})
	for _, u := range s.Users {
		for _, a := range u.Accounts {
			out[a.IBAN] = struct{}{}
		}
	}
	return out
}
