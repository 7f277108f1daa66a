package model

import (
	"fmt"
	"time"
)

// MailAccount is one mailbox the scheduler polls. The account email is the
// global identity and the foreign key on every ingested message.
type MailAccount struct {
	Email          string
	Password       string // sealed at rest, opened just before dialing
	IMAPServer     string
	IMAPPort       int
	SSL            bool
	AccountType    string
	IsActive       bool
	LastChecked    *time.Time
	LastFetchedUID uint32
	LastFetchedAt  *time.Time
	CreatedAt      time.Time
}

// Addr returns the host:port dial target.
func (a MailAccount) Addr() string {
	port := a.IMAPPort
	if port == 0 {
		port = 993
	}
	return fmt.Sprintf("%s:%d", a.IMAPServer, port)
}

// AccountView is the API shape of an account. Credentials never leave the
// process, sealed or not.
type AccountView struct {
	Email          string     `json:"email"`
	IMAPServer     string     `json:"imap_server"`
	IMAPPort       int        `json:"imap_port"`
	SSL            bool       `json:"ssl"`
	AccountType    string     `json:"account_type"`
	IsActive       bool       `json:"is_active"`
	LastChecked    *time.Time `json:"last_checked,omitempty"`
	LastFetchedUID uint32     `json:"last_fetched_uid,omitempty"`
	LastFetchedAt  *time.Time `json:"last_fetched_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// View redacts the account for API responses.
func (a MailAccount) View() AccountView {
	return AccountView{
		Email:          a.Email,
		IMAPServer:     a.IMAPServer,
		IMAPPort:       a.IMAPPort,
		SSL:            a.SSL,
		AccountType:    a.AccountType,
		IsActive:       a.IsActive,
		LastChecked:    a.LastChecked,
		LastFetchedUID: a.LastFetchedUID,
		LastFetchedAt:  a.LastFetchedAt,
		CreatedAt:      a.CreatedAt,
	}
}
