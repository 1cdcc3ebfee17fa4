package entities

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Account represents a registered user and their wallet
type Account struct {
	Email        string          `json:"email"` // Normalized email, primary key
	ID           string          `json:"id"`    // 4-digit display code, not unique
	Name         string          `json:"name"`
	PasswordHash string          `json:"-"`          // bcrypt hash of the password
	BalanceUSD   decimal.Decimal `json:"balanceUSD"` // Never negative
	IsAdmin      bool            `json:"isAdmin"`
	IsBlocked    bool            `json:"isBlocked"`
	IsFrozen     bool            `json:"isFrozen"`
	IsVerified   bool            `json:"isVerified"`
	ProfilePic   string          `json:"profilePic"`
	Country      string          `json:"country"`
	VIP          int             `json:"vip"`
	Theme        string          `json:"theme"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// NormalizeEmail lowercases and trims an email so it can be used as a key
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Clone returns a copy safe to hand to another goroutine
func (a *Account) Clone() *Account {
	c := *a
	return &c
}

// AccountPatch is a partial update of an account. Nil fields are left alone.
// There is deliberately no balance field: balance moves only through AdjustBalance.
type AccountPatch struct {
	Name       *string `json:"name,omitempty"`
	ProfilePic *string `json:"profilePic,omitempty"`
	Country    *string `json:"country,omitempty"`
	Theme      *string `json:"theme,omitempty"`

	// Privileged fields, settable only through the admin path
	VIP          *int    `json:"vip,omitempty"`
	IsAdmin      *bool   `json:"isAdmin,omitempty"`
	IsBlocked    *bool   `json:"isBlocked,omitempty"`
	IsFrozen     *bool   `json:"isFrozen,omitempty"`
	IsVerified   *bool   `json:"isVerified,omitempty"`
	PasswordHash *string `json:"-"`
}

// ProfileOnly drops every privileged field from the patch
func (p AccountPatch) ProfileOnly() AccountPatch {
	return AccountPatch{
		Name:       p.Name,
		ProfilePic: p.ProfilePic,
		Country:    p.Country,
		Theme:      p.Theme,
	}
}

// IsEmpty reports whether the patch changes nothing
func (p AccountPatch) IsEmpty() bool {
	return p.Name == nil && p.ProfilePic == nil && p.Country == nil && p.Theme == nil &&
		p.VIP == nil && p.IsAdmin == nil && p.IsBlocked == nil && p.IsFrozen == nil &&
		p.IsVerified == nil && p.PasswordHash == nil
}

// Apply merges the patch into the account
func (p AccountPatch) Apply(a *Account) {
	if p.Name != nil {
		a.Name = *p.Name
	}
	if p.ProfilePic != nil {
		a.ProfilePic = *p.ProfilePic
	}
	if p.Country != nil {
		a.Country = *p.Country
	}
	if p.Theme != nil {
		a.Theme = *p.Theme
	}
	if p.VIP != nil {
		a.VIP = *p.VIP
	}
	if p.IsAdmin != nil {
		a.IsAdmin = *p.IsAdmin
	}
	if p.IsBlocked != nil {
		a.IsBlocked = *p.IsBlocked
	}
	if p.IsFrozen != nil {
		a.IsFrozen = *p.IsFrozen
	}
	if p.IsVerified != nil {
		a.IsVerified = *p.IsVerified
	}
	if p.PasswordHash != nil {
		a.PasswordHash = *p.PasswordHash
	}
}
