// Package store holds the relational model and persistence layer for
// registered accounts and the discipline/assignment graph scraped from
// the portal.
package store

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the completion state of one assignment for one account,
// mapped from the portal's status text.
type Status string

const (
	StatusOpen      Status = "open"
	StatusClosed    Status = "closed"
	StatusScheduled Status = "scheduled"
	StatusGraded    Status = "graded"
)

// ErrUnknownStatus means the portal served a status word outside the
// known vocabulary. New portal wording has to be mapped here before any
// rows are written for it.
var ErrUnknownStatus = errors.New("unknown portal status")

// ParseStatus maps the portal's raw status text (either grammatical
// gender, any casing) onto a Status.
func ParseStatus(raw string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "aberto", "aberta":
		return StatusOpen, nil
	case "encerrado", "encerrada":
		return StatusClosed, nil
	case "agendado", "agendada":
		return StatusScheduled, nil
	case "corrigido", "corrigida":
		return StatusGraded, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
}

// Account is a registered student. The account stays pending until the
// confirmation token is redeemed; only confirmed accounts are scraped
// and notified.
type Account struct {
	ID               uint   `gorm:"primaryKey"`
	Email            string `gorm:"size:255;uniqueIndex;not null"`
	Name             string `gorm:"size:255;not null"`
	RA               string `gorm:"size:64;uniqueIndex;not null"`
	Senha            string `gorm:"size:255;not null"`
	Confirmed        bool   `gorm:"not null;default:false"`
	ConfirmedAt      *time.Time
	ConfirmToken     string `gorm:"size:64;index"`
	UnsubscribeToken string `gorm:"size:64;index"`
	CreatedAt        time.Time
	UpdatedAt        time.Time

	Profile     *Profile
	Disciplines []Discipline `gorm:"many2many:account_disciplines"`
}

// Profile carries per-account portal metadata discovered after the
// first successful scrape.
type Profile struct {
	ID           uint `gorm:"primaryKey"`
	AccountID    uint `gorm:"uniqueIndex;not null"`
	RegisterDate time.Time
}

// Discipline is one portal course. Rows are global: two accounts
// enrolled in the same course share the row, keyed by the portal's
// idCurso.
type Discipline struct {
	ID       uint   `gorm:"primaryKey"`
	IdCurso  int64  `gorm:"uniqueIndex;not null"`
	CodCurso int64  `gorm:"not null"`
	Name     string `gorm:"size:255;not null"`
	Mode     string `gorm:"size:16"`

	Assignments []Assignment
	Accounts    []Account `gorm:"many2many:account_disciplines"`
}

// Assignment is one activity inside a discipline, keyed by the
// portal's codigo. Per-account completion lives in CompletionStatus.
type Assignment struct {
	ID           uint   `gorm:"primaryKey"`
	Codigo       int64  `gorm:"uniqueIndex;not null"`
	Name         string `gorm:"size:255;not null"`
	Type         string `gorm:"size:16;not null"`
	StartsAt     time.Time
	DueAt        time.Time `gorm:"not null;index"`
	DisciplineID uint      `gorm:"index;not null"`

	Statuses []CompletionStatus `gorm:"constraint:OnDelete:CASCADE"`
}

// CompletionStatus joins an account to an assignment it has been
// observed with. At most one row per pair.
type CompletionStatus struct {
	ID           uint   `gorm:"primaryKey"`
	AccountID    uint   `gorm:"uniqueIndex:idx_account_assignment;not null"`
	AssignmentID uint   `gorm:"uniqueIndex:idx_account_assignment;not null"`
	Status       Status `gorm:"size:16;not null"`
	UpdatedAt    time.Time
}

// Models lists every table in migration order.
func Models() []any {
	return []any{
		&Account{},
		&Profile{},
		&Discipline{},
		&Assignment{},
		&CompletionStatus{},
	}
}
