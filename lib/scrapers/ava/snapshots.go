package ava

import (
	"fmt"
	"time"
)

// Snapshots are plain validated records extracted from one scrape
// pass. They are constructed right after parsing and validated before
// anything downstream sees them.

type DeliveryMode string

const (
	ModeUnknown DeliveryMode = ""
	ModeOnline  DeliveryMode = "online"
	ModeOnsite  DeliveryMode = "onsite"
)

type AssignmentType string

const (
	TypeQuiz  AssignmentType = "quiz"
	TypeForum AssignmentType = "forum"
)

type DisciplineSnapshot struct {
	// portal-assigned course id, globally unique across accounts
	IdCurso  int64
	CodCurso int64
	Name     string
	Mode     DeliveryMode
}

func (s DisciplineSnapshot) Validate() error {
	if s.IdCurso <= 0 {
		return fmt.Errorf("%w: discipline entry without idcurso", ErrParse)
	}
	if s.Name == "" {
		return fmt.Errorf("%w: discipline %d has no name", ErrParse, s.IdCurso)
	}
	return nil
}

type AssignmentSnapshot struct {
	Name   string
	Codigo int64
	// raw portal status text, mapped to an enum at reconcile time
	Status   string
	Type     AssignmentType
	StartsAt time.Time
	DueAt    time.Time
}

func (s AssignmentSnapshot) Validate() error {
	if s.Codigo <= 0 {
		return fmt.Errorf("%w: assignment entry without codigo", ErrParse)
	}
	if s.Name == "" {
		return fmt.Errorf("%w: assignment %d has no name", ErrParse, s.Codigo)
	}
	if s.DueAt.IsZero() {
		return fmt.Errorf("%w: assignment %d has no due date", ErrParse, s.Codigo)
	}
	return nil
}
