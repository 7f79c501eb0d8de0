package actions

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/suPer8Hu/kairos/internal/common"
	"github.com/suPer8Hu/kairos/internal/intent"
	"gorm.io/gorm"
)

// Event is published after a row is written so dashboards and webhooks can
// react to it.
type Event struct {
	ID             string         `json:"id"`
	Intent         intent.Kind    `json:"intent"`
	UserID         uint64         `json:"user_id"`
	OrganizationID *string        `json:"organization_id,omitempty"`
	RecordID       uint64         `json:"record_id"`
	Payload        intent.Payload `json:"payload"`
	Text           string         `json:"text"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, v any) error
}

// Record describes a written row.
type Record struct {
	Intent  intent.Kind `json:"intent"`
	ID      uint64      `json:"id"`
	Summary string      `json:"summary"`
}

type Recorder struct {
	db  *gorm.DB
	pub Publisher
}

// NewRecorder accepts a nil publisher; events are then not emitted.
func NewRecorder(db *gorm.DB, pub Publisher) *Recorder {
	return &Recorder{db: db, pub: pub}
}

// Record writes the row for an action intent. Chat intents write nothing and
// return (nil, nil). A publish failure is logged; the row stays.
func (r *Recorder) Record(ctx context.Context, scope Scope, act intent.ActionIntent, text string) (*Record, error) {
	if !act.Kind.Action() {
		return nil, nil
	}

	var rec Record
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		rec, err = insert(tx, scope, act, text)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", act.Kind, err)
	}

	if r.pub != nil {
		id, err := common.NewULID()
		if err != nil {
			log.Printf("[actions] event id failed intent=%s record=%d err=%v", act.Kind, rec.ID, err)
			return &rec, nil
		}
		ev := Event{
			ID:             id,
			Intent:         act.Kind,
			UserID:         scope.UserID,
			OrganizationID: scope.OrganizationID,
			RecordID:       rec.ID,
			Payload:        act.Payload,
			Text:           text,
			OccurredAt:     time.Now().UTC(),
		}
		if err := r.pub.Publish(ctx, ev); err != nil {
			log.Printf("[actions] publish failed intent=%s record=%d err=%v", act.Kind, rec.ID, err)
		}
	}
	return &rec, nil
}

func insert(tx *gorm.DB, scope Scope, act intent.ActionIntent, text string) (Record, error) {
	p := act.Payload
	switch act.Kind {
	case intent.Task:
		row := &Task{UserID: scope.UserID, OrganizationID: scope.OrganizationID, Title: p.Title, Priority: p.Priority, Status: "todo"}
		if err := tx.Create(row).Error; err != nil {
			return Record{}, err
		}
		return Record{act.Kind, row.ID, fmt.Sprintf("Created task %q with %s priority.", row.Title, row.Priority)}, nil

	case intent.Expense:
		row := &Expense{UserID: scope.UserID, OrganizationID: scope.OrganizationID, Amount: p.Amount, Category: p.Category, Description: text}
		if err := tx.Create(row).Error; err != nil {
			return Record{}, err
		}
		return Record{act.Kind, row.ID, fmt.Sprintf("Logged expense of $%.2f under %s.", row.Amount, row.Category)}, nil

	case intent.Income:
		row := &Income{UserID: scope.UserID, OrganizationID: scope.OrganizationID, Amount: p.Amount, Source: p.Source, Description: text}
		if err := tx.Create(row).Error; err != nil {
			return Record{}, err
		}
		return Record{act.Kind, row.ID, fmt.Sprintf("Logged income of $%.2f from %s.", row.Amount, row.Source)}, nil

	case intent.Fitness:
		row := &FitnessWorkout{UserID: scope.UserID, OrganizationID: scope.OrganizationID, Exercise: p.Exercise, DurationMinutes: p.DurationMinutes, Notes: text}
		if err := tx.Create(row).Error; err != nil {
			return Record{}, err
		}
		return Record{act.Kind, row.ID, fmt.Sprintf("Logged %d minutes of %s.", row.DurationMinutes, row.Exercise)}, nil
	}
	return Record{}, fmt.Errorf("no table for intent %q", act.Kind)
}
