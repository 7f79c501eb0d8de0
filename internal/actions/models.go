package actions

import "time"

// Scope is who a row belongs to. A nil OrganizationID is the user's
// individual space.
type Scope struct {
	UserID         uint64
	OrganizationID *string
}

type Task struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         uint64    `gorm:"index;not null" json:"-"`
	OrganizationID *string   `gorm:"type:varchar(64);index" json:"organization_id"`
	Title          string    `gorm:"type:varchar(255);not null" json:"title"`
	Priority       string    `gorm:"type:varchar(16);not null;default:medium" json:"priority"`
	Status         string    `gorm:"type:varchar(16);not null;default:todo" json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Task) TableName() string { return "tasks" }

type Expense struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         uint64    `gorm:"index;not null" json:"-"`
	OrganizationID *string   `gorm:"type:varchar(64);index" json:"organization_id"`
	Amount         float64   `gorm:"not null" json:"amount"`
	Category       string    `gorm:"type:varchar(128);not null" json:"category"`
	Description    string    `gorm:"type:text" json:"description"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Expense) TableName() string { return "expenses" }

type Income struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         uint64    `gorm:"index;not null" json:"-"`
	OrganizationID *string   `gorm:"type:varchar(64);index" json:"organization_id"`
	Amount         float64   `gorm:"not null" json:"amount"`
	Source         string    `gorm:"type:varchar(128);not null" json:"source"`
	Description    string    `gorm:"type:text" json:"description"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Income) TableName() string { return "income" }

type FitnessWorkout struct {
	ID              uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          uint64    `gorm:"index;not null" json:"-"`
	OrganizationID  *string   `gorm:"type:varchar(64);index" json:"organization_id"`
	Exercise        string    `gorm:"type:varchar(128);not null" json:"exercise"`
	DurationMinutes int       `gorm:"not null" json:"duration_minutes"`
	Notes           string    `gorm:"type:text" json:"notes"`
	CreatedAt       time.Time `json:"created_at"`
}

func (FitnessWorkout) TableName() string { return "fitness_workouts" }

// Models lists the tables this package writes, for AutoMigrate.
func Models() []any {
	return []any{&Task{}, &Expense{}, &Income{}, &FitnessWorkout{}}
}
