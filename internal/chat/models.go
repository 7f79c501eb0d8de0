package chat

import "time"

type Session struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID      string    `gorm:"type:varchar(26);uniqueIndex;not null" json:"session_id"`
	UserID         uint64    `gorm:"index;not null" json:"-"`
	OrganizationID *string   `gorm:"type:varchar(64);index" json:"organization_id"`
	Mode           string    `gorm:"type:varchar(32);not null;default:general" json:"mode"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Session) TableName() string { return "chat_sessions" }

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is written once and never updated.
type Message struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string    `gorm:"type:varchar(26);not null;index:idx_chat_msg_user_session_id,priority:2" json:"session_id"`
	UserID    uint64    `gorm:"not null;index:idx_chat_msg_user_session_id,priority:1" json:"-"`
	Role      string    `gorm:"type:varchar(16);index;not null" json:"sender"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Source    *string   `gorm:"type:varchar(32)" json:"source_provider,omitempty"`
	ImageURL  *string   `gorm:"type:varchar(512)" json:"image_url,omitempty"`
	Intent    string    `gorm:"type:varchar(16)" json:"intent,omitempty"`
	CreatedAt time.Time `json:"timestamp"`
}

func (Message) TableName() string { return "chat_messages" }
