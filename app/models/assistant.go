package models

import "time"

// Assistant is one configured AI companion owned by a user. TemplateID refers
// to the catalog entry the assistant was created from; Instruction carries the
// system prompt and UserInstruction the user's customization on top of it.
type Assistant struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          uint      `gorm:"not null;index" json:"user_id"`
	TemplateID      int       `gorm:"not null" json:"template_id"`
	Name            string    `gorm:"type:varchar(150);not null" json:"name"`
	Title           string    `gorm:"type:varchar(200)" json:"title"`
	Image           string    `gorm:"type:varchar(255)" json:"image"`
	Instruction     string    `gorm:"type:text" json:"instruction"`
	UserInstruction string    `gorm:"type:text" json:"user_instruction"`
	SampleQuestions string    `gorm:"type:text" json:"sample_questions"`
	AIModelID       string    `gorm:"type:varchar(100)" json:"ai_model_id"`
	ChatCount       int64     `gorm:"not null;default:0" json:"chat_count"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
