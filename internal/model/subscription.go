package model

import (
	"time"

	"github.com/google/uuid"
)

// Frequency is the recurrence of a subscription task.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// SubscriptionTask is a user-defined research task executed on schedule.
type SubscriptionTask struct {
	ID            uuid.UUID  `json:"id"`
	Email         string     `json:"email"`
	ResearchTopic string     `json:"research_topic"`
	Frequency     Frequency  `json:"frequency"`
	ScheduleTime  string     `json:"schedule_time"` // HH:MM
	IsActive      bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
}
