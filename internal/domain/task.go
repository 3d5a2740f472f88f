package domain

import "github.com/shopspring/decimal"

type TaskCategory string

const (
	TaskCategoryDaily    TaskCategory = "daily"
	TaskCategorySocial   TaskCategory = "social"
	TaskCategoryReferral TaskCategory = "referral"
)

type TaskStatus string

const (
	TaskStatusAvailable TaskStatus = "available"
	TaskStatusReady     TaskStatus = "ready"
	TaskStatusCompleted TaskStatus = "completed"
)

// Task is a static catalog entry. Ready is nil for tasks without a completion predicate.
type Task struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Reward      int64        `json:"reward"`
	Category    TaskCategory `json:"category"`
	URL         string       `json:"url,omitempty"`

	Ready func(User) bool `json:"-"`
}

// TaskView is a task evaluated for one user.
type TaskView struct {
	Task
	Status TaskStatus `json:"status"`
}

// Upgrade is a TON-priced boost, priced for a specific user.
type Upgrade struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Cost        decimal.Decimal `json:"cost"`
	Level       int             `json:"level"`
	Unlocked    bool            `json:"unlocked"`
}

// ReferralMilestone is a referral count threshold with its bonus.
type ReferralMilestone struct {
	Count   int   `json:"count"`
	Reward  int64 `json:"reward"`
	Reached bool  `json:"reached"`
}
