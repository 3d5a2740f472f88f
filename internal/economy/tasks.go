package economy

import "tree_ton/internal/domain"

const (
	TaskDailyLogin    = "daily-login"
	TaskJoinTelegram  = "join-telegram"
	TaskFollowTwitter = "follow-twitter"
	TaskInviteFriends = "invite-friends"
	TaskMine1000      = "mine-1000"

	inviteFriendsTarget = 5
	mineTarget          = 1000
)

var taskCatalog = []domain.Task{
	{
		ID:          TaskDailyLogin,
		Title:       "Daily Login",
		Description: "Login to the app daily",
		Reward:      100,
		Category:    domain.TaskCategoryDaily,
	},
	{
		ID:          TaskJoinTelegram,
		Title:       "Join Telegram Channel",
		Description: "Join our official Telegram channel",
		Reward:      500,
		Category:    domain.TaskCategorySocial,
		URL:         "https://t.me/realtreeton",
	},
	{
		ID:          TaskFollowTwitter,
		Title:       "Follow on Twitter",
		Description: "Follow us on Twitter for updates",
		Reward:      300,
		Category:    domain.TaskCategorySocial,
		URL:         "https://twitter.com/treeton",
	},
	{
		ID:          TaskInviteFriends,
		Title:       "Invite 5 Friends",
		Description: "Invite 5 friends to join Tree TON",
		Reward:      1000,
		Category:    domain.TaskCategoryReferral,
		Ready:       func(u domain.User) bool { return u.ReferralCount >= inviteFriendsTarget },
	},
	{
		ID:          TaskMine1000,
		Title:       "Mine 1000 Points",
		Description: "Mine a total of 1000 points",
		Reward:      200,
		Category:    domain.TaskCategoryDaily,
		Ready:       func(u domain.User) bool { return u.Points >= mineTarget },
	},
}

// Tasks returns the task catalog in display order.
func Tasks() []domain.Task {
	out := make([]domain.Task, len(taskCatalog))
	copy(out, taskCatalog)
	return out
}

// FindTask looks up a catalog entry by id.
func FindTask(id string) (domain.Task, bool) {
	for _, t := range taskCatalog {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Task{}, false
}

// EvaluateTask: completed if already claimed, ready if the predicate holds, available otherwise.
func EvaluateTask(u domain.User, t domain.Task) domain.TaskStatus {
	if u.HasCompleted(t.ID) {
		return domain.TaskStatusCompleted
	}
	if t.Ready != nil && t.Ready(u) {
		return domain.TaskStatusReady
	}
	return domain.TaskStatusAvailable
}

// TaskViews evaluates the whole catalog for u.
func TaskViews(u domain.User) []domain.TaskView {
	views := make([]domain.TaskView, 0, len(taskCatalog))
	for _, t := range taskCatalog {
		views = append(views, domain.TaskView{Task: t, Status: EvaluateTask(u, t)})
	}
	return views
}

// CompleteTask records the task and credits its reward. It is idempotent: the
// bool is false and u is returned unchanged when the task was already completed.
func CompleteTask(u domain.User, t domain.Task) (domain.User, bool) {
	if u.HasCompleted(t.ID) {
		return u, false
	}
	next := u.Clone()
	next.CompletedTasks = append(next.CompletedTasks, t.ID)
	next.Coins += t.Reward
	return next, true
}

// Claimable reports whether a task may be claimed now. Tasks gated by a
// predicate must be ready; tasks without one only need to be uncompleted.
func Claimable(u domain.User, t domain.Task) bool {
	switch EvaluateTask(u, t) {
	case domain.TaskStatusCompleted:
		return false
	case domain.TaskStatusReady:
		return true
	default:
		return t.Ready == nil
	}
}
