package economy

import (
	"fmt"

	"tree_ton/internal/domain"
)

var referralMilestones = []domain.ReferralMilestone{
	{Count: 1, Reward: 100},
	{Count: 5, Reward: 500},
	{Count: 10, Reward: 1000},
	{Count: 25, Reward: 2500},
	{Count: 50, Reward: 5000},
}

// ReferralMilestones marks which milestones count referrals have reached.
func ReferralMilestones(count int) []domain.ReferralMilestone {
	out := make([]domain.ReferralMilestone, len(referralMilestones))
	for i, m := range referralMilestones {
		m.Reached = count >= m.Count
		out[i] = m
	}
	return out
}

// ReferralLink is the bot deep link carrying the referrer's user id.
func ReferralLink(botUsername, userID string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", botUsername, userID)
}

// CreditReferral rewards the referrer for one new friend.
func CreditReferral(u domain.User, reward int64) domain.User {
	next := u.Clone()
	next.ReferralCount++
	next.Coins += reward
	return next
}
