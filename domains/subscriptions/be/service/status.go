package service

import (
	"fmt"
	"math"
	"time"
)

// Status is the evaluated state of a company's subscription.
type Status string

const (
	StatusNoSubscription Status = "no_subscription"
	StatusSuspended      Status = "suspended"
	StatusTrialExpired   Status = "trial_expired"
	StatusExpired        Status = "expired"
	StatusTrialExpiring  Status = "trial_expiring"
	StatusTrialActive    Status = "trial_active"
	StatusExpiring       Status = "expiring"
	StatusActive         Status = "active"
)

// Usable reports whether the status grants access to gated operations.
func (s Status) Usable() bool {
	switch s {
	case StatusActive, StatusExpiring, StatusTrialActive, StatusTrialExpiring:
		return true
	}
	return false
}

// Action tells the caller what would restore or preserve access.
type Action string

const (
	ActionNone           Action = ""
	ActionSubscribe      Action = "subscribe"
	ActionContactSupport Action = "contact_support"
	ActionUpgrade        Action = "upgrade"
	ActionRenew          Action = "renew"
)

// ExpiryWarningWindow is how close to its end a subscription is reported as expiring.
const ExpiryWarningWindow = 7 * 24 * time.Hour

const day = 24 * time.Hour

// Evaluation is the result of Evaluate.
type Evaluation struct {
	Status        Status
	DaysRemaining int
	Action        Action
}

// Evaluate derives the status of sub at now. It is the only place status rules live;
// every gate and report goes through it. A nil sub means the company never subscribed.
func Evaluate(sub *Subscription, now time.Time) Evaluation {
	if sub == nil {
		return Evaluation{Status: StatusNoSubscription, Action: ActionSubscribe}
	}

	days, bounded := sub.DaysRemaining(now)
	ev := Evaluation{DaysRemaining: days}
	expiringSoon := bounded && days <= int(ExpiryWarningWindow/day)

	switch {
	case !sub.IsActive:
		ev.Status, ev.Action = StatusSuspended, ActionContactSupport
	case sub.IsTrialExpired(now) && sub.IsExpired(now):
		ev.Status, ev.Action = StatusTrialExpired, ActionUpgrade
	case !sub.IsTrial && sub.IsExpired(now):
		ev.Status, ev.Action = StatusExpired, ActionRenew
	case sub.IsTrial && expiringSoon:
		ev.Status, ev.Action = StatusTrialExpiring, ActionUpgrade
	case sub.IsTrial:
		ev.Status = StatusTrialActive
	case expiringSoon:
		ev.Status, ev.Action = StatusExpiring, ActionRenew
	default:
		ev.Status = StatusActive
	}
	return ev
}

// Message renders a short human readable summary of ev.
func (ev Evaluation) Message() string {
	switch ev.Status {
	case StatusNoSubscription:
		return "No subscription found"
	case StatusSuspended:
		return "Subscription is suspended"
	case StatusTrialExpired:
		return "Trial period has ended"
	case StatusExpired:
		return "Subscription has expired"
	case StatusTrialExpiring:
		return fmt.Sprintf("Trial ends in %d days", ev.DaysRemaining)
	case StatusTrialActive:
		return fmt.Sprintf("Trial period, %d days remaining", ev.DaysRemaining)
	case StatusExpiring:
		return fmt.Sprintf("Subscription ends in %d days", ev.DaysRemaining)
	default:
		return fmt.Sprintf("Subscription active, %d days remaining", ev.DaysRemaining)
	}
}

// DaysRemaining returns the whole days until EndDate, rounded up and floored at zero.
// The boolean is false when the subscription has no end date.
func (s Subscription) DaysRemaining(now time.Time) (int, bool) {
	if s.EndDate == nil {
		return 0, false
	}
	left := s.EndDate.Sub(now)
	if left <= 0 {
		return 0, true
	}
	return int(math.Ceil(float64(left) / float64(day))), true
}

// IsExpired reports whether EndDate is in the past.
func (s Subscription) IsExpired(now time.Time) bool {
	return s.EndDate != nil && now.After(*s.EndDate)
}

// IsTrialExpired reports whether a trial's window has closed.
func (s Subscription) IsTrialExpired(now time.Time) bool {
	return s.IsTrial && s.TrialEnd != nil && now.After(*s.TrialEnd)
}
