package domain

// LOIAction names an operation on a letter of intent.
type LOIAction string

const (
	ActionSubmit      LOIAction = "submit"
	ActionBeginReview LOIAction = "beginReview"
	ActionApprove     LOIAction = "approve"
	ActionReject      LOIAction = "reject"
	ActionCountersign LOIAction = "countersign"
	ActionWithdraw    LOIAction = "withdraw"
	ActionConvert     LOIAction = "convert"
)

// NotificationEvent identifies the email sent after a transition.
type NotificationEvent string

const (
	EventNone          NotificationEvent = ""
	EventSubmitted     NotificationEvent = "submitted"
	EventApproved      NotificationEvent = "approved"
	EventRejected      NotificationEvent = "rejected"
	EventCountersigned NotificationEvent = "countersigned"
)

// Transition is one row of the LOI state machine together with the side
// effects applied when it fires.
type Transition struct {
	From           string
	Action         LOIAction
	To             string
	SetsReviewedAt bool
	Notify         NotificationEvent
}

// LOITransitions is the complete LOI state machine. Pairs not listed here are
// rejected.
var LOITransitions = []Transition{
	{From: LOIDraft, Action: ActionSubmit, To: LOISubmitted, Notify: EventSubmitted},
	{From: LOISubmitted, Action: ActionBeginReview, To: LOIReview},
	{From: LOISubmitted, Action: ActionApprove, To: LOIApproved, SetsReviewedAt: true, Notify: EventApproved},
	{From: LOIReview, Action: ActionApprove, To: LOIApproved, SetsReviewedAt: true, Notify: EventApproved},
	{From: LOISubmitted, Action: ActionReject, To: LOIRejected, SetsReviewedAt: true, Notify: EventRejected},
	{From: LOIReview, Action: ActionReject, To: LOIRejected, SetsReviewedAt: true, Notify: EventRejected},
	{From: LOIApproved, Action: ActionCountersign, To: LOICountersigned, Notify: EventCountersigned},
	{From: LOISubmitted, Action: ActionWithdraw, To: LOIWithdrawn},
	{From: LOIReview, Action: ActionWithdraw, To: LOIWithdrawn},
	{From: LOIApproved, Action: ActionWithdraw, To: LOIWithdrawn},
	{From: LOICountersigned, Action: ActionConvert, To: LOIConverted},
}

// LookupTransition returns the transition for (from, action).
func LookupTransition(from string, action LOIAction) (Transition, bool) {
	for _, t := range LOITransitions {
		if t.From == from && t.Action == action {
			return t, true
		}
	}
	return Transition{}, false
}

// TransitionTo returns the transition that takes an LOI from one status to
// another, whatever the action.
func TransitionTo(from, to string) (Transition, bool) {
	for _, t := range LOITransitions {
		if t.From == from && t.To == to {
			return t, true
		}
	}
	return Transition{}, false
}

// TerminalLOIStatus reports whether no transition leaves s.
func TerminalLOIStatus(s string) bool {
	for _, t := range LOITransitions {
		if t.From == s {
			return false
		}
	}
	return true
}

// NotificationFor returns the event a legacy status override to s would
// trigger.
func NotificationFor(status string) NotificationEvent {
	switch status {
	case LOIApproved:
		return EventApproved
	case LOIRejected:
		return EventRejected
	case LOICountersigned:
		return EventCountersigned
	}
	return EventNone
}
