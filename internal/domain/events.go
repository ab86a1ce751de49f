package domain

// EventType names an application event carried on the in-process bus.
type EventType string

const (
	// EventUserAdded fires when a broadcaster is added to a profile's roster.
	EventUserAdded EventType = "USER_ADDED"
	// EventUserRemoved fires when a broadcaster is removed from a profile's roster.
	EventUserRemoved EventType = "USER_REMOVED"
	// EventSubToLive requests an EventSub subscription for a broadcaster.
	EventSubToLive EventType = "SUB_TO_LIVE"
	// EventLive fires when a broadcaster's stream has started.
	EventLive EventType = "LIVE"
	// EventResetAllSubscriptions requests a full cleanup of this deployment's
	// remote EventSub subscriptions.
	EventResetAllSubscriptions EventType = "RESET_ALL_SUBSCRIPTIONS"
)

// Event is an immutable fire-and-forget notification. Profile identifies the
// tenant the event belongs to, BroadcasterID the Twitch user it concerns.
// Either may be empty depending on the event type.
type Event struct {
	Type          EventType
	Profile       string
	BroadcasterID string
}
