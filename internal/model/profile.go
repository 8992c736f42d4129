package model

type Profile struct {
	UserID       int64 `json:"user_id"`
	Privileged   bool  `json:"privileged"`
	LastActionAt int64 `json:"last_action_at"`
	// ActionClaimedAt is non-zero while a like call for this user is in flight.
	ActionClaimedAt int64 `json:"action_claimed_at"`
	Ctime           int64 `json:"ctime"`
	Mtime           int64 `json:"mtime"`
}
