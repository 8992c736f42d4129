package model

// Verification tracks one issued verification code for a (user, target) pair.
// Only the hash of the code is kept.
type Verification struct {
	ID         string `json:"id"`
	CodeHash   string `json:"-"`
	UserID     int64  `json:"user_id"`
	TargetID   string `json:"target_id"`
	Region     string `json:"region"`
	ChatID     int64  `json:"chat_id"`
	Ctime      int64  `json:"ctime"`
	ExpiresAt  int64  `json:"expires_at"`
	Verified   bool   `json:"verified"`
	VerifiedAt int64  `json:"verified_at"`
	Processed  bool   `json:"processed"`
}

// IsExpired reports whether the code can no longer be verified at now.
func (v *Verification) IsExpired(now int64) bool {
	return !v.Verified && now > v.ExpiresAt
}
