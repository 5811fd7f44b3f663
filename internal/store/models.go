package store

import "time"

// expirySlack keeps us from using a token that is about to lapse mid-request.
const expirySlack = 30 * time.Second

// BotState is the durable per-account polling state: the highest post ID
// ever observed and a bounded history of recently processed post IDs.
type BotState struct {
	LastSeenID   *int64  `json:"last_seen_id"`
	ProcessedIDs []int64 `json:"processed_ids"`
}

// LastSeen returns the watermark, or 0 when no post has been observed yet.
func (s BotState) LastSeen() int64 {
	if s.LastSeenID == nil {
		return 0
	}
	return *s.LastSeenID
}

// SetLastSeen updates the watermark.
func (s *BotState) SetLastSeen(id int64) {
	s.LastSeenID = &id
}

// OAuth2Token is the persisted OAuth2 credential pair. ExpiresAt is a unix
// timestamp in seconds; nil means the expiry is unknown.
type OAuth2Token struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresAt    *float64 `json:"expires_at"`
	Scope        string   `json:"scope"`
}

// Expired reports whether the access token is within the safety margin of
// its expiry. Tokens without a recorded expiry are never considered expired.
func (t *OAuth2Token) Expired() bool {
	if t.ExpiresAt == nil {
		return false
	}
	return time.Now().Unix() >= int64(*t.ExpiresAt)-int64(expirySlack.Seconds())
}
