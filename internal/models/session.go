package models

// Session is a short-lived bearer credential for UI users. It is stored
// only in the KVCache under key "session:<token>"; there is no DB row.
type Session struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}
