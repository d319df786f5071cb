package model

import "time"

// Session is one authenticated browser session: an identifier, the captured
// storage state, and the time it was established. Sessions are persisted to
// disk and rotated; the fetch pipeline consumes them read-only.
type Session struct {
	ID           string       `json:"session_id"`
	CreatedAt    time.Time    `json:"created_at"`
	StorageState StorageState `json:"storage_state"`
}

// StorageState is the serialized browser state (cookies plus per-origin
// local storage) that allows reusing a login without re-authenticating.
type StorageState struct {
	Cookies []Cookie      `json:"cookies"`
	Origins []OriginState `json:"origins,omitempty"`
}

// Cookie mirrors a browser cookie closely enough to round-trip through the
// DevTools protocol.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"` // unix seconds; 0 = session cookie
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// OriginState holds the localStorage entries captured for one origin.
type OriginState struct {
	Origin       string            `json:"origin"`
	LocalStorage map[string]string `json:"local_storage,omitempty"`
}
