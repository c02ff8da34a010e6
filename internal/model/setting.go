package model

import (
	"encoding/json"
	"time"
)

// Setting is a key/value admin-configurable record persisted in
// global_settings.
type Setting struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}
