// Package config defines the configuration payload carried by stream events
// and its forward-compatible JSON decoding.
package config

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/configstream/configstream-go/pkg/streamerrors"
)

// Payload is one decoded configuration update. Settings is an open mapping:
// the schema may gain fields at any time, and this client passes them through
// untouched rather than rejecting them. Top-level fields other than settings
// are preserved in Extra for the same reason.
type Payload struct {
	// Settings holds the configuration values, keyed by field name, with
	// values left as raw JSON for the caller to interpret.
	Settings map[string]json.RawMessage

	// Version is the optional schema or revision marker sent by the server
	Version string

	// Extra preserves unknown top-level fields
	Extra map[string]json.RawMessage
}

// Decode parses one event's data into a Payload. Failures are per-event and
// locally recoverable: the caller skips the event and keeps the stream open.
func Decode(data string) (Payload, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(data), &top); err != nil {
		return Payload{}, streamerrors.Parse("", "", err)
	}

	p := Payload{
		Settings: map[string]json.RawMessage{},
		Extra:    map[string]json.RawMessage{},
	}

	for key, raw := range top {
		switch key {
		case "settings":
			if err := json.Unmarshal(raw, &p.Settings); err != nil {
				return Payload{}, streamerrors.Parse("", "", err).
					WithDetail("settings is not an object")
			}
		case "version":
			// Tolerate both string and numeric revision markers
			var s string
			if err := json.Unmarshal(raw, &s); err == nil {
				p.Version = s
			} else {
				p.Version = string(raw)
			}
		default:
			p.Extra[key] = raw
		}
	}

	return p, nil
}

// Has reports whether a setting is present
func (p Payload) Has(key string) bool {
	_, ok := p.Settings[key]
	return ok
}

// String returns a string-valued setting, or the fallback when absent or of
// another type.
func (p Payload) String(key, fallback string) string {
	raw, ok := p.Settings[key]
	if !ok {
		return fallback
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return fallback
	}
	return s
}

// Int returns an integer-valued setting, or the fallback
func (p Payload) Int(key string, fallback int64) int64 {
	raw, ok := p.Settings[key]
	if !ok {
		return fallback
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return fallback
	}
	return n
}

// Float returns a float-valued setting, or the fallback
func (p Payload) Float(key string, fallback float64) float64 {
	raw, ok := p.Settings[key]
	if !ok {
		return fallback
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return fallback
	}
	return f
}

// Bool returns a boolean-valued setting, or the fallback
func (p Payload) Bool(key string, fallback bool) bool {
	raw, ok := p.Settings[key]
	if !ok {
		return fallback
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return fallback
	}
	return b
}

// Duration returns a duration-valued setting. Accepts Go duration strings
// ("30s") and bare numbers, interpreted as seconds.
func (p Payload) Duration(key string, fallback time.Duration) time.Duration {
	raw, ok := p.Settings[key]
	if !ok {
		return fallback
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
		return fallback
	}

	if secs, err := strconv.ParseFloat(string(raw), 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}

// MarshalJSON round-trips the payload, reassembling known and unknown fields
func (p Payload) MarshalJSON() ([]byte, error) {
	top := make(map[string]json.RawMessage, len(p.Extra)+2)
	for k, v := range p.Extra {
		top[k] = v
	}
	if len(p.Settings) > 0 {
		settings, err := json.Marshal(p.Settings)
		if err != nil {
			return nil, err
		}
		top["settings"] = settings
	}
	if p.Version != "" {
		version, err := json.Marshal(p.Version)
		if err != nil {
			return nil, err
		}
		top["version"] = version
	}
	return json.Marshal(top)
}
