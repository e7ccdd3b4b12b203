package domain

import (
	"encoding/json"
	"strings"
)

// Event is one decoded webhook notification from the payments platform.
// It exists only for the duration of a single request.
type Event struct {
	PluginID int64        `json:"plugin_id"`
	Type     string       `json:"type"`
	Objects  EventObjects `json:"objects"`
}

type EventObjects struct {
	User *EventUser `json:"user"`
}

// EventUser carries the purchaser identity from the event payload.
// Properties beyond the named ones are kept in Extra so configured
// custom-field mappings can reference them by name.
type EventUser struct {
	Email string
	First string
	Last  string
	Extra map[string]string
}

func (u *EventUser) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	u.Extra = make(map[string]string)
	for key, val := range raw {
		var str string
		if err := json.Unmarshal(val, &str); err != nil {
			// Non-string properties (ids, numbers, booleans) keep their
			// literal JSON form.
			str = strings.TrimSpace(string(val))
			if str == "null" {
				str = ""
			}
		}
		switch key {
		case "email":
			u.Email = str
		case "first":
			u.First = str
		case "last":
			u.Last = str
		default:
			u.Extra[key] = str
		}
	}
	return nil
}

// Prop returns the named user property. Unknown names yield an empty
// string, never an error.
func (u *EventUser) Prop(name string) string {
	switch name {
	case "email":
		return u.Email
	case "first":
		return u.First
	case "last":
		return u.Last
	}
	return u.Extra[name]
}
