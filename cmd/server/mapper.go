package main

import (
	"encoding/json"
	"strings"

	"github.com/mama165/sdk-go/database"
)

// storedMessage mirrors the JSON layout the message repository persists,
// enough for the inspector to render a readable row.
type storedMessage struct {
	ID   string `json:"id"`
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
	Kind string `json:"kind"`
}

// MessageMapper renders message rows in the Badger debug inspector.
// Non-message keys (sequence, id index) fall back to the default row.
func MessageMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	if !strings.HasPrefix(key, "msg:") {
		return row
	}

	var m storedMessage
	if err := json.Unmarshal(val, &m); err != nil {
		row.Detail = "Error: unmarshal failed"
		return row
	}

	row.Type = strings.ToUpper(m.Kind)
	row.EntityID = m.ID
	row.Detail = m.From + " -> " + m.To + ": " + m.Text
	return row
}
