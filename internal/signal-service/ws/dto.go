package ws

import "encoding/json"

// ClientMsg is what a bot front end sends over the socket.
type ClientMsg struct {
	Type   string `json:"type"`   // subscribe | unsubscribe | ping
	UserID string `json:"userId"` // required for subscribe/unsubscribe
}

// Update is pushed to every connection subscribed to UserID.
type Update struct {
	UserID  string          `json:"userId"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}
