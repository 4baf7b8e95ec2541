package entity

import "time"

// MaxChatMessageLen bounds the text a client may send in one chat message.
const MaxChatMessageLen = 1000

type ChatMessage struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    string    `json:"sender"`
	CreatedAt time.Time `json:"createdAt"`
}
