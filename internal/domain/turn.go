package domain

import (
	"time"
)

// Turn is one human query plus its generated answer.
type Turn struct {
	ID             int64     `json:"-"`
	ConversationID string    `json:"conversation_id"`
	UserID         int64     `json:"-"`
	HumanMessage   string    `json:"human_message"`
	BotMessage     string    `json:"bot_message"`
	Domain         string    `json:"domain"`
	CreatedAt      time.Time `json:"timestamp"`
}

// ConversationSummary is the listing entry for a conversation.
type ConversationSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"-"`
}

// Exchange is a (human, bot) message pair used as generator context.
type Exchange struct {
	Human string
	Bot   string
}

// Exchanges converts turns into exchanges, preserving order.
func Exchanges(turns []Turn) []Exchange {
	out := make([]Exchange, 0, len(turns))
	for _, t := range turns {
		out = append(out, Exchange{Human: t.HumanMessage, Bot: t.BotMessage})
	}
	return out
}
