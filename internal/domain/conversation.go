package domain

import "time"

type ConversationMessage struct {
	Role      string
	Content   string
	CreatedAt time.Time
}
