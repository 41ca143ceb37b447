package models

const DefaultTopic = "general chat"

type Message struct {
	Speaker   string `json:"speaker"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Conversation は一度保存したら変更しない
type Conversation struct {
	ConversationID string    `json:"conversation_id"`
	User1ID        string    `json:"user1_id"`
	User2ID        string    `json:"user2_id"`
	Topic          string    `json:"topic"`
	Messages       []Message `json:"messages"`
	CreatedAt      string    `json:"created_at"`
}

type Participants struct {
	User1 string `json:"user1"`
	User2 string `json:"user2"`
}

// ConversationView は参加者のユーザー名付きの会話
type ConversationView struct {
	Conversation
	Participants Participants `json:"participants"`
}
