package models

// Personality はクローンが演じる人物像
type Personality struct {
	Name               string   `json:"name" yaml:"name" binding:"required"`
	CommunicationStyle string   `json:"communication_style" yaml:"communication_style" binding:"required"`
	Interests          []string `json:"interests" yaml:"interests" binding:"required"` // [] は可、省略は不可
	PersonalityTraits  []string `json:"personality_traits" yaml:"personality_traits" binding:"required"`
	FavoriteTopics     []string `json:"favorite_topics" yaml:"favorite_topics" binding:"required"`
	SpeakingQuirks     string   `json:"speaking_quirks" yaml:"speaking_quirks" binding:"required"`
	Background         string   `json:"background" yaml:"background" binding:"required"`
}

// User は作成後に更新されない
type User struct {
	UserID      string      `json:"user_id" yaml:"user_id" binding:"required"`
	Username    string      `json:"username" yaml:"username" binding:"required"`
	Personality Personality `json:"personality" yaml:"personality"`
	CreatedAt   string      `json:"created_at" yaml:"created_at" binding:"required"`
}
