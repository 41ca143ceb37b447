package services

import (
	"fmt"
	"strings"

	"aiclone/models"
)

// BuildPersonalityPrompt はクローンのシステム指示を作る。空のリストは空欄になる
func BuildPersonalityPrompt(p models.Personality) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, a person with these characteristics:\n\n", p.Name)
	fmt.Fprintf(&b, "Communication Style: %s\n", p.CommunicationStyle)
	fmt.Fprintf(&b, "Personality Traits: %s\n", strings.Join(p.PersonalityTraits, ", "))
	fmt.Fprintf(&b, "Interests: %s\n", strings.Join(p.Interests, ", "))
	fmt.Fprintf(&b, "Favorite Topics: %s\n", strings.Join(p.FavoriteTopics, ", "))
	fmt.Fprintf(&b, "Speaking Quirks: %s\n", p.SpeakingQuirks)
	fmt.Fprintf(&b, "Background: %s\n\n", p.Background)
	b.WriteString("Respond naturally as this person would, using their communication style, interests and personality traits. ")
	b.WriteString("Keep responses conversational and true to their character. ")
	b.WriteString("Stay in character at all times and never reveal that you are anything other than this person.")

	return b.String()
}

func OpenerPrompt(topic string) string {
	return fmt.Sprintf("Start a casual conversation with someone about %s. "+
		"Make it natural and true to your personality. "+
		"Just say something to begin the conversation - don't introduce yourself formally.", topic)
}

func ReplyPrompt(lastReply string) string {
	return fmt.Sprintf("Respond naturally to this message: '%s' - keep the conversation flowing and stay in character.", lastReply)
}
