package main

import (
	"fmt"

	"aiclone/models"

	"github.com/spf13/cobra"
)

var (
	converseTopic    string
	conversationUser string
	conversationJSON bool
)

var converseCmd = &cobra.Command{
	Use:   "converse <user1_id> <user2_id>",
	Short: "Generate a conversation between two users' clones",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		view, err := api.CreateConversation(cmd.Context(), args[0], args[1], converseTopic)
		if err != nil {
			return err
		}
		if conversationJSON {
			return printJSON(view)
		}
		fmt.Printf("Conversation %s (%s & %s)\n\n", view.ConversationID, view.Participants.User1, view.Participants.User2)
		printMessages(view.Messages)
		return nil
	},
}

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "Inspect stored conversations",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, optionally for one user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		views, err := api.ListConversations(cmd.Context(), conversationUser)
		if err != nil {
			return err
		}
		if conversationJSON {
			return printJSON(views)
		}
		if len(views) == 0 {
			fmt.Println("No conversations.")
			return nil
		}
		for _, v := range views {
			fmt.Printf("%s  %s  %s & %s  topic=%q  messages=%d\n",
				v.ConversationID, v.CreatedAt, v.Participants.User1, v.Participants.User2, v.Topic, len(v.Messages))
		}
		return nil
	},
}

func init() {
	converseCmd.Flags().StringVarP(&converseTopic, "topic", "t", "", "conversation topic (server default: general chat)")
	converseCmd.Flags().BoolVar(&conversationJSON, "json", false, "print the raw response")

	conversationsListCmd.Flags().StringVarP(&conversationUser, "user", "u", "", "only conversations involving this user_id")
	conversationsListCmd.Flags().BoolVar(&conversationJSON, "json", false, "print the raw response")

	conversationsCmd.AddCommand(conversationsListCmd)
}

func printMessages(messages []models.Message) {
	for _, m := range messages {
		fmt.Printf("%s: %s\n\n", m.Speaker, m.Message)
	}
}
