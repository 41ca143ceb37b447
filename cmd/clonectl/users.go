package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"aiclone/models"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var personaFile string

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Create and inspect users",
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user from a persona YAML file",
	Long: `Create a user from a persona YAML file.

Example file:
  user_id: user_alice
  username: alice
  personality:
    name: Alice
    communication_style: warm
    interests: [hiking, jazz]
    personality_traits: [curious]
    favorite_topics: [travel]
    speaking_quirks: says "indeed" often
    background: nurse from Lyon

created_at defaults to the current time.`,
	Args: cobra.NoArgs,
	RunE: runUsersCreate,
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all users",
	Args:  cobra.NoArgs,
	RunE:  runUsersList,
}

var usersGetCmd = &cobra.Command{
	Use:   "get <user_id>",
	Short: "Show one user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := api.GetUser(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(user)
	},
}

func init() {
	usersCreateCmd.Flags().StringVarP(&personaFile, "file", "f", "", "persona YAML file")
	_ = usersCreateCmd.MarkFlagRequired("file")

	usersCmd.AddCommand(usersCreateCmd)
	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersGetCmd)
}

func loadPersona(path string) (models.User, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.User{}, fmt.Errorf("read persona: %w", err)
	}
	var user models.User
	if err := yaml.Unmarshal(data, &user); err != nil {
		return models.User{}, fmt.Errorf("parse persona %s: %w", path, err)
	}
	if user.CreatedAt == "" {
		user.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	return user, nil
}

func runUsersCreate(cmd *cobra.Command, args []string) error {
	user, err := loadPersona(personaFile)
	if err != nil {
		return err
	}
	resp, err := api.CreateUser(cmd.Context(), user)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", resp.Message, resp.UserID)
	return nil
}

func runUsersList(cmd *cobra.Command, args []string) error {
	users, err := api.ListUsers(cmd.Context())
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Println("No users.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USER_ID\tUSERNAME\tPERSONA\tCREATED_AT")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.UserID, u.Username, u.Personality.Name, u.CreatedAt)
	}
	return w.Flush()
}
