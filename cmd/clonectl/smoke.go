package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"aiclone/client"
	"aiclone/models"

	"github.com/spf13/cobra"
)

var smokeCmd = &cobra.Command{
	Use:   "smoke",
	Short: "Run an end-to-end check against the API",
	Long: `Run an end-to-end check against the API.

Creates three users, checks duplicate usernames are rejected, generates
conversations between them and lists the results. Requires a configured model
provider on the server. Exits non-zero if any check fails.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := newSmoke(api, os.Stdout, time.Now())
		s.run(cmd.Context())
		if s.passed != s.total {
			return fmt.Errorf("%d of %d checks failed", s.total-s.passed, s.total)
		}
		return nil
	},
}

type smoke struct {
	api    *client.Client
	out    io.Writer
	stamp  string
	now    time.Time
	total  int
	passed int
}

func newSmoke(api *client.Client, out io.Writer, now time.Time) *smoke {
	return &smoke{api: api, out: out, now: now, stamp: now.Format("150405")}
}

func (s *smoke) check(name string, fn func() error) bool {
	s.total++
	fmt.Fprintf(s.out, "- %s ... ", name)
	if err := fn(); err != nil {
		fmt.Fprintf(s.out, "FAIL: %v\n", err)
		return false
	}
	s.passed++
	fmt.Fprintln(s.out, "ok")
	return true
}

// err が指定ステータスの APIError なら成功
func expectStatus(err error, status int) error {
	if err == nil {
		return fmt.Errorf("expected HTTP %d, got success", status)
	}
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.StatusCode != status {
		return fmt.Errorf("expected HTTP %d, got %d (%s)", status, apiErr.StatusCode, apiErr.Message)
	}
	return nil
}

func (s *smoke) persona(index int, name, style string) models.User {
	return models.User{
		UserID:   fmt.Sprintf("user_%s_%d", s.now.Format("20060102_150405"), index),
		Username: fmt.Sprintf("%s_%s", name, s.stamp),
		Personality: models.Personality{
			Name:               name,
			CommunicationStyle: style,
			Interests:          []string{"technology", "music", "reading"},
			PersonalityTraits:  []string{"friendly", "curious", "thoughtful"},
			FavoriteTopics:     []string{"science", "philosophy", "travel"},
			SpeakingQuirks:     "Uses lots of exclamation points!",
			Background:         "Enthusiast who loves learning and connecting with others",
		},
		CreatedAt: s.now.UTC().Format(time.RFC3339Nano),
	}
}

func (s *smoke) run(ctx context.Context) {
	if !s.check("health", func() error {
		_, err := s.api.Health(ctx)
		return err
	}) {
		s.summary()
		return
	}

	var created []models.User
	for i, p := range []struct{ name, style string }{
		{"Alice", "enthusiastic and energetic"},
		{"Bob", "thoughtful and analytical"},
		{"Charlie", "witty and sarcastic"},
	} {
		user := s.persona(i, p.name, p.style)
		if s.check("create user "+p.name, func() error {
			_, err := s.api.CreateUser(ctx, user)
			return err
		}) {
			created = append(created, user)
		}
	}
	if len(created) < 2 {
		fmt.Fprintln(s.out, "user creation failed, skipping conversation checks")
		s.summary()
		return
	}

	s.check("list users", func() error {
		users, err := s.api.ListUsers(ctx)
		if err != nil {
			return err
		}
		if len(users) < len(created) {
			return fmt.Errorf("expected at least %d users, got %d", len(created), len(users))
		}
		return nil
	})
	for _, u := range created {
		s.check("get user "+u.UserID, func() error {
			got, err := s.api.GetUser(ctx, u.UserID)
			if err != nil {
				return err
			}
			if got.Username != u.Username {
				return fmt.Errorf("username %q, want %q", got.Username, u.Username)
			}
			return nil
		})
	}

	s.check("duplicate username rejected", func() error {
		dup := s.persona(99, "Duplicate", "formal")
		dup.Username = created[0].Username
		_, err := s.api.CreateUser(ctx, dup)
		return expectStatus(err, http.StatusBadRequest)
	})

	pairs := [][2]int{{0, 1}}
	topics := []string{"the future of technology", "favorite books and movies", "travel experiences"}
	if len(created) == 3 {
		pairs = append(pairs, [2]int{0, 2}, [2]int{1, 2})
	}
	for i, pair := range pairs {
		a, b := created[pair[0]], created[pair[1]]
		s.check(fmt.Sprintf("converse %s & %s", a.Personality.Name, b.Personality.Name), func() error {
			view, err := s.api.CreateConversation(ctx, a.UserID, b.UserID, topics[i])
			if err != nil {
				return err
			}
			if view.ConversationID == "" {
				return errors.New("missing conversation_id")
			}
			return nil
		})
	}

	s.check("list conversations", func() error {
		_, err := s.api.ListConversations(ctx, "")
		return err
	})
	s.check("list conversations for "+created[0].UserID, func() error {
		views, err := s.api.ListConversations(ctx, created[0].UserID)
		if err != nil {
			return err
		}
		for _, v := range views {
			if v.User1ID != created[0].UserID && v.User2ID != created[0].UserID {
				return fmt.Errorf("conversation %s does not involve %s", v.ConversationID, created[0].UserID)
			}
		}
		return nil
	})

	s.check("unknown user is 404", func() error {
		_, err := s.api.GetUser(ctx, "invalid_user_id")
		return expectStatus(err, http.StatusNotFound)
	})
	s.check("conversation with unknown users is 404", func() error {
		_, err := s.api.CreateConversation(ctx, "invalid1", "invalid2", "")
		return expectStatus(err, http.StatusNotFound)
	})

	s.summary()
}

func (s *smoke) summary() {
	fmt.Fprintf(s.out, "\n%d/%d checks passed\n", s.passed, s.total)
}
