package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pelusa-v/event-inbox/internal/chat"
	"github.com/pelusa-v/event-inbox/internal/logger"
)

func init() {
	for _, c := range []*cobra.Command{conversationsCmd, unreadCmd} {
		c.Flags().String("token", os.Getenv("INBOX_TOKEN"), "bearer token (default $INBOX_TOKEN)")
		c.Flags().Int64("user", 0, "current user id")
		c.Flags().String("role", string(chat.RoleOrganizer), "viewing role: organizer, vendor or client")
		rootCmd.AddCommand(c)
	}
}

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "Print the aggregated partner directory for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		s, err := sessionFromFlags(cmd)
		if err != nil {
			return err
		}
		client := newBackend(cfg, logger.New(cfg))

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.BackendTimeout)
		defer cancel()
		rows, err := client.ListConversations(ctx, s)
		if err != nil {
			return fmt.Errorf("%s", chat.UserMessage(err))
		}
		partners := chat.BuildDirectory(rows, chat.DirectoryOptions{DedupeEvents: cfg.DedupePartnerEvents})

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(partners)
	},
}

var unreadCmd = &cobra.Command{
	Use:   "unread",
	Short: "Print the unread message count for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		s, err := sessionFromFlags(cmd)
		if err != nil {
			return err
		}
		client := newBackend(cfg, logger.New(cfg))

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.BackendTimeout)
		defer cancel()
		n, err := client.UnreadCount(ctx, s)
		if err != nil {
			return fmt.Errorf("%s", chat.UserMessage(err))
		}
		fmt.Fprintln(cmd.OutOrStdout(), n)
		return nil
	},
}

func sessionFromFlags(cmd *cobra.Command) (chat.Session, error) {
	token, _ := cmd.Flags().GetString("token")
	user, _ := cmd.Flags().GetInt64("user")
	role, _ := cmd.Flags().GetString("role")

	s := chat.Session{Token: token, UserID: user, Role: chat.Role(role)}
	if s.Token == "" {
		return s, fmt.Errorf("--token or INBOX_TOKEN is required")
	}
	if !s.Role.Valid() {
		return s, fmt.Errorf("unknown role %q", role)
	}
	return s, nil
}
