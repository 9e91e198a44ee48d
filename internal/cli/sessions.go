package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mnemo-ai/mnemo/internal/session"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage conversation sessions",
	}
	cmd.AddCommand(
		newSessionsListCmd(),
		newSessionsShowCmd(),
		newSessionsSummarizeCmd(),
		newSessionsCompleteCmd(),
		newSessionsDeleteCmd(),
	)
	return cmd
}

func resolveUser(eng *engine, user string) string {
	if user != "" {
		return user
	}
	return eng.cfg.DefaultUser
}

func newSessionsListCmd() *cobra.Command {
	var (
		user   string
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recently active first",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			sessions, err := eng.sessions.List(cmd.Context(), resolveUser(eng, user), session.Status(status), limit)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Println("No sessions.")
				return nil
			}
			for _, s := range sessions {
				fmt.Printf("%s  [%s]  %d msgs  %d tokens  last active %s\n",
					s.ID, s.Status, s.MessageCount, s.TotalTokens,
					s.LastActivity.Format("2006-01-02 15:04"))
				if s.Summary != "" {
					fmt.Printf("  %s\n", s.Summary)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "Owner user id (default from config)")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status: active, completed, archived")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum sessions to list (default 50)")
	return cmd
}

func newSessionsShowCmd() *cobra.Command {
	var (
		user  string
		lastN int
	)

	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session's aggregates and recent messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			sctx, err := eng.sessions.GetContext(cmd.Context(), resolveUser(eng, user), args[0], lastN)
			if err != nil {
				return err
			}

			s := sctx.Session
			fmt.Printf("Session %s [%s]\n", s.ID, s.Status)
			fmt.Printf("  messages: %d | tokens: %d | cost: $%.4f\n", s.MessageCount, s.TotalTokens, s.TotalCost)
			if s.Summary != "" {
				fmt.Printf("  summary: %s\n", s.Summary)
			}
			if len(s.Topics) > 0 {
				fmt.Printf("  topics: %s\n", strings.Join(s.Topics, ", "))
			}
			fmt.Println()
			for _, m := range sctx.Messages {
				fmt.Printf("%3d %s [%s]: %s\n", m.Seq, m.CreatedAt.Format("15:04:05"), m.Role, m.Content)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "Owner user id (default from config)")
	cmd.Flags().IntVar(&lastN, "last", 20, "How many trailing messages to show (0 = all)")
	return cmd
}

func newSessionsSummarizeCmd() *cobra.Command {
	var (
		user        string
		compression string
		force       bool
	)

	cmd := &cobra.Command{
		Use:   "summarize <session-id>",
		Short: "Summarise a session's conversation with the configured LLM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			if compression == "" {
				compression = eng.cfg.Summarization.DefaultCompression
			}
			s, err := eng.sessions.Summarize(cmd.Context(), resolveUser(eng, user), args[0], compression, force)
			if err != nil {
				return err
			}
			fmt.Println(s.Summary)
			if len(s.Topics) > 0 {
				fmt.Printf("topics: %s\n", strings.Join(s.Topics, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "Owner user id (default from config)")
	cmd.Flags().StringVar(&compression, "compression", "", "Summary length: low, medium, high (default from config)")
	cmd.Flags().BoolVar(&force, "force", false, "Regenerate even if a summary is cached")
	return cmd
}

func newSessionsCompleteCmd() *cobra.Command {
	var (
		user    string
		archive bool
	)

	cmd := &cobra.Command{
		Use:   "complete <session-id>",
		Short: "Mark a session completed (or archived)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			next := session.StatusCompleted
			if archive {
				next = session.StatusArchived
			}
			if err := eng.sessions.UpdateStatus(cmd.Context(), resolveUser(eng, user), args[0], next); err != nil {
				return err
			}
			fmt.Printf("Session %s is now %s.\n", args[0], next)
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "Owner user id (default from config)")
	cmd.Flags().BoolVar(&archive, "archive", false, "Archive instead of complete")
	return cmd
}

func newSessionsDeleteCmd() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session, its messages, and its extracted memories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			if err := eng.sessions.Delete(cmd.Context(), resolveUser(eng, user), args[0]); err != nil {
				return err
			}
			fmt.Printf("Session %s deleted.\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "Owner user id (default from config)")
	return cmd
}
