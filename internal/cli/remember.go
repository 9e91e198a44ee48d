package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mnemo-ai/mnemo/internal/memory"
)

func newRememberCmd() *cobra.Command {
	var (
		memType     string
		user        string
		importance  float64
		ttlSeconds  int
		priority    int
		episodeDate string
		sessionID   string
	)

	cmd := &cobra.Command{
		Use:   "remember <text>",
		Short: "Store a memory from dialog text",
		Long: `Run text through extraction and store the resulting memories.

Examples:
  mnemo remember "My name is Dana and I work at Acme" --type factual
  mnemo remember "Yesterday we shipped the billing migration" --type episodic
  mnemo remember "Deploy is blocked on the DNS ticket" --type working --ttl 7200`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")

			kind := memory.Kind(strings.ToLower(memType))
			if !memory.ValidKind(kind) || kind == memory.KindSession {
				return fmt.Errorf("unknown memory type %q (valid: factual, episodic, semantic, procedural, working)", memType)
			}

			eng, err := openEngine(nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			opts := memory.StoreOptions{
				TTLSeconds: ttlSeconds,
				Priority:   priority,
				SessionID:  sessionID,
			}
			if episodeDate != "" {
				t, err := time.Parse("2006-01-02", episodeDate)
				if err != nil {
					return fmt.Errorf("invalid --date %q (want YYYY-MM-DD)", episodeDate)
				}
				opts.EpisodeDate = t
			}

			userID := user
			if userID == "" {
				userID = eng.cfg.DefaultUser
			}

			result, err := eng.pipeline.StoreDialog(cmd.Context(), userID, kind, text, importance, opts)
			if err != nil {
				return err
			}

			fmt.Printf("Stored %d/%d extracted %s memories\n", result.StoredCount, result.ExtractedCount, kind)
			for _, id := range result.StoredIDs {
				fmt.Printf("  id: %s\n", id)
			}
			if result.Diagnostic != "" {
				fmt.Printf("  note: %s\n", result.Diagnostic)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&memType, "type", "t", "factual",
		"Memory type: factual, episodic, semantic, procedural, working")
	cmd.Flags().StringVarP(&user, "user", "u", "", "Owner user id (default from config)")
	cmd.Flags().Float64Var(&importance, "importance", 0.5, "Importance score 0-1")
	cmd.Flags().IntVar(&ttlSeconds, "ttl", 0, "Working memories: seconds until expiry")
	cmd.Flags().IntVar(&priority, "priority", 0, "Working memories: retrieval priority")
	cmd.Flags().StringVar(&episodeDate, "date", "", "Episodic memories: fallback date YYYY-MM-DD")
	cmd.Flags().StringVar(&sessionID, "session", "", "Tag the memory to a session")

	return cmd
}
