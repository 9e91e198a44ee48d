package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mnemo-ai/mnemo/internal/memory"
)

func newSearchCmd() *cobra.Command {
	var (
		types     []string
		topK      int
		threshold float64
		user      string
		field     string
		value     string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search memories semantically, or by exact field",
		Long: `Semantic search across memory types, ranked by similarity.

Examples:
  mnemo search "where does dana work"
  mnemo search "deploy process" --types procedural,working --top-k 5
  mnemo search --types factual --field subject --value dana`,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			userID := user
			if userID == "" {
				userID = eng.cfg.DefaultUser
			}

			var kinds []memory.Kind
			for _, t := range types {
				kinds = append(kinds, memory.Kind(strings.ToLower(strings.TrimSpace(t))))
			}

			// Exact-field mode needs no query argument and no embedder.
			if field != "" || value != "" {
				if field == "" || value == "" {
					return fmt.Errorf("--field and --value must be used together")
				}
				if len(kinds) != 1 {
					return fmt.Errorf("field search needs exactly one --types value")
				}
				memories, err := eng.searcher.SearchByField(cmd.Context(), userID, kinds[0], field, value, topK)
				if err != nil {
					return err
				}
				if len(memories) == 0 {
					fmt.Println("No results.")
					return nil
				}
				for _, m := range memories {
					fmt.Printf("[%s] %s\n  id: %s | created: %s\n", m.Kind, m.Content, m.ID, m.CreatedAt.Format("2006-01-02 15:04"))
				}
				return nil
			}

			if len(args) == 0 {
				return fmt.Errorf("search needs a query (or --field/--value)")
			}
			query := strings.Join(args, " ")

			result, err := eng.searcher.Search(cmd.Context(), userID, query, memory.SearchOptions{
				Kinds:     kinds,
				TopK:      topK,
				Threshold: threshold,
			})
			if err != nil {
				return err
			}

			if len(result.Hits) == 0 {
				fmt.Println("No results.")
			}
			for _, h := range result.Hits {
				fmt.Printf("[%s] %.2f %s\n  id: %s\n", h.Kind, h.Score, h.Content, h.ID)
			}
			if len(result.FailedKinds) > 0 {
				parts := make([]string, len(result.FailedKinds))
				for i, k := range result.FailedKinds {
					parts[i] = string(k)
				}
				fmt.Printf("note: search failed for types: %s\n", strings.Join(parts, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&types, "types", nil, "Memory types to search (default: all)")
	cmd.Flags().IntVar(&topK, "top-k", 0, "Maximum results (default from config)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Minimum similarity 0-1 (default from config)")
	cmd.Flags().StringVarP(&user, "user", "u", "", "Owner user id (default from config)")
	cmd.Flags().StringVar(&field, "field", "", "Exact-match field (with --value and one --types)")
	cmd.Flags().StringVar(&value, "value", "", "Exact-match value")

	return cmd
}
