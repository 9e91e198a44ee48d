package cli

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// reembedBatch is how many texts go to the embedding gateway per call.
const reembedBatch = 32

func newReembedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reembed",
		Short: "Re-embed every record under the current embedding model",
		Long: `Regenerate all embeddings with the configured embedding model.

Run this after changing embedding models: search only considers vectors
whose model tag matches the current model, so until a reembed, records
embedded under the old model are reachable by field search only.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			if eng.embedder == nil {
				return fmt.Errorf("no embedder configured (default_embedder = %q)", eng.cfg.DefaultEmbedder)
			}
			modelVersion := eng.embedder.ModelVersion()

			records, err := eng.store.ListEmbeddable(cmd.Context())
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("Nothing to re-embed.")
				return nil
			}

			bar := progressbar.NewOptions(len(records),
				progressbar.OptionSetDescription(fmt.Sprintf("  Re-embedding as %s", modelVersion)),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionClearOnFinish(),
			)

			var done, failed int
			for start := 0; start < len(records); start += reembedBatch {
				end := start + reembedBatch
				if end > len(records) {
					end = len(records)
				}
				batch := records[start:end]

				texts := make([]string, len(batch))
				for i, m := range batch {
					texts[i] = m.Content
				}
				vecs, err := eng.embedder.Embed(cmd.Context(), texts)
				if err != nil {
					return fmt.Errorf("embed batch: %w", err)
				}

				for i, m := range batch {
					if i >= len(vecs) {
						failed++
						continue
					}
					if err := eng.store.UpdateEmbedding(cmd.Context(), m.Kind, m.ID, vecs[i], modelVersion); err != nil {
						failed++
						continue
					}
					done++
				}
				_ = bar.Add(len(batch))
			}
			_ = bar.Finish()

			fmt.Printf("Re-embedded %d/%d records as %s\n", done, len(records), modelVersion)
			if failed > 0 {
				fmt.Printf("  %d records failed\n", failed)
			}
			return nil
		},
	}
}
