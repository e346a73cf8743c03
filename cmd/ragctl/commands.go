package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"zero-entropy-be/pkg/rag/quality"
	"zero-entropy-be/pkg/rag/ranker"
	"zero-entropy-be/pkg/store"
	"zero-entropy-be/pkg/utils"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ragctl",
		Short:         "ragctl inspects text the way the retrieval core sees it",
		Long:          `ragctl scores, fingerprints, splits and ranks text with the same code the server uses.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Bool("json", false, "print machine readable JSON")

	root.AddCommand(newScoreCmd(), newFingerprintCmd(), newSplitCmd(), newRankCmd(), newDocIDCmd())
	return root
}

// input joins args, or reads stdin when there are none or the only arg is "-".
func input(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return strings.Join(args, " "), nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func asJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func newScoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score [text|-]",
		Short: "Print the quality metrics of a text",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := input(cmd, args)
			if err != nil {
				return err
			}
			report, err := quality.NewScorer().Report(text)
			if err != nil {
				return err
			}
			if asJSON(cmd) {
				return printJSON(cmd, report)
			}

			out := cmd.OutOrStdout()
			m := report.Metrics
			scoreColor := color.New(color.FgGreen)
			if m.OverallQuality < 0.6 {
				scoreColor = color.New(color.FgYellow)
			}
			if m.OverallQuality < 0.3 {
				scoreColor = color.New(color.FgRed)
			}
			scoreColor.Fprintf(out, "quality     %.3f\n", m.OverallQuality)
			fmt.Fprintf(out, "entropy     %.3f bits (%s)\n", m.ShannonEntropy, report.Status)
			fmt.Fprintf(out, "certainty   %.3f\n", m.Certainty)
			fmt.Fprintf(out, "diversity   %.3f (lexical %.3f)\n", m.DiversityScore, m.LexicalDiversity)
			fmt.Fprintf(out, "coherence   %.3f over %d sentences\n", m.SemanticCoherence, m.SentenceCount)
			fmt.Fprintf(out, "tokens      %d (%d distinct)\n", m.TokenCount, m.DistinctTokenCount)
			for _, s := range report.Suggestions {
				color.New(color.FgCyan).Fprintf(out, "- %s\n", s)
			}
			return nil
		},
	}
}

func newFingerprintCmd() *cobra.Command {
	var edge, length int
	cmd := &cobra.Command{
		Use:   "fingerprint [text|-]",
		Short: "Print the deduplication fingerprint of a text",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := input(cmd, args)
			if err != nil {
				return err
			}
			fp := ranker.Fingerprint(text, edge, length)
			if asJSON(cmd) {
				return printJSON(cmd, map[string]string{"fingerprint": fp})
			}
			fmt.Fprintln(cmd.OutOrStdout(), fp)
			return nil
		},
	}
	defaults := ranker.DefaultConfig()
	cmd.Flags().IntVar(&edge, "edge", defaults.FingerprintEdge, "runes hashed from each end")
	cmd.Flags().IntVar(&length, "length", defaults.FingerprintLength, "hex digits kept")
	return cmd
}

func newSplitCmd() *cobra.Command {
	var size, overlap int
	cmd := &cobra.Command{
		Use:   "split [file|-]",
		Short: "Split a document into the chunks that would be indexed",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var text string
			if len(args) == 1 && args[0] != "-" {
				b, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				text = string(b)
			} else {
				var err error
				if text, err = input(cmd, nil); err != nil {
					return err
				}
			}

			chunks := utils.SplitText(text, size, overlap)
			if asJSON(cmd) {
				return printJSON(cmd, chunks)
			}
			scorer := quality.NewScorer()
			for i, c := range chunks {
				color.New(color.Bold).Fprintf(cmd.OutOrStdout(), "--- chunk %d (%d runes, quality %.3f)\n", i, len([]rune(c)), scorer.Score(c))
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&size, "size", 1000, "chunk size in runes")
	cmd.Flags().IntVar(&overlap, "overlap", 200, "overlap between chunks in runes")
	return cmd
}

type rankInput struct {
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
	SourceId   string  `json:"source_id"`
	Source     string  `json:"source"`
}

func newRankCmd() *cobra.Command {
	var query, file string
	var maxResults int
	cmd := &cobra.Command{
		Use:   "rank --file hits.json",
		Short: "Rank a JSON array of search hits",
		Long: `Rank reads [{"content": "...", "similarity": 0.8, "source_id": "...", "source": "..."}]
and prints what the retrieval core would keep, most confident first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			var in []rankInput
			if err := json.NewDecoder(r).Decode(&in); err != nil {
				return fmt.Errorf("decode hits: %w", err)
			}
			hits := make([]store.RetrievalHit, 0, len(in))
			for _, h := range in {
				hits = append(hits, store.RetrievalHit{
					Content:    store.NewTextSpan(h.Content),
					Similarity: h.Similarity,
					SourceID:   h.SourceId,
					Tags:       store.Tags{Source: h.Source},
				})
			}

			ranked := ranker.NewRanker(ranker.DefaultConfig(), quality.NewScorer(), nil).Rank(query, hits, maxResults)
			if asJSON(cmd) {
				return printJSON(cmd, ranked)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "kept %d of %d hits\n", len(ranked), len(hits))
			for i, f := range ranked {
				color.New(color.FgGreen).Fprintf(out, "%d. %s", i+1, f.Label())
				fmt.Fprintf(out, "  confidence %.3f  similarity %.3f  quality %.3f  [%s]\n",
					f.Confidence, f.Similarity, f.Quality, f.Fingerprint)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "query the hits were retrieved for")
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with hits (default stdin)")
	cmd.Flags().IntVarP(&maxResults, "max", "n", 5, "maximum fragments kept")
	return cmd
}

func newDocIDCmd() *cobra.Command {
	var meta []string
	cmd := &cobra.Command{
		Use:   "docid [text|-]",
		Short: "Print the document id knowledge ingestion would assign",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := input(cmd, args)
			if err != nil {
				return err
			}
			fields := make(map[string]interface{}, len(meta))
			for _, kv := range meta {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("metadata %q is not key=value", kv)
				}
				fields[k] = v
			}
			fmt.Fprintln(cmd.OutOrStdout(), store.DocumentID(strings.TrimSpace(text), fields))
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&meta, "meta", "m", nil, "metadata key=value, repeatable")
	return cmd
}
