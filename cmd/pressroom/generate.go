// ABOUTME: The generate command: runs one article generation and streams NDJSON progress to stdout.
// ABOUTME: --tui swaps the stream for a live step view, --events copies events to a file, -o saves the markdown.
package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/2389-research/pressroom/article"
	"github.com/2389-research/pressroom/logging"
	"github.com/2389-research/pressroom/pipeline"
	"github.com/2389-research/pressroom/tui"
)

func newGenerateCommand(a *app) *cobra.Command {
	var (
		req    article.Request
		output string
		events string
		live   bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one article and stream progress as NDJSON",
		Example: `  pressroom generate --keyword "vector databases" --category blog
  pressroom generate --keyword cursor --category ai-tools --affiliate https://example.com/r/123 -o cursor.md
  pressroom generate --keyword "edge ai" --category blog --tui --events run.ndjson`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			logger := a.log
			if live {
				logger = logging.Discard()
			}
			svc, err := newService(ctx, a.cfg, st, logger)
			if err != nil {
				return err
			}

			record := func(s pipeline.Sink) pipeline.Sink { return s }
			if events != "" {
				f, err := os.Create(events)
				if err != nil {
					return fmt.Errorf("open event log: %w", err)
				}
				eventLog := pipeline.NewNDJSONFileSink(f)
				defer eventLog.Close()
				record = func(s pipeline.Sink) pipeline.Sink { return pipeline.TeeSink{s, eventLog} }
			}

			var res *article.Result
			if live {
				err = tui.Run(ctx, req.Keyword, svc.StepLabels(), func(ctx context.Context, sink pipeline.Sink) error {
					var gerr error
					res, gerr = svc.Generate(ctx, req, record(sink))
					return gerr
				}, tea.WithOutput(a.out))
			} else {
				res, err = svc.Generate(ctx, req, record(pipeline.NewNDJSONSink(a.out)))
			}
			if err != nil {
				return err
			}
			a.log.Info("article generated", "run_id", res.RunID, "title", res.Article.Title)
			if output == "" {
				return nil
			}
			if err := os.WriteFile(output, []byte(res.Article.Content), 0o644); err != nil {
				return fmt.Errorf("write article: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Keyword, "keyword", "", "topic keyword (required)")
	cmd.Flags().StringVar(&req.Category, "category", "", "article category, e.g. blog or ai-tools (required)")
	cmd.Flags().StringVar(&req.Subcategory, "subcategory", "", "display subcategory")
	cmd.Flags().StringVar(&req.AffiliateLink, "affiliate", "", "affiliate link for tool reviews")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the article markdown to this file")
	cmd.Flags().StringVar(&events, "events", "", "also write the NDJSON event stream to this file")
	cmd.Flags().BoolVar(&live, "tui", false, "show a live progress view instead of NDJSON")
	_ = cmd.MarkFlagRequired("keyword")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}
