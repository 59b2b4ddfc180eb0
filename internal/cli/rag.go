package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nevindra/lumen"
	"github.com/nevindra/lumen/rag"
)

func newRAGCmd(opts *options) *cobra.Command {
	var (
		files     []string
		topK      int
		chunkSize int
		overlap   int
	)
	cmd := &cobra.Command{
		Use:   "rag --file doc.pdf [question]",
		Short: "Answer questions over local documents",
		Long: "Loads the given .txt, .md, .html or .pdf files into an in-memory vector index, then answers the question " +
			"from the retrieved chunks. Without a question argument it reads questions from stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if topK > 0 {
				cfg.RAG.TopK = topK
			}
			if chunkSize > 0 {
				cfg.RAG.ChunkSize = chunkSize
			}
			if overlap >= 0 {
				cfg.RAG.Overlap = overlap
			}

			ctx := cmd.Context()
			c, err := newComponents(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := c.close(context.WithoutCancel(ctx)); err != nil {
					logger.Warn("shutdown", "error", err)
				}
			}()

			pipeline, err := c.pipeline(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			counts := make(map[string]int, len(files))
			for _, f := range files {
				results, err := pipeline.IngestFile(ctx, f, cfg.RAG.ChunkSize, cfg.RAG.Overlap)
				if err != nil {
					return fmt.Errorf("ingest %s: %w", f, err)
				}
				for _, r := range results {
					counts[f] += r.Chunks
				}
			}
			for _, f := range sortedKeys(counts) {
				fmt.Fprintln(out, thoughtStyle.Render(fmt.Sprintf("indexed %s: %d chunks", f, counts[f])))
			}

			answer := func(q string) error {
				ans, err := pipeline.Answer(ctx, q, cfg.RAG.TopK)
				if errors.Is(err, lumen.ErrEmptyIndex) {
					fmt.Fprintln(out, errorStyle.Render("No indexed content to answer from."))
					return nil
				}
				if err != nil {
					fmt.Fprintln(out, errorStyle.Render("Error: "+err.Error()))
					return ctx.Err()
				}
				renderAnswer(out, ans)
				return nil
			}
			if len(args) > 0 {
				return answer(strings.Join(args, " "))
			}
			return repl(ctx, cmd.InOrStdin(), out, answer)
		},
	}
	cmd.Flags().StringSliceVarP(&files, "file", "f", nil, "Document to index (repeatable)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Chunks to retrieve (default rag.top_k)")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Chunk size in characters (default rag.chunk_size)")
	cmd.Flags().IntVar(&overlap, "overlap", -1, "Chunk overlap in characters (default rag.overlap)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
