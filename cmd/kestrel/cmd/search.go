package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kestrel-search/kestrel/internal/search"
)

var (
	flagTopK          int
	flagLexicalWeight float64
	flagDenseWeight   float64
	flagJSON          bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a one-shot query against the configured index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		rt, err := newRuntime(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer rt.Close()

		req := search.Request{
			Query: strings.Join(args, " "),
			TopK:  flagTopK,
		}
		if cmd.Flags().Changed("lexical-weight") {
			req.LexicalWeight = &flagLexicalWeight
		}
		if cmd.Flags().Changed("dense-weight") {
			req.DenseWeight = &flagDenseWeight
		}

		resp, err := rt.engine.Search(cmd.Context(), req)
		if err != nil {
			return err
		}

		if flagJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}
		printResponse(resp)
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVarP(&flagTopK, "top-k", "k", 0, "number of results (default from config)")
	searchCmd.Flags().Float64Var(&flagLexicalWeight, "lexical-weight", 0, "override lexical fusion weight")
	searchCmd.Flags().Float64Var(&flagDenseWeight, "dense-weight", 0, "override dense fusion weight")
	searchCmd.Flags().BoolVar(&flagJSON, "json", false, "emit the raw JSON response")
}

func printResponse(resp *search.Response) {
	if resp.Combined.Total == 0 {
		fmt.Println("no results")
		return
	}
	for _, r := range resp.Combined.Results {
		loc := r.Path
		if loc == "" {
			loc = r.DocID
		}
		line := r.Content
		if r.MatchPreview != "" {
			line = r.MatchPreview
		}
		if len(line) > 160 {
			line = line[:160] + "…"
		}
		fmt.Printf("%2d. [%.3f] %s#%d\n    %s\n", r.Rank, r.FinalScore, loc, r.ChunkIndex, line)
	}
	fmt.Printf("\n%d results in %dms\n", resp.Combined.Total, resp.TookMS)
}
