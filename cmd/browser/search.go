package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ffimoveis/imoveis/internal/browser"
	"github.com/ffimoveis/imoveis/internal/coordinator"
	"github.com/ffimoveis/imoveis/internal/domain"
)

func newSearchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "search",
		Short: "Run the search encoded in --url once and print the results",
		Example: `  imoveis-browser search --url "q=tatuape"
  imoveis-browser search --url "tipo=casa&min_price=500000"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSearch(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
}

func runSearch(ctx context.Context, opts *options, out io.Writer) error {
	log, closeLog, err := opts.newLogger(os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	source, err := opts.newSource(log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 2*opts.Timeout)
	defer cancel()

	coord := coordinator.New(source, log)
	if !<-coord.Dispatch(ctx, coord.Initialize(ctx, opts.URL)) {
		return fmt.Errorf("search was superseded")
	}
	if coord.FirstLoadFailed() {
		return fmt.Errorf("search failed: listings api unavailable at %s", opts.APIURL)
	}
	return printResults(out, coord.URL(), coord.Results())
}

func printResults(out io.Writer, query string, results []domain.PropertyRecord) error {
	if query != "" {
		query = "?" + query
	}
	fmt.Fprintf(out, "%d imóveis encontrados %s\n\n", len(results), query)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPREÇO\tTIPO\tLOCAL\tTÍTULO")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s, %s\t%s\n",
			r.ID, browser.FormatPrice(r.Price), r.PropertyType.DisplayName(),
			r.NeighborhoodName, r.City, r.Title)
	}
	return w.Flush()
}
