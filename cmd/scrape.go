package cmd

import (
	"encoding/json"
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout/internal/scraper"
)

func newScrapeCmd() *cobra.Command {
	var site string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape every enabled site once (or one site with --site) and persist the results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			svc := appInstance.Service()

			results := map[string][]scraper.Listing{}
			if site != "" {
				if !svc.HasSite(site) {
					return fmt.Errorf("%w: %s (active: %v)", scraper.ErrUnknownSite, site, svc.Sites())
				}
				results[site] = svc.ScrapeSite(cmd.Context(), site)
			} else {
				results = svc.ScrapeAll(cmd.Context())
			}

			total := 0
			for _, listings := range results {
				total += len(listings)
			}
			appInstance.Logger().Info("scrape command finished", zap.Int("sites", len(results)), zap.Int("total_listings", total))

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results) //nolint:wrapcheck // stdout write
			}
			return printSummary(cmd, results, total)
		},
	}
	cmd.Flags().StringVar(&site, "site", "", "scrape only this site")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the scraped listings as JSON")
	return cmd
}

func printSummary(cmd *cobra.Command, results map[string][]scraper.Listing, total int) error {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	slices.Sort(names)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SITE\tLISTINGS")
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%d\n", name, len(results[name]))
	}
	fmt.Fprintf(w, "TOTAL\t%d\n", total)
	return w.Flush() //nolint:wrapcheck // stdout write
}
