package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/jobscout/internal/scraper"
)

func newListingsCmd() *cobra.Command {
	var (
		title, company, jobType, location, sourceSite, active string
		limit, offset                                         int
	)
	cmd := &cobra.Command{
		Use:   "listings",
		Short: "Print stored listings, most recently scraped first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			raw := map[string]any{}
			for key, value := range map[string]string{
				"title":       title,
				"company":     company,
				"job_type":    jobType,
				"location":    location,
				"source_site": sourceSite,
				"is_active":   active,
			} {
				if value != "" {
					raw[key] = value
				}
			}
			filter, err := scraper.FilterFromMap(raw)
			if err != nil {
				return fmt.Errorf("invalid filter: %w", err)
			}
			listings := appInstance.Service().GetJobListings(cmd.Context(), filter, limit, offset)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(listings) //nolint:wrapcheck // stdout write
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title contains (case-insensitive)")
	cmd.Flags().StringVar(&company, "company", "", "company contains (case-insensitive)")
	cmd.Flags().StringVar(&jobType, "job-type", "", "job type contains (case-insensitive)")
	cmd.Flags().StringVar(&location, "location", "", "location contains (case-insensitive)")
	cmd.Flags().StringVar(&sourceSite, "source-site", "", "exact source site name")
	cmd.Flags().StringVar(&active, "active", "", "true or false to filter on is_active")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum listings to print")
	cmd.Flags().IntVar(&offset, "offset", 0, "listings to skip")
	return cmd
}
