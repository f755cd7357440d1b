package main

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"realtyportal/internal/domain"
	"realtyportal/internal/services"
	"realtyportal/internal/store"
)

func seedProspectusCommand() *cobra.Command {
	var (
		in      services.CreateProspectusInput
		minimum string
		target  string
	)
	cmd := &cobra.Command{
		Use:   "seed-prospectus",
		Short: "Insert a prospectus for local or staging environments",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if in.MinimumInvestment, err = decimal.NewFromString(minimum); err != nil {
				return fmt.Errorf("invalid --minimum %q: %w", minimum, err)
			}
			if target != "" {
				if in.TargetRaise, err = decimal.NewFromString(target); err != nil {
					return fmt.Errorf("invalid --target %q: %w", target, err)
				}
			}
			p, err := services.NewProspectusService(store.New(current.db)).Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created prospectus %s (%s, %s)\n", p.ID, p.Slug, p.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "prospectus title")
	cmd.Flags().StringVar(&in.Slug, "slug", "", "URL slug, derived from the title when empty")
	cmd.Flags().StringVar(&in.Status, "status", domain.ProspectusOpen, "one of draft, open, subscribed, in-progress, completed, closed")
	cmd.Flags().StringVar(&in.PropertyType, "property-type", "", "asset class shown on the listing")
	cmd.Flags().StringVar(&in.Location, "location", "", "property location")
	cmd.Flags().StringVar(&in.Summary, "summary", "", "short description")
	cmd.Flags().StringVar(&minimum, "minimum", "0", "minimum investment amount")
	cmd.Flags().StringVar(&target, "target", "", "target raise")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}
