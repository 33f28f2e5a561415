package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/glrules/internal/cli"
	"github.com/Veraticus/glrules/internal/common"
	"github.com/Veraticus/glrules/internal/model"
)

func correctionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "corrections",
		Short: "Record and review GL code corrections",
		Long: `Corrections record a user replacing a suggested GL code. Repeated
corrections for the same vendor are reported as patterns that can be
turned into draft rules.`,
	}

	cmd.AddCommand(correctionsListCmd())
	cmd.AddCommand(correctionsAddCmd())
	cmd.AddCommand(correctionsPatternsCmd())
	return cmd
}

func correctionsListCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent corrections",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(s session) error {
				corrections, err := s.store.ListCorrections(cmd.Context(), s.owner, limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, corrections)
				}
				if len(corrections) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No corrections recorded"))
					return nil
				}
				for _, c := range corrections {
					fmt.Fprintln(cmd.OutOrStdout(), formatCorrection(c))
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of corrections")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}

func formatCorrection(c model.Correction) string {
	from := c.OriginalGLCode
	if from == "" {
		from = "?"
	}
	parts := []string{
		c.CreatedAt.Format("2006-01-02"),
		fmt.Sprintf("%s → %s", from, cli.BoldStyle.Render(c.CorrectedGLCode)),
	}
	if c.VendorName != "" {
		parts = append(parts, c.VendorName)
	}
	if c.Description != "" {
		parts = append(parts, cli.SubtleStyle.Render(c.Description))
	}
	if c.ApplicationID != nil {
		parts = append(parts, cli.SubtleStyle.Render("application "+strconv.FormatInt(*c.ApplicationID, 10)))
	}
	return strings.Join(parts, "  ")
}

func correctionsAddCmd() *cobra.Command {
	var (
		applicationID int64
		vendor        string
		description   string
		glCode        string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a correction",
		Long: `Record that a GL code was replaced. When --application is given the
application is marked overridden and its rule and original code are copied.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(s session) error {
				c := model.Correction{
					OwnerID:         s.owner,
					VendorName:      vendor,
					Description:     description,
					CorrectedGLCode: glCode,
				}
				if cmd.Flags().Changed("application") {
					id := applicationID
					c.ApplicationID = &id
				}

				if err := s.store.RecordCorrection(cmd.Context(), &c); err != nil {
					return common.NewUserError("failed to record correction", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Recorded correction %d", c.ID)))
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&applicationID, "application", 0, "ID of the corrected application")
	cmd.Flags().StringVar(&vendor, "vendor", "", "vendor name of the line item")
	cmd.Flags().StringVar(&description, "description", "", "description of the line item")
	cmd.Flags().StringVar(&glCode, "gl-code", "", "corrected GL code (required)")
	_ = cmd.MarkFlagRequired("gl-code")
	return cmd
}

func correctionsPatternsCmd() *cobra.Command {
	var (
		minOccurrences int
		createRules    bool
		asJSON         bool
	)

	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Show repeated corrections",
		Long: `Aggregate corrections by vendor and corrected GL code. With --create-rules
every pattern becomes an inactive draft rule to review and enable.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(s session) error {
				patterns, err := s.store.CorrectionPatterns(cmd.Context(), s.owner, minOccurrences)
				if err != nil {
					return err
				}

				if createRules {
					for _, p := range patterns {
						draft := p.SuggestedRule(s.owner)
						if err := s.store.CreateRule(cmd.Context(), &draft); err != nil {
							return fmt.Errorf("failed to create draft rule for %s: %w", p.VendorName, err)
						}
						fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(
							fmt.Sprintf("Created draft rule %s for %s → %s", draft.ID, p.VendorName, p.CorrectedGLCode)))
					}
				}

				if asJSON {
					return writeJSON(cmd, patterns)
				}
				if len(patterns) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No repeated corrections yet"))
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), cli.RenderPatterns(patterns))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&minOccurrences, "min", 2, "minimum occurrences to report")
	cmd.Flags().BoolVar(&createRules, "create-rules", false, "create an inactive draft rule per pattern")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}
