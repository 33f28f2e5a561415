package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Veraticus/glrules/internal/cli"
	"github.com/Veraticus/glrules/internal/common"
	"github.com/Veraticus/glrules/internal/config"
	"github.com/Veraticus/glrules/internal/model"
	"github.com/Veraticus/glrules/internal/rules"
	"github.com/Veraticus/glrules/internal/service"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage GL coding rules",
		Long: `Create, inspect and test the GL coding rules of an owner.

Rules are evaluated in creation order; on equal scores the rule with the
higher priority wins.`,
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesShowCmd())
	cmd.AddCommand(rulesCreateCmd())
	cmd.AddCommand(rulesDeleteCmd())
	cmd.AddCommand(rulesSetActiveCmd("enable", true))
	cmd.AddCommand(rulesSetActiveCmd("disable", false))
	cmd.AddCommand(rulesImportCmd())
	cmd.AddCommand(rulesExportCmd())
	cmd.AddCommand(rulesTestCmd())

	return cmd
}

// session is the resolved environment of an owner-scoped command.
type session struct {
	store service.Storage
	owner string
	cfg   config.Config
}

// withSession runs fn against the configured store on behalf of --owner.
func withSession(cmd *cobra.Command, fn func(s session) error) error {
	owner, err := requireOwner()
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := initStorage(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	return fn(session{store: store, owner: owner, cfg: cfg})
}

func rulesListCmd() *cobra.Command {
	var (
		activeOnly bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rules in evaluation order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(s session) error {
				list, err := s.store.ListRules(cmd.Context(), s.owner, activeOnly)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, list)
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No rules defined for "+s.owner))
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), cli.RenderRules(list))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&activeOnly, "active", false, "only list active rules")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}

func rulesShowCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s session) error {
				rule, err := s.store.GetRule(cmd.Context(), s.owner, args[0])
				if err != nil {
					return ruleLookupError(args[0], err)
				}
				if asJSON {
					return writeJSON(cmd, rule)
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.RenderRule(*rule))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}

// ruleFlags collects a rule definition from command-line flags.
type ruleFlags struct {
	name             string
	description      string
	glCode           string
	startDate        string
	endDate          string
	vendors          []string
	keywords         []string
	exact            []string
	exclude          []string
	minAmount        float64
	maxAmount        float64
	threshold        float64
	priority         int
	autoAssign       bool
	requiresApproval bool
	overrideAI       bool
	inactive         bool
}

func (f *ruleFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "rule name (required)")
	cmd.Flags().StringVar(&f.description, "description", "", "free-form rule description")
	cmd.Flags().StringVar(&f.glCode, "gl-code", "", "GL code to suggest (required)")
	cmd.Flags().StringArrayVar(&f.vendors, "vendor", nil, "vendor name or regular expression (repeatable)")
	cmd.Flags().StringArrayVar(&f.keywords, "keyword", nil, "description keyword (repeatable)")
	cmd.Flags().StringArrayVar(&f.exact, "exact", nil, "exact description (repeatable)")
	cmd.Flags().StringArrayVar(&f.exclude, "exclude", nil, "keyword that vetoes the rule (repeatable)")
	cmd.Flags().Float64Var(&f.minAmount, "min-amount", 0, "minimum amount, inclusive")
	cmd.Flags().Float64Var(&f.maxAmount, "max-amount", 0, "maximum amount, inclusive")
	cmd.Flags().StringVar(&f.startDate, "start-date", "", "first matching date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.endDate, "end-date", "", "last matching date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&f.priority, "priority", 0, "tie-break priority, higher wins")
	cmd.Flags().BoolVar(&f.autoAssign, "auto-assign", false, "auto-apply when confidence reaches --threshold")
	cmd.Flags().Float64Var(&f.threshold, "threshold", 0.8, "auto-assign confidence threshold")
	cmd.Flags().BoolVar(&f.requiresApproval, "requires-approval", false, "always require approval")
	cmd.Flags().BoolVar(&f.overrideAI, "override-ai", false, "prefer this rule over any AI suggestion")
	cmd.Flags().BoolVar(&f.inactive, "inactive", false, "create the rule disabled")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("gl-code")
}

func (f *ruleFlags) rule(cmd *cobra.Command, owner string) (model.Rule, error) {
	rule := model.Rule{
		OwnerID:     owner,
		Name:        f.name,
		Description: f.description,
		Priority:    f.priority,
		IsActive:    !f.inactive,
		Conditions: model.Conditions{
			VendorPatterns:    f.vendors,
			Keywords:          f.keywords,
			ExactDescriptions: f.exact,
			ExcludeKeywords:   f.exclude,
		},
		Action: model.Action{
			GLCode:              f.glCode,
			ConfidenceThreshold: f.threshold,
			AutoAssign:          f.autoAssign,
			RequiresApproval:    f.requiresApproval,
			OverrideAI:          f.overrideAI,
		},
	}

	if cmd.Flags().Changed("min-amount") || cmd.Flags().Changed("max-amount") {
		r := &model.AmountRange{}
		if cmd.Flags().Changed("min-amount") {
			v := f.minAmount
			r.Min = &v
		}
		if cmd.Flags().Changed("max-amount") {
			v := f.maxAmount
			r.Max = &v
		}
		rule.Conditions.AmountRange = r
	}

	if f.startDate != "" || f.endDate != "" {
		r := &model.DateRange{}
		for _, bound := range []struct {
			value string
			dst   **model.Date
		}{{f.startDate, &r.Start}, {f.endDate, &r.End}} {
			if bound.value == "" {
				continue
			}
			d, err := model.ParseDate(bound.value)
			if err != nil {
				return model.Rule{}, common.NewUserError("invalid date bound", err)
			}
			*bound.dst = &d
		}
		rule.Conditions.DateRange = r
	}

	return rule, nil
}

func rulesCreateCmd() *cobra.Command {
	var flags ruleFlags

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a rule",
		Example: `  glrules rules create --owner acme --name "Office supplies" --gl-code 6100-200 \
    --vendor "staples|office depot" --keyword paper --max-amount 500 --auto-assign`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(s session) error {
				rule, err := flags.rule(cmd, s.owner)
				if err != nil {
					return err
				}
				if !rule.Conditions.HasClauses() {
					slog.Warn("Rule has no conditions and will never match", "name", rule.Name)
				}
				if err := s.store.CreateRule(cmd.Context(), &rule); err != nil {
					return common.NewUserError("failed to create rule", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created rule %q (%s)", rule.Name, rule.ID)))
				return nil
			})
		},
	}

	flags.register(cmd)
	return cmd
}

func rulesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s session) error {
				if err := s.store.DeleteRule(cmd.Context(), s.owner, args[0]); err != nil {
					return ruleLookupError(args[0], err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Deleted rule "+args[0]))
				return nil
			})
		},
	}
}

func rulesSetActiveCmd(use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: fmt.Sprintf("%s a rule", map[bool]string{true: "Enable", false: "Disable"}[active]),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s session) error {
				if err := s.store.SetRuleActive(cmd.Context(), s.owner, args[0], active); err != nil {
					return ruleLookupError(args[0], err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Rule %s %sd", args[0], use)))
				return nil
			})
		},
	}
}

func rulesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import rules from a YAML or JSON file",
		Long: `Import a list of rules. Rules carrying the ID of an existing rule of the
owner replace it; all other rules are created in file order. Rules without
an is_active key are imported active.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := decodeRules(args[0])
			if err != nil {
				return common.NewUserError("failed to read rules file", err)
			}

			return withSession(cmd, func(s session) error {
				created, updated, err := importRules(cmd.Context(), s.store, s.owner, list)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(
					fmt.Sprintf("Imported %d rules (%d created, %d updated)", created+updated, created, updated)))
				return nil
			})
		},
	}
}

// decodeRules reads a rules file, defaulting rules that omit is_active to active.
func decodeRules(path string) ([]model.Rule, error) {
	var list []model.Rule
	if err := decodeFile(path, &list); err != nil {
		return nil, err
	}

	var flags []struct {
		IsActive *bool `json:"is_active" yaml:"is_active"`
	}
	if err := decodeFile(path, &flags); err != nil {
		return nil, err
	}
	for i := range list {
		if i < len(flags) && flags[i].IsActive == nil {
			list[i].IsActive = true
		}
	}
	return list, nil
}

func importRules(ctx context.Context, store service.RuleStore, owner string, list []model.Rule) (created, updated int, err error) {
	for i := range list {
		rule := list[i]
		rule.OwnerID = owner

		if rule.ID != "" {
			if _, getErr := store.GetRule(ctx, owner, rule.ID); getErr == nil {
				if err := store.UpdateRule(ctx, &rule); err != nil {
					return created, updated, fmt.Errorf("rule %d (%s): %w", i+1, rule.Name, err)
				}
				updated++
				continue
			} else if !errors.Is(getErr, common.ErrNotFound) {
				return created, updated, getErr
			}
		}

		if err := store.CreateRule(ctx, &rule); err != nil {
			return created, updated, fmt.Errorf("rule %d (%s): %w", i+1, rule.Name, err)
		}
		created++
	}
	return created, updated, nil
}

func rulesExportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export rules as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(s session) error {
				list, err := s.store.ListRules(cmd.Context(), s.owner, false)
				if err != nil {
					return err
				}

				var w io.Writer = cmd.OutOrStdout()
				if output != "" {
					f, err := os.Create(output)
					if err != nil {
						return fmt.Errorf("failed to create %s: %w", output, err)
					}
					defer func() { _ = f.Close() }()
					w = f
				}

				enc := yaml.NewEncoder(w)
				enc.SetIndent(2)
				if err := enc.Encode(list); err != nil {
					return fmt.Errorf("failed to encode rules: %w", err)
				}
				if err := enc.Close(); err != nil {
					return fmt.Errorf("failed to encode rules: %w", err)
				}

				if output != "" {
					slog.Info("Exported rules", "count", len(list), "file", output)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func rulesTestCmd() *cobra.Command {
	var (
		item   lineItemFlags
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "test <id>",
		Short: "Score one line item against one rule",
		Long: `Score a line item against a single rule, whether or not the rule is active,
and show which conditions matched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			li, err := item.lineItem(cmd)
			if err != nil {
				return err
			}

			return withSession(cmd, func(s session) error {
				rule, err := s.store.GetRule(cmd.Context(), s.owner, args[0])
				if err != nil {
					return ruleLookupError(args[0], err)
				}

				match := testRule(*rule, li, s.cfg.Rules.Thresholds())
				if asJSON {
					return writeJSON(cmd, match)
				}
				if match.Score == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning(fmt.Sprintf("Rule %q does not match", rule.Name)))
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), cli.RenderMatches([]model.RuleMatch{match}))
				return nil
			})
		},
	}

	item.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}

// testRule scores item against rule as if the rule were active.
func testRule(rule model.Rule, item model.LineItem, thresholds rules.Thresholds) model.RuleMatch {
	rule.IsActive = true
	return rules.NewScorer([]model.Rule{rule}, thresholds).Score(item)[0]
}

func ruleLookupError(id string, err error) error {
	if errors.Is(err, common.ErrNotFound) {
		return common.NewUserError(fmt.Sprintf("rule %s not found", id), err)
	}
	return err
}
