package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/glrules/internal/cli"
	"github.com/Veraticus/glrules/internal/common"
	"github.com/Veraticus/glrules/internal/model"
	"github.com/Veraticus/glrules/internal/rules"
	"github.com/Veraticus/glrules/internal/service"
)

func evaluateCmd() *cobra.Command {
	var (
		item       lineItemFlags
		aiCode     string
		aiReason   string
		documentID string
		aiConf     float64
		index      int
		record     bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Suggest a GL code for one line item",
		Long: `Evaluate a line item against the owner's active rules and print the
ranked matches and the final GL code suggestion.

An AI suggestion can be supplied with --ai-code; otherwise the configured
suggester is consulted when no rule is decisive.`,
		Example: `  glrules evaluate --owner acme --vendor "Staples" --amount 42.10 --description "printer paper"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			li, err := item.lineItem(cmd)
			if err != nil {
				return err
			}

			var ai *model.AISuggestion
			if aiCode != "" {
				ai = &model.AISuggestion{GLCode: aiCode, Confidence: aiConf, Reason: aiReason}
			}

			return withSession(cmd, func(s session) error {
				evaluator, err := newCLIEvaluator(s)
				if err != nil {
					return err
				}

				result, err := evaluator.Evaluate(cmd.Context(), s.owner, li, ai)
				if err != nil {
					return err
				}

				if record {
					if _, err := recordApplication(cmd.Context(), s.store, s.owner, documentID, index, result); err != nil {
						return err
					}
				}

				if asJSON {
					return writeJSON(cmd, result)
				}
				fmt.Fprint(cmd.OutOrStdout(), cli.RenderEvaluation(result))
				return nil
			})
		},
	}

	item.register(cmd)
	cmd.Flags().StringVar(&aiCode, "ai-code", "", "GL code proposed by an AI model")
	cmd.Flags().Float64Var(&aiConf, "ai-confidence", 0, "confidence of the AI proposal (0-1)")
	cmd.Flags().StringVar(&aiReason, "ai-reason", "", "reason given for the AI proposal")
	cmd.Flags().StringVar(&documentID, "document", "", "document the line item belongs to")
	cmd.Flags().IntVar(&index, "index", 0, "position of the line item in the document")
	cmd.Flags().BoolVar(&record, "record", false, "record the suggestion in the audit trail")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")

	cmd.AddCommand(evaluateBatchCmd())
	return cmd
}

func newCLIEvaluator(s session) (*rules.Evaluator, error) {
	opts, err := evaluatorOptions(s.cfg, nil)
	if err != nil {
		return nil, common.NewUserError("failed to configure AI suggester", err)
	}
	return rules.NewEvaluator(s.store, opts...), nil
}

func recordApplication(ctx context.Context, store service.AuditStore, owner, documentID string, index int, result model.EvaluationResult) (int64, error) {
	app := model.NewApplication(owner, documentID, index, result)
	if err := store.RecordApplication(ctx, &app); err != nil {
		return 0, fmt.Errorf("failed to record application: %w", err)
	}
	return app.ID, nil
}

// batchItem is one entry of a batch file.
type batchItem struct {
	model.LineItem `yaml:",inline"`

	AISuggestion  *model.AISuggestion `json:"ai_suggestion,omitempty" yaml:"ai_suggestion,omitempty"`
	LineItemIndex *int                `json:"line_item_index,omitempty" yaml:"line_item_index,omitempty"`
	DocumentID    string              `json:"document_id,omitempty" yaml:"document_id,omitempty"`
}

// batchResult is the outcome of one batch entry.
type batchResult struct {
	Result        *model.EvaluationResult `json:"result,omitempty"`
	ApplicationID int64                   `json:"application_id,omitempty"`
	Error         string                  `json:"error,omitempty"`
	DocumentID    string                  `json:"document_id,omitempty"`
	Index         int                     `json:"index"`
}

// batchSummary counts batch outcomes by final suggestion.
type batchSummary struct {
	Total       int
	Rule        int
	AI          int
	Manual      int
	AutoApplied int
	Failed      int
	Recorded    int
}

func (s *batchSummary) add(r batchResult) {
	s.Total++
	switch {
	case r.Error != "":
		s.Failed++
		return
	case r.ApplicationID != 0:
		s.Recorded++
	}
	switch r.Result.FinalSuggestion.Source {
	case model.SourceRule:
		s.Rule++
	case model.SourceAI:
		s.AI++
	default:
		s.Manual++
	}
	if r.Result.FinalSuggestion.AutoApplied {
		s.AutoApplied++
	}
}

func (s batchSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "  • Line items: %d\n", s.Total)
	fmt.Fprintf(&b, "  • Rule suggestions: %d (%d auto-applied)\n", s.Rule, s.AutoApplied)
	fmt.Fprintf(&b, "  • AI suggestions: %d\n", s.AI)
	fmt.Fprintf(&b, "  • Manual coding required: %d\n", s.Manual)
	if s.Recorded > 0 {
		fmt.Fprintf(&b, "  • Recorded applications: %d\n", s.Recorded)
	}
	if s.Failed > 0 {
		fmt.Fprintf(&b, "  • Failed: %d\n", s.Failed)
	}
	return strings.TrimRight(b.String(), "\n")
}

func evaluateBatchCmd() *cobra.Command {
	var (
		record     bool
		asJSON     bool
		noProgress bool
	)

	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Evaluate a YAML or JSON list of line items",
		Long: `Evaluate every line item in a file. Items that fail validation are reported
and skipped; the remaining items are still evaluated.

Each entry accepts description, vendor_name, amount, date, and optionally
document_id, line_item_index and ai_suggestion.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var items []batchItem
			if err := decodeFile(args[0], &items); err != nil {
				return common.NewUserError("failed to read batch file", err)
			}

			return withSession(cmd, func(s session) error {
				evaluator, err := newCLIEvaluator(s)
				if err != nil {
					return err
				}

				var progress func()
				if !asJSON && !noProgress {
					bar := cli.NewProgressBar(cmd.ErrOrStderr(), len(items), "Evaluating line items...")
					progress = func() {
						if err := bar.Add(1); err != nil {
							slog.Warn("Failed to update progress bar", "error", err)
						}
					}
				}

				results, summary, err := runBatch(cmd.Context(), evaluator, s.store, s.owner, items, record, progress)
				if err != nil {
					return err
				}

				if asJSON {
					return writeJSON(cmd, results)
				}
				for _, r := range results {
					if r.Error != "" {
						fmt.Fprintln(cmd.OutOrStdout(), cli.FormatError(fmt.Sprintf("item %d: %s", r.Index, r.Error)))
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBox("Batch evaluation complete", summary.String()))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&record, "record", false, "record each suggestion in the audit trail")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output per-item results as JSON")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "hide the progress bar")
	return cmd
}

// runBatch evaluates items in order. Per-item validation failures are
// reported in the results; store failures abort the batch.
func runBatch(ctx context.Context, evaluator *rules.Evaluator, store service.AuditStore, owner string,
	items []batchItem, record bool, progress func(),
) ([]batchResult, batchSummary, error) {
	results := make([]batchResult, 0, len(items))
	var summary batchSummary

	for i, it := range items {
		if err := ctx.Err(); err != nil {
			return results, summary, err
		}

		index := i
		if it.LineItemIndex != nil {
			index = *it.LineItemIndex
		}
		r := batchResult{Index: index, DocumentID: it.DocumentID}

		result, err := evaluator.Evaluate(ctx, owner, it.LineItem, it.AISuggestion)
		switch {
		case err == nil:
			r.Result = &result
		case isItemError(err):
			r.Error = err.Error()
		default:
			return results, summary, err
		}

		if record && r.Result != nil {
			id, err := recordApplication(ctx, store, owner, it.DocumentID, index, result)
			if err != nil {
				return results, summary, err
			}
			r.ApplicationID = id
		}

		results = append(results, r)
		summary.add(r)
		if progress != nil {
			progress()
		}
	}

	return results, summary, nil
}

func isItemError(err error) bool {
	return errors.Is(err, model.ErrInvalidLineItem)
}
