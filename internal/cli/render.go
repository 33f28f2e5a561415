package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/Veraticus/glrules/internal/model"
)

// RenderEvaluation renders the final suggestion of an evaluation followed by
// the ranked rule matches.
func RenderEvaluation(result model.EvaluationResult) string {
	var b strings.Builder

	final := result.FinalSuggestion
	switch final.Source {
	case model.SourceManual:
		b.WriteString(FormatWarning("No suggestion: manual coding required"))
	case model.SourceAI:
		b.WriteString(FormatInfo(fmt.Sprintf("%s AI suggests %s (%s)",
			RobotIcon, BoldStyle.Render(final.GLCode), formatConfidence(final.Confidence))))
		if result.AISuggestion != nil && result.AISuggestion.Reason != "" {
			b.WriteString("\n  " + SubtleStyle.Render(result.AISuggestion.Reason))
		}
	default:
		line := fmt.Sprintf("Rule suggests %s (%s)", BoldStyle.Render(final.GLCode), formatConfidence(final.Confidence))
		if final.AutoApplied {
			b.WriteString(FormatSuccess(line + ", auto-applied"))
		} else {
			b.WriteString(FormatInfo(line + ", needs review"))
		}
	}
	b.WriteString("\n")

	if len(result.Matches) == 0 {
		b.WriteString(SubtleStyle.Render("No rules matched"))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString("\n")
	b.WriteString(RenderMatches(result.Matches))
	return b.String()
}

// RenderMatches renders ranked rule matches as a table.
func RenderMatches(matches []model.RuleMatch) string {
	rows := make([][]string, 0, len(matches))
	for i, m := range matches {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			m.Rule.Name,
			m.Rule.Action.GLCode,
			strconv.Itoa(m.Score),
			formatClauses(m.MatchedConditions),
			matchFlags(m),
		})
	}
	return renderTable([]string{"#", "RULE", "GL CODE", "SCORE", "MATCHED", "FLAGS"}, rows)
}

// RenderRules renders rules as a table in evaluation order.
func RenderRules(rules []model.Rule) string {
	rows := make([][]string, 0, len(rules))
	for _, r := range rules {
		status := SuccessStyle.Render("active")
		if !r.IsActive {
			status = SubtleStyle.Render("inactive")
		}
		rows = append(rows, []string{
			r.ID,
			r.Name,
			r.Action.GLCode,
			strconv.Itoa(r.Priority),
			status,
		})
	}
	return renderTable([]string{"ID", "NAME", "GL CODE", "PRIORITY", "STATUS"}, rows)
}

// RenderRule renders the full detail of one rule.
func RenderRule(rule model.Rule) string {
	var lines []string
	add := func(label, value string) {
		if value != "" {
			lines = append(lines, fmt.Sprintf("%s %s", BoldStyle.Render(label+":"), value))
		}
	}

	add("ID", rule.ID)
	add("GL code", rule.Action.GLCode)
	add("Description", rule.Description)
	add("Priority", strconv.Itoa(rule.Priority))
	add("Active", strconv.FormatBool(rule.IsActive))

	c := rule.Conditions
	add("Vendors", strings.Join(c.VendorPatterns, ", "))
	add("Keywords", strings.Join(c.Keywords, ", "))
	add("Exact descriptions", strings.Join(c.ExactDescriptions, ", "))
	add("Excluding", strings.Join(c.ExcludeKeywords, ", "))
	if c.AmountRange.IsSet() {
		add("Amount", formatBounds(floatBound(c.AmountRange.Min), floatBound(c.AmountRange.Max)))
	}
	if c.DateRange.IsSet() {
		add("Date", formatBounds(dateBound(c.DateRange.Start), dateBound(c.DateRange.End)))
	}

	a := rule.Action
	add("Auto assign", fmt.Sprintf("%t (threshold %s)", a.AutoAssign, formatConfidence(a.ConfidenceThreshold)))
	if a.RequiresApproval {
		add("Requires approval", "true")
	}
	if a.OverrideAI {
		add("Overrides AI", "true")
	}

	return RenderBox(rule.Name, strings.Join(lines, "\n"))
}

// RenderPatterns renders repeated corrections.
func RenderPatterns(patterns []model.CorrectionPattern) string {
	rows := make([][]string, 0, len(patterns))
	for _, p := range patterns {
		rows = append(rows, []string{
			p.VendorName,
			p.CorrectedGLCode,
			strconv.Itoa(p.Occurrences),
			p.LastSeen.Format("2006-01-02"),
		})
	}
	return renderTable([]string{"VENDOR", "GL CODE", "OCCURRENCES", "LAST SEEN"}, rows)
}

func renderTable(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(SubtleStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle.PaddingRight(2)
			}
			return TableCellStyle
		})
	return t.Render() + "\n"
}

func formatConfidence(c float64) string {
	return fmt.Sprintf("%.0f%%", c*100)
}

func formatClauses(clauses []model.Clause) string {
	names := make([]string, len(clauses))
	for i, c := range clauses {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

func matchFlags(m model.RuleMatch) string {
	var flags []string
	if m.ShouldAutoApply {
		flags = append(flags, "auto")
	}
	if m.RequiresApproval {
		flags = append(flags, "approval")
	}
	if m.Rule.Action.OverrideAI {
		flags = append(flags, "override-ai")
	}
	return strings.Join(flags, " ")
}

func floatBound(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func dateBound(d *model.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func formatBounds(lower, upper string) string {
	switch {
	case lower == "":
		return "up to " + upper
	case upper == "":
		return lower + " or more"
	default:
		return lower + " to " + upper
	}
}
