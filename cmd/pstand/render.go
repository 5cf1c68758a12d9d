// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/dunhampa/poststand-core/internal/runlog"
	"github.com/dunhampa/poststand-core/pkg/plan"
)

// renderPlanPreview prints the steps a run would visit. Steps outside the
// allow list are marked as bypassed, and allowed steps that nothing orders
// are listed after.
func renderPlanPreview(w io.Writer, name string, p *plan.Plan) {
	fmt.Fprintf(w, "%s\n\n", TitleStyle.Render(fmt.Sprintf("Collection execution plan for '%s':", name)))
	fmt.Fprintln(w, SubtitleStyle.Render("Steps from collection_order:"))
	for _, step := range p.Order() {
		if p.IsAllowed(step) {
			fmt.Fprintf(w, "  - %s\n", CmdStyle.Render(step.String()))
			continue
		}
		fmt.Fprintf(w, "  - %s %s\n", step, WarningStyle.Render("(BYPASSED, not in allowed_scripts)"))
	}
	fmt.Fprintln(w)

	if unordered := p.Unordered(); len(unordered) > 0 {
		names := make([]string, len(unordered))
		for i, s := range unordered {
			names[i] = s.String()
		}
		fmt.Fprintln(w, SubtitleStyle.Render("Allowed steps not in collection_order:"))
		fmt.Fprintf(w, "  %s\n\n", strings.Join(names, ", "))
	}
}

// renderRunLog prints entries as a table.
func renderRunLog(w io.Writer, entries []runlog.Entry) {
	rows := make([][]string, len(entries))
	for i, e := range entries {
		duration := "-"
		if e.Status.IsTerminal() {
			duration = (time.Duration(e.DurationMs) * time.Millisecond).String()
		}
		rows[i] = []string{strconv.Itoa(i + 1), e.Step, string(e.Status), duration}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorMuted)).
		Headers("#", "STEP", "STATUS", "DURATION").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			if col == 2 && row >= 0 && row < len(entries) {
				return statusStyle(entries[row].Status)
			}
			return tableCellStyle
		})
	fmt.Fprintln(w, t.Render())
}

func statusStyle(s runlog.Status) lipgloss.Style {
	switch s {
	case runlog.StatusDone:
		return tableCellStyle.Foreground(ColorSuccess)
	case runlog.StatusError:
		return tableCellStyle.Foreground(ColorError)
	case runlog.StatusSkipped:
		return tableCellStyle.Foreground(ColorWarning)
	default:
		return tableCellStyle.Foreground(ColorHighlight)
	}
}

// confirm asks a yes/no question on w and reads the answer from r. An empty
// answer accepts.
func confirm(w io.Writer, r io.Reader, question string) (bool, error) {
	fmt.Fprintf(w, "%s %s ", question, SubtitleStyle.Render("[Y/n]"))
	line, err := bufio.NewReader(r).ReadString('\n')
	switch {
	case errors.Is(err, io.EOF) && line == "":
		return false, nil
	case err != nil && !errors.Is(err, io.EOF):
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "", "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
