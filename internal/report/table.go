package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"

	"dashcheck/internal/ledger"
)

// IsTerminal reports whether w is a terminal that can show colours.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// RenderTable writes one table row per finding followed by a per-tenant
// summary line.
func RenderTable(w io.Writer, set *ledger.Set, opts Options) error {
	var buf strings.Builder

	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Tenant", "Entity", "Check", "Kind", "Message"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, l := range set.Ledgers() {
		for _, rec := range l.Records() {
			for _, f := range rec.Findings {
				if !opts.keep(f.Kind) {
					continue
				}
				table.Append([]string{
					l.Tenant(),
					rec.Entity,
					f.Key,
					kindLabel(f.Kind, opts.Color),
					strings.TrimPrefix(f.Message, f.Kind.String()+": "),
				})
			}
		}
	}
	table.Render()

	for _, s := range Summary(set) {
		status := kindLabel(ledger.KindFailure, opts.Color)
		if s.Failures == 0 {
			status = paint(color.FgGreen, "PASSED", opts.Color)
		}
		fmt.Fprintf(&buf, "\n%s %s: %d failure(s), %d warning(s), %d not checked",
			status, s.Tenant, s.Failures, s.Warnings, s.NotChecked)
	}
	buf.WriteString("\n")

	_, err := io.WriteString(w, buf.String())
	return err
}

func kindLabel(kind ledger.Kind, enabled bool) string {
	switch kind {
	case ledger.KindFailure:
		return paint(color.FgRed, kind.String(), enabled)
	case ledger.KindWarning:
		return paint(color.FgYellow, kind.String(), enabled)
	default:
		return paint(color.FgCyan, kind.String(), enabled)
	}
}

func paint(attr color.Attribute, text string, enabled bool) string {
	if !enabled {
		return text
	}
	c := color.New(attr, color.Bold)
	c.EnableColor()
	return c.Sprint(text)
}
