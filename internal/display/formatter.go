// Package display renders query results, symbols and build reports for terminals
package display

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/standardbeagle/xref/internal/indexing"
	"github.com/standardbeagle/xref/internal/ledger"
	"github.com/standardbeagle/xref/internal/search"
	"github.com/standardbeagle/xref/internal/types"
)

// FormatterOptions controls result formatting
type FormatterOptions struct {
	ShowKinds   bool   // Annotate snippet lines with their occurrence kinds
	ShowSymbols bool   // Annotate snippet lines with the matched symbol names
	ShowColumns bool   // Print line:column instead of the line only
	Indent      string // Indentation string
}

// ResultFormatter formats query responses for display
type ResultFormatter struct {
	options FormatterOptions
}

// NewResultFormatter creates a new result formatter
func NewResultFormatter(options FormatterOptions) *ResultFormatter {
	if options.Indent == "" {
		options.Indent = "  "
	}
	return &ResultFormatter{options: options}
}

// Format renders a response: the summary line, then every section heading
// followed by its files and snippet lines
func (f *ResultFormatter) Format(resp *search.Response) string {
	var b strings.Builder
	b.WriteString(resp.Summary())
	b.WriteByte('\n')

	if resp.Empty() {
		if len(resp.Suggestions) > 0 {
			fmt.Fprintf(&b, "Did you mean: %s\n", strings.Join(resp.Suggestions, ", "))
		}
		return b.String()
	}

	for _, section := range resp.Sections {
		b.WriteByte('\n')
		b.WriteString(section.String())
		b.WriteByte('\n')
		for _, g := range resp.Groups {
			if g.PathKind == section.Kind {
				f.formatGroup(&b, g)
			}
		}
	}

	if resp.Truncated {
		fmt.Fprintf(&b, "\n(showing %d of %d files)\n", len(resp.Groups), resp.TotalFiles)
	}
	if resp.Degraded > 0 {
		fmt.Fprintf(&b, "\nwarning: %d files were not analyzed in this version\n", resp.Degraded)
	}
	return b.String()
}

func (f *ResultFormatter) formatGroup(b *strings.Builder, g types.ResultGroup) {
	indent := f.options.Indent
	fmt.Fprintf(b, "%s%s (%d)\n", indent, g.Path, g.MatchedLineCount)

	width := 1
	for _, s := range g.Snippets {
		width = max(width, len(f.position(s)))
	}
	for _, s := range g.Snippets {
		fmt.Fprintf(b, "%s%s%*s  %s", indent, indent, width, f.position(s), strings.TrimRight(s.Text, " \t\r"))
		var notes []string
		if f.options.ShowSymbols && len(s.Symbols) > 0 {
			notes = append(notes, strings.Join(s.Symbols, ","))
		}
		if f.options.ShowKinds && len(s.Kinds) > 0 {
			notes = append(notes, strings.Join(s.Kinds, ","))
		}
		if len(notes) > 0 {
			fmt.Fprintf(b, "  [%s]", strings.Join(notes, " "))
		}
		b.WriteByte('\n')
	}
	if g.Truncated {
		fmt.Fprintf(b, "%s%s... %d more lines\n", indent, indent, g.MatchedLineCount-len(g.Snippets))
	}
}

func (f *ResultFormatter) position(s types.SnippetLine) string {
	if f.options.ShowColumns {
		return fmt.Sprintf("%d:%d", s.Line, s.Column)
	}
	return fmt.Sprint(s.Line)
}

// FormatSymbols lists symbols with every location
func (f *ResultFormatter) FormatSymbols(symbols []search.SymbolInfo) string {
	var b strings.Builder
	for i, sym := range symbols {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s (%s): %d occurrences in %d files\n", sym.Name, sym.Raw, len(sym.Locations), sym.Files)
		for _, loc := range sym.Locations {
			fmt.Fprintf(&b, "%s%s:%d:%d %s\n", f.options.Indent, loc.Path, loc.Line, loc.Column, loc.Kind)
		}
	}
	return b.String()
}

// WriteReport prints a build report
func WriteReport(w io.Writer, r *indexing.BuildReport) {
	fmt.Fprintf(w, "Build %s (%s): %s in %v\n", r.BuildID, r.Kind, r.Status, r.Duration.Round(time.Millisecond))
	if r.Version > 0 {
		fmt.Fprintf(w, "  version:     %d\n", r.Version)
	}
	fmt.Fprintf(w, "  files:       %d", r.Files)
	if r.Removed > 0 {
		fmt.Fprintf(w, " (%d removed)", r.Removed)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  shards:      %d (%d failed, halt limit %d)\n", len(r.Shards), r.Failed, r.HaltLimit)
	fmt.Fprintf(w, "  records:     %d (%d occurrences, %d malformed)\n", r.Records, r.Occurrences, r.Malformed)
	if len(r.Degraded) > 0 {
		fmt.Fprintf(w, "  degraded:    %d files\n", len(r.Degraded))
		for _, p := range r.Degraded {
			fmt.Fprintf(w, "    %s\n", p)
		}
	}
	for _, s := range r.Shards {
		if s.Error != "" {
			fmt.Fprintf(w, "  shard %d/%d: %s\n", s.Shard.Index, s.Shard.Count, s.Error)
		}
	}
	if r.PersistError != "" {
		fmt.Fprintf(w, "  persist:     %s\n", r.PersistError)
	}
}

// WriteHistory prints recorded builds as a table, newest first
func WriteHistory(w io.Writer, entries []ledger.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BUILD\tKIND\tSTATUS\tVERSION\tSTARTED\tDURATION\tFILES\tFAILED\tDEGRADED")
	for _, e := range entries {
		version := "-"
		if e.Version > 0 {
			version = fmt.Sprint(e.Version)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%v\t%d\t%d/%d\t%d\n",
			e.BuildID, e.Kind, e.Status, version,
			e.StartedAt.Local().Format(time.DateTime), e.Duration.Round(time.Millisecond),
			e.Files, e.Failed, e.HaltLimit, len(e.Degraded))
	}
	return tw.Flush()
}
