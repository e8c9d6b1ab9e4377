// Package presentation renders command results as tables or JSON.
package presentation

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/zjrosen/assetcache/internal/asset"
	"github.com/zjrosen/assetcache/internal/pipeline"
	"github.com/zjrosen/assetcache/internal/scan"
)

// Formatter handles output formatting
type Formatter struct {
	writer io.Writer
	json   bool
}

// NewFormatter creates a new formatter. With jsonOutput every result is
// written as indented JSON instead of a table.
func NewFormatter(writer io.Writer, jsonOutput bool) *Formatter {
	return &Formatter{
		writer: writer,
		json:   jsonOutput,
	}
}

// FormatJSON writes v as indented JSON regardless of mode.
func (f *Formatter) FormatJSON(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// FormatItems writes the item listing.
func (f *Formatter) FormatItems(items []ItemDTO) error {
	if f.json {
		return f.FormatJSON(items)
	}
	if len(items) == 0 {
		return f.println(subtleStyle.Render("no items"))
	}
	rows := make([][]string, len(items))
	for i, it := range items {
		gen := ""
		if it.Generation > 0 {
			gen = strconv.FormatUint(it.Generation, 10)
		}
		msgs := ""
		if it.Messages > 0 {
			msgs = strconv.Itoa(it.Messages)
		}
		rows[i] = []string{it.ID.Short(), it.Path, it.Kind, string(it.State), gen, msgs}
	}
	t := newTable("ID", "PATH", "KIND", "STATE", "GEN", "MSGS").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Inherit(cellStyle)
			}
			switch col {
			case 3:
				return stateStyle(items[row].State).Inherit(cellStyle)
			case 5:
				return errorStyle.Inherit(cellStyle)
			}
			return cellStyle
		})
	return f.println(t.String())
}

// FormatItem writes a single item followed by its messages.
func (f *Formatter) FormatItem(item ItemDTO, messages []asset.Message) error {
	if f.json {
		return f.FormatJSON(struct {
			ItemDTO
			Messages []asset.Message `json:"messages"`
		}{item, messages})
	}
	var b strings.Builder
	field := func(name, value string) {
		fmt.Fprintf(&b, "%s %s\n", headerStyle.Render(fmt.Sprintf("%-11s", name+":")), value)
	}
	field("id", string(item.ID))
	field("path", item.Path)
	field("kind", item.Kind)
	field("state", stateStyle(item.State).Render(string(item.State)))
	if item.Generation > 0 {
		field("generation", strconv.FormatUint(item.Generation, 10))
	}
	for _, m := range messages {
		b.WriteString(messageLine(m))
		b.WriteByte('\n')
	}
	_, err := io.WriteString(f.writer, b.String())
	return err
}

// FormatMessages writes messages one per line, compiler style.
func (f *Formatter) FormatMessages(messages []asset.Message) error {
	if f.json {
		if messages == nil {
			messages = []asset.Message{}
		}
		return f.FormatJSON(messages)
	}
	if len(messages) == 0 {
		return f.println(subtleStyle.Render("no messages"))
	}
	lines := make([]string, len(messages))
	for i, m := range messages {
		lines[i] = messageLine(m)
	}
	return f.println(strings.Join(lines, "\n"))
}

func messageLine(m asset.Message) string {
	pos := m.Path
	if loc := m.Location.String(); loc != "" {
		pos += ":" + loc
	}
	text := m.Text
	if m.Context != "" {
		text = "(" + m.Context + ") " + text
	}
	return fmt.Sprintf("%s: %s: %s", pos, severityStyle(m.Severity).Render(string(m.Severity)), text)
}

// FormatKinds writes the registered kinds.
func (f *Formatter) FormatKinds(kinds []KindDTO) error {
	if f.json {
		return f.FormatJSON(kinds)
	}
	rows := make([][]string, len(kinds))
	for i, k := range kinds {
		rows[i] = []string{"." + k.Extension, k.Description}
	}
	return f.println(newTable("EXTENSION", "DESCRIPTION").Rows(rows...).String())
}

// FormatReport writes the outcome of a scan pass.
func (f *Formatter) FormatReport(rep scan.Report) error {
	if f.json {
		return f.FormatJSON(rep)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s loaded, %s skipped, %s failed\n",
		loadedStyle.Render(strconv.Itoa(len(rep.Loaded))),
		subtleStyle.Render(strconv.Itoa(len(rep.Skipped))),
		errorStyle.Render(strconv.Itoa(len(rep.Failures))))
	for _, fl := range rep.Failures {
		fmt.Fprintf(&b, "  %s %s: %s\n", errorStyle.Render("✗"), fl.Path, fl.Err)
	}
	_, err := io.WriteString(f.writer, b.String())
	return err
}

// FormatDiff writes a line diff between the source on disk and the
// artifact's unprocessed text.
func (f *Formatter) FormatDiff(res pipeline.DiffResult) error {
	if f.json {
		return f.FormatJSON(res)
	}
	if !res.RequiresCommit {
		return f.println(subtleStyle.Render(res.Path + ": no uncommitted changes"))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n",
		deleteStyle.Render("--- "+res.Path+" (source)"),
		insertStyle.Render("+++ "+res.Path+" (artifact)"))
	for _, l := range res.Lines {
		line := string(l.Op) + l.Text
		switch l.Op {
		case pipeline.DiffInsert:
			line = insertStyle.Render(line)
		case pipeline.DiffDelete:
			line = deleteStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "%s\n", subtleStyle.Render(fmt.Sprintf("%d added, %d removed", res.Added, res.Removed)))
	_, err := io.WriteString(f.writer, b.String())
	return err
}

func (f *Formatter) println(s string) error {
	_, err := fmt.Fprintln(f.writer, s)
	return err
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Inherit(cellStyle)
			}
			return cellStyle
		})
}
