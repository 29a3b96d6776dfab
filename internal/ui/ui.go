// Package ui renders CLI output: status lines, tables, markdown and diffs.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/pterm/pterm"
)

var (
	PrimaryColor   = lipgloss.Color("#00D9FF")
	SuccessColor   = lipgloss.Color("#00FF88")
	WarningColor   = lipgloss.Color("#FFB800")
	ErrorColor     = lipgloss.Color("#FF4444")
	SecondaryColor = lipgloss.Color("#6C757D")

	TitleStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(SuccessColor).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true)

	SecondaryStyle = lipgloss.NewStyle().
			Foreground(SecondaryColor)
)

// Printer writes styled output. Errors go to Err.
type Printer struct {
	Out io.Writer
	Err io.Writer
}

// New returns a printer writing to out and errOut.
func New(out, errOut io.Writer) *Printer {
	return &Printer{Out: out, Err: errOut}
}

func width() int {
	if w := pterm.GetTerminalWidth(); w > 0 && w < 120 {
		return w
	}
	return 80
}

// Header prints a boxed title.
func (p *Printer) Header(title, subtitle string) {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Padding(0, 2).
		Render(lipgloss.JoinVertical(lipgloss.Left,
			TitleStyle.Render(title),
			SecondaryStyle.Render(subtitle),
		))
	fmt.Fprintln(p.Out, box)
}

func (p *Printer) Success(format string, args ...any) {
	fmt.Fprintln(p.Out, SuccessStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

func (p *Printer) Error(format string, args ...any) {
	fmt.Fprintln(p.Err, ErrorStyle.Render("✗ "+fmt.Sprintf(format, args...)))
}

func (p *Printer) Warning(format string, args ...any) {
	fmt.Fprintln(p.Out, WarningStyle.Render("⚠ "+fmt.Sprintf(format, args...)))
}

func (p *Printer) Info(format string, args ...any) {
	fmt.Fprintln(p.Out, "ℹ "+fmt.Sprintf(format, args...))
}

// Step prints a [step/total] progress line.
func (p *Printer) Step(step, total int, message string) {
	fmt.Fprintf(p.Out, "%s %s\n", SecondaryStyle.Render(fmt.Sprintf("[%d/%d]", step, total)), message)
}

// Section prints an underlined section title.
func (p *Printer) Section(title string) {
	fmt.Fprintln(p.Out, lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(SecondaryColor).
		Render(title))
}

// List prints a bulleted list.
func (p *Printer) List(items []string) {
	for _, item := range items {
		fmt.Fprintf(p.Out, "  • %s\n", item)
	}
}

// Problems prints one red line per problem to Err.
func (p *Printer) Problems(problems []string) {
	red := color.New(color.FgRed)
	for _, problem := range problems {
		red.Fprintf(p.Err, "  - %s\n", problem)
	}
}

// Table prints rows under headers.
func (p *Printer) Table(headers []string, rows [][]string) error {
	data := pterm.TableData{headers}
	data = append(data, rows...)
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(p.Out, out)
	return nil
}

// Markdown renders content with glamour, picking a style for the terminal.
func (p *Printer) Markdown(content string) error {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width()),
	)
	if err != nil {
		return err
	}
	out, err := r.Render(content)
	if err != nil {
		return err
	}
	fmt.Fprint(p.Out, out)
	return nil
}

// Diff prints a line-by-line diff of old and new.
func (p *Printer) Diff(old, new string) {
	minus := color.New(color.FgRed)
	plus := color.New(color.FgGreen)
	oldLines := strings.Split(old, "\n")
	newLines := strings.Split(new, "\n")
	for i := 0; i < len(oldLines) || i < len(newLines); i++ {
		switch {
		case i < len(oldLines) && i < len(newLines) && oldLines[i] == newLines[i]:
			fmt.Fprintln(p.Out, "  "+oldLines[i])
		case i < len(oldLines) && i < len(newLines):
			minus.Fprintln(p.Out, "- "+oldLines[i])
			plus.Fprintln(p.Out, "+ "+newLines[i])
		case i < len(oldLines):
			minus.Fprintln(p.Out, "- "+oldLines[i])
		default:
			plus.Fprintln(p.Out, "+ "+newLines[i])
		}
	}
}
