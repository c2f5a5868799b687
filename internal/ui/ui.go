package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// Logger is the package-level structured logger. It writes to stderr so
// stdout stays reserved for JSON results.
var Logger = log.NewWithOptions(os.Stderr, log.Options{Level: log.WarnLevel})

// Messages is where status lines go. Tests swap it for a buffer.
var Messages io.Writer = os.Stderr

var (
	titleStyle    lipgloss.Style
	okStyle       lipgloss.Style
	warnStyle     lipgloss.Style
	failStyle     lipgloss.Style
	mutedStyle    lipgloss.Style
	strongStyle   lipgloss.Style
	branchStyle   lipgloss.Style
	frameStyle    lipgloss.Style
	colorDisabled bool
)

// Interactive reports whether stdin and stderr are both terminals.
func Interactive() bool {
	return isTerminal(os.Stdin) && isTerminal(os.Stderr)
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Init configures colors and rebuilds the logger, keeping its level. Color
// is off when noColor is set, when NO_COLOR is set, or when stderr is not a
// terminal.
func Init(noColor bool) {
	colorDisabled = noColor || os.Getenv("NO_COLOR") != "" || !isTerminal(os.Stderr)

	// Skips the background-color query termenv would otherwise send.
	lipgloss.SetHasDarkBackground(true)
	profile := termenv.Ascii
	if !colorDisabled {
		profile = termenv.NewOutput(os.Stderr).Profile
	}
	lipgloss.SetColorProfile(profile)

	fg := func(c string) lipgloss.Style {
		return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(c))
	}
	titleStyle = fg("12")
	okStyle = fg("10")
	warnStyle = fg("11")
	failStyle = fg("9")
	branchStyle = fg("13")
	mutedStyle = lipgloss.NewStyle().Faint(true)
	strongStyle = lipgloss.NewStyle().Bold(true)
	frameStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("63")).
		Padding(0, 1)

	Logger = log.NewWithOptions(os.Stderr, log.Options{Level: Logger.GetLevel()})
	if colorDisabled {
		Logger.SetColorProfile(termenv.Ascii)
	}
}

// SetLevel sets the logger level by name (debug, info, warn, error).
func SetLevel(name string) error {
	level, err := log.ParseLevel(name)
	if err != nil {
		return err
	}
	Logger.SetLevel(level)
	return nil
}

func Red(s string) string    { return failStyle.Render(s) }
func Yellow(s string) string { return warnStyle.Render(s) }
func Accent(s string) string { return branchStyle.Render(s) }

func status(mark string, style lipgloss.Style, msg string) {
	fmt.Fprintf(Messages, "%s %s\n", style.Render(mark), msg)
}

func Warning(msg string) { status("!", warnStyle, msg) }
func Error(msg string)   { status("✗", failStyle, msg) }
func Success(msg string) { status("✓", okStyle, msg) }
func Info(msg string)    { status("·", mutedStyle, msg) }

// Detail prints an indented, muted label followed by value.
func Detail(label, value string) {
	fmt.Fprintf(Messages, "  %s %s\n", mutedStyle.Render(label), value)
}

// KeyValue prints a bold key with a value.
func KeyValue(key, value string) {
	fmt.Fprintf(Messages, "  %s  %s\n", strongStyle.Render(key), value)
}

// EmptyState prints a muted note for empty results.
func EmptyState(msg string) {
	fmt.Fprintf(Messages, "  %s\n", mutedStyle.Render(msg))
}

// Table writes headers and rows to w as aligned columns. Header cells are
// styled one at a time so the tab separators survive rendering.
func Table(w io.Writer, headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	cells := make([]string, len(headers))
	for i, h := range headers {
		cells[i] = strongStyle.Render(h)
	}
	fmt.Fprintln(tw, strings.Join(cells, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()
}

// CommandBanner prints a framed title for a long-running or multi-line
// command.
func CommandBanner(command, subtitle string) {
	lines := []string{
		titleStyle.Render("U L T R A T H I N K"),
		branchStyle.Render("─── " + strings.ToUpper(command) + " ───"),
	}
	if subtitle != "" {
		lines = append(lines, mutedStyle.Render(subtitle))
	}
	fmt.Fprintf(Messages, "\n%s\n\n", frameStyle.Render(strings.Join(lines, "\n")))
}

// confirmModel asks a yes/no question. The highlighted choice starts on no.
type confirmModel struct {
	question string
	yes      bool
	done     bool
}

func (m confirmModel) Init() tea.Cmd { return nil }

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "y", "Y":
		m.yes, m.done = true, true
	case "n", "N", "esc", "ctrl+c", "q":
		m.yes, m.done = false, true
	case "tab":
		m.yes = !m.yes
	case "left", "h":
		m.yes = true
	case "right", "l":
		m.yes = false
	case "enter", " ":
		m.done = true
	default:
		return m, nil
	}
	if m.done {
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) View() string {
	choice := func(label string, selected bool, style lipgloss.Style) string {
		if selected {
			return style.Render("▸ " + label)
		}
		return mutedStyle.Render("  " + label)
	}
	return fmt.Sprintf("%s  %s  %s\n%s\n",
		strongStyle.Render(m.question),
		choice("yes", m.yes, okStyle),
		choice("no", !m.yes, failStyle),
		mutedStyle.Render("  y/n, ←/→ and enter"))
}

// Confirm asks question on the terminal. Without a terminal there is nobody
// to ask and the answer is no.
func Confirm(question string) (bool, error) {
	if !Interactive() {
		return false, nil
	}
	final, err := tea.NewProgram(confirmModel{question: question}, tea.WithOutput(os.Stderr)).Run()
	if err != nil {
		return false, err
	}
	m := final.(confirmModel)
	return m.done && m.yes, nil
}
