package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/ppiankov/livecode/internal/executor"
	"github.com/ppiankov/livecode/internal/model"
	"github.com/ppiankov/livecode/internal/service"
)

var replNoJournal bool

func init() {
	rootCmd.AddCommand(replCmd)
	replCmd.Flags().BoolVar(&replNoJournal, "no-journal", false, "Do not write the audit log or history")
}

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive snippet shell",
	Long: "Each line is compiled and run as its own snippet. The previous result is\n" +
		"available as params[\"_\"]; :set adds more parameters. Type :help for commands.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService(replNoJournal)
		if err != nil {
			return err
		}
		defer svc.Close()
		_, err = tea.NewProgram(newREPLModel(svc), tea.WithAltScreen()).Run()
		return err
	},
}

var (
	accentColor    = lipgloss.Color("#3B82F6")
	successColor   = lipgloss.Color("#10B981")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	highlightColor = lipgloss.Color("#F59E0B")

	promptStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	resultStyle = lipgloss.NewStyle().
			Foreground(successColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	headerStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true).
			Padding(0, 1)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(highlightColor)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accentColor).
			Padding(0, 1)
)

type replEntry struct {
	input  string
	output string
	isErr  bool
}

// execDoneMsg carries a finished run back into Update.
type execDoneMsg struct {
	input  string
	result model.ExecutionResult
}

type replModel struct {
	textInput   textinput.Model
	spinner     spinner.Model
	svc         *service.Service
	params      map[string]any
	entries     []replEntry
	cmdHistory  []string
	historyIdx  int
	width       int
	height      int
	showHelp    bool
	running     bool
	cancel      context.CancelFunc
	quitting    bool
	initialized bool
}

type keyMap struct {
	Up    key.Binding
	Down  key.Binding
	Enter key.Binding
	CtrlC key.Binding
	CtrlD key.Binding
	CtrlL key.Binding
	CtrlK key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up"),
		key.WithHelp("↑", "previous snippet"),
	),
	Down: key.NewBinding(
		key.WithKeys("down"),
		key.WithHelp("↓", "next snippet"),
	),
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "run"),
	),
	CtrlC: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "cancel run / quit"),
	),
	CtrlD: key.NewBinding(
		key.WithKeys("ctrl+d"),
		key.WithHelp("ctrl+d", "quit"),
	),
	CtrlL: key.NewBinding(
		key.WithKeys("ctrl+l"),
		key.WithHelp("ctrl+l", "clear"),
	),
	CtrlK: key.NewBinding(
		key.WithKeys("ctrl+k"),
		key.WithHelp("ctrl+k", "toggle help"),
	),
}

func newREPLModel(svc *service.Service) replModel {
	ti := textinput.New()
	ti.Placeholder = "type a snippet, e.g. return strings.ToUpper(\"go\")"
	ti.Focus()
	ti.CharLimit = 2000
	ti.Width = 60
	ti.PromptStyle = promptStyle
	ti.Prompt = "livecode> "

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(highlightColor)

	return replModel{
		textInput:  ti,
		spinner:    sp,
		svc:        svc,
		params:     make(map[string]any),
		historyIdx: -1,
	}
}

func (m replModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.textInput.Width = msg.Width - 12
		m.initialized = true
		return m, nil

	case spinner.TickMsg:
		if !m.running {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case execDoneMsg:
		m.running = false
		m.cancel = nil
		output, isErr := formatREPLResult(msg.result)
		m.entries = append(m.entries, replEntry{input: msg.input, output: output, isErr: isErr})
		if msg.result.Success && msg.result.Outcome == model.OutcomeExecutedWithValue {
			m.params["_"] = msg.result.Result
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.CtrlC):
			if m.running && m.cancel != nil {
				m.cancel()
				return m, nil
			}
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, keys.CtrlD):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, keys.CtrlL):
			m.entries = nil
			return m, nil

		case key.Matches(msg, keys.CtrlK):
			m.showHelp = !m.showHelp
			return m, nil

		case key.Matches(msg, keys.Up):
			if len(m.cmdHistory) > 0 {
				if m.historyIdx == -1 {
					m.historyIdx = len(m.cmdHistory) - 1
				} else if m.historyIdx > 0 {
					m.historyIdx--
				}
				m.textInput.SetValue(m.cmdHistory[m.historyIdx])
				m.textInput.CursorEnd()
			}
			return m, nil

		case key.Matches(msg, keys.Down):
			if m.historyIdx != -1 {
				if m.historyIdx < len(m.cmdHistory)-1 {
					m.historyIdx++
					m.textInput.SetValue(m.cmdHistory[m.historyIdx])
				} else {
					m.historyIdx = -1
					m.textInput.SetValue("")
				}
				m.textInput.CursorEnd()
			}
			return m, nil

		case key.Matches(msg, keys.Enter):
			input := strings.TrimSpace(m.textInput.Value())
			if input == "" || m.running {
				return m, nil
			}
			m.textInput.SetValue("")
			m.historyIdx = -1

			if strings.HasPrefix(input, ":") {
				return m.handleCommand(input)
			}

			m.cmdHistory = append(m.cmdHistory, input)
			ctx, cancel := context.WithCancel(context.Background())
			m.running = true
			m.cancel = cancel
			return m, tea.Batch(m.spinner.Tick, m.execute(ctx, cancel, input))
		}
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

// execute runs input off the UI goroutine and reports back with execDoneMsg.
func (m replModel) execute(ctx context.Context, cancel context.CancelFunc, input string) tea.Cmd {
	params := make(map[string]any, len(m.params))
	for k, v := range m.params {
		params[k] = v
	}
	svc := m.svc
	return func() tea.Msg {
		defer cancel()
		res := svc.Execute(ctx, executor.Request{
			Source: input,
			Params: params,
			Mode:   model.ModeProject,
		})
		return execDoneMsg{input: input, result: res}
	}
}

func (m replModel) handleCommand(input string) (replModel, tea.Cmd) {
	parts := strings.Fields(input)
	cmd := parts[0]

	note := func(out string, isErr bool) {
		m.entries = append(m.entries, replEntry{input: input, output: out, isErr: isErr})
	}

	switch cmd {
	case ":help", ":h":
		m.showHelp = !m.showHelp
	case ":clear", ":c":
		m.entries = nil
	case ":set":
		if len(parts) < 3 {
			note("usage: :set <name> <value>", true)
			break
		}
		raw := strings.Join(parts[2:], " ")
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		m.params[parts[1]] = v
		note(fmt.Sprintf("params[%q] = %s", parts[1], formatValue(v)), false)
	case ":unset":
		if len(parts) != 2 {
			note("usage: :unset <name>", true)
			break
		}
		delete(m.params, parts[1])
		note(fmt.Sprintf("params[%q] removed", parts[1]), false)
	case ":params", ":p":
		note(formatParams(m.params), false)
	case ":cache":
		if len(parts) == 2 && parts[1] == "clear" {
			m.svc.ClearCache()
			note("cache cleared", false)
			break
		}
		s := m.svc.Executor().CacheStats()
		note(fmt.Sprintf("%d modules, %d hits, %d misses, %d coalesced", s.Entries, s.Hits, s.Misses, s.Coalesced), false)
	case ":level":
		note(m.svc.Executor().Level().String(), false)
	case ":quit", ":q":
		m.quitting = true
		return m, tea.Quit
	default:
		note(fmt.Sprintf("Unknown command: %s", cmd), true)
	}
	return m, nil
}

func formatParams(params map[string]any) string {
	if len(params) == 0 {
		return "no parameters set"
	}
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)
	lines := make([]string, 0, len(names))
	for _, k := range names {
		lines = append(lines, fmt.Sprintf("%s = %s", k, formatValue(params[k])))
	}
	return strings.Join(lines, "\n    ")
}

// formatREPLResult condenses a result into one entry body.
func formatREPLResult(res model.ExecutionResult) (string, bool) {
	var b strings.Builder
	for _, line := range res.Logs {
		b.WriteString(line + "\n    ")
	}
	if !res.Success {
		var diag strings.Builder
		renderDiagnostics(&diag, res.Diagnostics, res.Violations, res.AmbiguousTypeCandidates)
		for _, line := range strings.Split(strings.TrimRight(diag.String(), "\n"), "\n") {
			if line != "" {
				b.WriteString(line + "\n    ")
			}
		}
		fmt.Fprintf(&b, "%s: %s", res.FailureReason, res.ErrorMessage)
		return b.String(), true
	}
	if res.Outcome == model.OutcomeExecutedWithValue {
		b.WriteString(formatValue(res.Result))
	} else {
		b.WriteString("ok")
	}
	fmt.Fprintf(&b, "  %s", mutedStyle.Render((time.Duration(res.DurationMs) * time.Millisecond).String()))
	return b.String(), false
}

func (m replModel) View() string {
	if !m.initialized {
		return "Loading..."
	}

	if m.quitting {
		return mutedStyle.Render("Goodbye!\n")
	}

	var b strings.Builder

	header := headerStyle.Render("livecode REPL")
	level := mutedStyle.Render(m.svc.Executor().Level().String())
	b.WriteString(header + " " + level + "\n")
	b.WriteString(mutedStyle.Render(strings.Repeat("─", max(min(m.width-2, 60), 0))) + "\n\n")

	reserved := 8
	if m.showHelp {
		reserved += 14
	}
	available := m.height - reserved

	start := 0
	if len(m.entries) > available && available > 0 {
		start = len(m.entries) - available
	}

	for _, entry := range m.entries[start:] {
		if entry.input != "" {
			b.WriteString(mutedStyle.Render("  › ") + entry.input + "\n")
		}
		if entry.isErr {
			b.WriteString("  " + errorStyle.Render("✗ "+entry.output) + "\n")
		} else {
			b.WriteString("  " + resultStyle.Render("→ "+entry.output) + "\n")
		}
		b.WriteString("\n")
	}

	if m.showHelp {
		b.WriteString(renderHelpPanel())
		b.WriteString("\n")
	}

	if m.running {
		b.WriteString(m.spinner.View() + mutedStyle.Render(" running (ctrl+c cancels)") + "\n\n")
	} else {
		b.WriteString(m.textInput.View() + "\n\n")
	}

	footer := helpKeyStyle.Render("ctrl+k") + helpDescStyle.Render(" help  ") +
		helpKeyStyle.Render("ctrl+l") + helpDescStyle.Render(" clear  ") +
		helpKeyStyle.Render("ctrl+c") + helpDescStyle.Render(" quit")
	b.WriteString(footer)

	return b.String()
}

func renderHelpPanel() string {
	help := []struct {
		key  string
		desc string
	}{
		{"↑/↓", "Navigate snippet history"},
		{"Enter", "Compile and run"},
		{":help", "Toggle this help"},
		{":set k v", "Set params[k] (JSON or string)"},
		{":unset k", "Remove a parameter"},
		{":params", "List parameters"},
		{":cache", "Cache statistics (:cache clear drops it)"},
		{":level", "Show the security level"},
		{":clear", "Clear output"},
		{":quit", "Exit REPL"},
	}

	var lines []string
	lines = append(lines, lipgloss.NewStyle().Bold(true).Foreground(accentColor).Render("Help"))
	for _, h := range help {
		line := fmt.Sprintf("  %s  %s",
			helpKeyStyle.Render(fmt.Sprintf("%-9s", h.key)),
			helpDescStyle.Render(h.desc))
		lines = append(lines, line)
	}

	return borderStyle.Render(strings.Join(lines, "\n"))
}
