// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lexgate-dev/lexgate/internal/audit"
	"github.com/lexgate-dev/lexgate/internal/keypool"
	lexerr "github.com/lexgate-dev/lexgate/pkg/errors"
	"github.com/spf13/cobra"
)

const (
	watchInterval    = 2 * time.Second
	watchEventsLimit = 8
)

// --- bubbletea messages ---

type watchTickMsg time.Time

type watchRefreshMsg struct {
	pools  []keypool.PoolStatus
	events []audit.Event
}

type watchErrMsg struct{ err error }

// --- lipgloss styles ---

var (
	watchTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	watchDimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	watchErrorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	watchEventStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	watchBorderStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
)

// watchModel is the bubbletea model for the live pool dashboard.
type watchModel struct {
	client   *opsClient
	addr     string
	table    table.Model
	events   []audit.Event
	err      error
	lastPoll time.Time
}

func newWatchModel(addr string) watchModel {
	columns := []table.Column{
		{Title: "PROVIDER", Width: 12},
		{Title: "KEYS", Width: 6},
		{Title: "USABLE", Width: 8},
		{Title: "COOLING", Width: 9},
		{Title: "REVOKED", Width: 9},
		{Title: "REQUESTS", Width: 10},
		{Title: "ERRORS", Width: 8},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(6),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.Bold(true).Foreground(lipgloss.Color("212"))
	s.Selected = s.Selected.Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	t.SetStyles(s)

	return watchModel{
		client: newOpsClient(addr),
		addr:   addr,
		table:  t,
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(pollCmd(m.client), watchTickCmd())
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}

	case watchTickMsg:
		return m, tea.Batch(pollCmd(m.client), watchTickCmd())

	case watchRefreshMsg:
		m.err = nil
		m.lastPoll = time.Now()
		m.events = msg.events
		m.table.SetRows(poolRows(msg.pools))
		return m, nil

	case watchErrMsg:
		// Keep the last good rows on screen; the poll keeps retrying.
		m.err = msg.err
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m watchModel) View() string {
	var b strings.Builder

	b.WriteString(watchTitleStyle.Render("  LexGate — credential pools  ") + "\n")
	b.WriteString(watchDimStyle.Render("ops API "+m.addr) + "\n\n")

	if m.err != nil {
		b.WriteString(watchErrorStyle.Render("poll failed: "+m.err.Error()) + "\n\n")
	}

	b.WriteString(watchBorderStyle.Render(m.table.View()) + "\n")

	if len(m.events) > 0 {
		b.WriteString("\n" + watchTitleStyle.Render("Recent events") + "\n")
		for _, ev := range m.events {
			line := fmt.Sprintf("%s %s", ev.Time.Format(time.TimeOnly), ev.Type)
			if ev.Provider != "" {
				line += " provider=" + string(ev.Provider)
			}
			if ev.Credential != "" {
				line += " credential=" + ev.Credential
			}
			if ev.Category != "" {
				line += " category=" + ev.Category
			}
			b.WriteString(watchEventStyle.Render(line) + "\n")
		}
	}

	b.WriteString("\n")
	if !m.lastPoll.IsZero() {
		b.WriteString(watchDimStyle.Render("updated "+m.lastPoll.Format(time.TimeOnly)) + "  ")
	}
	b.WriteString(watchDimStyle.Render("q to quit") + "\n")
	return b.String()
}

func poolRows(pools []keypool.PoolStatus) []table.Row {
	rows := make([]table.Row, 0, len(pools))
	for _, p := range pools {
		var requests, errors uint64
		for _, c := range p.Credentials {
			requests += c.RequestCount
			errors += c.ErrorCount
		}
		rows = append(rows, table.Row{
			string(p.Provider),
			strconv.Itoa(p.Total),
			strconv.Itoa(p.Usable),
			strconv.Itoa(p.Cooling),
			strconv.Itoa(p.Revoked),
			strconv.FormatUint(requests, 10),
			strconv.FormatUint(errors, 10),
		})
	}
	return rows
}

// --- tea.Cmd factories ---

func watchTickCmd() tea.Cmd {
	return tea.Tick(watchInterval, func(t time.Time) tea.Msg {
		return watchTickMsg(t)
	})
}

func pollCmd(client *opsClient) tea.Cmd {
	return func() tea.Msg {
		var pools struct {
			Pools []keypool.PoolStatus `json:"pools"`
		}
		if err := client.getJSON("/v1/pools", &pools); err != nil {
			return watchErrMsg{err: err}
		}

		var events struct {
			Events []audit.Event `json:"events"`
		}
		if err := client.getJSON(fmt.Sprintf("/v1/events?limit=%d", watchEventsLimit), &events); err != nil {
			return watchErrMsg{err: err}
		}

		return watchRefreshMsg{pools: pools.Pools, events: events.Events}
	}
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live dashboard of credential pools",
		Long:  "Poll the running gateway and render pool occupancy and recent audit events in a terminal dashboard.",
		RunE:  runWatch,
	}

	cmd.Flags().String("address", "127.0.0.1:8187", "ops API address to watch")

	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	// The dashboard needs a terminal; in pipes fall back to suggesting status.
	f, ok := cmd.OutOrStdout().(*os.File)
	if !ok || !isTerminal(f) {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(),
			"lexgate watch requires an interactive terminal.\n"+
				"Use 'lexgate status' for one-shot output.")
		return lexerr.New(lexerr.CodeCLIInputInvalid, "lexgate watch: not an interactive terminal")
	}

	addr, _ := cmd.Flags().GetString("address")

	p := tea.NewProgram(newWatchModel(addr), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return lexerr.Errorf(lexerr.CodeCLIRequestFailure, "watch error: %w", err)
	}
	return nil
}

// isTerminal reports whether f is a terminal file descriptor.
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
