package main

import (
	"fmt"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/canopy-bt/canopy/internal/tree"
)

var (
	dashboardTitle = lipgloss.NewStyle().Bold(true).Padding(0, 1).
			Background(lipgloss.Color("62")).Foreground(lipgloss.Color("230"))
	dashboardLabel = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	dashboardValue = lipgloss.NewStyle().Bold(true)
	dashboardBox   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(1, 2)
)

type statsMsg tree.ExecutionContext

type dashboardModel struct {
	manager *tree.Manager
	stats   tree.ExecutionContext
	done    bool
	err     error
}

func runDashboard(m *tree.Manager) error {
	p := tea.NewProgram(dashboardModel{manager: m})
	go func() {
		<-m.Done()
		p.Send(doneMsg{})
	}()
	_, err := p.Run()
	return err
}

type doneMsg struct{}

func (m dashboardModel) Init() tea.Cmd {
	return m.pollCmd()
}

func (m dashboardModel) pollCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg {
		return statsMsg(m.manager.Stats())
	})
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case statsMsg:
		m.stats = tree.ExecutionContext(msg)
		if m.done {
			return m, nil
		}
		return m, m.pollCmd()
	case doneMsg:
		m.done = true
		m.err = m.manager.Err()
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.manager.Stop()
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m dashboardModel) View() string {
	status := "running"
	if m.done {
		status = "stopped"
	}
	body := fmt.Sprintf(
		"%s  %s\n%s  %s\n%s  %s\n%s  %s\n%s  %s\n\n%s",
		dashboardLabel.Render("scheduler"), dashboardValue.Render(status),
		dashboardLabel.Render("ticks"), dashboardValue.Render(fmt.Sprintf("%d", m.stats.TickCount)),
		dashboardLabel.Render("last status"), dashboardValue.Render(m.stats.LastTickStatus.String()),
		dashboardLabel.Render("success/failure/error"), dashboardValue.Render(fmt.Sprintf("%d / %d / %d", m.stats.SuccessCount, m.stats.FailureCount, m.stats.ErrorCount)),
		dashboardLabel.Render("last tick duration"), dashboardValue.Render(m.stats.LastTickDuration.String()),
		dashboardLabel.Render("press q to quit"),
	)
	if m.err != nil {
		body += "\n\n" + dashboardLabel.Render("error: ") + m.err.Error()
	}
	return dashboardTitle.Render("canopy") + "\n\n" + dashboardBox.Render(body) + "\n"
}
