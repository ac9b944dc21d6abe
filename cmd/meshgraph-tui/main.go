package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rmax-ai/meshgraph/pkg/client"
	"github.com/rmax-ai/meshgraph/pkg/model"
)

// Config
const (
	defaultDaemonURL = "http://127.0.0.1:8095"
	pollRate         = 2 * time.Second
	viewportHeight   = 20
)

// Styles
var (
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			Width(100)

	paneStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1).
			Width(100)

	nodeStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))  // Blue
	serviceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("99"))             // Purple
	arrowStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	linkStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")) // Green
)

type tickMsg time.Time

type graphMsg struct {
	graph *model.Model
	err   error
}

type ui struct {
	client   *client.Client
	spinner  spinner.Model
	viewport viewport.Model
	graph    *model.Model
	updated  time.Time
	err      error
	ready    bool
}

func newUI(c *client.Client) ui {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return ui{
		client:   c,
		spinner:  s,
		viewport: newViewport(100),
		graph:    model.NewModel(),
	}
}

func newViewport(width int) viewport.Model {
	vp := viewport.New(width, viewportHeight)
	vp.Style = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		PaddingRight(2)
	return vp
}

func (m ui) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		fetchGraph(m.client),
		tick(),
	)
}

func (m ui) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tickMsg:
		cmds = append(cmds, fetchGraph(m.client), tick())

	case graphMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.graph = msg.graph
			m.updated = time.Now()
			m.viewport.SetContent(renderEdges(m.graph))
		}
		m.ready = true

	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = viewportHeight
		m.ready = true
	}

	return m, tea.Batch(cmds...)
}

func (m ui) View() string {
	if !m.ready {
		return fmt.Sprintf("\n%s Connecting...", m.spinner.View())
	}

	topPane := paneStyle.Render(renderNodes(m.graph))
	header := headerStyle.Render(fmt.Sprintf("%s Dependencies", m.spinner.View()))

	var status string
	if m.err != nil {
		status = errorStyle.Render(fmt.Sprintf("Offline: %v", m.err))
	} else {
		status = okStyle.Render(fmt.Sprintf("Online • %d Nodes • %d Edges • updated %s",
			m.graph.NodeCount(), m.graph.EdgeCount(), m.updated.Format("15:04:05")))
	}
	footer := subtleStyle.Render(fmt.Sprintf("\n%s\nPress q to quit", status))

	return lipgloss.JoinVertical(lipgloss.Left, topPane, header, m.viewport.View(), footer)
}

func renderNodes(g *model.Model) string {
	var sb strings.Builder
	sb.WriteString(lipgloss.NewStyle().Bold(true).Underline(true).Render("Nodes") + "\n\n")

	if g.NodeCount() == 0 {
		sb.WriteString(subtleStyle.Render("No nodes observed yet."))
		return sb.String()
	}
	for _, n := range g.SortedNodes() {
		sb.WriteString("• " + nodeStyle.Render(n.ID))
		if comps := n.Components.Sorted(); len(comps) > 0 {
			sb.WriteString(" " + serviceStyle.Render(strings.Join(comps, ", ")))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// renderEdges lists outgoing dependencies grouped by source node, then the
// calls that stay inside a node.
func renderEdges(g *model.Model) string {
	var sb strings.Builder
	arrow := arrowStyle.Render(" → ")

	for _, e := range g.SortedEdges() {
		line := nodeStyle.Render(e.Source) + arrow + nodeStyle.Render(e.Target)
		if e.Service != "" {
			line += "  " + linkStyle.Render(e.Service)
		}
		sb.WriteString(line + "\n")
	}
	for _, n := range g.SortedNodes() {
		for _, l := range n.SelfLinks() {
			sb.WriteString(nodeStyle.Render(n.ID) + arrow + subtleStyle.Render("(local) ") + linkStyle.Render(l.String()) + "\n")
		}
	}
	if sb.Len() == 0 {
		return subtleStyle.Render("No dependencies observed yet.")
	}
	return sb.String()
}

// Commands

func fetchGraph(c *client.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		g, err := c.GetGraph(ctx, client.Window{})
		return graphMsg{graph: g, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(pollRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func main() {
	url := os.Getenv("MESHGRAPH_ENDPOINT")
	if url == "" {
		url = defaultDaemonURL
	}
	p := tea.NewProgram(newUI(client.NewClient(url)), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		os.Exit(1)
	}
}
