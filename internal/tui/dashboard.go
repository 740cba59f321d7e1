package tui

import (
	"context"
	"fmt"
	"time"

	"farewatch/internal/domain"
	"farewatch/internal/service"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TrackerQuerier is the read-only slice of the tracker the dashboard needs.
type TrackerQuerier interface {
	ListRoutes(ctx context.Context, userID string) ([]*domain.TrackedRoute, error)
	Summarize(ctx context.Context, routeID string) (*service.Summary, error)
	Alerts(ctx context.Context, routeID string) ([]*domain.PriceAlert, error)
}

// Services carries everything a dashboard session depends on.
type Services struct {
	Tracker  TrackerQuerier
	UserID   string
	Username string
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229"))
	borderStyle = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	alertStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("160"))
)

type routeRow struct {
	route   *domain.TrackedRoute
	summary *service.Summary
	alerts  []*domain.PriceAlert
}

type routesLoadedMsg struct {
	rows []routeRow
	err  error
}

type tickMsg time.Time

const refreshEvery = time.Minute

// AppModel renders a user's tracked routes with their running averages,
// thresholds, and fired alerts.
type AppModel struct {
	services Services
	table    table.Model
	spinner  spinner.Model
	rows     []routeRow
	loading  bool
	err      error
	width    int
	height   int
	showHelp bool
}

func NewAppModel(services Services) *AppModel {
	columns := []table.Column{
		{Title: "Route", Width: 10},
		{Title: "Departure", Width: 12},
		{Title: "Flex", Width: 5},
		{Title: "Avg", Width: 9},
		{Title: "Threshold", Width: 10},
		{Title: "Latest", Width: 9},
		{Title: "Alerts", Width: 7},
		{Title: "Status", Width: 7},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	styles := table.DefaultStyles()
	styles.Header = headerStyle
	styles.Selected = lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57")).Bold(true)
	t.SetStyles(styles)

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &AppModel{
		services: services,
		table:    t,
		spinner:  sp,
		loading:  true,
	}
}

func (m *AppModel) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *AppModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadRoutes(), scheduleTick())
}

func scheduleTick() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *AppModel) loadRoutes() tea.Cmd {
	tracker := m.services.Tracker
	userID := m.services.UserID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		routes, err := tracker.ListRoutes(ctx, userID)
		if err != nil {
			return routesLoadedMsg{err: err}
		}

		rows := make([]routeRow, 0, len(routes))
		for _, route := range routes {
			row := routeRow{route: route}
			if summary, err := tracker.Summarize(ctx, route.ID); err == nil {
				row.summary = summary
			}
			if alerts, err := tracker.Alerts(ctx, route.ID); err == nil {
				row.alerts = alerts
			}
			rows = append(rows, row)
		}
		return routesLoadedMsg{rows: rows}
	}
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			m.loading = true
			return m, tea.Batch(m.spinner.Tick, m.loadRoutes())
		case "?":
			m.showHelp = !m.showHelp
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case routesLoadedMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.rows = msg.rows
			m.table.SetRows(m.tableRows())
		}
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.loadRoutes(), scheduleTick())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *AppModel) tableRows() []table.Row {
	rows := make([]table.Row, 0, len(m.rows))
	for _, r := range m.rows {
		avg, threshold, latest := "-", "-", "-"
		if r.summary != nil && r.summary.AveragePrice > 0 {
			avg = fmt.Sprintf("%.2f", r.summary.AveragePrice)
			threshold = fmt.Sprintf("%.2f", r.summary.ThresholdPrice)
			if r.summary.Latest != nil {
				latest = fmt.Sprintf("%.2f", r.summary.Latest.Price)
			}
		}
		status := "active"
		if !r.route.IsActive {
			status = "paused"
		}
		rows = append(rows, table.Row{
			r.route.Origin + "-" + r.route.Destination,
			r.route.DepartureDate.Format("2006-01-02"),
			fmt.Sprintf("±%dd", r.route.FlexibilityDays),
			avg,
			threshold,
			latest,
			fmt.Sprintf("%d", len(r.alerts)),
			status,
		})
	}
	return rows
}

func (m *AppModel) View() string {
	title := titleStyle.Render(fmt.Sprintf("farewatch — %s", m.services.Username))

	var body string
	switch {
	case m.loading:
		body = fmt.Sprintf("%s loading tracked routes...", m.spinner.View())
	case m.err != nil:
		body = errStyle.Render(fmt.Sprintf("error: %v", m.err))
	case len(m.rows) == 0:
		body = dimStyle.Render("No tracked routes. Create one via the API.")
	default:
		body = m.table.View()
	}

	sections := []string{title, borderStyle.Render(body)}

	if detail := m.selectedDetail(); detail != "" {
		sections = append(sections, borderStyle.Render(detail))
	}

	help := dimStyle.Render("r refresh · ? help · q quit")
	if m.showHelp {
		help = dimStyle.Render("r refresh now · up/down select route · ? toggle help · q quit\nThe table refreshes itself every minute.")
	}
	sections = append(sections, help)

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *AppModel) selectedDetail() string {
	if m.loading || len(m.rows) == 0 {
		return ""
	}
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.rows) {
		return ""
	}
	r := m.rows[idx]

	detail := fmt.Sprintf("%s-%s departing %s",
		r.route.Origin, r.route.Destination, r.route.DepartureDate.Format("2006-01-02"))
	if r.route.MaxStops != nil {
		detail += fmt.Sprintf(", max %d stops", *r.route.MaxStops)
	}
	detail += fmt.Sprintf("\nalerts fire %.1f%% below the running average, polled every %dm",
		r.route.ThresholdPercent, r.route.PollMinutes)

	n := len(r.alerts)
	if n > 3 {
		n = 3
	}
	for _, a := range r.alerts[:n] {
		detail += "\n" + alertStyle.Render(fmt.Sprintf("ALERT %s: %.2f -> %.2f (%.1f%%)",
			a.AlertedAt.Format("2006-01-02 15:04"), a.OldPrice, a.NewPrice, a.PercentChange))
	}
	return detail
}
