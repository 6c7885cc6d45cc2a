// Package dash is a terminal dashboard over the hub's HTTP API, for
// watching offload decisions and device health in real time.
package dash

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aabboodi/edgehub/internal/domain"
)

const pollInterval = 2 * time.Second

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

type statsMsg struct {
	stats   domain.TelemetryStats
	devices []domain.DeviceTelemetry
	err     error
}

type tickMsg time.Time

type model struct {
	baseURL string
	client  *http.Client
	spin    spinner.Model

	stats   domain.TelemetryStats
	devices []domain.DeviceTelemetry
	fetched bool
	err     error
	width   int
}

func newModel(baseURL string) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return model{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
		spin:    sp,
	}
}

// Run starts the dashboard against the given HTTP base URL and blocks
// until the user quits.
func Run(baseURL string) error {
	_, err := tea.NewProgram(newModel(baseURL), tea.WithAltScreen()).Run()
	return err
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.fetch, tick())
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) fetch() tea.Msg {
	var msg statsMsg
	if msg.err = m.getJSON("/api/stats", &msg.stats); msg.err != nil {
		return msg
	}
	msg.err = m.getJSON("/api/devices", &msg.devices)
	return msg
}

func (m model) getJSON(path string, out any) error {
	resp, err := m.client.Get(m.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.fetch
		}
		return m, nil
	case tickMsg:
		return m, tea.Batch(m.fetch, tick())
	case statsMsg:
		m.err = msg.err
		if msg.err == nil {
			m.stats = msg.stats
			m.devices = msg.devices
			m.fetched = true
			sort.Slice(m.devices, func(i, j int) bool {
				return m.devices[i].DeviceID < m.devices[j].DeviceID
			})
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("EdgeHub Fleet"))
	b.WriteString(mutedStyle.Render("  " + m.baseURL))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errStyle.Render("fetch error: " + m.err.Error()))
		b.WriteString("\n\n")
	}
	if !m.fetched {
		b.WriteString(m.spin.View() + " waiting for first sample")
		b.WriteString("\n\n" + mutedStyle.Render("q quit · r refresh"))
		return b.String()
	}

	b.WriteString(fmt.Sprintf(
		"devices %d   requests %d   success %s   p95 %.0fms   p99 %.0fms\n\n",
		m.stats.TotalDevices,
		m.stats.TotalRequests,
		rateView(m.stats.OverallSuccessRate),
		m.stats.PerformanceMetrics.P95ProcessingTimeMS,
		m.stats.PerformanceMetrics.P99ProcessingTimeMS,
	))

	b.WriteString(headerStyle.Render("Strategy mix"))
	b.WriteString("\n")
	b.WriteString(strategyMixView(m.stats.StrategyDistribution))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Devices"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%-20s %8s %9s %10s %s\n", "DEVICE", "REQS", "SUCCESS", "AVG MS", "ERRORS"))
	for _, device := range m.devices {
		b.WriteString(fmt.Sprintf(
			"%-20s %8d %9s %10.0f %s\n",
			truncate(device.DeviceID, 20),
			device.TotalRequests,
			rateView(device.SuccessRate),
			device.AverageProcessingTime,
			strings.Join(device.ErrorPatterns, ","),
		))
	}
	if len(m.devices) == 0 {
		b.WriteString(mutedStyle.Render("no devices reporting yet") + "\n")
	}

	b.WriteString("\n" + mutedStyle.Render("q quit · r refresh"))
	return b.String()
}

func strategyMixView(dist map[domain.StrategyType]int) string {
	if len(dist) == 0 {
		return mutedStyle.Render("no decisions recorded") + "\n"
	}
	names := make([]string, 0, len(dist))
	for name := range dist {
		names = append(names, string(name))
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", name, dist[domain.StrategyType(name)]))
	}
	return strings.Join(parts, "  ") + "\n"
}

func rateView(rate float64) string {
	text := fmt.Sprintf("%.1f%%", rate*100)
	switch {
	case rate >= 0.95:
		return okStyle.Render(text)
	case rate >= 0.8:
		return warnStyle.Render(text)
	default:
		return errStyle.Render(text)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
