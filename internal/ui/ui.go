package ui

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Dicklesworthstone/hostwatch/internal/model"
)

// Source is what the dashboard reads. It never writes back.
type Source interface {
	Snapshot() *model.Snapshot
}

// LogLines supplies the log panel.
type LogLines interface {
	Lines() []string
}

const (
	refresh   = time.Second / 5
	logHeight = 6
)

// Options control how the process table is shown. They never reach the
// samplers.
type Options struct {
	Sort   string // "mem" orders by memory share; anything else by CPU
	Filter string // regular expression matched against name and command
}

// Model renders the latest published snapshot. The process table cursor and
// its view options are the only state the user changes, and they stay here.
type Model struct {
	src    Source
	logs   LogLines
	latest *model.Snapshot
	seen   uint64

	byMemory bool
	filter   *regexp.Regexp

	procs  table.Model
	logVP  viewport.Model
	width  int
	height int
}

// New builds the dashboard. A filter that does not compile shows every
// process.
func New(src Source, logs LogLines, opts Options) *Model {
	t := table.New(
		table.WithColumns(processColumns(120)),
		table.WithHeight(12),
		table.WithFocused(true),
	)
	m := &Model{
		src:      src,
		logs:     logs,
		latest:   model.Zero(),
		byMemory: opts.Sort == "mem",
		procs:    t,
		logVP:    viewport.New(120, logHeight),
		width:    120,
		height:   40,
	}
	if opts.Filter != "" {
		m.filter, _ = regexp.Compile(opts.Filter)
	}
	return m
}

// Messages
type tickMsg struct{}

func tickCmd() tea.Cmd { return tea.Tick(refresh, func(time.Time) tea.Msg { return tickMsg{} }) }

func (m *Model) Init() tea.Cmd { return tickCmd() }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "s":
			m.byMemory = !m.byMemory
			m.setRows()
			return m, nil
		}
		var cmd tea.Cmd
		m.procs, cmd = m.procs.Update(msg)
		return m, cmd
	case tickMsg:
		m.pull()
		return m, tickCmd()
	}
	return m, nil
}

// pull takes the newest snapshot and rebuilds the table rows when it changed.
func (m *Model) pull() {
	if m.logs != nil {
		m.logVP.SetContent(strings.Join(m.logs.Lines(), "\n"))
		m.logVP.GotoBottom()
	}
	s := m.src.Snapshot()
	if s == nil || s.Seq == m.seen {
		return
	}
	m.latest, m.seen = s, s.Seq
	m.setRows()
}

// shown is the latest process list after the filter and sort options.
func (m *Model) shown() []model.Process {
	procs := make([]model.Process, 0, len(m.latest.Processes))
	for _, p := range m.latest.Processes {
		if m.filter != nil && !m.filter.MatchString(p.Name) && !m.filter.MatchString(p.Command) {
			continue
		}
		procs = append(procs, p)
	}
	key := func(p model.Process) float64 { return p.CPU }
	if m.byMemory {
		key = func(p model.Process) float64 { return p.Memory }
	}
	sort.SliceStable(procs, func(i, j int) bool { return key(procs[i]) > key(procs[j]) })
	return procs
}

func (m *Model) setRows() {
	procs := m.shown()
	rows := make([]table.Row, 0, len(procs))
	for _, p := range procs {
		rows = append(rows, table.Row{
			fmt.Sprint(p.PID),
			model.Truncate(p.Name, 16),
			fmt.Sprintf("%.1f", p.CPU),
			fmt.Sprintf("%.1f", p.Memory),
			humanRate(p.ReadBps + p.WriteBps),
			model.Truncate(p.Command, 60),
		})
	}
	m.procs.SetRows(rows)
	if c := m.procs.Cursor(); c >= len(rows) && len(rows) > 0 {
		m.procs.SetCursor(len(rows) - 1)
	}
}

func (m *Model) resize(w, h int) {
	m.width, m.height = w, h
	m.procs.SetColumns(processColumns(w - 4))
	m.procs.SetWidth(w - 4)
	// Header, cards, alert and log panel take roughly this much.
	if th := h - 22 - logHeight; th > 3 {
		m.procs.SetHeight(th)
	}
	m.logVP.Width = w - 4
}

func processColumns(width int) []table.Column {
	cmd := width - 8 - 18 - 7 - 7 - 12 - 12
	if cmd < 10 {
		cmd = 10
	}
	return []table.Column{
		{Title: "PID", Width: 8},
		{Title: "Name", Width: 18},
		{Title: "CPU%", Width: 7},
		{Title: "MEM%", Width: 7},
		{Title: "IO", Width: 12},
		{Title: "Command", Width: cmd},
	}
}

// Styles
var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("45"))
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Bold(true)
	alertStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("160")).Padding(0, 1)
	gaugeFill   = "█"
	gaugeEmpty  = "░"
	cardStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("60")).
			Padding(0, 1).
			MarginRight(1)
)

func (m *Model) View() string {
	s := m.latest
	header := titleStyle.Render("hostwatch") + "  " +
		subtleStyle.Render(s.Timestamp.Format("Mon Jan 2 15:04:05 MST 2006")) + "  " +
		subtleStyle.Render(fmt.Sprintf("pass #%d  q quit  ↑/↓ scroll  s sort (%s)", s.Seq, m.sortName()))

	parts := []string{header}
	if s.Alert.Triggered {
		parts = append(parts, alertStyle.Render("ALERT: "+strings.Join(s.Alert.Messages, " | ")))
	}

	line1 := lipgloss.JoinHorizontal(lipgloss.Top, cpuCard(s.CPU), memoryCard(s.Memory), diskCard(s.Disk))
	line2 := lipgloss.JoinHorizontal(lipgloss.Top, networkCard(s.Network), gpuCard(s.GPUs), batteryCard(s.Battery))
	parts = append(parts, line1, line2,
		card(m.processTitle(), m.procs.View()),
		card("Log", m.logVP.View()))

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m *Model) sortName() string {
	if m.byMemory {
		return "mem"
	}
	return "cpu"
}

func (m *Model) processTitle() string {
	total := len(m.latest.Processes)
	if m.filter == nil {
		return fmt.Sprintf("Processes (%d)", total)
	}
	return fmt.Sprintf("Processes (%d of %d matching /%s/)", len(m.procs.Rows()), total, m.filter)
}

func cpuCard(c model.CPU) string {
	lines := []string{fmt.Sprintf("%s  load %.2f %.2f %.2f", gaugeBar(c.Total, 24), c.Load1, c.Load5, c.Load15)}
	var cores []string
	for _, core := range c.PerCore {
		cell := fmt.Sprintf("%2d:%3.0f%%", core.Index, core.Usage)
		if t, ok := core.TempC.Get(); ok {
			cell += fmt.Sprintf(" %2.0f°C", t)
		}
		cores = append(cores, cell)
		if len(cores) == 4 {
			lines = append(lines, strings.Join(cores, "  "))
			cores = cores[:0]
		}
	}
	if len(cores) > 0 {
		lines = append(lines, strings.Join(cores, "  "))
	}
	return card("CPU", strings.Join(lines, "\n"))
}

func memoryCard(mem model.Memory) string {
	if mem.Unavailable {
		return card("Memory", subtleStyle.Render("unavailable"))
	}
	return card("Memory",
		fmt.Sprintf("%s\n%.1f/%.1f GiB | Swap %3.0f%%",
			gaugeBar(mem.UsedPercent, 24),
			bytesToGiB(mem.UsedBytes),
			bytesToGiB(mem.TotalBytes),
			mem.SwapPercent))
}

func diskCard(d model.Disk) string {
	lines := []string{
		"/ " + gaugeBar(d.RootPercent, 22),
		fmt.Sprintf("R/W %s / %s", humanRate(d.ReadBps), humanRate(d.WriteBps)),
	}
	for i, p := range d.Partitions {
		if i == 3 {
			break
		}
		if p.Mountpoint == "/" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%-12s %5.1f%%", model.Truncate(p.Mountpoint, 12), p.UsedPercent))
	}
	return card("Disk", strings.Join(lines, "\n"))
}

func networkCard(ifs []model.NetInterface) string {
	var lines []string
	for _, ifc := range ifs {
		if !ifc.Active {
			continue
		}
		lines = append(lines, fmt.Sprintf("%-10s ↓%s ↑%s (peak ↓%s)",
			model.Truncate(ifc.Name, 10), humanRate(ifc.DownloadBps), humanRate(ifc.UploadBps), humanRate(ifc.MaxDownloadBps)))
	}
	if len(lines) == 0 {
		lines = append(lines, subtleStyle.Render("no active interfaces"))
	}
	return card("Network", strings.Join(lines, "\n"))
}

func gpuCard(g model.Optional[[]model.GPU]) string {
	gpus, ok := g.Get()
	if !ok {
		return card("GPU", subtleStyle.Render("GPU: unavailable"))
	}
	lines := make([]string, 0, len(gpus))
	for _, gpu := range gpus {
		lines = append(lines, fmt.Sprintf("%d %s %s util %s fan %s",
			gpu.Index, model.Truncate(gpu.Name, 14),
			gpu.TempC.Format("%.0f°C", "n/a"), gpu.Util.Format("%.0f%%", "n/a"), gpu.FanPercent.Format("%.0f%%", "n/a")))
	}
	return card("GPU", strings.Join(lines, "\n"))
}

func batteryCard(b model.Optional[model.Battery]) string {
	batt, ok := b.Get()
	if !ok {
		return card("Battery", subtleStyle.Render("No Battery"))
	}
	body := fmt.Sprintf("%.0f%% (%s)", batt.Percent, batt.State)
	if left, ok := batt.Remaining.Get(); ok {
		body += fmt.Sprintf("\n%s remaining", left)
	}
	return card("Battery", body)
}

// Helpers
func gaugeBar(pct float64, width int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := int((pct / 100) * float64(width))
	if filled > width {
		filled = width
	}
	return fmt.Sprintf("[%s%s] %5.1f%%",
		strings.Repeat(gaugeFill, filled),
		strings.Repeat(gaugeEmpty, width-filled),
		pct)
}

func card(title, body string) string {
	titleStr := labelStyle.Render(title)
	content := titleStr + "\n" + body
	return cardStyle.Render(content)
}

func humanRate(bps float64) string {
	const unit = 1024
	if bps < unit {
		return fmt.Sprintf("%.0f B/s", bps)
	}
	div, exp := float64(unit), 0
	for n := bps / unit; n >= unit && exp < 3; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB/s", bps/div, "KMGT"[exp])
}

func bytesToGiB(b uint64) float64 { return float64(b) / (1024 * 1024 * 1024) }

// RunTUI starts the Bubble Tea program and blocks until the user quits or ctx
// is cancelled.
func RunTUI(ctx context.Context, src Source, logs LogLines, opts Options) error {
	prog := tea.NewProgram(New(src, logs, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := prog.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
