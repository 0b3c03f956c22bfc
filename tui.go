package main

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"juru/hotkey"
	"juru/session"
	"juru/transcript"
)

// TUI message types
type statusMsg struct {
	status session.Status
	err    string
}
type transcriptMsg []transcript.Entry
type noticeMsg string
type tickMsg time.Time

const noticeTTL = 3 * time.Second

// tuiSink forwards controller notifications to the program. Level and voice
// activity arrive on the capture thread, so they are only stored here and
// picked up by the next tick instead of being sent.
type tuiSink struct {
	p        *tea.Program
	level    atomic.Uint64
	speaking atomic.Bool
}

func (s *tuiSink) StatusChanged(st session.Status, msg string) {
	s.p.Send(statusMsg{status: st, err: msg})
}

func (s *tuiSink) TranscriptChanged(entries []transcript.Entry) {
	s.p.Send(transcriptMsg(entries))
}

func (s *tuiSink) AudioLevel(rms float64) { s.level.Store(math.Float64bits(rms)) }
func (s *tuiSink) VoiceActivity(on bool)  { s.speaking.Store(on) }

func (s *tuiSink) meters() (float64, bool) {
	return math.Float64frombits(s.level.Load()), s.speaking.Load()
}

type tuiModel struct {
	app  *app
	sink *tuiSink
	// copy writes the clipboard; replaced in tests.
	copy func(string) error

	device  string
	dir     session.Direction
	status  session.Status
	errMsg  string
	entries []transcript.Entry
	started time.Time
	now     time.Time

	level    float64
	speaking bool

	notice      string
	noticeUntil time.Time

	width, height int
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("231"))
	dirStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	helpKeyStyle = helpStyle.Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	voiceStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	userStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	modelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	partialStyle = lipgloss.NewStyle().Faint(true).Italic(true)

	statusStyles = map[session.Status]lipgloss.Style{
		session.Idle:       lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		session.Connecting: lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true),
		session.Listening:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		session.Error:      lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true),
	}
	statusIcons = map[session.Status]string{
		session.Idle:       "○",
		session.Connecting: "◌",
		session.Listening:  "●",
		session.Error:      "✕",
	}
)

func newTUIModel(a *app, sink *tuiSink, device string) tuiModel {
	return tuiModel{
		app:    a,
		sink:   sink,
		copy:   clipboard.WriteAll,
		device: device,
		dir:    a.direction(),
		now:    time.Now(),
	}
}

func newTUIProgram(a *app, device string) (*tea.Program, *tuiSink) {
	sink := &tuiSink{}
	p := tea.NewProgram(newTUIModel(a, sink, device), tea.WithAltScreen())
	sink.p = p
	return p, sink
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

// controllerCmd runs fn off the update loop; the controller may block while
// it tears a session down.
func controllerCmd(fn func() error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			return noticeMsg(err.Error())
		}
		return nil
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case " ":
			return m, controllerCmd(m.app.toggle)
		case "tab":
			if d, ok := m.app.flip(); ok {
				m.dir = d
			} else {
				m = m.withNotice("stop the session before switching direction")
			}
		case "c":
			text, ok := transcript.LastFinal(m.entries, transcript.Model)
			if !ok {
				m = m.withNotice("no translation to copy yet")
				break
			}
			copyFn := m.copy
			return m, func() tea.Msg {
				if err := copyFn(text); err != nil {
					return noticeMsg("copy failed: " + err.Error())
				}
				return noticeMsg("copied last translation")
			}
		}

	case tickMsg:
		m.now = time.Time(msg)
		if m.sink != nil {
			level, speaking := m.sink.meters()
			m.level = m.level*0.6 + level*0.4
			m.speaking = speaking
		}
		if m.notice != "" && m.now.After(m.noticeUntil) {
			m.notice = ""
		}
		return m, tuiTick()

	case statusMsg:
		if msg.status == session.Listening && m.status != session.Listening {
			m.started = time.Now()
		}
		m.status = msg.status
		m.errMsg = msg.err
		if !msg.status.Active() {
			m.level = 0
			m.speaking = false
		}

	case transcriptMsg:
		m.entries = msg

	case noticeMsg:
		m = m.withNotice(string(msg))
	}
	return m, nil
}

func (m tuiModel) withNotice(text string) tuiModel {
	m.notice = text
	m.noticeUntil = m.now.Add(noticeTTL)
	return m
}

func (m tuiModel) statusLine() string {
	label := m.status.String()
	if m.status == session.Listening && !m.started.IsZero() {
		label += fmt.Sprintf(" %.1fs", m.now.Sub(m.started).Seconds())
	}
	return statusStyles[m.status].Render(statusIcons[m.status] + " " + label)
}

func renderMeter(level float64, width int) string {
	// speech RMS rarely exceeds 0.2
	filled := int(math.Round(min(level*5, 1) * float64(width)))
	color := "42"
	if filled > width*3/4 {
		color = "208"
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(strings.Repeat("▮", filled)) +
		dimStyle.Render(strings.Repeat("▯", width-filled))
}

func (m tuiModel) renderEntry(e transcript.Entry, width int) string {
	prefix, style := userStyle.Render("you  "), userStyle
	if e.Speaker == transcript.Model {
		prefix, style = modelStyle.Render("juru "), modelStyle
	}
	if e.Partial {
		style = style.Inherit(partialStyle)
	}
	body := style.Width(max(width-5, 10)).Render(e.Text)
	lines := strings.Split(body, "\n")
	for i := 1; i < len(lines); i++ {
		lines[i] = "     " + lines[i]
	}
	return prefix + strings.Join(lines, "\n")
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var header []string
	header = append(header, titleStyle.Render("juru")+"  "+dirStyle.Render(m.dir.Label())+"   "+m.statusLine())
	header = append(header, dimStyle.Render("mic: "+m.device))
	meter := "level " + renderMeter(m.level, 20)
	if m.speaking {
		meter += "  " + voiceStyle.Render("speaking")
	}
	header = append(header, meter)
	if m.errMsg != "" {
		header = append(header, errorStyle.Width(m.width).Render("error: "+m.errMsg))
	}
	header = append(header, "")

	var footer []string
	footer = append(footer, "")
	if m.notice != "" {
		footer = append(footer, noticeStyle.Render(m.notice))
	}
	footer = append(footer,
		helpKeyStyle.Render(hotkey.Combo)+helpStyle.Render(" hold to talk, tap to toggle"),
		helpKeyStyle.Render("space")+helpStyle.Render(" start/stop  ")+
			helpKeyStyle.Render("tab")+helpStyle.Render(" direction  ")+
			helpKeyStyle.Render("c")+helpStyle.Render(" copy translation  ")+
			helpKeyStyle.Render("q")+helpStyle.Render(" quit"),
		helpStyle.Render("juru "+version),
	)

	var body []string
	if len(m.entries) == 0 {
		body = append(body, dimStyle.Render("No translations yet"))
	}
	for _, e := range m.entries {
		body = append(body, strings.Split(m.renderEntry(e, m.width), "\n")...)
	}
	// newest lines win when the log outgrows the window
	if room := m.height - len(header) - len(footer); room > 0 && len(body) > room {
		body = body[len(body)-room:]
	}

	lines := append(header, body...)
	lines = append(lines, footer...)
	return strings.Join(lines, "\n")
}
