package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"notechat/internal/agent"
	"notechat/internal/chat"
	"notechat/internal/generation"
	"notechat/internal/session"
)

// Dispatcher runs one answer into a transcript.
type Dispatcher interface {
	Dispatch(ctx context.Context, id agent.ID, query string, agg *chat.Aggregator) error
}

// Options configures the chat screen.
type Options struct {
	Session *session.Session
	Router  Dispatcher
	// Timeout bounds one answer; 0 means no bound.
	Timeout time.Duration
	// KeyHint, when set, is shown until the first answer succeeds.
	KeyHint string
	Logger  *zap.Logger
}

type transcriptChangedMsg struct{}

// dispatchDoneMsg carries the finished dispatch's own cancel so a late
// message never releases a newer dispatch.
type dispatchDoneMsg struct {
	seq    int
	cancel context.CancelFunc
	err    error
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	sess    *session.Session
	router  Dispatcher
	timeout time.Duration
	logger  *zap.Logger

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	changes  chan struct{}
	cancel   context.CancelFunc
	seq      int
	status   string
	ready    bool
}

// New creates the chat screen and subscribes it to the session transcript.
func New(opts Options) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask something and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	changes := make(chan struct{}, 1)
	opts.Session.Aggregator.OnChange(func(chat.Event) {
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	status := "Tab switches agent, Ctrl+L clears, Esc cancels."
	if opts.KeyHint != "" {
		status = opts.KeyHint
	}
	return Model{
		sess:     opts.Session,
		router:   opts.Router,
		timeout:  opts.Timeout,
		logger:   logger.Named("tui"),
		input:    ti,
		viewport: vp,
		spinner:  sp,
		changes:  changes,
		status:   status,
	}
}

// Init starts the cursor blink and the transcript subscription.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForChange(m.changes))
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return transcriptChangedMsg{}
	}
}

func (m Model) dispatch(ctx context.Context, cancel context.CancelFunc, id agent.ID, query string) tea.Cmd {
	agg := m.sess.Aggregator
	router := m.router
	seq := m.seq
	return func() tea.Msg {
		return dispatchDoneMsg{seq: seq, cancel: cancel, err: router.Dispatch(ctx, id, query, agg)}
	}
}

// busy reports whether a dispatch is in flight. The aggregator only opens a
// message once the dispatch command runs, so m.cancel covers the gap.
func (m Model) busy() bool {
	return m.cancel != nil || m.sess.Aggregator.Loading()
}

// Update handles key, window, transcript and dispatch events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		tw, th := transcriptBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 1 + 1 + ih + 1 // header, status, input box, its line
		vh := msg.Height - reserved - th
		m.viewport.Width = max(20, msg.Width-tw)
		m.viewport.Height = max(3, vh)
		m.refresh()
		return m, nil

	case transcriptChangedMsg:
		m.refresh()
		return m, waitForChange(m.changes)

	case dispatchDoneMsg:
		if msg.cancel != nil {
			msg.cancel()
		}
		if msg.seq != m.seq {
			return m, nil
		}
		m.cancel = nil
		m.status = statusFor(msg.err)
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.sess.Aggregator.Loading() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" {
				return m, nil
			}
			if m.busy() {
				m.status = "Wait for the current answer or press Esc."
				return m, nil
			}
			var ctx context.Context
			var cancel context.CancelFunc
			if m.timeout > 0 {
				ctx, cancel = context.WithTimeout(context.Background(), m.timeout)
			} else {
				ctx, cancel = context.WithCancel(context.Background())
			}
			m.seq++
			m.cancel = cancel
			m.input.Reset()
			m.status = "Thinking with " + m.sess.Agent().Label() + "..."
			return m, tea.Batch(m.dispatch(ctx, cancel, m.sess.Agent(), q), m.spinner.Tick)
		case "esc":
			if m.cancel != nil {
				m.cancel()
				m.status = "Cancelling..."
			}
			return m, nil
		case "tab":
			next := m.sess.Agent().Next()
			if err := m.sess.SetAgent(context.Background(), next); err != nil {
				m.logger.Error("save agent", zap.Error(err))
				m.status = "Error: " + err.Error()
				return m, nil
			}
			m.status = "Agent: " + next.Label()
			return m, nil
		case "ctrl+l":
			if err := m.sess.Aggregator.Clear(); err != nil {
				m.status = "Cannot clear while an answer is streaming."
				return m, nil
			}
			m.status = "Transcript cleared."
			return m, nil
		case "pgup":
			m.viewport.HalfViewUp()
			return m, nil
		case "pgdown":
			m.viewport.HalfViewDown()
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func statusFor(err error) string {
	switch {
	case err == nil:
		return "Ready."
	case generation.IsConfigError(err):
		return "Not configured: " + err.Error()
	case errors.Is(err, chat.ErrBusy):
		return "Wait for the current answer or press Esc."
	default:
		return "Error: " + err.Error()
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(RenderTranscript(m.sess.Aggregator.Snapshot(), m.viewport.Width))
	m.viewport.GotoBottom()
}

// View renders the header, transcript, input and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("notechat") + "  " + agentStyle.Render(m.sess.Agent().Label())
	status := statusStyle.Render(m.status)
	if m.sess.Aggregator.Loading() {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" +
		transcriptBoxStyle.Render(m.viewport.View()) + "\n" +
		inputBoxStyle.Render(m.input.View()) + "\n" +
		status
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	headerStyle        = lipgloss.NewStyle().Bold(true)
	agentStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
