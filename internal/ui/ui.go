package ui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/shotlog/internal/formatter"
	"github.com/desertthunder/shotlog/internal/models"
	"github.com/desertthunder/shotlog/internal/services"
	"github.com/desertthunder/shotlog/internal/session"
	"github.com/desertthunder/shotlog/internal/shared"
	"github.com/desertthunder/shotlog/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	LoadingView ViewState = iota
	LoginView
	WorkoutListView
	DetailView
	StatsView
	ExportView
)

// Session is the part of [session.Manager] the TUI depends on.
type Session interface {
	Ready() <-chan struct{}
	Snapshot() session.Snapshot
	Subscribe() (<-chan session.Snapshot, func())
	Login(ctx context.Context, username, password string) error
	Logout(ctx context.Context) error
}

// Model represents the TUI application state.
type Model struct {
	ctx       context.Context
	view      ViewState
	session   Session
	api       services.WorkoutAPI
	engine    *tasks.ExportEngine
	exportDir string
	width     int
	height    int

	spinner   spinner.Model
	username  textinput.Model
	password  textinput.Model
	loggingIn bool
	loginErr  string

	user        *models.User
	workoutList list.Model
	inProgress  []models.Workout
	completed   []models.Workout
	selected    *models.Workout
	bar         progress.Model
	stats       *models.StatsOverview

	progressChan chan tasks.ProgressUpdate
	exportDone   chan exportCompleteMsg
	progress     tasks.ProgressUpdate
	exportResult *tasks.BulkExportResult
	exportErr    error

	snapshots   <-chan session.Snapshot
	unsubscribe func()

	err  error
	help help.Model
	keys keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
//
// Bulk exports triggered from the list are written under exportDir.
func NewModel(ctx context.Context, sess Session, api services.WorkoutAPI, engine *tasks.ExportEngine, exportDir string) *Model {
	username := textinput.New()
	username.Placeholder = "username"
	username.Prompt = "Username: "
	username.CharLimit = 150

	password := textinput.New()
	password.Placeholder = "password"
	password.Prompt = "Password: "
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.warn

	return &Model{
		ctx:         ctx,
		view:        LoadingView,
		session:     sess,
		api:         api,
		engine:      engine,
		exportDir:   exportDir,
		spinner:     sp,
		username:    username,
		password:    password,
		workoutList: newWorkoutList(nil),
		bar:         progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		help:        help.New(),
		keys:        newKeyMap(),
	}
}

func newWorkoutList(items []list.Item) list.Model {
	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Workouts"
	return l
}

// Init subscribes to session changes and waits for the initial resolution.
func (m *Model) Init() tea.Cmd {
	m.snapshots, m.unsubscribe = m.session.Subscribe()
	return tea.Batch(m.spinner.Tick, m.waitForReady(), m.waitForSnapshot())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.workoutList.SetSize(msg.Width-4, msg.Height-6)
		m.bar.Width = min(60, max(10, msg.Width-20))
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, m.quit()
		}
		switch m.view {
		case LoginView:
			return m.handleLoginKeys(msg)
		case WorkoutListView:
			return m.handleListKeys(msg)
		case DetailView, StatsView:
			return m.handleDetailKeys(msg)
		case ExportView:
			return m.handleExportKeys(msg)
		default:
			if key.Matches(msg, m.keys.quit) {
				return m, m.quit()
			}
			return m, nil
		}

	case spinner.TickMsg:
		if m.view != LoadingView && !m.loggingIn {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case sessionResolvedMsg:
		return m, m.applySnapshot(msg.snap)

	case sessionChangedMsg:
		return m, tea.Batch(m.applySnapshot(msg.snap), m.waitForSnapshot())

	case loginDoneMsg:
		m.loggingIn = false
		if msg.err != nil {
			m.loginErr = loginError(msg.err)
			m.password.SetValue("")
			return m, m.password.Focus()
		}
		m.loginErr = ""
		return m, m.applySnapshot(m.session.Snapshot())

	case logoutDoneMsg:
		return m, m.applySnapshot(m.session.Snapshot())

	case workoutsFetchedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.inProgress, m.completed = msg.inProgress, msg.completed
		m.workoutList.SetItems(workoutItems(msg.inProgress, msg.completed))
		return m, nil

	case workoutFetchedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.selected = msg.workout
		m.view = DetailView
		return m, nil

	case statsFetchedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.stats = msg.stats
		m.view = StatsView
		return m, nil

	case progressUpdateMsg:
		m.progress = tasks.ProgressUpdate(msg)
		return m, m.waitForProgress()

	case exportCompleteMsg:
		m.exportResult = msg.result
		m.exportErr = msg.err
		m.progressChan = nil
		m.exportDone = nil
		return m, nil
	}

	return m.updateInputs(msg)
}

// applySnapshot moves between the loading, login and authenticated views.
func (m *Model) applySnapshot(snap session.Snapshot) tea.Cmd {
	switch snap.State {
	case session.Authenticated:
		m.user = snap.User
		if m.view == LoadingView || m.view == LoginView {
			m.view = WorkoutListView
			return m.fetchWorkouts()
		}
	case session.Unauthenticated:
		if m.view != LoginView {
			m.resetData()
			m.view = LoginView
			return m.username.Focus()
		}
	}
	return nil
}

func (m *Model) resetData() {
	m.user = nil
	m.inProgress, m.completed = nil, nil
	m.selected, m.stats = nil, nil
	m.workoutList.SetItems(nil)
	m.err = nil
	m.username.SetValue("")
	m.password.SetValue("")
	m.password.Blur()
}

func loginError(err error) string {
	if errors.Is(err, shared.ErrAuthFailed) {
		return "Invalid username or password."
	}
	return err.Error()
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case LoadingView:
		return m.renderLoading()
	case LoginView:
		return m.renderLogin()
	case WorkoutListView:
		return m.renderList()
	case DetailView:
		return m.renderDetail()
	case StatsView:
		return m.renderStats()
	case ExportView:
		return m.renderExport()
	default:
		return ""
	}
}

func (m *Model) quit() tea.Cmd {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	return tea.Quit
}

func (m *Model) handleLoginKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.loggingIn {
		return m, nil
	}

	switch {
	case msg.String() == "esc":
		return m, m.quit()
	case key.Matches(msg, m.keys.next), msg.String() == "up", msg.String() == "down":
		return m, m.toggleFocus()
	case key.Matches(msg, m.keys.enter):
		if m.username.Focused() {
			return m, m.toggleFocus()
		}
		user := strings.TrimSpace(m.username.Value())
		pass := m.password.Value()
		if user == "" || pass == "" {
			m.loginErr = "Username and password are required."
			return m, nil
		}
		m.loggingIn = true
		m.loginErr = ""
		return m, tea.Batch(m.spinner.Tick, m.login(user, pass))
	}

	return m.updateInputs(msg)
}

func (m *Model) toggleFocus() tea.Cmd {
	if m.username.Focused() {
		m.username.Blur()
		return m.password.Focus()
	}
	m.password.Blur()
	return m.username.Focus()
}

func (m *Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.workoutList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.workoutList, cmd = m.workoutList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, m.quit()
	case key.Matches(msg, m.keys.logout):
		return m, m.logout()
	case key.Matches(msg, m.keys.stats):
		return m, m.fetchStats()
	case key.Matches(msg, m.keys.reload):
		return m, m.fetchWorkouts()
	case key.Matches(msg, m.keys.export):
		if m.engine == nil || len(m.workoutList.Items()) == 0 {
			return m, nil
		}
		m.view = ExportView
		return m, m.startExport()
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.workoutList.SelectedItem().(workoutItem); ok {
			return m, m.fetchWorkout(item.workout.ID)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.workoutList, cmd = m.workoutList.Update(msg)
	return m, cmd
}

func (m *Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, m.quit()
	case key.Matches(msg, m.keys.logout):
		return m, m.logout()
	case key.Matches(msg, m.keys.back):
		m.view = WorkoutListView
		m.err = nil
		return m, nil
	}
	return m, nil
}

func (m *Model) handleExportKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.progressChan != nil {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, m.quit()
	case key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.enter):
		m.view = WorkoutListView
		m.exportResult, m.exportErr = nil, nil
		return m, nil
	}
	return m, nil
}

func (m *Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd
	switch m.view {
	case LoginView:
		m.username, cmd = m.username.Update(msg)
		cmds = append(cmds, cmd)
		m.password, cmd = m.password.Update(msg)
		cmds = append(cmds, cmd)
	case WorkoutListView:
		m.workoutList, cmd = m.workoutList.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m *Model) waitForReady() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.session.Ready():
		case <-m.ctx.Done():
			return tea.Quit()
		}
		return sessionResolvedMsg{snap: m.session.Snapshot()}
	}
}

func (m *Model) waitForSnapshot() tea.Cmd {
	ch := m.snapshots
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return nil
		}
		return sessionChangedMsg{snap: snap}
	}
}

func (m *Model) login(username, password string) tea.Cmd {
	return func() tea.Msg {
		return loginDoneMsg{err: m.session.Login(m.ctx, username, password)}
	}
}

func (m *Model) logout() tea.Cmd {
	return func() tea.Msg {
		_ = m.session.Logout(m.ctx)
		return logoutDoneMsg{}
	}
}

func (m *Model) fetchWorkouts() tea.Cmd {
	return func() tea.Msg {
		inProgress, completed, err := m.api.ListAllWorkouts(m.ctx)
		return workoutsFetchedMsg{inProgress: inProgress, completed: completed, err: err}
	}
}

func (m *Model) fetchWorkout(id int64) tea.Cmd {
	return func() tea.Msg {
		w, err := m.api.GetWorkout(m.ctx, id)
		return workoutFetchedMsg{workout: w, err: err}
	}
}

func (m *Model) fetchStats() tea.Cmd {
	return func() tea.Msg {
		stats, err := m.api.StatsOverview(m.ctx)
		return statsFetchedMsg{stats: stats, err: err}
	}
}

func (m *Model) startExport() tea.Cmd {
	ids := make([]int64, 0, len(m.inProgress)+len(m.completed))
	for _, w := range m.inProgress {
		ids = append(ids, w.ID)
	}
	for _, w := range m.completed {
		ids = append(ids, w.ID)
	}

	progressChan := make(chan tasks.ProgressUpdate, 50)
	done := make(chan exportCompleteMsg, 1)
	m.progressChan, m.exportDone = progressChan, done
	m.progress = tasks.ProgressUpdate{Total: len(ids), Message: "Starting export..."}
	m.exportResult, m.exportErr = nil, nil

	opts := tasks.BulkExportOpts{Format: formatter.FormatJSON, OutputDir: m.exportDir}
	go func() {
		result, err := m.engine.BulkExport(m.ctx, progressChan, ids, opts)
		done <- exportCompleteMsg{result: result, err: err}
		close(progressChan)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progressChan, done := m.progressChan, m.exportDone
	if progressChan == nil {
		return nil
	}
	return func() tea.Msg {
		update, ok := <-progressChan
		if !ok {
			return <-done
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) header() string {
	title := "shotlog"
	if m.user != nil {
		title = fmt.Sprintf("shotlog · %s", m.user.Username)
	}
	return styles.title.Render(title)
}

func (m *Model) footer(keys ...key.Binding) string {
	var b strings.Builder
	if m.err != nil {
		b.WriteString(styles.err.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	}
	b.WriteString(m.help.ShortHelpView(keys))
	return b.String()
}

func (m *Model) renderLoading() string {
	return fmt.Sprintf("%s\n%s Restoring session...\n\n%s", m.header(), m.spinner.View(), m.help.ShortHelpView([]key.Binding{m.keys.quit}))
}

func (m *Model) renderLogin() string {
	var b strings.Builder
	b.WriteString(styles.title.Render("Log in to shotlog"))
	b.WriteString("\n")
	b.WriteString(m.username.View())
	b.WriteString("\n")
	b.WriteString(m.password.View())
	b.WriteString("\n\n")
	switch {
	case m.loggingIn:
		b.WriteString(m.spinner.View() + " Logging in...\n\n")
	case m.loginErr != "":
		b.WriteString(styles.err.Render(m.loginErr) + "\n\n")
	}

	submit := key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "log in"))
	quit := key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "quit"))
	b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.next, submit, quit}))
	return b.String()
}

func (m *Model) renderList() string {
	return fmt.Sprintf("%s\n%s\n\n%s", m.header(), m.workoutList.View(),
		m.footer(m.keys.enter, m.keys.stats, m.keys.export, m.keys.reload, m.keys.logout, m.keys.quit))
}

func (m *Model) renderDetail() string {
	if m.selected == nil {
		return m.header()
	}
	w := m.selected
	goal := fmt.Sprintf("%d/%d sessions", w.NumOfSessions, w.TargetSessions)
	if w.Completed() {
		if w.IsSuccessful {
			goal = styles.ok.Render("✓ " + goal + ", goal achieved")
		} else {
			goal = styles.warn.Render("✗ " + goal + ", goal missed")
		}
	}

	body := string(formatter.WorkoutToText(w))
	return fmt.Sprintf("%s\n%s\n%s  %s\n\n%s", m.header(), styles.box.Render(strings.TrimRight(body, "\n")),
		m.bar.ViewAs(w.Progress()), goal, m.footer(m.keys.back, m.keys.logout, m.keys.quit))
}

func (m *Model) renderStats() string {
	if m.stats == nil {
		return m.header()
	}
	body := strings.TrimRight(string(formatter.StatsToText(m.stats)), "\n")
	return fmt.Sprintf("%s\n%s\n\n%s", m.header(), styles.box.Render(body), m.footer(m.keys.back, m.keys.logout, m.keys.quit))
}

func (m *Model) renderExport() string {
	title := styles.title.Render("Exporting Workouts")

	if m.progressChan != nil {
		pct := 0.0
		if m.progress.Total > 0 {
			pct = float64(m.progress.Step) / float64(m.progress.Total)
		}
		return fmt.Sprintf("%s\n%s\n%s", title, m.bar.ViewAs(pct), m.progress.Message)
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.quit})
	if m.exportErr != nil {
		return fmt.Sprintf("%s\n%s\n\n%s", title, styles.err.Render(fmt.Sprintf("Export failed: %v", m.exportErr)), helpView)
	}
	if m.exportResult == nil {
		return fmt.Sprintf("%s\n%s\n\n%s", title, styles.err.Render("No result available"), helpView)
	}

	r := m.exportResult
	summary := styles.ok.Render(fmt.Sprintf("✓ Exported %d/%d workouts", r.SuccessfulExports, r.TotalWorkouts))
	info := fmt.Sprintf("\nDirectory: %s\nManifest: %s", r.OutputDirectory, filepath.Base(r.ManifestPath))

	var failed string
	if r.FailedExports > 0 {
		failed = "\n\n" + styles.warn.Render(fmt.Sprintf("Failed to export %d workouts:", r.FailedExports))
		for _, res := range r.Results {
			if !res.Success {
				failed += fmt.Sprintf("\n  • %s: %v", res.WorkoutName, res.Error)
			}
		}
	}
	return fmt.Sprintf("%s\n%s%s%s\n\n%s", title, summary, info, failed, helpView)
}
