// Package tui is the operator board: open requests in status columns, with
// shortcuts for triage, follow-ups and marking requests viewed.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jask/aquaflow/internal/database/repository"
	"github.com/jask/aquaflow/internal/intake"
	"github.com/jask/aquaflow/internal/lifecycle"
	"github.com/jask/aquaflow/internal/pricing"
	"github.com/jask/aquaflow/internal/service"
)

const refreshEvery = 5 * time.Second

type column struct {
	title    string
	statuses []lifecycle.RequestStatus
}

// columns cover the open pipeline; paid and cancelled jobs drop off.
var columns = []column{
	{"New", []lifecycle.RequestStatus{lifecycle.StatusNew, lifecycle.StatusViewed}},
	{"Quoted", []lifecycle.RequestStatus{lifecycle.StatusQuoted}},
	{"Booked", []lifecycle.RequestStatus{lifecycle.StatusAccepted, lifecycle.StatusScheduled}},
	{"On site", []lifecycle.RequestStatus{lifecycle.StatusInProgress}},
	{"Billing", []lifecycle.RequestStatus{lifecycle.StatusCompleted, lifecycle.StatusInvoiced, lifecycle.StatusOverdue, lifecycle.StatusDisputed}},
}

// Board is the bubbletea model.
type Board struct {
	ctx   context.Context
	svc   *service.Services
	actor service.Actor

	cols    [][]repository.Request
	col     int
	row     int
	status  string
	busy    bool
	updated time.Time
	width   int
}

func New(ctx context.Context, svc *service.Services, actor service.Actor) *Board {
	return &Board{
		ctx:   ctx,
		svc:   svc,
		actor: actor,
		cols:  make([][]repository.Request, len(columns)),
	}
}

func (b *Board) Init() tea.Cmd {
	return tea.Batch(b.load(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (b *Board) load() tea.Cmd {
	return func() tea.Msg {
		list, err := b.svc.Requests.List(b.ctx, b.actor)
		if err != nil {
			return errMsg{err}
		}
		return requestsMsg(list)
	}
}

// group buckets requests by column, keeping the list order (newest first).
func group(list []repository.Request) [][]repository.Request {
	out := make([][]repository.Request, len(columns))
	for _, r := range list {
		for i, c := range columns {
			if containsStatus(c.statuses, r.Status) {
				out[i] = append(out[i], r)
				break
			}
		}
	}
	return out
}

func containsStatus(list []lifecycle.RequestStatus, s string) bool {
	for _, st := range list {
		if string(st) == s {
			return true
		}
	}
	return false
}

func (b *Board) selected() *repository.Request {
	if b.col >= len(b.cols) || b.row >= len(b.cols[b.col]) {
		return nil
	}
	return &b.cols[b.col][b.row]
}

func (b *Board) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.KeyMsg:
		return b.handleKey(m)
	case tea.WindowSizeMsg:
		b.width = m.Width
	case tickMsg:
		return b, tea.Batch(b.load(), tick())
	case requestsMsg:
		b.cols = group(m)
		b.updated = time.Now()
		b.clamp()
	case statusMsg:
		b.busy = false
		b.status = string(m)
		return b, b.load()
	case errMsg:
		b.busy = false
		b.status = "error: " + m.Error()
	}
	return b, nil
}

func (b *Board) handleKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.String() {
	case "q", "ctrl+c":
		return b, tea.Quit
	case "left", "h":
		if b.col > 0 {
			b.col--
			b.clamp()
		}
	case "right", "l":
		if b.col < len(columns)-1 {
			b.col++
			b.clamp()
		}
	case "up", "k":
		if b.row > 0 {
			b.row--
		}
	case "down", "j":
		if b.row < len(b.cols[b.col])-1 {
			b.row++
		}
	case "r":
		return b, b.load()
	case "t":
		if r := b.selected(); r != nil && !b.busy {
			b.busy = true
			b.status = "triaging " + shortID(r.ID) + "..."
			return b, b.triageCmd(r.ID)
		}
	case "f":
		if !b.busy {
			b.busy = true
			b.status = "sending follow-ups..."
			return b, b.followUpCmd()
		}
	case "v":
		if r := b.selected(); r != nil && !b.busy {
			b.busy = true
			return b, b.viewedCmd(r.ID)
		}
	}
	return b, nil
}

func (b *Board) clamp() {
	if n := len(b.cols[b.col]); b.row >= n {
		b.row = max(n-1, 0)
	}
}

func (b *Board) triageCmd(id string) tea.Cmd {
	return func() tea.Msg {
		req, err := b.svc.Triage.Run(b.ctx, b.actor, id)
		if err != nil {
			return errMsg{err}
		}
		if req.Triage == nil {
			return statusMsg("triaged " + shortID(id))
		}
		return statusMsg(fmt.Sprintf("triaged %s: priority %d, profit %d", shortID(id), req.Triage.PriorityScore, req.Triage.ProfitabilityScore))
	}
}

func (b *Board) followUpCmd() tea.Cmd {
	return func() tea.Msg {
		res, err := b.svc.FollowUps.Sweep(b.ctx, b.actor)
		if err != nil {
			return errMsg{err}
		}
		return statusMsg(fmt.Sprintf("follow-ups sent %d, failed %d, skipped %d", res.Sent, res.Failed, res.Skipped))
	}
}

func (b *Board) viewedCmd(id string) tea.Cmd {
	return func() tea.Msg {
		if _, err := b.svc.Requests.MarkViewed(b.ctx, b.actor, id); err != nil {
			return errMsg{err}
		}
		return statusMsg("marked " + shortID(id) + " viewed")
	}
}

type requestsMsg []repository.Request

type tickMsg time.Time

type statusMsg string

type errMsg struct{ error }

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Underline(true)
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	columnStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	activeStyle   = columnStyle.BorderForeground(lipgloss.Color("39"))
	selectedStyle = lipgloss.NewStyle().Reverse(true)
	urgentStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Faint(true)
)

func (b *Board) View() string {
	colWidth := 26
	if b.width > 0 {
		colWidth = max(b.width/len(columns)-4, 16)
	}

	rendered := make([]string, len(columns))
	for i, c := range columns {
		var sb strings.Builder
		sb.WriteString(headerStyle.Render(fmt.Sprintf("%s (%d)", c.title, len(b.cols[i]))))
		sb.WriteString("\n")
		if len(b.cols[i]) == 0 {
			sb.WriteString(dimStyle.Render("empty"))
		}
		for j, r := range b.cols[i] {
			line := card(r, colWidth)
			if i == b.col && j == b.row {
				line = selectedStyle.Render(line)
			}
			sb.WriteString(line + "\n")
		}
		style := columnStyle
		if i == b.col {
			style = activeStyle
		}
		rendered[i] = style.Width(colWidth).Render(sb.String())
	}

	var out strings.Builder
	out.WriteString(titleStyle.Render("AquaFlow board"))
	if !b.updated.IsZero() {
		out.WriteString(dimStyle.Render("  updated " + b.updated.Format("15:04:05")))
	}
	out.WriteString("\n\n")
	out.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, rendered...))
	out.WriteString("\n\n")
	if r := b.selected(); r != nil {
		out.WriteString(detail(r) + "\n\n")
	}
	if b.status != "" {
		out.WriteString(b.status + "\n")
	}
	out.WriteString(dimStyle.Render("←/→ column  ↑/↓ select  t triage  f follow-ups  v viewed  r refresh  q quit"))
	return out.String()
}

func card(r repository.Request, width int) string {
	name := truncate(r.CustomerName, width-2)
	cat := truncate(intake.Label(r.ProblemCategory), width-2)
	line := name + "\n  " + dimStyle.Render(cat)
	if r.IsEmergency {
		line = urgentStyle.Render("! ") + line
	}
	return line
}

func detail(r *repository.Request) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s  %s  [%s]\n", shortID(r.ID), r.CustomerName, r.Status)
	fmt.Fprintf(&sb, "%s\n", r.ServiceAddress)
	fmt.Fprintf(&sb, "%s", truncate(r.ProblemDescription, 100))
	if r.Triage != nil {
		fmt.Fprintf(&sb, "\ntriage: %s (priority %d, profit %d)", r.Triage.Summary, r.Triage.PriorityScore, r.Triage.ProfitabilityScore)
	}
	for _, q := range r.Quotes {
		fmt.Fprintf(&sb, "\nquote #%d %s %s", q.QuoteNumber, pricing.FormatCents(q.TotalCents), q.Status)
	}
	return sb.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 1 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
