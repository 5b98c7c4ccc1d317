package tui

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jask/aquaflow/internal/database/dbtest"
	"github.com/jask/aquaflow/internal/database/repository"
	"github.com/jask/aquaflow/internal/llm"
	"github.com/jask/aquaflow/internal/service"
)

var operator = service.Actor{UserID: "ops", Role: repository.RoleAdmin}

func TestGroupByColumn(t *testing.T) {
	t.Parallel()
	cols := group([]repository.Request{
		{ID: "a", Status: "new"},
		{ID: "b", Status: "viewed"},
		{ID: "c", Status: "scheduled"},
		{ID: "d", Status: "paid"},
		{ID: "e", Status: "overdue"},
	})
	require.Len(t, cols, len(columns))
	require.Len(t, cols[0], 2)
	require.Empty(t, cols[1])
	require.Equal(t, "c", cols[2][0].ID)
	require.Equal(t, "e", cols[4][0].ID)
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestNavigationClampsToColumn(t *testing.T) {
	t.Parallel()
	b := New(context.Background(), nil, operator)
	b.Update(requestsMsg{{ID: "a", Status: "new"}, {ID: "b", Status: "new"}, {ID: "c", Status: "quoted"}})

	b.Update(key("j"))
	require.Equal(t, "b", b.selected().ID)
	b.Update(key("j"))
	require.Equal(t, "b", b.selected().ID)

	b.Update(key("l"))
	require.Equal(t, "c", b.selected().ID)
	b.Update(key("l"))
	require.Nil(t, b.selected())

	_, cmd := b.Update(key("q"))
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
}

func TestViewedAndTriageCommands(t *testing.T) {
	t.Parallel()
	db := dbtest.Open(t)
	svc := service.New(service.Deps{DB: db, LLM: llm.NewHeuristicProvider(), Logger: zap.NewNop()})
	ctx := context.Background()
	req, err := svc.Requests.Submit(ctx, service.Actor{UserID: "cust-1", Role: repository.RoleCustomer}, service.SubmitInput{
		CustomerName:       "Pat",
		ServiceAddress:     "1 Main St",
		ContactInfo:        "pat@example.com",
		ProblemCategory:    "perimeter_drains",
		ProblemDescription: "Shower drain backs up",
	})
	require.NoError(t, err)

	b := New(ctx, svc, operator)
	msg := b.load()()
	b.Update(msg)
	require.Equal(t, req.ID, b.selected().ID)

	_, cmd := b.Update(key("t"))
	require.True(t, b.busy)
	done := cmd()
	require.IsType(t, statusMsg(""), done)
	b.Update(done)
	require.False(t, b.busy)
	require.Contains(t, b.status, "triaged")

	_, cmd = b.Update(key("v"))
	require.IsType(t, statusMsg(""), cmd())

	got, err := svc.Requests.Get(ctx, operator, req.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Triage)
	require.Contains(t, b.View(), "AquaFlow board")
}

func TestTickReloads(t *testing.T) {
	t.Parallel()
	b := New(context.Background(), nil, operator)
	_, cmd := b.Update(tickMsg(time.Now()))
	require.NotNil(t, cmd)
}
