package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mishka251/goszakupki-parces/internal/progress"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestUpdateRegionProgress(t *testing.T) {
	m := NewAppModel(context.Background(), []string{"Moskva", "Adygeja_Resp"}, nil, discard())
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	m.Update(RegionProgressMsg{Region: "Moskva", Percent: 33, Done: 1, Total: 3})
	m.Update(RegionProgressMsg{Region: "Moskva", Percent: 10, Done: 1, Total: 3})
	assert.Equal(t, 33, m.regions["Moskva"].Percent)
	assert.Equal(t, StatusLoading, m.regions["Moskva"].Status)
	assert.Equal(t, StatusQueued, m.regions["Adygeja_Resp"].Status)

	m.Update(RegionProgressMsg{Region: "Moskva", Percent: 100, Done: 3, Total: 3})
	assert.Equal(t, StatusComplete, m.regions["Moskva"].Status)
	assert.InDelta(t, 0.5, m.overallPercent(), 1e-9)

	view := m.View()
	assert.Contains(t, view, "Moskva")
	assert.Contains(t, view, "Regions loaded: 1/2")

	_, cmd := m.Update(NewTaskFinished(time.Now(), errors.New("Adygeja_Resp: connection refused")))
	require.NotNil(t, cmd)
	assert.Equal(t, ShowError, m.State)
	assert.Contains(t, m.View(), "connection refused")
}

func TestQuitCancelsTask(t *testing.T) {
	m := NewAppModel(context.Background(), nil, nil, discard())
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, Exiting, m.State)
	assert.Error(t, m.ctx.Err())
}

func TestStartTaskStreamsProgress(t *testing.T) {
	task := func(ctx context.Context, rep progress.Reporter) error {
		tr := progress.NewTracker("Moskva", 2, rep)
		tr.FileDone("a.zip")
		tr.FileDone("b.zip")
		return nil
	}
	m := NewAppModel(context.Background(), []string{"Moskva"}, task, discard())
	m.startTask()()

	var got []tea.Msg
	for msg := range m.uiMsgChan {
		got = append(got, msg)
		m.Update(msg)
	}
	require.NoError(t, m.Wait())
	require.NotEmpty(t, got)

	last, ok := got[len(got)-1].(TaskFinishedMsg)
	require.True(t, ok)
	assert.NoError(t, last.Err)
	assert.Equal(t, Finished, m.State)
	assert.Equal(t, 100, m.regions["Moskva"].Percent)
}
