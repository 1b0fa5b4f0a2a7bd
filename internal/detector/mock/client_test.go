package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/framecheck/pkg/models"
)

func TestScriptedClient_RepeatsLastReport(t *testing.T) {
	c := NewScriptedClient("abc", nil,
		models.StatusReport{Status: models.ServiceStatusProcessing, Progress: 10},
		models.StatusReport{Status: models.ServiceStatusCompleted, Progress: 100},
	)
	ctx := context.Background()

	id, err := c.Upload(ctx, models.Upload{})
	require.NoError(t, err)
	assert.Equal(t, "abc", id)

	r1, _ := c.GetStatus(ctx, id)
	r2, _ := c.GetStatus(ctx, id)
	r3, _ := c.GetStatus(ctx, id)
	assert.Equal(t, 10, r1.Progress)
	assert.Equal(t, models.ServiceStatusCompleted, r2.Status)
	assert.Equal(t, r2, r3)
	assert.Equal(t, 3, c.StatusCalls())
	assert.Equal(t, 1, c.UploadCalls())
}

func TestFailingClient(t *testing.T) {
	boom := errors.New("boom")
	c := NewFailingClient(boom)
	ctx := context.Background()

	_, err := c.Upload(ctx, models.Upload{})
	assert.ErrorIs(t, err, boom)
	_, err = c.GetStatus(ctx, "x")
	assert.ErrorIs(t, err, boom)
	_, err = c.GetResults(ctx, "x")
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, c.Ready(ctx), boom)
	assert.Equal(t, 1, c.ResultsCalls())
}

func TestDefaults(t *testing.T) {
	c := &MockClient{}
	res, err := c.GetResults(context.Background(), "x")
	require.NoError(t, err)
	assert.Empty(t, res.FrameResults)
}
