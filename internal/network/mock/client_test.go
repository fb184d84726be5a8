package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunedrift/tunedrift/internal/network"
)

func TestClientSearchEmitsScriptedResults(t *testing.T) {
	ctx := context.Background()
	c := New("me")
	require.NoError(t, c.Connect(ctx))

	c.Script("artist song",
		network.FileResult{Username: "a", Path: "1.mp3"},
		network.FileResult{Username: "b", Path: "2.mp3"},
		network.FileResult{Username: "a", Path: "3.mp3"},
	)

	token, err := c.Search(ctx, "artist song")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "artist song", c.Query(token))

	events := c.DrainEvents()
	require.Len(t, events, 3) // login + two peers
	first, ok := events[1].(network.SearchResultEvent)
	require.True(t, ok)
	assert.Equal(t, "a", first.Username)
	assert.Len(t, first.Results, 2)

	assert.Empty(t, c.DrainEvents())
}

func TestClientRequiresConnection(t *testing.T) {
	c := New("me")
	_, err := c.Search(context.Background(), "x")
	assert.ErrorIs(t, err, network.ErrNotConnected)
	err = c.EnqueueDownload(context.Background(), network.DownloadRequest{Username: "a", Path: "b"})
	assert.ErrorIs(t, err, network.ErrNotConnected)
}

func TestClientTransferLifecycle(t *testing.T) {
	ctx := context.Background()
	c := New("me")
	require.NoError(t, c.Connect(ctx))
	c.DrainEvents()

	require.NoError(t, c.EnqueueDownload(ctx, network.DownloadRequest{Username: "peer", Path: `x\y.mp3`, Size: 100}))
	id := network.Identity("peer", `x\y.mp3`)
	require.NoError(t, c.UpdateTransfer(id, network.StatusTransferring, 50, 10))
	assert.ErrorIs(t, c.UpdateTransfer("nobody:nothing", network.StatusFinished, 0, 0), network.ErrTransferNotFound)

	events := c.DrainEvents()
	require.Len(t, events, 2)
	last := events[1].(network.TransferEvent).Transfer
	assert.Equal(t, network.StatusTransferring, last.Status)
	assert.EqualValues(t, 50, last.BytesTransferred)

	require.NoError(t, c.AbortTransfer(ctx, last))
	assert.Len(t, c.Aborted, 1)
	assert.Equal(t, network.StatusCancelled, c.Transfers()[0].Status)
}
