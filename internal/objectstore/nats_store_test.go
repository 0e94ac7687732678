// Package objectstore_test tests the JetStream audio mirror against an
// embedded NATS server.
package objectstore_test

import (
	"context"
	"testing"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/sfx-batch/internal/objectstore"
)

// startTestServer starts an in-memory NATS server with JetStream enabled.
func startTestServer(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	opts.JetStream = true
	natsServer := test.RunServer(&opts)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	require.NoError(t, err)

	return natsServer, natsConnection
}

func TestStore_UploadDownload(t *testing.T) {
	t.Parallel()

	natsServer, natsConnection := startTestServer(t)
	defer natsServer.Shutdown()
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := objectstore.New(jetstreamContext, "sfx-audio-test")
	require.NoError(t, err)

	ctx := context.Background()
	audioData := []byte("mp3-bytes-for-rain")

	err = store.Upload(ctx, "rain.mp3", audioData)
	require.NoError(t, err)

	downloaded, err := store.Download(ctx, "rain.mp3")
	require.NoError(t, err)
	require.Equal(t, audioData, downloaded)
}

func TestStore_DownloadMissingKey(t *testing.T) {
	t.Parallel()

	natsServer, natsConnection := startTestServer(t)
	defer natsServer.Shutdown()
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := objectstore.New(jetstreamContext, "sfx-audio-missing")
	require.NoError(t, err)

	_, err = store.Download(context.Background(), "never-uploaded.mp3")
	require.Error(t, err)
}

func TestStore_BindsToExistingBucket(t *testing.T) {
	t.Parallel()

	natsServer, natsConnection := startTestServer(t)
	defer natsServer.Shutdown()
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	first, err := objectstore.New(jetstreamContext, "sfx-audio-rebind")
	require.NoError(t, err)

	err = first.Upload(context.Background(), "wind.mp3", []byte("wind"))
	require.NoError(t, err)

	second, err := objectstore.New(jetstreamContext, "sfx-audio-rebind")
	require.NoError(t, err)

	data, err := second.Download(context.Background(), "wind.mp3")
	require.NoError(t, err)
	require.Equal(t, []byte("wind"), data)
}
