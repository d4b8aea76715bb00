// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

//go:build integration

package media_test

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rentloop/rentloop/internal/media"
)

func startMongo(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "27017/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("mongodb://%s:%s", host, port.Port())
}

func TestStore_GridFSRoundTrip(t *testing.T) {
	ctx := context.Background()
	client, err := media.Connect(ctx, startMongo(t), 20*time.Second)
	require.NoError(t, err)
	defer client.Disconnect(ctx)

	store, err := media.NewStore(client.Database("rentloop_test"), media.Config{Bucket: "images"})
	require.NoError(t, err)

	handle, err := store.Upload(ctx, []byte{0xff, 0xd8, 0xff, 0xe0}, "image/jpeg")
	require.NoError(t, err)

	rc, contentType, err := store.Open(ctx, handle)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, []byte{0xff, 0xd8, 0xff, 0xe0}, data)
	assert.Equal(t, "image/jpeg", contentType)

	require.NoError(t, store.Delete(ctx, handle))
	require.NoError(t, store.Delete(ctx, handle))

	_, _, err = store.Open(ctx, handle)
	assert.ErrorIs(t, err, media.ErrNotFound)
}
