package mongodb

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionNotConnected(t *testing.T) {
	s := NewSession("mongomcp-test")
	ctx := context.Background()
	require.False(t, s.Connected())

	_, err := s.ListDatabases(ctx)
	require.ErrorIs(t, err, ErrNotConnected)
	_, err = s.ListCollections(ctx, "db")
	require.ErrorIs(t, err, ErrNotConnected)
	_, err = s.Find(ctx, "db", "c", FindQuery{})
	require.ErrorIs(t, err, ErrNotConnected)
	_, err = s.Aggregate(ctx, "db", "c", nil)
	require.ErrorIs(t, err, ErrNotConnected)
	_, err = s.Count(ctx, "db", "c", nil, 10)
	require.ErrorIs(t, err, ErrNotConnected)
	_, err = s.InsertMany(ctx, "db", "c", nil)
	require.ErrorIs(t, err, ErrNotConnected)
	_, err = s.DeleteMany(ctx, "db", "c", nil)
	require.ErrorIs(t, err, ErrNotConnected)
	_, err = s.UpdateMany(ctx, "db", "c", nil, nil, false)
	require.ErrorIs(t, err, ErrNotConnected)
	require.True(t, errors.Is(s.DropCollection(ctx, "db", "c"), ErrNotConnected))

	require.NoError(t, s.Disconnect(ctx))
}

func TestSessionConnectRequiresURI(t *testing.T) {
	s := NewSession("mongomcp-test")
	require.Error(t, s.Connect(context.Background(), ""))
	require.False(t, s.Connected())
}

func TestSessionConnectRejectsMalformedURI(t *testing.T) {
	s := NewSession("mongomcp-test")
	err := s.Connect(context.Background(), "not-a-mongodb-uri")
	require.ErrorContains(t, err, "connect")
	require.False(t, s.Connected())
}
