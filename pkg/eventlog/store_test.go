package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestStoreRecord(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("inserts event", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		store := New(mt.DB)

		err := store.Record(context.Background(), Event{Type: TypeQRScan, UserID: "u1", Success: true})
		require.NoError(mt, err)

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		assert.Equal(mt, "insert", started.CommandName)
	})

	mt.Run("surfaces write errors", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key"}))
		store := New(mt.DB)

		err := store.Record(context.Background(), Event{Type: TypeDeparture, UserID: "u1"})
		assert.Error(mt, err)
	})
}

func TestStoreRecent(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("decodes newest events", func(mt *mtest.T) {
		ns := mt.DB.Name() + "." + CollectionName
		ts := time.Date(2024, 3, 21, 9, 0, 0, 0, time.UTC)
		first := mtest.CreateCursorResponse(1, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: primitive.NewObjectID()},
			{Key: "timestamp", Value: ts},
			{Key: "type", Value: TypeFaceVerification},
			{Key: "user_id", Value: "u1"},
			{Key: "success", Value: false},
			{Key: "message", Value: "face mismatch"},
		})
		end := mtest.CreateCursorResponse(0, ns, mtest.NextBatch)
		mt.AddMockResponses(first, end)

		events, err := New(mt.DB).Recent(context.Background(), "u1", 10)
		require.NoError(mt, err)
		require.Len(mt, events, 1)
		assert.Equal(mt, TypeFaceVerification, events[0].Type)
		assert.False(mt, events[0].Success)
		assert.True(mt, events[0].Timestamp.Equal(ts))
	})
}
