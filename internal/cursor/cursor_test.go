package cursor

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestCountStagesAppendsCount(t *testing.T) {
	match := bson.D{{Key: "$match", Value: bson.D{{Key: "active", Value: true}}}}
	stages := countStages([]bson.D{match})
	require.Equal(t, bson.A{match, bson.D{{Key: "$count", Value: "totalDocuments"}}}, stages)
}

func TestCountStagesEmptyPipeline(t *testing.T) {
	require.Equal(t, bson.A{bson.D{{Key: "$count", Value: "totalDocuments"}}}, countStages(nil))
}

func TestCountStagesDropsTrailingWrite(t *testing.T) {
	match := bson.D{{Key: "$match", Value: bson.D{}}}
	for _, write := range []bson.D{
		{{Key: "$out", Value: "archive"}},
		{{Key: "$merge", Value: bson.D{{Key: "into", Value: "archive"}}}},
	} {
		stages := countStages([]bson.D{match, write})
		require.Equal(t, bson.A{match, bson.D{{Key: "$count", Value: "totalDocuments"}}}, stages, "%v", write)
	}
}

func TestCountStagesLeavesCallerPipelineAlone(t *testing.T) {
	pipeline := []bson.D{
		{{Key: "$match", Value: bson.D{}}},
		{{Key: "$out", Value: "archive"}},
	}
	countStages(pipeline)
	require.Len(t, pipeline, 2)
	require.Equal(t, "$out", pipeline[1][0].Key)
}
