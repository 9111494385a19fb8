package storage

import (
	"testing"

	"github.com/poiesic/docsync/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorPointRoundTrip(t *testing.T) {
	point := &core.VectorPoint{
		Id:     core.NewPointID("doc-1", 3, "some chunk text"),
		DocId:  "doc-1",
		Ord:    3,
		Vector: []float32{0.25, -0.5, 1.0, 0.0},
	}

	data := MarshalVectorPoint(point)
	got, err := UnmarshalVectorPoint(data)
	require.NoError(t, err)

	assert.Equal(t, point.Id, got.Id)
	assert.Equal(t, point.DocId, got.DocId)
	assert.Equal(t, point.Ord, got.Ord)
	assert.Equal(t, point.Vector, got.Vector)
}

func TestVectorPointEmptyVector(t *testing.T) {
	point := &core.VectorPoint{
		Id:    core.NewPointID("doc-1", 0, ""),
		DocId: "doc-1",
	}

	got, err := UnmarshalVectorPoint(MarshalVectorPoint(point))
	require.NoError(t, err)
	assert.Empty(t, got.Vector)
}

func TestUnmarshalVectorPointTruncated(t *testing.T) {
	point := &core.VectorPoint{
		Id:     core.NewPointID("doc-1", 0, "text"),
		DocId:  "doc-1",
		Vector: []float32{1, 2, 3},
	}
	data := MarshalVectorPoint(point)

	_, err := UnmarshalVectorPoint(data[:len(data)/2])
	assert.ErrorIs(t, err, ErrSerializationFailed)
}
