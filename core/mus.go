package core

import (
	"github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// MUS serializers for the types persisted in the vector index backend.
var (
	PointIDMUS     = pointIDSer{}
	VectorPointMUS = vectorPointSer{}
)

var float32SliceMUS = ord.NewSliceSer[float32](varint.Float32)

type pointIDSer struct{}

var _ mus.Serializer[PointID] = pointIDSer{}

func (pointIDSer) Marshal(v PointID, bs []byte) int {
	return ord.String.Marshal(string(v), bs)
}

func (pointIDSer) Unmarshal(bs []byte) (PointID, int, error) {
	s, n, err := ord.String.Unmarshal(bs)
	return PointID(s), n, err
}

func (pointIDSer) Size(v PointID) int {
	return ord.String.Size(string(v))
}

func (pointIDSer) Skip(bs []byte) (int, error) {
	return ord.String.Skip(bs)
}

type vectorPointSer struct{}

var _ mus.Serializer[VectorPoint] = vectorPointSer{}

func (vectorPointSer) Marshal(v VectorPoint, bs []byte) (n int) {
	n = PointIDMUS.Marshal(v.Id, bs)
	n += ord.String.Marshal(v.DocId, bs[n:])
	n += varint.Int.Marshal(v.Ord, bs[n:])
	n += float32SliceMUS.Marshal(v.Vector, bs[n:])
	return n
}

func (vectorPointSer) Unmarshal(bs []byte) (v VectorPoint, n int, err error) {
	var n1 int
	v.Id, n, err = PointIDMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	v.DocId, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Ord, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Vector, n1, err = float32SliceMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (vectorPointSer) Size(v VectorPoint) (size int) {
	size = PointIDMUS.Size(v.Id)
	size += ord.String.Size(v.DocId)
	size += varint.Int.Size(v.Ord)
	size += float32SliceMUS.Size(v.Vector)
	return size
}

func (vectorPointSer) Skip(bs []byte) (n int, err error) {
	var n1 int
	n, err = PointIDMUS.Skip(bs)
	if err != nil {
		return
	}
	n1, err = ord.String.Skip(bs[n:])
	n += n1
	if err != nil {
		return
	}
	n1, err = varint.Int.Skip(bs[n:])
	n += n1
	if err != nil {
		return
	}
	n1, err = float32SliceMUS.Skip(bs[n:])
	n += n1
	return
}
