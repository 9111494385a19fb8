package badger

import (
	"context"
	"math"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/storage"
)

// PointRepository implements storage.VectorStore for BadgerDB.
// Each collection gets its own key namespace; points are addressed by their
// deterministic PointID so upserts are idempotent.
type PointRepository struct {
	backend *Backend
}

var _ storage.VectorStore = (*PointRepository)(nil)

// NewPointRepository creates a new PointRepository.
func NewPointRepository(backend *Backend) *PointRepository {
	return &PointRepository{backend: backend}
}

// UpsertCollection inserts or replaces points in a collection's index.
// Vectors are normalized on write so similarity search can use the dot
// product as cosine similarity.
func (r *PointRepository) UpsertCollection(ctx context.Context, collectionID string, points []*core.VectorPoint) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, point := range points {
			stored := *point
			stored.Vector = NormalizeVector(point.Vector)

			key := makePointKey(collectionID, point.Id)
			if err := tx.Set(key, storage.MarshalVectorPoint(&stored)); err != nil {
				return err
			}

			indexKey := makeDocIndexKey(collectionID, point.DocId, point.Id)
			if err := tx.Set(indexKey, storage.MarshalPointID(point.Id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// DeletePointsByDoc removes every point belonging to a document.
func (r *PointRepository) DeletePointsByDoc(ctx context.Context, collectionID, docID string) error {
	ids, err := r.pointIDsByDoc(collectionID, docID)
	if err != nil {
		return err
	}
	return r.DeletePoints(ctx, collectionID, ids)
}

// DeletePointsByCollection removes every point in a collection.
func (r *PointRepository) DeletePointsByCollection(ctx context.Context, collectionID string) error {
	keys, err := r.collectKeys(makeCollectionPrefix(collectionID))
	if err != nil {
		return err
	}
	indexKeys, err := r.collectKeys(makeDocIndexCollectionPrefix(collectionID))
	if err != nil {
		return err
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, key := range append(keys, indexKeys...) {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// DeletePoints removes specific points from a collection.
// Missing points are ignored.
func (r *PointRepository) DeletePoints(ctx context.Context, collectionID string, ids []core.PointID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			key := makePointKey(collectionID, id)

			// Need the stored point to locate its doc index entry.
			item, err := tx.Get(key)
			if err != nil {
				if err == badger.ErrKeyNotFound {
					continue
				}
				return err
			}
			var point *core.VectorPoint
			err = item.Value(func(val []byte) error {
				var err error
				point, err = storage.UnmarshalVectorPoint(val)
				return err
			})
			if err != nil {
				return err
			}

			if err := tx.Delete(makeDocIndexKey(collectionID, point.DocId, id)); err != nil {
				return err
			}
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// SearchCollection finds points similar to the query vector.
// The query is normalized, so the dot product against stored (normalized)
// vectors is cosine similarity.
func (r *PointRepository) SearchCollection(ctx context.Context, collectionID string, vector []float32, minScore float32, limit int) ([]*core.SimilarityMatch, error) {
	query := NormalizeVector(vector)

	var results []*core.SimilarityMatch
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeCollectionPrefix(collectionID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var point *core.VectorPoint
			err := iter.Item().Value(func(val []byte) error {
				var err error
				point, err = storage.UnmarshalVectorPoint(val)
				return err
			})
			if err != nil {
				return err
			}
			if point == nil || len(point.Vector) == 0 {
				continue
			}

			score := dotProduct(query, point.Vector)
			if score >= minScore {
				results = append(results, &core.SimilarityMatch{
					PointId: point.Id,
					DocId:   point.DocId,
					Score:   score,
				})
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	// Sort by score descending
	slices.SortFunc(results, func(a, b *core.SimilarityMatch) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Close closes the underlying backend.
func (r *PointRepository) Close() error {
	return r.backend.Close()
}

func (r *PointRepository) pointIDsByDoc(collectionID, docID string) ([]core.PointID, error) {
	var ids []core.PointID
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeDocIndexPrefix(collectionID, docID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				id, err := storage.UnmarshalPointID(val)
				if err != nil {
					return err
				}
				ids = append(ids, id)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	return ids, err
}

func (r *PointRepository) collectKeys(prefix []byte) ([][]byte, error) {
	var keys [][]byte
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			keys = append(keys, iter.Item().KeyCopy(nil))
		}
		return nil
	}, false)
	return keys, err
}

// NormalizeVector normalizes a vector to unit length.
// Returns a new vector. If the input is a zero vector, returns a zero vector.
func NormalizeVector(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}

	var magnitude float32
	for _, val := range v {
		magnitude += val * val
	}
	magnitude = float32(math.Sqrt(float64(magnitude)))

	if magnitude == 0 {
		return make([]float32, len(v))
	}

	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / magnitude
	}
	return result
}

// dotProduct calculates the dot product of two vectors.
func dotProduct(a, b []float32) float32 {
	var sum float32
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	for i := 0; i < minLen; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
