package badger

import (
	"fmt"

	"github.com/poiesic/docsync/core"
)

// Key prefixes for the vector index
const (
	pointPrefix    = "vecpt"
	docIndexPrefix = "vecdoc"
)

// makePointKey generates a key for a point in a collection's namespace.
// Format: prefix:collectionID:pointID
func makePointKey(collectionID string, pointID core.PointID) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s", pointPrefix, collectionID, pointID))
}

// makeCollectionPrefix generates the scan prefix for a collection's points.
func makeCollectionPrefix(collectionID string) []byte {
	return []byte(fmt.Sprintf("%s:%s:", pointPrefix, collectionID))
}

// makeDocIndexKey generates a composite key for the document index.
// Format: prefix:collectionID:docID:pointID
func makeDocIndexKey(collectionID, docID string, pointID core.PointID) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s:%s", docIndexPrefix, collectionID, docID, pointID))
}

// makeDocIndexPrefix generates the scan prefix for a document's index entries.
func makeDocIndexPrefix(collectionID, docID string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s:", docIndexPrefix, collectionID, docID))
}

// makeDocIndexCollectionPrefix generates the scan prefix for every index
// entry in a collection.
func makeDocIndexCollectionPrefix(collectionID string) []byte {
	return []byte(fmt.Sprintf("%s:%s:", docIndexPrefix, collectionID))
}
