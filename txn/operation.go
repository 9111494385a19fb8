package txn

import (
	"fmt"
	"time"

	"github.com/poiesic/docsync/core"
)

// OpType identifies the kind of mutation an operation performs.
type OpType int

const (
	// OpCreate inserts a new entity.
	OpCreate OpType = iota + 1
	// OpUpdate overwrites an existing entity.
	OpUpdate
	// OpDelete removes an existing entity.
	OpDelete
)

// String returns the operation type name.
func (t OpType) String() string {
	switch t {
	case OpCreate:
		return "CREATE"
	case OpUpdate:
		return "UPDATE"
	case OpDelete:
		return "DELETE"
	}
	return fmt.Sprintf("OpType(%d)", int(t))
}

// OpTarget identifies the entity kind an operation mutates.
type OpTarget int

const (
	// TargetCollection targets a collection row.
	TargetCollection OpTarget = iota + 1
	// TargetDocument targets a document row.
	TargetDocument
	// TargetChunk targets a chunk row.
	TargetChunk
)

// String returns the target name.
func (t OpTarget) String() string {
	switch t {
	case TargetCollection:
		return "collection"
	case TargetDocument:
		return "document"
	case TargetChunk:
		return "chunk"
	}
	return fmt.Sprintf("OpTarget(%d)", int(t))
}

// EntityData carries exactly one entity, matching the operation's target.
// It is a closed union over the three mutable entity kinds; the executor and
// rollback engine dispatch on the operation target, never on runtime type.
type EntityData struct {
	Collection *core.Collection
	Document   *core.Document
	Chunk      *core.Chunk
}

// IsZero reports whether no entity is set.
func (d EntityData) IsZero() bool {
	return d.Collection == nil && d.Document == nil && d.Chunk == nil
}

// Operation is one typed relational mutation recorded inside a transaction.
// RollbackData holds the pre-image captured before the mutation was applied;
// it is what makes the operation invertible. Operations are immutable once
// appended to a transaction, except for being spliced out during a savepoint
// rollback.
type Operation struct {
	Type         OpType
	Target       OpTarget
	TargetID     string
	Data         EntityData
	RollbackData EntityData
	Timestamp    time.Time
}

// CreateCollection builds a create operation for a collection.
func CreateCollection(c *core.Collection) Operation {
	return Operation{Type: OpCreate, Target: TargetCollection, TargetID: c.Id,
		Data: EntityData{Collection: c}}
}

// UpdateCollection builds an update operation for a collection.
func UpdateCollection(c *core.Collection) Operation {
	return Operation{Type: OpUpdate, Target: TargetCollection, TargetID: c.Id,
		Data: EntityData{Collection: c}}
}

// DeleteCollection builds a delete operation for a collection.
func DeleteCollection(id string) Operation {
	return Operation{Type: OpDelete, Target: TargetCollection, TargetID: id}
}

// CreateDocument builds a create operation for a document.
func CreateDocument(d *core.Document) Operation {
	return Operation{Type: OpCreate, Target: TargetDocument, TargetID: d.Id,
		Data: EntityData{Document: d}}
}

// UpdateDocument builds an update operation for a document.
func UpdateDocument(d *core.Document) Operation {
	return Operation{Type: OpUpdate, Target: TargetDocument, TargetID: d.Id,
		Data: EntityData{Document: d}}
}

// DeleteDocument builds a delete operation for a document.
func DeleteDocument(id string) Operation {
	return Operation{Type: OpDelete, Target: TargetDocument, TargetID: id}
}

// CreateChunk builds a create operation for a chunk.
func CreateChunk(c *core.Chunk) Operation {
	return Operation{Type: OpCreate, Target: TargetChunk, TargetID: string(c.PointId),
		Data: EntityData{Chunk: c}}
}

// UpdateChunk builds an update operation for a chunk.
func UpdateChunk(c *core.Chunk) Operation {
	return Operation{Type: OpUpdate, Target: TargetChunk, TargetID: string(c.PointId),
		Data: EntityData{Chunk: c}}
}

// DeleteChunk builds a delete operation for a chunk.
func DeleteChunk(pointID core.PointID) Operation {
	return Operation{Type: OpDelete, Target: TargetChunk, TargetID: string(pointID)}
}
