package txn

import (
	"database/sql"
	"fmt"
	"time"
)

// Status is a transaction's lifecycle state.
type Status int

const (
	// StatusPending means begun but no operation executed yet.
	StatusPending Status = iota + 1
	// StatusActive means at least one operation has executed.
	StatusActive
	// StatusCommitted is the successful terminal state.
	StatusCommitted
	// StatusRolledBack is the undone terminal state.
	StatusRolledBack
	// StatusFailed means commit or rollback itself failed.
	StatusFailed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusActive:
		return "ACTIVE"
	case StatusCommitted:
		return "COMMITTED"
	case StatusRolledBack:
		return "ROLLED_BACK"
	case StatusFailed:
		return "FAILED"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// terminal reports whether the status is immutable.
func (s Status) terminal() bool {
	return s == StatusCommitted || s == StatusRolledBack
}

// Context is the live record of one transaction. It maps 1:1 to one store
// connection for its lifetime; nested contexts borrow the parent's
// connection and never own it. Operations are stored by value in append
// order, and entities are referenced by id, so contexts own no pointers
// into other transactions.
//
// A Context must be driven from one goroutine at a time; distinct contexts
// may run fully concurrently on their own connections.
type Context struct {
	id         string
	status     Status
	conn       *sql.Conn
	ownsConn   bool
	began      bool   // a store-level BEGIN was issued on conn
	parentID   string
	nestedSP   string // hidden store-level savepoint bounding a nested transaction
	operations []Operation
	savepoints map[string]*Savepoint
	createdAt  time.Time
}

// ID returns the transaction id.
func (c *Context) ID() string {
	return c.id
}

// Status returns the current lifecycle state.
func (c *Context) Status() Status {
	return c.status
}

// ParentID returns the parent transaction id, or "" for a root transaction.
func (c *Context) ParentID() string {
	return c.parentID
}

// Operations returns a copy of the recorded operations in append order.
func (c *Context) Operations() []Operation {
	ops := make([]Operation, len(c.operations))
	copy(ops, c.operations)
	return ops
}

// writable reports whether the context accepts new operations.
func (c *Context) writable() bool {
	return c.status == StatusPending || c.status == StatusActive
}
