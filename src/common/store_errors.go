package common

import "fmt"

// StoreErrType enumerates the failure kinds reported by the share store.
type StoreErrType uint32

const (
	// KeyNotFound is returned when a lookup misses.
	KeyNotFound StoreErrType = iota
	// KeyAlreadyExists is returned when an immutable record is written twice.
	KeyAlreadyExists
	// UnknownParent is returned when a share references a previous share the
	// store has never seen.
	UnknownParent
	// Empty is returned when a record is missing its mandatory content.
	Empty
	// Closed is returned when the underlying database was already closed.
	Closed
)

// StoreErr ...
type StoreErr struct {
	dataType string
	errType  StoreErrType
	key      string
}

// NewStoreErr ...
func NewStoreErr(dataType string, errType StoreErrType, key string) StoreErr {
	return StoreErr{
		dataType: dataType,
		errType:  errType,
		key:      key,
	}
}

// Error ...
func (e StoreErr) Error() string {
	m := ""
	switch e.errType {
	case KeyNotFound:
		m = "Not Found"
	case KeyAlreadyExists:
		m = "Key Already Exists"
	case UnknownParent:
		m = "Unknown Parent"
	case Empty:
		m = "Empty"
	case Closed:
		m = "Closed"
	}

	return fmt.Sprintf("%s, %s, %s", e.dataType, e.key, m)
}

// IsStore checks that an error is of type StoreErr and that it's code matches
// the provided StoreErr code.
func IsStore(err error, t StoreErrType) bool {
	storeErr, ok := err.(StoreErr)
	return ok && storeErr.errType == t
}
