package storage

import "errors"

// ErrNotFound is returned by Retrieve when no blob exists under the name
var ErrNotFound = errors.New("blob not found")

// StorageInterface defines the contract for blob storage operations
type StorageInterface interface {
	Store(name string, data []byte) error
	Retrieve(name string) ([]byte, error)
	List(prefix string) ([]string, error)
	Delete(name string) error
}
