package core

import "context"

type (
	// Storage is a durable string-keyed blob store, the local-storage primitive the offline cache sits on.
	// GetItem reports ok=false for a missing key; that is not an error.
	Storage interface {
		GetItem(key string) (value []byte, ok bool, err error)
		SetItem(key string, value []byte) error
		RemoveItem(key string) error
	}

	// StorageCloser is a Storage holding resources (files, connections).
	StorageCloser interface {
		Storage
		Close() error
	}

	// Pinger is implemented by storages that can check their backend is reachable.
	Pinger interface {
		Ping(ctx context.Context) error
	}
)
