// Package core defines the object storage contract that snapshot stores
// write through. Implementations live in the fs, memory and s3 packages.
package core

import (
	"context"
	"io"
	"maps"
	"time"

	"gitlab.com/tozd/go/errors"
)

// Driver names a backend. Values match the blob.driver config key.
type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
	DriverMemory     Driver = "memory"
)

// PutOptions carries the optional attributes of a new object.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Info is what a backend knows about one object without reading its body.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is a flat key space of write-once objects. Put on an existing key
// fails with ErrExists; List returns keys in lexical order.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

var (
	ErrExists   = errors.Base("blob already exists")
	ErrNotFound = errors.Base("blob not found")
)

// CloneMetadata returns a copy of in, or nil for a nil map.
func CloneMetadata(in map[string]string) map[string]string {
	return maps.Clone(in)
}
