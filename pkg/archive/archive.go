// Package archive records recognizer audio into an object store.
//
// A Store holds named objects on local disk or in an S3-compatible bucket.
// A Recorder cuts the 16 kHz mono blocks handed to the recognizer into WAV
// segments and writes one object per segment, grouped by session.
package archive

import (
	"context"
	"io"
)

// Store is a minimal interface for object-oriented storage.
//
// Names are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type Store interface {
	// Read opens the named object for reading. The caller must close it.
	// A missing object yields an error wrapping os.ErrNotExist.
	Read(ctx context.Context, name string) (io.ReadCloser, error)

	// Write opens the named object for writing, replacing any previous
	// content. The object is complete once the writer is closed.
	Write(ctx context.Context, name string) (io.WriteCloser, error)

	// Delete removes the named object. Deleting a missing object is not an
	// error.
	Delete(ctx context.Context, name string) error

	// Exists reports whether the named object exists.
	Exists(ctx context.Context, name string) (bool, error)
}
