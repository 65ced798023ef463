// SPDX-License-Identifier: MIT

package fsutil

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/renameio/v2"
)

// WriteFileAtomic writes to path through a temp file and an atomic rename.
// The write callback receives the pending file; on any error the temp file
// is cleaned up and the original is left untouched. fsync happens before
// the rename, so a committed file survives power loss.
func WriteFileAtomic(path string, write func(io.Writer) error) (err error) {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() {
		if cleanupErr := pending.Cleanup(); cleanupErr != nil && err == nil {
			err = fmt.Errorf("cleanup pending file: %w", cleanupErr)
		}
	}()

	if err := write(pending); err != nil {
		return fmt.Errorf("write pending file: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace file: %w", err)
	}
	return nil
}

// WriteJSONAtomic marshals v with indentation and writes it atomically.
func WriteJSONAtomic(path string, v any) error {
	return WriteFileAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}
