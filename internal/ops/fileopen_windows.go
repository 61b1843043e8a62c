//go:build windows

package ops

import (
	"os"

	"github.com/hpungsan/chunkwise/internal/errors"
)

// openExport opens an export for reading.
// O_NOFOLLOW is not available on Windows; ValidateExportPath has already
// refused symlinks.
func openExport(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFound(path)
		}
		return nil, err
	}
	return f, nil
}
