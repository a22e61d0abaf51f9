package helpers

import "io"

// ReadAllAndClose drains r and closes it. Fully reading response bodies
// keeps HTTP connections reusable.
func ReadAllAndClose(r io.ReadCloser) ([]byte, error) {
	defer r.Close()
	return io.ReadAll(r)
}
