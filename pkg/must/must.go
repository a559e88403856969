// Package must wraps best-effort cleanup operations whose errors should be
// logged, never propagated — the defer-site convenience the teacher repo
// uses throughout its resource-cleanup paths.
package must

import (
	"io"
	"os"

	"github.com/wimlib-go/wimapply/pkg/logging"
)

// Close closes c, logging (not returning) any error. Used at defer sites
// where the read side of an operation has already succeeded and a close
// failure must not mask that success.
func Close(c io.Closer, logger *logging.Logger) {
	if err := c.Close(); err != nil {
		logger.Warnf("unable to close: %s", err.Error())
	}
}

// OSRemove removes name, logging (not returning) any error. Used to clean
// up spill temp files and partially-written targets on error paths.
func OSRemove(name string, logger *logging.Logger) {
	if err := os.Remove(name); err != nil {
		logger.Warnf("unable to remove '%s': %s", name, err.Error())
	}
}

// IOCopy copies from src to dst, logging (not returning) any error. Used
// where a copy failure has already been converted into a different,
// already-reported error and a second report would be noise.
func IOCopy(dst io.Writer, src io.Reader, logger *logging.Logger) {
	if _, err := io.Copy(dst, src); err != nil {
		logger.Warnf("unable to copy from source to destination: %s", err.Error())
	}
}

// Flush flushes sd, logging (not returning) any error.
func Flush(sd interface{ Flush() error }, logger *logging.Logger) {
	if err := sd.Flush(); err != nil {
		logger.Warnf("unable to flush: %s", err.Error())
	}
}
