package apply

import (
	"os"

	"github.com/wimlib-go/wimapply/pkg/logging"
)

// pathJoin is a fast alternative to path.Join for the backend path
// vocabulary the core constructs, avoiding the cleaning overhead of the
// standard library's Join for paths that are already known-clean (grounded
// on the same shortcut the teacher uses for its in-memory entry paths).
func pathJoin(prefix string, separator byte, components ...string) string {
	if len(components) == 0 {
		return prefix
	}
	total := len(prefix)
	for _, c := range components {
		total += len(c) + 1
	}
	buf := make([]byte, 0, total)
	buf = append(buf, prefix...)
	for _, c := range components {
		if len(buf) > 0 && buf[len(buf)-1] != separator {
			buf = append(buf, separator)
		}
		buf = append(buf, c...)
	}
	return string(buf)
}

// removeTempFileBestEffort unlinks a spill file, logging (not failing) on
// error, matching the teacher's must.OSRemove convenience for cleanup
// paths that must never become the reason a successful operation reports
// failure.
func removeTempFileBestEffort(path string, logger *logging.Logger) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warnf("unable to remove temporary file %s: %v", path, err)
	}
}
