// Package buildinfo holds process-wide build and debug identity, kept
// deliberately small: a version string for the CLI's --version output and
// a debug-enabled flag consulted by pkg/logging.
package buildinfo

import (
	"fmt"
	"os"
)

// Version components for this build of wimapply.
const (
	VersionMajor = 0
	VersionMinor = 1
	VersionPatch = 0
)

// Version is the dotted version string derived from the components above.
var Version = fmt.Sprintf("%d.%d.%d", VersionMajor, VersionMinor, VersionPatch)

// DebugEnabled controls whether debug-level log lines are emitted. It is
// set once at process start from the WIMAPPLY_DEBUG environment variable.
var DebugEnabled = os.Getenv("WIMAPPLY_DEBUG") == "1"
