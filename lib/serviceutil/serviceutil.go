// Package serviceutil holds small helpers shared by command binaries.
package serviceutil

import (
	"log/slog"
	"os"
)

// Fatal logs the error and exits. Only for use at the top level of a
// binary, libraries return their errors.
func Fatal(message string, err error) {
	slog.Error(message, "err", err)
	os.Exit(1)
}
