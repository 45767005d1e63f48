// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError makes main exit with Code without printing anything. The
// command has already reported the problem itself.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode is checked by main.
func (e *ExitError) ExitCode() int {
	return e.Code
}
