package main

import "errors"

// exitSyncFailures is the exit status when a sync pass finished with
// per-file failures.
const exitSyncFailures = 2

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, errSyncIncomplete) {
			exitWithCode(err, exitSyncFailures)
		}

		exitOnError(err)
	}
}
