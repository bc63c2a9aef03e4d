package main

import "errors"

// errBackupIncomplete marks a backup that ran to the end with some files
// failing. It exits with exitPartial so schedulers can tell it apart from a
// run that never started.
var errBackupIncomplete = errors.New("some files were not backed up")

const exitPartial = 2

func main() {
	if err := newRootCmd().Execute(); err != nil {
		exitOnError(err)
	}
}
