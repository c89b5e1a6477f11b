// Command admin maintains the gradewatch user database and runs the prediction
// pipeline from the shell.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
