// SPDX-License-Identifier: MIT
package main

import (
	"os"

	"entrain/cmd"
	applog "entrain/internal/log"
	"entrain/pkg/build"
)

func main() {
	if err := build.Initialize(); err != nil {
		applog.Fatalf("%v", err)
	}

	if err := cmd.Execute(); err != nil {
		applog.Errorf("%v", err)
		os.Exit(1)
	}
}
