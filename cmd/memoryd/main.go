// Memoryd is a multi-tenant agent memory daemon: it stores an append-only
// event log per tenant, derives effective chunks through non-destructive
// memory surgery, retrieves evidence lexically (and optionally by vector
// similarity), and assembles budgeted Active Context Bundles for agents to
// consume over a typed tool surface.
package main

import (
	"os"
	"runtime/debug"
)

// version is set via ldflags (-X main.version=v1.0.0) or detected
// automatically from Go module info embedded by go install.
var version = "dev"

func main() {
	if version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
	}
	if err := Execute(version); err != nil {
		os.Exit(1)
	}
}
