package cli

import (
	_ "embed"
	"runtime/debug"
	"strings"
)

//go:embed VERSION
var embeddedVersion string

const modulePath = "github.com/broady/blueprint"

// Version returns the version string.
//
// When blueprint is a dependency, or was installed via `go install ...@version`,
// returns the module version (e.g., "v0.1.0"). For development builds,
// returns "devel-0.1.0+abc1234" with VCS revision if available.
func Version() string {
	base := strings.TrimSpace(embeddedVersion)

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return base
	}

	mod := &info.Main
	for _, dep := range info.Deps {
		if dep.Path == modulePath {
			mod = dep
			break
		}
	}
	if mod.Path == modulePath && mod.Version != "" && mod.Version != "(devel)" {
		return mod.Version
	}

	var vcsRev string
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 7 {
			vcsRev = s.Value[:7]
			break
		}
	}
	if vcsRev != "" {
		return "devel-" + base + "+" + vcsRev
	}
	return "devel-" + base
}
