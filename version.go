package guda

import (
	"runtime/debug"
)

const modulePath = "github.com/LynnColeArt/gudamm"

// Version reports the module version and checksum recorded in the running
// binary's build info. Both are empty when the build info does not name
// this module.
func Version() (version, sum string) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	if info.Main.Path == modulePath {
		return info.Main.Version, info.Main.Sum
	}
	for _, dep := range info.Deps {
		if dep.Path != modulePath {
			continue
		}
		if r := dep.Replace; r != nil {
			// A local replacement has no version of its own
			if r.Version == "" {
				return dep.Version + "=>" + r.Path, r.Sum
			}
			return dep.Version + "=>" + r.Version, r.Sum
		}
		return dep.Version, dep.Sum
	}
	return "", ""
}
