package toolchain

import "github.com/moonrepo/moon-core/internal/id"

// SystemToolchainID is the always-registered fallback toolchain: "use
// whatever is already on PATH, don't manage an install". spec.md's own
// worked example (§8 scenario 1) runs a task under exactly this
// toolchain id.
var SystemToolchainID = id.MustNew("system")

// NewSystemToolchain returns the built-in "system" toolchain: every hook
// is a no-op except Setup, which reports the toolchain as already
// satisfied regardless of version_req, since there is nothing for moon
// to install when a project opts out of managed toolchains.
func NewSystemToolchain() *Toolchain {
	return &Toolchain{
		ID: SystemToolchainID,
		Setup: func(versionReq string) (string, error) {
			return "system", nil
		},
	}
}
