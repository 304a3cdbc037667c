// SPDX-License-Identifier: MIT
//
// Package build exposes the build metadata injected with -ldflags, e.g.
//
//	go build -ldflags "-X entrain/pkg/build.buildVersion=0.3.0 -X entrain/pkg/build.buildCommit=$(git rev-parse HEAD)"
//
// Development builds carry no version and fall back to "dev" values. A
// release build (version set) must carry every other flag too.
package build

import "fmt"

// Info describes the running binary.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// Populated by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	info         = &Info{
		Name:        "entrain",
		Description: "Tempo-synchronised light stimulation engine",
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
)

// Initialize copies the ldflags values into the Info returned by GetInfo.
func Initialize() error {
	if buildVersion == "" {
		if buildName != "" {
			info.Name = buildName
		}
		return nil
	}

	switch {
	case buildName == "":
		return fmt.Errorf("build name is required for release %s", buildVersion)
	case buildTime == "":
		return fmt.Errorf("build time is required for release %s", buildVersion)
	case buildCommit == "":
		return fmt.Errorf("build commit is required for release %s", buildVersion)
	}

	info.Name = buildName
	info.Time = buildTime
	info.Commit = buildCommit
	info.Version = buildVersion
	return nil
}

// GetInfo returns the current build information.
func GetInfo() *Info {
	return info
}

// String renders a one-line version banner.
func (i *Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}
