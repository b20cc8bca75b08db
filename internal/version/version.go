package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Set with -ldflags "-X github.com/netcrate/nexa/internal/version.Version=..."
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
	BuiltBy = "unknown"
)

const shortCommitLen = 7

// Info is what `nexa version` prints
type Info struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	Modified  bool   `json:"modified,omitempty" yaml:"modified,omitempty"`
	Date      string `json:"date" yaml:"date"`
	BuiltBy   string `json:"built_by" yaml:"built_by"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

// GetVersion combines the ldflags values with whatever the toolchain embedded.
func GetVersion() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		BuiltBy:   BuiltBy,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info = fromBuildInfo(info, bi)
	}
	return info
}

// fromBuildInfo fills fields left at their ldflags defaults. Values set at
// link time always win.
func fromBuildInfo(info Info, bi *debug.BuildInfo) Info {
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "none" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Date == "unknown" {
				info.Date = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

func (i Info) shortCommit() string {
	c := i.Commit
	if len(c) > shortCommitLen && !strings.ContainsAny(c, " -") {
		c = c[:shortCommitLen]
	}
	if i.Modified {
		c += "+dirty"
	}
	return c
}

func (i Info) String() string {
	return fmt.Sprintf("nexa %s (%s) built on %s by %s with %s for %s",
		i.Version, i.shortCommit(), i.Date, i.BuiltBy, i.GoVersion, i.Platform)
}

// Short is the single-line form used by --short
func (i Info) Short() string {
	if i.Version == "dev" {
		return fmt.Sprintf("nexa %s-%s", i.Version, i.shortCommit())
	}
	return "nexa " + i.Version
}
