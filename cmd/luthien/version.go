package main

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"mercator-hq/luthien/pkg/cli"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X main.Version=...".
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var versionFlags struct {
	output string
}

// buildInfo describes the running binary.
type buildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Modified  bool   `json:"modified,omitempty"`
}

// currentBuild fills commit and date from the embedded VCS stamp when the
// linker flags were not set, as with a plain go install.
func currentBuild() buildInfo {
	info := buildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "unknown" {
				info.GitCommit = s.Value
			}
		case "vcs.time":
			if info.BuildDate == "unknown" {
				info.BuildDate = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

func (b buildInfo) String() string {
	var s strings.Builder
	fmt.Fprintf(&s, "Luthien %s\n", b.Version)
	commit := b.GitCommit
	if b.Modified {
		commit += " (modified)"
	}
	fmt.Fprintf(&s, "Git Commit: %s\n", commit)
	fmt.Fprintf(&s, "Build Date: %s\n", b.BuildDate)
	fmt.Fprintf(&s, "Go Version: %s\n", b.GoVersion)
	fmt.Fprintf(&s, "OS/Arch: %s\n", b.Platform)
	return s.String()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := cli.ParseFormat(versionFlags.output)
		if err != nil {
			return err
		}
		if format == cli.FormatCSV {
			return cli.NewConfigError("output", "version supports text or json")
		}
		return cli.NewFormatter(format).FormatTo(out(cmd), currentBuild())
	},
}

func init() {
	versionCmd.Flags().StringVarP(&versionFlags.output, "output", "o", "text", "output format: text, json")
	rootCmd.AddCommand(versionCmd)
}
