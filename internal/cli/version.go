package cli

import (
	"github.com/spf13/cobra"

	"github.com/AaronLay10/NarrativeEngine/internal/version"
)

// VersionInfo is the JSON form of the version command.
type VersionInfo struct {
	Version string `json:"version"`
	Build   string `json:"build"`
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the sequencer version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			if f.JSON() {
				return f.Success(VersionInfo{Version: version.Version, Build: version.String()})
			}
			return f.Success("sequencer " + version.String())
		},
	}
}
