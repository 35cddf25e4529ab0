package commands

import (
	"fmt"

	"github.com/p2poolv2/p2pool/src/version"
	"github.com/spf13/cobra"
)

// VersionCmd displays the version of p2pool being used
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version info",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Version)
	},
}
