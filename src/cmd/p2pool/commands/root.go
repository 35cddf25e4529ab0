package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for p2pool
var RootCmd = &cobra.Command{
	Use:              "p2pool",
	Short:            "decentralized mining pool node",
	TraverseChildren: true,
}
