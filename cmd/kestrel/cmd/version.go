package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kestrel-search/kestrel/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("kestrel", version.String())
	},
}
