package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conductor-hq/conductor/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the conductor version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("conductor version %s\n", version.Get())
	},
}
