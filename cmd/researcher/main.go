package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "researcher",
		Short: "Research synthesis service and tooling",
	}
	root.AddCommand(serveCMD(), researchCMD(), migrateCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
