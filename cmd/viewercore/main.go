// cmd/viewercore/main.go
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "viewercore",
		Short: "Scene metadata and 360° image service for the viewer",
		Long: `viewercore parses sector scene metadata and serves 360° image entities,
their face textures and picking over HTTP.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("VIEWERCORE_CONFIG"), "Path to the YAML config file")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newSceneCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
