package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FairForge/viewercore/internal/scene"
)

func newSceneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scene",
		Short: "Work with sector scene metadata",
	}
	cmd.AddCommand(newSceneInspectCmd())
	return cmd
}

func newSceneInspectCmd() *cobra.Command {
	var maxDepth int

	cmd := &cobra.Command{
		Use:   "inspect <file|->",
		Short: "Parse scene metadata and print the sector tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			s, err := scene.ParseJSON(data)
			if err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			printScene(cmd.OutOrStdout(), s, maxDepth)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxDepth, "max-depth", -1, "Deepest tree level to print (-1 prints everything)")
	return cmd
}

func readInput(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func printScene(w io.Writer, s *scene.SectorScene, maxDepth int) {
	fmt.Fprintf(w, "version=%d maxTreeIndex=%d unit=%s sectors=%d downloadSize=%d\n",
		s.Version, s.MaxTreeIndex, s.Unit, s.Len(), s.TotalDownloadSize())

	levels := map[int]int{s.Root().ID: 0}
	s.Walk(func(sec *scene.Sector) bool {
		level := levels[sec.ID]
		if maxDepth >= 0 && level > maxDepth {
			return false
		}
		for _, c := range sec.Children {
			levels[c.ID] = level + 1
		}

		line := fmt.Sprintf("%ssector %d path=%s depth=%d size=%d", strings.Repeat("  ", level),
			sec.ID, sec.Path, sec.Depth, sec.DownloadSize)
		if sec.SectorFileName != "" {
			line += " file=" + sec.SectorFileName
		}
		fmt.Fprintln(w, line)
		return true
	})
}
