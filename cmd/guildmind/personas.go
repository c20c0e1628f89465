package main

import (
	"fmt"
	"path/filepath"

	"github.com/quailyquaily/guildmind/internal/clifmt"
	"github.com/quailyquaily/guildmind/internal/statepaths"
	"github.com/quailyquaily/guildmind/persona"
	"github.com/spf13/cobra"
)

func newPersonasCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "personas",
		Aliases: []string{"contexts"},
		Short:   "List personas found in the persona directory",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := statepaths.PersonaDir()
			catalog, err := persona.Load(dir)
			if catalog == nil {
				return err
			}
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), clifmt.Warn(err.Error()))
			}

			rows := make([][]string, 0, catalog.Len())
			for _, p := range catalog.Personas() {
				rows = append(rows, []string{p.Name, filepath.Base(p.Source), p.Description})
			}
			clifmt.Table{
				Title:       "Personas in " + dir,
				Headers:     []string{"NAME", "FILE", "DESCRIPTION"},
				Rows:        rows,
				Empty:       "No persona files (*.txt, *.md) found.",
				Placeholder: clifmt.Dim("-"),
			}.Print(cmd.OutOrStdout())
			return nil
		},
	}
}
