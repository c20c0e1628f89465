package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "guildmind %s\n", strings.TrimSpace(version))
			for _, kv := range [][2]string{{"commit", commit}, {"date", date}} {
				v := strings.TrimSpace(kv[1])
				if v == "" || v == "none" || v == "unknown" {
					continue
				}
				_, _ = fmt.Fprintf(out, "%s: %s\n", kv[0], v)
			}
			return nil
		},
	}
}
