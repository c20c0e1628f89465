package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/quailyquaily/guildmind/conversation"
	"github.com/quailyquaily/guildmind/internal/clifmt"
	"github.com/quailyquaily/guildmind/internal/logutil"
	"github.com/quailyquaily/guildmind/internal/statepaths"
	"github.com/spf13/cobra"
)

func newStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect the conversation state document",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Load the state file and report what it holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := conversation.Open(conversation.Options{
				Path:   statepaths.StateFile(),
				Logger: logutil.Discard(),
			})
			if err != nil {
				return err
			}
			printStateReport(cmd.OutOrStdout(), store)
			return nil
		},
	})
	return cmd
}

func printStateReport(out io.Writer, store *conversation.Store) {
	st := store.LoadStatus()
	fmt.Fprintln(out, clifmt.Headerf("State %s", store.Path()))
	switch {
	case st.Recovered:
		fmt.Fprintln(out, clifmt.Error("malformed document, started empty"))
		if st.QuarantinedTo != "" {
			fmt.Fprintf(out, "%s %s\n", clifmt.Key("quarantined to:"), st.QuarantinedTo)
		}
		if st.DecodeError != nil {
			fmt.Fprintf(out, "%s %s\n", clifmt.Key("error:"), st.DecodeError.Error())
		}
		return
	case !st.Existed:
		fmt.Fprintln(out, clifmt.Warn("no state file yet"))
		return
	}

	doc := store.Snapshot()
	rows := make([][]string, 0, len(doc))
	ids := store.TenantIDs()
	sort.Strings(ids)
	for _, id := range ids {
		rec := doc[id]
		rows = append(rows, []string{
			id,
			strconv.Itoa(len(rec.SetChannels)),
			strconv.Itoa(len(rec.IgnoredChannels)),
			strconv.Itoa(len(rec.ChannelActiveContexts)),
			fmt.Sprintf("%d turns, %d users", len(rec.MainChatHistory), len(rec.UserSpecificContext)),
		})
	}
	fmt.Fprintln(out, clifmt.Success("ok"))
	clifmt.Table{
		Title:   "Servers",
		Headers: []string{"SERVER", "CHANNELS", "IGNORED", "PERSONAS", "HISTORY"},
		Rows:    rows,
		Empty:   "No servers recorded.",
	}.Print(out)
}
