package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/satriahrh/fluent/domain/entities"
)

var voicesCmd = &cobra.Command{
	Use:   "voices",
	Short: "List the voice catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tGENDER\tACCENT")
		for _, v := range entities.Voices() {
			marker := ""
			if v.ID == entities.DefaultVoiceID {
				marker = " (default)"
			}
			fmt.Fprintf(w, "%s\t%s%s\t%s\t%s\n", v.ID, v.DisplayName, marker, v.Gender, v.Accent)
		}
		return w.Flush()
	},
}
