package cmd

import (
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/autoaid/core/model"
)

var mechanicsAPI string

var mechanicsCmd = &cobra.Command{
	Use:   "mechanics",
	Short: "Mechanic related commands",
}

var mechanicsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List the mechanics known to the registry",
	RunE:  runMechanicsLs,
}

func init() {
	mechanicsCmd.PersistentFlags().StringVar(&mechanicsAPI, "api", "http://localhost:8080", "API base URL")
	mechanicsCmd.AddCommand(mechanicsLsCmd)
	rootCmd.AddCommand(mechanicsCmd)
}

func runMechanicsLs(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	var list []model.Mechanic
	url := strings.TrimRight(mechanicsAPI, "/") + "/api/mechanics"
	if err := doJSON(cmd.Context(), client, http.MethodGet, url, "", nil, http.StatusOK, &list); err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tBOOKING\tPOSITION\tRATING\tJOBS\tLAST SEEN")
	for _, m := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.1f\t%d\t%s\n",
			m.ID, state(m), m.BookingID, m.Position, m.Rating, m.TotalJobs, m.LastSeen.Format(time.RFC3339))
	}
	return w.Flush()
}

func state(m model.Mechanic) string {
	switch {
	case !m.Online:
		return "offline"
	case m.Stale:
		return "stale"
	case m.Busy:
		return "busy"
	}
	return "available"
}
