package commands

import (
	"os"

	"aimawatch-backend/lib/serviceutil"
	"aimawatch-backend/services/userstore"
	userstoredb "aimawatch-backend/services/userstore/db"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(usersCmd)
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List registered users. Statuses and credentials stay hidden.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := readConfig()

		database, err := config.Database.OpenDB(userstoredb.Schema)
		if err != nil {
			serviceutil.Fatal("failed to open database", err)
		}
		store := userstore.NewService(database)

		users, err := store.ListUsers(ctx)
		if err != nil {
			serviceutil.Fatal("failed to list users", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Chat ID", "Periodic", "Last checked", "Status length"})
		for _, user := range users {
			lastChecked := "never"
			if !user.NeverChecked() {
				lastChecked = user.LastCheckedAt.Format("2006-01-02 15:04")
			}
			t.AppendRow(table.Row{user.ChatID, user.PeriodicEnabled, lastChecked, len(user.LastStatus)})
		}
		t.Render()
	},
}
