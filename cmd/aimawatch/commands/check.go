package commands

import (
	"context"
	"fmt"
	"time"

	"aimawatch-backend/lib/aima"
	"aimawatch-backend/lib/serviceutil"

	"github.com/spf13/cobra"
)

var checkEmail *string
var checkPassword *string

func init() {
	checkEmail = checkCmd.Flags().String("email", "", "The portal login email.")
	checkPassword = checkCmd.Flags().String("password", "", "The portal login password.")
	_ = checkCmd.MarkFlagRequired("email")
	_ = checkCmd.MarkFlagRequired("password")
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a one-shot status check against the portal.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		config := readConfig()
		client := newAimaClient(config)

		status, err := client.Check(ctx, aima.Credentials{
			Email:    *checkEmail,
			Password: *checkPassword,
		})
		if err != nil {
			serviceutil.Fatal(fmt.Sprintf("check failed (%s)", aima.KindOf(err)), err)
		}

		fmt.Println(status.Text)
		fmt.Println()
		fmt.Println("checked at", status.CheckedAt.Format(time.RFC3339))
	},
}
