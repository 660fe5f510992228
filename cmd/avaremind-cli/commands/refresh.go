package commands

import (
	"fmt"

	"avaremind-backend/lib/serviceutil"

	"github.com/spf13/cobra"
)

var refreshEmail *string
var refreshDisciplines *bool

func init() {
	refreshEmail = refreshCmd.Flags().String("email", "", "Refresh a single account instead of all of them.")
	refreshDisciplines = refreshCmd.Flags().Bool("disciplines", false, "Refresh the discipline list instead of assignments.")
	rootCmd.AddCommand(refreshCmd)
}

var refreshCmd = &cobra.Command{
	Use:   "refresh [--email <address>] [--disciplines]",
	Short: "Runs a one-shot scrape and reconcile, for all accounts or one.",
	Run: func(cmd *cobra.Command, args []string) {
		config := readConfig()
		st := openStore(config)
		service := buildService(config, st)
		ctx := cmd.Context()

		refresh := service.RefreshAssignments
		if *refreshDisciplines {
			refresh = service.RefreshDisciplines
		}

		if *refreshEmail != "" {
			account, err := st.GetAccountByEmail(ctx, *refreshEmail)
			if err != nil {
				serviceutil.Fatal("failed to look up account", err)
			}
			status, err := refresh(ctx, *account)
			if err != nil {
				serviceutil.Fatal("refresh failed", err)
			}
			fmt.Println(status)
			return
		}

		status, err := service.RefreshAllAccounts(ctx, refresh)
		if err != nil {
			serviceutil.Fatal("refresh failed", err)
		}
		fmt.Println(status)
	},
}
