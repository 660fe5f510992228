package commands

import (
	"fmt"

	"avaremind-backend/lib/serviceutil"
	"avaremind-backend/services/reminder"

	"github.com/spf13/cobra"
)

var dueSend *bool

func init() {
	dueSend = dueCmd.Flags().Bool("send", false, "Actually send the reminder emails instead of previewing.")
	rootCmd.AddCommand(dueCmd)
}

var dueCmd = &cobra.Command{
	Use:   "due [--send]",
	Short: "Previews which accounts would get a reminder email this cycle.",
	Run: func(cmd *cobra.Command, args []string) {
		config := readConfig()
		st := openStore(config)
		service := buildService(config, st)
		ctx := cmd.Context()

		if *dueSend {
			status, err := service.SendDueNotifications(ctx)
			if err != nil {
				serviceutil.Fatal("failed to send due notifications", err)
			}
			fmt.Println(status)
			return
		}

		accounts, err := st.ListConfirmedAccounts(ctx)
		if err != nil {
			serviceutil.Fatal("failed to list accounts", err)
		}
		selector := reminder.NewSelector(st)
		for _, account := range accounts {
			summary, err := selector.SelectDue(ctx, account.ID)
			if err != nil {
				serviceutil.Fatal("failed to compute due summary", err)
			}
			fmt.Printf("%s (%s): %d open, notify=%v\n",
				account.Email, account.RA, summary.Total, summary.Notify)
			for discipline, assignments := range summary.ByDiscipline {
				for _, a := range assignments {
					fmt.Printf("  %s: %s due %s (%d days)\n",
						discipline, a.Name, a.DueAt.Format("02/01/2006"), a.Days)
				}
			}
		}
	},
}
