package commands

import (
	"fmt"

	"avaremind-backend/lib/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check <ra> <senha>",
	Short: "Checks whether the given credentials can log into the portal.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		config := readConfig()
		service := buildService(config, openStore(config))

		result, err := service.CheckCredentials(cmd.Context(), args[0], args[1])
		if err != nil {
			serviceutil.Fatal("failed to check credentials", err)
		}
		if result.Success {
			fmt.Println("login ok")
			return
		}
		fmt.Printf("login rejected: %s\n", result.Message)
	},
}
