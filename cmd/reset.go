package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear all recorded run provenance from the database",
	Run: func(cmd *cobra.Command, args []string) {
		if DB == nil {
			fail("No database configured", fmt.Errorf("set --db or the POSTGRES_* environment"))
		}

		reader := bufio.NewReader(os.Stdin)
		if !confirm(reader, "⚠️  Are you sure you want to delete all recorded runs and artifacts?") {
			fmt.Println("Aborted.")
			return
		}

		fmt.Println("🗑️  Clearing provenance tables...")
		if err := DB.Reset(cmd.Context()); err != nil {
			fail("Failed to reset database", err)
		}
		fmt.Println("✨ Reset complete.")
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}
