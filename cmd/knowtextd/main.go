package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/knowtext/internal/cli"
	"github.com/cloo-solutions/knowtext/internal/cli/commands"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "knowtextd",
		Short:         "Knowledge text daemon and admin CLI",
		Long:          "knowtextd serves the knowledge text API and runs maintenance tasks against its store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(commands.ServeCmd())
	rootCmd.AddCommand(commands.MigrateCmd())
	rootCmd.AddCommand(commands.TreeCmd())
	rootCmd.AddCommand(commands.PurgeCmd())
	rootCmd.AddCommand(commands.ExportCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	handled, err := cli.HandleHelpJSON(os.Stdout, rootCmd, os.Args[1:])
	if handled {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
