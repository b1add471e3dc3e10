package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"spese-cli/internal/app"
	"spese-cli/internal/config"
	"spese-cli/internal/output"
	"spese-cli/internal/version"
)

type Dependencies struct {
	App    *app.App
	Config *config.Config
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "spese",
		Short:         "Record, upload and browse household expenses",
		Long:          "A terminal client for the spese backend. Record a voice memo or pick a receipt photo,\nlet the server turn it into an expense, and browse categories and monthly totals.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full() + "\n")

	rootCmd.AddCommand(NewRecordCmd(deps))
	rootCmd.AddCommand(NewUploadCmd(deps))
	rootCmd.AddCommand(NewAddCmd(deps))
	rootCmd.AddCommand(NewCategoriesCmd(deps))
	rootCmd.AddCommand(NewExpensesCmd(deps))
	rootCmd.AddCommand(NewOutboxCmd(deps))
	rootCmd.AddCommand(NewWatchCmd(deps))
	rootCmd.AddCommand(NewDoctorCmd(deps))

	return rootCmd
}

func formatter(cmd *cobra.Command, deps *Dependencies) *output.Formatter {
	return output.NewFormatter(cmd.OutOrStdout()).WithLocalizer(deps.App.Localizer)
}

// confirm asks a yes/no question on in; anything but y/yes/s/si is no
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "s", "si", "sì":
		return true
	}
	return false
}
