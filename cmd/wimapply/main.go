package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/wimlib-go/wimapply/cmd"
	"github.com/wimlib-go/wimapply/pkg/buildinfo"
)

func rootMain(command *cobra.Command, arguments []string) {
	if rootConfiguration.version {
		fmt.Println(buildinfo.Version)
		return
	}
	command.Help()
}

var rootCommand = &cobra.Command{
	Use:   "wimapply",
	Short: "wimapply extracts a WIM image tree onto a filesystem target",
	Args:  cmd.DisallowArguments,
	Run:   rootMain,
}

var rootConfiguration struct {
	help    bool
	version bool
}

func init() {
	flags := rootCommand.Flags()
	flags.BoolVarP(&rootConfiguration.help, "help", "h", false, "Show help information")
	flags.BoolVarP(&rootConfiguration.version, "version", "V", false, "Show version information")

	cobra.EnableCommandSorting = false

	rootCommand.AddCommand(
		extractCommand,
	)
}

func main() {
	// Skip terminal relaunching and signal setup when cobra is just
	// generating a shell completion script; neither is relevant there and
	// a winpty relaunch would corrupt the completion output.
	if !cmd.PerformingShellCompletion {
		// Relaunch under winpty if we're running inside a mintty-based
		// terminal; this is a no-op on POSIX. WIM archives are a
		// Windows-native format, so a user extracting one from a Windows
		// console is exactly the case this guards against.
		cmd.HandleTerminalCompatibility()

		// An interrupted extraction can leave a partially-written target,
		// so make the interruption itself explicit rather than letting the
		// process die silently mid-stream.
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, cmd.TerminationSignals...)
		go func() {
			<-signals
			cmd.Fatal(fmt.Errorf("extraction interrupted, target may be incomplete"))
		}()
	}

	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
