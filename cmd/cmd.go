// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/containerd/console"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/edgerun/edgerun/envconfig"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-26s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cobra.EnableCommandSorting = false

	if runtime.GOOS == "windows" && term.IsTerminal(int(os.Stdout.Fd())) {
		console.ConsoleFromFile(os.Stdin) //nolint:errcheck
	}

	rootCmd := &cobra.Command{
		Use:           "edgerun",
		Short:         "Edge inference runtime for compiled models",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				versionHandler(cmd, args)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	// Commands erstellen
	serveCmd := newServeCmd()
	inspectCmd := newInspectCmd()
	runCmd := newRunCmd()
	loadCmd := newLoadCmd()
	listCmd := newListCmd()
	deleteCmd := newDeleteCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()
	envs := []envconfig.EnvVar{envVars["EDGERUN_HOST"]}
	tuning := []envconfig.EnvVar{
		envVars["EDGERUN_DEVICE"],
		envVars["EDGERUN_NUM_THREADS"],
		envVars["EDGERUN_CPU_AFFINITY"],
		envVars["EDGERUN_TREELITE_LIBRARY"],
	}

	for _, cmd := range []*cobra.Command{
		serveCmd,
		inspectCmd,
		runCmd,
		loadCmd,
		listCmd,
		deleteCmd,
	} {
		switch cmd {
		case serveCmd:
			appendEnvDocs(cmd, append([]envconfig.EnvVar{
				envVars["EDGERUN_DEBUG"],
				envVars["EDGERUN_HOST"],
				envVars["EDGERUN_ORIGINS"],
				envVars["EDGERUN_NUM_PARALLEL"],
				envVars["EDGERUN_MAX_LOADED_MODELS"],
			}, tuning...))
		case inspectCmd, runCmd:
			appendEnvDocs(cmd, append([]envconfig.EnvVar{envVars["EDGERUN_DEBUG"]}, tuning...))
		default:
			appendEnvDocs(cmd, envs)
		}
	}

	rootCmd.AddCommand(
		serveCmd,
		inspectCmd,
		runCmd,
		loadCmd,
		listCmd,
		deleteCmd,
	)

	return rootCmd
}
