// Package cmd wires the command line interface for the blended latent
// diffusion editor.
package cmd

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"runtime"

	"github.com/containerd/console"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/JingyuanHe1222/blended-latent-diffusion/envconfig"
	"github.com/JingyuanHe1222/blended-latent-diffusion/version"
)

// appendEnvDocs adds an environment variable section to a command's help.
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

func initLogging() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: envconfig.LogLevel(),
	})))
}

func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cobra.EnableCommandSorting = false
	initLogging()

	if runtime.GOOS == "windows" && term.IsTerminal(int(os.Stdout.Fd())) {
		console.ConsoleFromFile(os.Stdin) //nolint:errcheck
	}

	rootCmd := &cobra.Command{
		Use:           "blend",
		Short:         "Text-guided local image editing with blended latent diffusion",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if v, _ := cmd.Flags().GetBool("version"); v {
				fmt.Println(version.Version)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	editCmd := newEditCmd()

	envVars := envconfig.AsMap()
	appendEnvDocs(editCmd, []envconfig.EnvVar{
		envVars["BLD_DEBUG"],
		envVars["BLD_DEVICE"],
		envVars["BLD_MODELS"],
		envVars["BLD_ONNX_DIR"],
		envVars["BLD_ORT_LIBRARY"],
		envVars["BLD_NOPROGRESS"],
	})

	rootCmd.AddCommand(editCmd)

	return rootCmd
}
