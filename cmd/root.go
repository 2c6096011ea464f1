package cmd

import (
	"errors"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/josephlewis42/rush/core"
	"github.com/josephlewis42/rush/core/config"
	"github.com/josephlewis42/rush/core/logger"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	cfgPath  string
	command  string
	debug    bool
	eventLog string
	noRC     bool

	exitStatus int
)

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".rush"
	}
	return filepath.Join(home, ".rush")
}

func loadConfig() (*config.Configuration, error) {
	if noRC {
		return config.Default(), nil
	}

	configuration, err := config.Load(cfgPath)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}

	return configuration, err
}

func newLogger(w io.Writer) *log.Logger {
	if !debug {
		w = io.Discard
	}
	return log.New(w, "[rush] ", 0)
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rush [script]",
	Short: "A shell with pipelines, redirection and job control",
	Long: `rush reads commands from a terminal, a script file, standard input or -c.

Interactive sessions get line editing, history and job control: Ctrl-Z stops
the foreground job and fg, bg, jobs and kill manage it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		configuration, err := loadConfig()
		if err != nil {
			return err
		}

		exitStatus, err = runShell(cmd, configuration, args)
		return err
	},
}

func runShell(cmd *cobra.Command, configuration *config.Configuration, args []string) (int, error) {
	stdio := core.OSStdio()
	sh := core.NewShell(stdio, configuration)
	sh.SetLogger(newLogger(cmd.ErrOrStderr()))

	if eventLog != "" {
		fd, err := os.OpenFile(eventLog, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
		if err != nil {
			return core.StatusFailure, err
		}
		defer fd.Close()
		sh.SetEvents(logger.NewJsonLinesLogRecorder(fd))
	}

	sh.Init()
	defer sh.Close()

	switch {
	case cmd.Flags().Changed("command"):
		return sh.RunString(command), nil

	case len(args) == 1:
		fd, err := os.Open(args[0])
		if err != nil {
			return core.StatusNotFound, err
		}
		src := core.NewScriptSource(fd)
		defer src.Close()
		return sh.Run(src), nil

	case !term.IsTerminal(int(stdio.In.Fd())):
		return sh.Run(core.NewSharedScriptSource(stdio.In)), nil

	default:
		sh.EnableJobControl()
		src, err := core.NewReadlineSource(stdio, configuration)
		if err != nil {
			return core.StatusFailure, err
		}
		defer src.Close()
		return sh.Run(src), nil
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
	os.Exit(exitStatus)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultConfigPath(), "config directory")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log diagnostics to stderr")

	rootCmd.Flags().StringVarP(&command, "command", "c", "", "run COMMAND and exit")
	rootCmd.Flags().StringVar(&eventLog, "event-log", "", "append a JSON lines record of commands and jobs to FILE")
	rootCmd.Flags().BoolVar(&noRC, "norc", false, "ignore the config file and use the defaults")
	rootCmd.Flags().SetInterspersed(false)
}
