package cmd

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var verbosity int
var quiet bool

var rootCmd = &cobra.Command{
	Use:   "dockerbisect",
	Short: "Find the layers of a docker image which change the output of a command",
	Long:  ``,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		configureLogger(logrus.StandardLogger())
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// configureLogger sets the format and verbosity of the passed logger according to the persistent flags
func configureLogger(log *logrus.Logger) {
	formatter := &prefixed.TextFormatter{
		DisableTimestamp: true,
	}
	log.SetFormatter(formatter)

	// Set logger verbosity
	if quiet {
		log.SetOutput(io.Discard)
	} else if verbosity == 0 {
		log.SetLevel(logrus.WarnLevel)
	} else if verbosity == 1 {
		log.SetLevel(logrus.InfoLevel)
	} else if verbosity == 2 {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.TraceLevel)
	}
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase the verbosity of the logs, can be repeated")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Don't print any logs")
}
