package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/DominicWuest/dockerbisect/internal/server"
	"github.com/DominicWuest/dockerbisect/pkg/dockerbisect"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	bisectConfig     string
	bisectTimeout    int
	bisectTruncate   int
	bisectMaxProbes  uint
	bisectServe      bool
	bisectServerPort int
)

var bisectCmd = &cobra.Command{
	Use:   "bisect [image] [command...]",
	Short: "Find the layers of an image which change the output of a command",
	Long: `Run a command against the cached layers of a docker image and find which layers change its output.

The first and last layer are run first. If their outputs differ, the layers in between are bisected
until every layer at which the output changes is found. Layers missing from the local cache are skipped.

The image and command can also be read from a job config passed with --config, in which case arguments override it.`,
	Run: func(cmd *cobra.Command, args []string) {
		job := &dockerbisect.Job{Timeout: 10 * time.Second}
		if bisectConfig != "" {
			jobYaml, err := os.Open(bisectConfig)
			if err != nil {
				logrus.Fatalf("Failed to open job yaml - %v", err)
			}
			job, err = dockerbisect.GetJobFromConfig(jobYaml)
			jobYaml.Close()
			if err != nil {
				logrus.Fatalf("Failed to read job config from yaml - %v", err)
			}
		}

		if len(args) > 0 {
			job.Image = args[0]
		}
		if len(args) > 1 {
			job.Command = args[1:]
		}
		if job.Image == "" || len(job.Command) == 0 {
			logrus.Fatal("An image and a command are required, either as arguments or in the job config")
		}
		if cmd.Flags().Changed("timeout") {
			job.Timeout = time.Duration(bisectTimeout) * time.Second
		}
		if cmd.Flags().Changed("max-probes") {
			job.MaxConcurrentProbes = bisectMaxProbes
		}
		job.Log = logrus.StandardLogger()

		width := bisectTruncate
		if width == 0 {
			width = 100
			if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 10 {
				width = w - 10
			}
		}
		isTerminal := term.IsTerminal(int(os.Stdout.Fd()))

		fmt.Printf("Command to apply to layers of %s:\n\n%q\n\n", job.Image, job.Command)

		if bisectServe {
			srv, err := server.NewServer(server.HTTP, bisectServerPort, job)
			if err != nil {
				logrus.Fatalf("Failed to start webserver - %v", err)
			}
			logrus.Warnf("Serving progress on http://localhost:%d", srv.Port())
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		res, err := job.Run(ctx)
		if res != nil {
			if reportErr := dockerbisect.WriteReport(os.Stdout, res, dockerbisect.ReportOptions{Width: width, Bold: isTerminal}); reportErr != nil {
				logrus.Errorf("Failed to write report - %v", reportErr)
			}
		}
		if err != nil {
			logrus.Fatalf("Bisection failed - %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(bisectCmd)

	bisectCmd.Flags().StringVarP(&bisectConfig, "config", "c", "", "A job config yaml to read the image, command and options from")
	bisectCmd.Flags().IntVarP(&bisectTimeout, "timeout", "t", 10, "Number of seconds to run the command for on each layer")
	bisectCmd.Flags().IntVar(&bisectTruncate, "truncate", 0, "Number of characters to truncate printed layer commands to (default is the terminal width)")
	bisectCmd.Flags().UintVarP(&bisectMaxProbes, "max-probes", "j", 0, "Max amount of layers probed at once, 0 for no limit")
	bisectCmd.Flags().BoolVar(&bisectServe, "serve", false, "Start an HTTP server reporting progress and results")
	bisectCmd.Flags().IntVarP(&bisectServerPort, "port", "p", 40032, "The port on which to start the server, 0 for a free port")
}
