package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/DominicWuest/dockerbisect/pkg/dockerbisect"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/manifoldco/promptui"
	"github.com/moby/moby/client"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cleanAgree bool

var cleanCmd = &cobra.Command{
	Use:     "clean",
	Aliases: []string{"prune", "cleanup"},
	Short:   "Remove all containers created by dockerbisect",
	Long: `This command removes all containers created by dockerbisect, both running and stopped.
Containers are removed after each probe, so leftovers only exist if a bisection was interrupted.`,
	Run: func(cmd *cobra.Command, args []string) {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			logrus.Fatalf("Couldn't create docker client - %v", err)
		}
		defer cli.Close()

		containers, err := cli.ContainerList(context.Background(), container.ListOptions{
			All: true,
			Filters: filters.NewArgs(
				filters.KeyValuePair{
					Key:   "label",
					Value: dockerbisect.ContainerLabel + "=1",
				},
			),
		})
		if err != nil {
			logrus.Fatalf("Couldn't list docker containers - %v", err)
		}

		if len(containers) == 0 {
			fmt.Println("No containers to remove. Exiting...")
			return
		}

		fmt.Printf("About to delete %d containers.\n", len(containers))

		prompt := promptui.Prompt{
			Label:     "Proceed",
			IsConfirm: true,
		}

		if !cleanAgree {
			_, err := prompt.Run()
			if err != nil {
				fmt.Println("Exiting...")
				os.Exit(0)
			}
		}

		for _, c := range containers {
			logrus.Infof("Deleting container %s (ID: %s)", containerName(c.ID, c.Names), c.ID)
			if err := cli.ContainerRemove(context.Background(), c.ID, container.RemoveOptions{Force: true}); err != nil {
				logrus.Fatalf("Failed to remove container with ID %s - %v", c.ID, err)
			}
		}

		fmt.Println("Done cleaning up.")
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)

	cleanCmd.Flags().BoolVarP(&cleanAgree, "assume-yes", "y", false, `Bypass "Are you sure?" message.`)
}

// containerName returns the first name of a container without its leading slash, or its ID if it has none
func containerName(id string, names []string) string {
	if len(names) == 0 {
		return id
	}
	return strings.TrimPrefix(names[0], "/")
}
