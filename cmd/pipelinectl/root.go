package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-image-pipeline/pkg/client"
)

func newRootCommand() *cobra.Command {
	var serverFlag string
	var jsonFlag bool

	newClient := func() *client.Client {
		return client.New(serverFlag)
	}

	rootCmd := &cobra.Command{
		Use:           "pipelinectl",
		Short:         "Upload images and follow their pipeline progress",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	defaultServer := os.Getenv("PIPELINE_URL")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVarP(&serverFlag, "server", "s", defaultServer, "Pipeline server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print JSON output")

	out := &output{json: &jsonFlag}
	rootCmd.AddCommand(newUploadCommand(newClient, out))
	rootCmd.AddCommand(newProgressCommand(newClient, out))
	rootCmd.AddCommand(newListCommand(newClient, out))
	rootCmd.AddCommand(newForgetCommand(newClient))

	return rootCmd
}

type output struct {
	json *bool
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
