package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-image-pipeline/pkg/client"
	"github.com/tendant/simple-image-pipeline/pkg/pipeline"
)

func newUploadCommand(newClient func() *client.Client, out *output) *cobra.Command {
	var wait bool
	var interval time.Duration
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload an image for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			c := newClient()
			ctx := cmd.Context()

			jobID, err := c.Upload(ctx, filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			if !wait {
				if *out.json {
					return writeJSON(cmd, pipeline.UploadResponse{JobID: jobID})
				}
				fmt.Fprintln(cmd.OutOrStdout(), jobID)
				return nil
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "job %s accepted\n", jobID)
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			err = c.WaitForCompletion(ctx, jobID, interval, func(p int) {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %3d%%\n", p)
			})
			if err != nil {
				return err
			}
			if *out.json {
				return writeJSON(cmd, pipeline.ProgressResponse{JobID: jobID, Progress: pipeline.ProgressNotified})
			}
			fmt.Fprintln(cmd.OutOrStdout(), jobID)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait until the job reaches 100%")
	cmd.Flags().DurationVar(&interval, "interval", 500*time.Millisecond, "Polling interval while waiting")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Give up waiting after this long (0 waits forever)")
	return cmd
}

func newProgressCommand(newClient func() *client.Client, out *output) *cobra.Command {
	return &cobra.Command{
		Use:   "progress <job-id>",
		Short: "Show the progress of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			percent, err := newClient().Progress(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if *out.json {
				return writeJSON(cmd, pipeline.ProgressResponse{JobID: args[0], Progress: percent})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d%%\n", args[0], percent)
			return nil
		},
	}
}

func newListCommand(newClient func() *client.Client, out *output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the progress of all tracked jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := newClient().AllProgress(cmd.Context())
			if err != nil {
				return err
			}
			if *out.json {
				return writeJSON(cmd, all)
			}
			if len(all) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no jobs")
				return nil
			}

			ids := make([]string, 0, len(all))
			for id := range all {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d%%\n", id, all[id])
			}
			return nil
		},
	}
}

func newForgetCommand(newClient func() *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "forget <job-id>",
		Short: "Remove a job's progress entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().Forget(cmd.Context(), args[0])
		},
	}
}
