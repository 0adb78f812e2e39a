package main

import (
	"github.com/openmined/syftsync/internal/client"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newHashCmd())
	rootCmd.AddCommand(newHashStatusCmd())
}

func newHashCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash [dir]",
		Short: "Compute file digests on the local side or on the server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			remote, _ := cmd.Flags().GetBool("remote")
			wait, _ := cmd.Flags().GetBool("wait")
			rehash, _ := cmd.Flags().GetBool("rehash")

			status, err := c.Hash(cmd.Context(), client.HashRequest{
				Path:   dirArg(args),
				Remote: remote,
				// local tasks die with the process
				Wait:           wait || !remote,
				ReHashExisting: rehash,
			})
			if err != nil {
				return err
			}
			printHashStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
	cmd.Flags().Bool("remote", false, "Hash on the server")
	cmd.Flags().Bool("wait", false, "Wait for a server task to finish")
	cmd.Flags().Bool("rehash", false, "Recompute digests that are already known")
	return cmd
}

func newHashStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-status <id>",
		Short: "Show the status of a hash task on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			status, err := c.HashStatus(cmd.Context(), args[0], true)
			if err != nil {
				return err
			}
			printHashStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
}
