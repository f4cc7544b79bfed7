package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/duochat/duochat/pkg/config"
	"github.com/duochat/duochat/pkg/render"
)

func newAdminCmd(getConfig func() *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Operator commands for the support channel",
	}
	cmd.AddCommand(
		newAdminUsersCmd(getConfig),
		newAdminHistoryCmd(getConfig),
		newAdminSendCmd(getConfig),
	)
	return cmd
}

func newAdminUsersCmd(getConfig func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List users known to the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newDeps(cmd.Context(), getConfig())
			if err != nil {
				return err
			}
			defer d.Close()

			users, err := d.client.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tUSER\tMESSAGES\tLAST ACTIVITY")
			for _, u := range users {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", u.ID, u.DisplayName(), u.MessageCount, u.LastActivity)
			}
			return tw.Flush()
		},
	}
}

func newAdminHistoryCmd(getConfig func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "history <user-id>",
		Short: "Print a user's support conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			d, err := newDeps(cmd.Context(), getConfig())
			if err != nil {
				return err
			}
			defer d.Close()

			msgs, err := d.client.UserMessages(cmd.Context(), userID)
			if err != nil {
				return err
			}
			printMessages(cmd.OutOrStdout(), render.BuildAll(msgs, d.renderOptions()))
			return nil
		},
	}
}

func newAdminSendCmd(getConfig func() *config.Config) *cobra.Command {
	var files []string

	cmd := &cobra.Command{
		Use:   "send <user-id> [text]",
		Short: "Reply to a user on the support channel",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			cfg := getConfig()
			req, err := buildRequest(args[1:], files, cfg.Server.MaxUploadBytes)
			if err != nil {
				return err
			}

			d, err := newDeps(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			res, err := d.client.AdminSend(cmd.Context(), userID, req)
			if err != nil {
				return err
			}
			if !res.OK() {
				return fmt.Errorf("send rejected: %s", res.Message)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sent")
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&files, "file", nil, "file to attach (repeatable)")
	return cmd
}
