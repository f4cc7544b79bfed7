package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/duochat/duochat/pkg/api"
	"github.com/duochat/duochat/pkg/attachment"
	"github.com/duochat/duochat/pkg/chat"
	"github.com/duochat/duochat/pkg/config"
	"github.com/duochat/duochat/pkg/latex"
	"github.com/duochat/duochat/pkg/render"
	"github.com/duochat/duochat/pkg/session"
	"github.com/duochat/duochat/pkg/widget"
)

func newSendCmd(getConfig func() *config.Config) *cobra.Command {
	var (
		channel string
		files   []string
	)

	cmd := &cobra.Command{
		Use:   "send [text]",
		Short: "Send one message and print the reply",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getConfig()
			ch := cfg.DefaultChannel()
			if channel != "" {
				var err error
				if ch, err = chat.ParseChannel(channel); err != nil {
					return err
				}
			}

			req, err := buildRequest(args, files, cfg.Server.MaxUploadBytes)
			if err != nil {
				return err
			}
			req.Channel = ch

			d, err := newDeps(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			res, err := d.client.SendMessage(cmd.Context(), req)
			if err != nil {
				return err
			}
			if !res.OK() {
				return fmt.Errorf("%w: %s", widget.ErrRejected, res.Message)
			}
			if res.AIResponse != "" {
				reply := render.Build(chat.Message{Sender: chat.SenderAI, Content: res.AIResponse}, d.renderOptions())
				fmt.Fprintln(cmd.OutOrStdout(), render.PlainText(reply, latex.Unicode))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "channel to send to (ai or support)")
	cmd.Flags().StringSliceVar(&files, "file", nil, "file to attach (repeatable)")
	return cmd
}

// buildRequest turns CLI text and file paths into a send request.
func buildRequest(args, paths []string, maxBytes int64) (api.SendRequest, error) {
	var req api.SendRequest
	if len(args) > 0 {
		req.Content = strings.TrimSpace(args[0])
	}
	for _, p := range paths {
		f, err := attachment.Load(p, maxBytes)
		if err != nil {
			return req, err
		}
		req.Files = append(req.Files, f)
	}
	if req.Content == "" && len(req.Files) == 0 {
		return req, widget.ErrEmptyMessage
	}
	if len(req.Files) > 0 {
		req.Type = attachment.GroupFor(req.Files...).Type
	}
	return req, nil
}

func newHistoryCmd(getConfig func() *config.Config) *cobra.Command {
	var channel string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the conversation of a channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getConfig()
			ch := cfg.DefaultChannel()
			if channel != "" {
				var err error
				if ch, err = chat.ParseChannel(channel); err != nil {
					return err
				}
			}

			d, err := newDeps(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			msgs, err := d.client.GetMessages(cmd.Context(), ch)
			if err != nil {
				return err
			}
			printMessages(cmd.OutOrStdout(), render.BuildAll(msgs, d.renderOptions()))
			return nil
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "channel to show (ai or support)")
	return cmd
}

func printMessages(w io.Writer, ins []render.Instruction) {
	for _, in := range ins {
		line := string(in.Sender) + ": " + render.PlainText(in, latex.Unicode)
		if in.Time != "" {
			line = in.Time + " " + line
		}
		if in.Media != render.MediaNone {
			line += fmt.Sprintf(" [%s %s]", in.Media, in.FileURL)
		}
		fmt.Fprintln(w, line)
	}
}

func newSessionCmd(getConfig func() *config.Config) *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Show or reset the session identifier",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getConfig()
			store, err := session.OpenSQLiteStore(cfg.SessionStorePath())
			if err != nil {
				return err
			}
			defer store.Close()

			var id string
			if reset {
				id, err = session.Reset(cmd.Context(), store, cfg.Session.Key)
			} else {
				id, err = session.Ensure(cmd.Context(), store, cfg.Session.Key)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "replace the stored identifier with a new one")
	return cmd
}
