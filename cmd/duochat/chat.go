package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/duochat/duochat/pkg/chat"
	"github.com/duochat/duochat/pkg/config"
	"github.com/duochat/duochat/pkg/logger"
	"github.com/duochat/duochat/pkg/preview"
	"github.com/duochat/duochat/pkg/tui"
	"github.com/duochat/duochat/pkg/widget"
)

func newChatCmd(getConfig func() *config.Config, flags *rootFlags) *cobra.Command {
	var channel string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the interactive chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getConfig()

			// The terminal belongs to the UI, so logs go to a file.
			logPath := cfg.LogFilePath()
			if logPath == "" {
				logPath = filepath.Join(filepath.Dir(cfg.SessionStorePath()), "duochat.log")
			}
			if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
				return err
			}
			level := cfg.Log.Level
			if flags.logLevel != "" {
				level = flags.logLevel
			}
			if err := logger.Init(logger.Options{Level: level, File: logPath}); err != nil {
				return err
			}

			d, err := newDeps(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			opts := d.widgetOptions()
			if channel != "" {
				if opts.Channel, err = chat.ParseChannel(channel); err != nil {
					return err
				}
			}

			view := tui.New(tui.Options{MaxUploadBytes: cfg.Server.MaxUploadBytes})
			w := widget.New(d.client, view, opts)
			view.Bind(w)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				defer cancel()
				return view.Run(gctx)
			})
			g.Go(func() error {
				if err := w.Start(); err != nil {
					return err
				}
				<-gctx.Done()
				return w.Close()
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "initial channel (ai or support)")
	return cmd
}

func newPreviewCmd(getConfig func() *config.Config) *cobra.Command {
	var (
		port int
		qr   bool
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Serve the chat as a local web page",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getConfig()
			d, err := newDeps(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			view := widget.NewMarkupView()
			w := widget.New(d.client, view, d.widgetOptions())

			previewCfg := cfg.Preview
			if port != 0 {
				previewCfg.Port = port
			}
			srv := preview.NewServer(previewCfg, preview.Options{
				PollInterval:   cfg.Widget.PollInterval.Duration,
				MaxUploadBytes: cfg.Server.MaxUploadBytes,
			}, w, view)

			g, gctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				if err := srv.Start(gctx); err != nil {
					return err
				}
				url := "http://" + srv.Addr()
				fmt.Fprintln(cmd.OutOrStdout(), "Preview at", url)
				if qr {
					qrterminal.GenerateHalfBlock(url, qrterminal.L, cmd.OutOrStdout())
				}
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Stop(shutdownCtx)
			})
			g.Go(func() error {
				if err := w.Start(); err != nil {
					return err
				}
				<-gctx.Done()
				return w.Close()
			})
			return g.Wait()
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")
	cmd.Flags().BoolVar(&qr, "qr", false, "print the preview URL as a QR code")
	cmd.AddCommand(newHashPasswordCmd())
	return cmd
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Print a bcrypt hash for preview.password_hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd)
			if err != nil {
				return err
			}
			if password == "" {
				return errors.New("password is empty")
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return nil
		},
	}
}

// readPassword prompts without echo on a terminal and reads one line
// otherwise.
func readPassword(cmd *cobra.Command) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		return string(b), err
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
