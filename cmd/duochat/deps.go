package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/duochat/duochat/pkg/api"
	"github.com/duochat/duochat/pkg/config"
	"github.com/duochat/duochat/pkg/render"
	"github.com/duochat/duochat/pkg/session"
	"github.com/duochat/duochat/pkg/widget"
)

// deps holds what every backend-facing command needs.
type deps struct {
	cfg       *config.Config
	store     *session.SQLiteStore
	sessionID string
	client    *api.Client
}

func newDeps(ctx context.Context, cfg *config.Config) (*deps, error) {
	store, err := session.OpenSQLiteStore(cfg.SessionStorePath())
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}
	id, err := session.Ensure(ctx, store, cfg.Session.Key)
	if err != nil {
		store.Close()
		return nil, err
	}
	client, err := api.NewClient(api.Options{
		BaseURL:   cfg.Server.BaseURL,
		Timeout:   cfg.Server.RequestTimeout.Duration,
		SessionID: id,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	return &deps{cfg: cfg, store: store, sessionID: id, client: client}, nil
}

func (d *deps) Close() error {
	return d.store.Close()
}

// renderOptions points media URLs at the backend's uploads route.
func (d *deps) renderOptions() render.Options {
	prefix := d.cfg.Server.UploadsPrefix
	if !strings.HasPrefix(prefix, "http://") && !strings.HasPrefix(prefix, "https://") {
		prefix = d.client.BaseURL() + "/" + strings.TrimLeft(prefix, "/")
	}
	return render.Options{
		UploadsPrefix: prefix,
		TimeLayout:    d.cfg.Widget.TimeLayout,
		Locale:        d.cfg.Widget.Locale,
	}
}

func (d *deps) widgetOptions() widget.Options {
	return widget.Options{
		Channel:      d.cfg.DefaultChannel(),
		PollInterval: d.cfg.Widget.PollInterval.Duration,
		ReplyDelay:   d.cfg.Widget.ReplyDelay.Duration,
		Render:       d.renderOptions(),
	}
}
