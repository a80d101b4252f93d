package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/tinywideclouds/go-key-vault/internal/dispatch"
	"github.com/tinywideclouds/go-key-vault/internal/parent"
	"github.com/tinywideclouds/go-key-vault/internal/screen"
)

// RunChild serves one request from the parent at parentURL: check the origin,
// announce readiness, await the request, apply its style and dispatch it.
// The context is finished when RunChild returns.
func (c *Context) RunChild(ctx context.Context, parentURL string) error {
	if _, err := c.Load(ctx); err != nil {
		return err
	}

	tokens, err := parent.NewTokens(c.cfg.Parent.TokenTTL)
	if err != nil {
		return err
	}
	p, err := parent.Dial(ctx, parentURL, c.cfg.Parent.AllowedOrigins, tokens, c.logger)
	if err != nil {
		return c.handshakeFailed(ctx, err)
	}
	defer p.Close()

	if err := p.SendReady(ctx); err != nil {
		return c.handshakeFailed(ctx, err)
	}

	awaitCtx := ctx
	if timeout := c.cfg.Parent.RequestTimeout; timeout > 0 {
		var cancel context.CancelFunc
		awaitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req, err := p.AwaitRequest(awaitCtx)
	if err != nil {
		return c.handshakeFailed(ctx, err)
	}

	style := req.Style
	if style == "" {
		style = screen.DefaultStyle
	}
	theme, err := screen.LoadTheme(style, c.cfg.Themes)
	if err != nil {
		return c.handshakeFailed(ctx, err)
	}
	c.ui.SetTheme(theme)

	closed := make(chan struct{})
	d := dispatch.New(c.env, c.keys(), c.logger, dispatch.WithCloser(func() { close(closed) }))
	if err := d.Dispatch(ctx, req); err != nil {
		select {
		case <-closed:
			// the dispatcher already reported to the parent
			return err
		default:
			return c.handshakeFailed(ctx, err)
		}
	}
	return nil
}

// handshakeFailed shows err and keeps it on screen for the close delay.
func (c *Context) handshakeFailed(ctx context.Context, err error) error {
	c.logger.Error().Err(err).Msg("Parent handshake failed")
	c.ui.Message(fmt.Sprintf("Problem with command sent from the main app. %v", err))
	select {
	case <-ctx.Done():
	case <-time.After(c.closeDelay):
	}
	return err
}
