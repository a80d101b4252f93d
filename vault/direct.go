package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/tinywideclouds/go-key-vault/internal/flow"
	"github.com/tinywideclouds/go-key-vault/internal/screen"
	"github.com/tinywideclouds/go-key-vault/pkg/keyvault"
)

// Menu reads the commands of a direct-use session.
type Menu interface {
	ReadLine(label string) (string, error)
}

const menuHelp = "Commands: list | detail <n> | add | quit"

// RunDirect runs an interactive session until the user quits, the menu input
// ends or ctx is cancelled. When an HTTP listen address is configured, the
// read-only key listing is served for the length of the session.
func (c *Context) RunDirect(ctx context.Context, menu Menu) error {
	entries, err := c.Load(ctx)
	if err != nil {
		return err
	}

	if addr := c.cfg.HTTPListenAddr; addr != "" {
		listing := NewListing(addr, c.keys(), c.cfg.Parent.AllowedOrigins, c.logger)
		if err := listing.Start(); err != nil {
			return fmt.Errorf("failed to start key listing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := listing.Shutdown(shutdownCtx); err != nil {
				c.logger.Error().Err(err).Msg("Key listing shutdown failed")
			}
		}()
	}

	c.ui.Message(menuHelp)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := menu.ReadLine("> ")
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
		switch strings.ToLower(cmd) {
		case "":
			continue
		case "q", "quit", "exit":
			return nil
		case "l", "list":
			entries = c.refresh(ctx)
		case "d", "detail":
			n, convErr := strconv.Atoi(strings.TrimSpace(arg))
			if convErr != nil || n < 1 || n > len(entries) {
				c.ui.Alert(fmt.Sprintf("No key number %q", arg))
				continue
			}
			c.report(c.ShowDetail(ctx, entries[n-1]), len(entries) > 0)
		case "a", "add":
			if _, err := c.AddKey(ctx); err == nil {
				entries = c.refresh(ctx)
			} else {
				c.report(err, len(entries) > 0)
			}
		default:
			c.ui.Message(menuHelp)
		}
	}
}

// ShowDetail shows one stored key. Only one direct-use flow runs at a time.
func (c *Context) ShowDetail(ctx context.Context, entry keyvault.KeyEntry) error {
	if !c.busy.TryLock() {
		return keyvault.ErrBusy
	}
	defer c.busy.Unlock()

	detail, err := flow.NewKeyDetail(c.env, entry.Network, entry.ID).Run(ctx)
	if err != nil {
		return err
	}
	_, err = c.ui.Prompt(ctx, screen.Prompt{
		Kind:     screen.KindKeyDetail,
		Title:    "Key Detail",
		Platform: entry.Platform,
		Network:  detail.Network,
		Address:  detail.Address,
		Detail:   &detail,
	})
	return err
}

// AddKey asks for a platform and network, then either generates a new
// PIN-protected key or restores one from its passphrase. Only one direct-use
// flow runs at a time.
func (c *Context) AddKey(ctx context.Context) (keyvault.KeyEntry, error) {
	if !c.busy.TryLock() {
		return keyvault.KeyEntry{}, keyvault.ErrBusy
	}
	defer c.busy.Unlock()

	reply, err := c.ui.Prompt(ctx, screen.Prompt{Kind: screen.KindAddKey, Title: "Add / Restore Key"})
	if err != nil {
		return keyvault.KeyEntry{}, err
	}
	if reply.Choice != screen.OK {
		return keyvault.KeyEntry{}, keyvault.ErrCancelled
	}

	var entry keyvault.KeyEntry
	title := "Key Added"
	if reply.Value == screen.AddGenerate {
		key, err := flow.NewGenerateProtected(c.env, reply.Platform, reply.Network).Run(ctx)
		if err != nil {
			return keyvault.KeyEntry{}, err
		}
		entry, title = key.Entry, "Key Created"
	} else {
		entry, err = flow.NewRestoreKey(c.env, reply.Platform, reply.Network, "Restore Key",
			fmt.Sprintf("Enter the passphrase of your %s key for %s.", reply.Platform, reply.Network)).Run(ctx)
		if err != nil {
			return keyvault.KeyEntry{}, err
		}
	}
	c.logger.Info().Str("entry_id", entry.ID).Str("network", entry.Network).Msg("Key added")
	if err := c.ui.Success(ctx, title, entry.Address, time.Second); err != nil {
		c.logger.Warn().Err(err).Msg("Success screen interrupted")
	}
	return entry, nil
}

// report alerts err unless the user caused it, then returns to the welcome
// screen either way.
func (c *Context) report(err error, hasKeys bool) {
	if err == nil {
		return
	}
	if !keyvault.IsSilent(err) {
		c.logger.Warn().Err(err).Msg("Direct-use flow failed")
		c.ui.Alert(err.Error())
	}
	c.ui.Welcome(hasKeys)
}
