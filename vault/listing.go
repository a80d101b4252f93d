package vault

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/tinywideclouds/go-key-vault/internal/api"
	"github.com/tinywideclouds/go-key-vault/pkg/keystore"
)

// Listing is the read-only HTTP key listing of a direct-use session.
type Listing struct {
	server *http.Server
	ln     net.Listener
	logger zerolog.Logger
}

// NewListing builds the listing server on addr over keys.
func NewListing(addr string, keys keystore.Lister, allowedOrigins []string, logger zerolog.Logger) *Listing {
	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(&api.API{Keys: keys, Logger: logger}, allowedOrigins)
	return &Listing{
		server: &http.Server{Addr: addr, Handler: router},
		logger: logger.With().Str("component", "listing").Logger(),
	}
}

// Start binds the listener and serves in the background. It returns once the
// listener is active, or with the bind error.
func (l *Listing) Start() error {
	ln, err := net.Listen("tcp", l.server.Addr)
	if err != nil {
		return err
	}
	l.ln = ln
	l.logger.Info().Str("address", ln.Addr().String()).Msg("HTTP listener is active.")

	go func() {
		if err := l.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error().Err(err).Msg("HTTP server failed")
		}
	}()
	return nil
}

// Addr returns the bound address; it is only meaningful after Start.
func (l *Listing) Addr() string {
	if l.ln == nil {
		return l.server.Addr
	}
	return l.ln.Addr().String()
}

// Shutdown stops the server gracefully.
func (l *Listing) Shutdown(ctx context.Context) error {
	return l.server.Shutdown(ctx)
}
