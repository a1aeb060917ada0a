package handlers

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nkiryanov/stockgate/internal/handlers/middleware"
	"github.com/nkiryanov/stockgate/internal/handlers/userctx"
	"github.com/nkiryanov/stockgate/internal/logger"
	"github.com/nkiryanov/stockgate/internal/metrics"
	"github.com/nkiryanov/stockgate/internal/models"
)

const streamWriteTimeout = 10 * time.Second

type quoteStreamer interface {
	// Stream calls send with fresh quote every interval until ctx is done or send fails
	Stream(ctx context.Context, symbol string, interval time.Duration, send func(models.Quote) error) error
}

type userInfoMessage struct {
	Type string          `json:"type"`
	Data models.Identity `json:"data"`
}

type quoteMessage struct {
	Symbol string       `json:"symbol"`
	Data   models.Quote `json:"data"`
}

func newUpgrader(origins []string) *websocket.Upgrader {
	u := &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	// Without configured origins gorilla's same-origin check is used
	if len(origins) > 0 {
		u.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(origins, origin)
		}
	}
	return u
}

func handleQuoteStream(
	quotes quoteStreamer,
	interval time.Duration,
	origins []string,
	m *metrics.Metrics,
	l logger.Logger,
) http.Handler {
	upgrader := newUpgrader(origins)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbol, err := bindSymbol(w, r)
		if err != nil {
			return
		}
		user, _ := userctx.FromContext(r.Context())

		// Refreshed session cookies go with the handshake response
		header := http.Header{}
		for _, c := range middleware.PendingCookies(w) {
			header.Add("Set-Cookie", c.String())
		}

		conn, err := upgrader.Upgrade(w, r, header)
		if err != nil {
			l.Debug("Websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close() // nolint:errcheck

		m.StreamOpened()
		defer m.StreamClosed()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Client messages are ignored, read error means the client is gone
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		send := func(v any) error {
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			return conn.WriteJSON(v)
		}

		if err := send(userInfoMessage{Type: "user_info", Data: user}); err != nil {
			l.Debug("Failed to send user info", "error", err)
			return
		}

		err = quotes.Stream(ctx, symbol, interval, func(q models.Quote) error {
			return send(quoteMessage{Symbol: symbol, Data: q})
		})
		if err != nil {
			l.Debug("Quote stream closed", "symbol", symbol, "user_id", user.ID, "error", err)
			return
		}

		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
	})
}
