package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/websocket"

	"candiag/internal/bridge"
	"candiag/internal/diag"
	"candiag/internal/flash"
)

// maxFlashDump bounds a single /api/flash request.
const maxFlashDump = flash.PageSize

type statusSnapshot struct {
	Uptime      string               `json:"uptime"`
	AccessPoint string               `json:"access_point"`
	APStarts    uint64               `json:"ap_starts"`
	LinkUp      bool                 `json:"link_up"`
	Session     diag.Status          `json:"session"`
	Receiver    bridge.ReceiverStats `json:"receiver"`
	QueueLen    int                  `json:"queue_len"`
	QueueCap    int                  `json:"queue_cap"`
}

func handleStatusWS(bc *uibroadcaster) websocket.Handler {
	return func(conn *websocket.Conn) {
		bc.AddSocket(conn)
		buf := make([]byte, 1024)
		for {
			// Client input is ignored; the read only detects the close.
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}
}

func newStatusMux(snapshot func() statusSnapshot, store flash.Storage, bc *uibroadcaster, log zerolog.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snapshot()); err != nil {
			log.Warn().Err(err).Msg("failed to encode status snapshot")
		}
	})

	// Flash range as Intel HEX, e.g. /api/flash?addr=0xd000&len=32
	mux.HandleFunc("/api/flash", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		addrStr := strings.TrimSpace(r.URL.Query().Get("addr"))
		lenStr := strings.TrimSpace(r.URL.Query().Get("len"))
		if addrStr == "" {
			addrStr = strconv.FormatUint(uint64(flash.SentinelAddr), 10)
		}
		if lenStr == "" {
			lenStr = strconv.Itoa(flash.SentinelSize)
		}

		addr64, err := strconv.ParseUint(addrStr, 0, 32)
		if err != nil {
			http.Error(w, "invalid addr", http.StatusBadRequest)
			return
		}
		len64, err := strconv.ParseUint(lenStr, 0, 32)
		if err != nil || len64 == 0 || len64 > maxFlashDump {
			http.Error(w, fmt.Sprintf("invalid len (1..%d)", maxFlashDump), http.StatusBadRequest)
			return
		}

		var dump strings.Builder
		if err := flash.DumpHex(store, &dump, uint32(addr64), uint32(len64)); err != nil {
			if errors.Is(err, flash.ErrOutOfRange) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(dump.String()))
	})

	mux.Handle("/status", websocket.Server{Handler: handleStatusWS(bc)})

	return mux
}

// serveStatus runs the status web server until ctx ends.
func (g *gateway) serveStatus(ctx context.Context) error {
	log := g.log.With().Str("component", "web").Logger()
	bc := newUIBroadcaster(log)
	go bc.writer(ctx)
	go bc.publish(ctx, statusInterval, g.snapshot)

	srv := &http.Server{
		Addr:              g.cfg.HTTP,
		Handler:           newStatusMux(g.snapshot, g.store, bc, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", g.cfg.HTTP).Msg("status page listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}
