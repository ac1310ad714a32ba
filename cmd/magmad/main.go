/*
Maddy Mail Server - Composable all-in-one email server.
Copyright © 2019-2020 Max Mazurov <fox.cpp@disroot.org>, Maddy Mail Server contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Command magmad runs the portal's single JSON-RPC POST endpoint
// against a SQL-backed session registry.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lavabit/magmad/framework/config"
	"github.com/lavabit/magmad/framework/log"
	"github.com/lavabit/magmad/internal/portal"
	"github.com/lavabit/magmad/internal/session"
	"github.com/lavabit/magmad/internal/store"
)

func main() {
	cfg := config.Map{Source: envSource()}

	var debug bool
	var driver, dsn, listenAddr string
	cfg.Bool("MAGMAD_DEBUG", false, false, &debug)
	cfg.String("MAGMAD_DB_DRIVER", false, false, "sqlite", &driver)
	cfg.String("MAGMAD_DB_DSN", false, false, "magmad.db", &dsn)
	cfg.String("MAGMAD_LISTEN", false, false, ":8025", &listenAddr)
	if _, err := cfg.Process(); err != nil {
		panic(err)
	}

	log.Init(debug)
	logger := log.Logger{Name: "magmad", Debug: debug}

	db, err := store.Open(store.Config{Driver: driver, DSN: []string{dsn}, Debug: debug})
	if err != nil {
		logger.Error("open database", err)
		os.Exit(1)
	}

	sqlStore := store.NewSQLStore(db)
	cache := store.NewCache(db)
	registry := session.NewRegistry(sqlStore)
	metrics := portal.NewMetrics(prometheus.DefaultRegisterer)
	dispatcher := portal.NewDispatcher(registry, sqlStore, sqlStore, cache, cache, metrics)

	mux := http.NewServeMux()
	mux.HandleFunc("/rpc", rpcHandler(dispatcher))
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Msg("listening", "addr", listenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown", err)
	}
}

// rpcHandler is the single HTTP POST hook the portal's JSON-RPC
// surface runs behind. The caller's session token travels in the
// Authorization header as a bare bearer value; no cookie or multipart
// framing is modeled here.
func rpcHandler(d *portal.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		token := bearerToken(r.Header.Get("Authorization"))
		resp := d.Handle(r.Context(), token, body)

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

func envSource() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				out[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return out
}
