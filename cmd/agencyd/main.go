// Command agencyd runs a single Agency node: it parses process
// configuration, wires the Store, Agent, Constituent, and HTTP router
// together, and runs the Role Engine loop, the TTL sweeper, and the
// HTTP server under one errgroup, grounded on
// jdreaver-postgres-experiments/pgdaemon/daemon.go's
// errgroup.WithContext + graceful-shutdown pattern.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ehz500/arangodb/api"
	"github.com/ehz500/arangodb/internal/agent"
	"github.com/ehz500/arangodb/internal/config"
	"github.com/ehz500/arangodb/internal/constituent"
	"github.com/ehz500/arangodb/internal/store"
	"github.com/ehz500/arangodb/internal/transport"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.WithError(err).Fatal("agencyd: exiting")
	}
}

func run(args []string) error {
	cfg, err := config.Parse(args)
	if err != nil {
		return fmt.Errorf("agencyd: %w", err)
	}

	log.WithFields(log.Fields{"id": cfg.Id, "listen": cfg.ListenAddress, "peers": len(cfg.Peers)}).
		Info("agencyd: starting")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("agencyd: create data dir: %w", err)
	}

	httpTransport := transport.NewHTTPTransport(cfg.MinPing)

	st := store.New(httpTransport)

	ag, err := agent.Open(cfg.DataDir+"/agency.db", st)
	if err != nil {
		return fmt.Errorf("agencyd: open agent: %w", err)
	}
	defer ag.Close()

	node := constituent.New(toConstituentConfig(cfg), httpTransport, ag)
	sweeper := store.NewSweeper(st, ag)

	snapshot := api.Snapshot{
		Id:      cfg.Id,
		Peers:   peerEndpoints(cfg.Peers),
		MinPing: cfg.MinPing.String(),
		MaxPing: cfg.MaxPing.String(),
	}
	router := api.NewRouter(node, st, ag, snapshot)

	srv := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := node.Start(); err != nil {
			return fmt.Errorf("constituent: %w", err)
		}
		<-gctx.Done()
		return node.Stop()
	})

	g.Go(func() error {
		if err := sweeper.Start(); err != nil {
			return fmt.Errorf("sweeper: %w", err)
		}
		<-gctx.Done()
		return sweeper.Stop()
	})

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("agencyd: %w", err)
	}

	log.Info("agencyd: clean shutdown")
	return nil
}

func toConstituentConfig(cfg config.Config) constituent.Config {
	peers := make([]constituent.Peer, 0, len(cfg.Peers))
	for _, p := range cfg.Peers {
		peers = append(peers, constituent.Peer{Id: p.Id, Endpoint: p.Endpoint})
	}
	return constituent.Config{
		Id:      cfg.Id,
		Peers:   peers,
		MinPing: cfg.MinPing,
		MaxPing: cfg.MaxPing,
	}
}

func peerEndpoints(peers []config.Peer) []string {
	out := make([]string, 0, len(peers))
	for _, p := range peers {
		out = append(out, p.Id+"="+p.Endpoint)
	}
	return out
}
