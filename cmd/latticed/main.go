// Command latticed runs a single lattice node: the local actor system, the
// remoting server accepting peer connections, and the cluster membership
// and heartbeat loops that keep this node's view of the rest of the
// cluster current.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btclog/v2"

	"github.com/lattice-run/lattice/internal/baselib/actor"
	"github.com/lattice-run/lattice/internal/cluster"
	"github.com/lattice-run/lattice/internal/config"
	"github.com/lattice-run/lattice/internal/logutil"
	"github.com/lattice-run/lattice/internal/remoting"
)

func main() {
	logDir := flag.String("log-dir", "", "directory for rotated log files (empty to disable file logging)")
	flag.Parse()

	nodeCfg, err := config.LoadNodeConfig()
	if err != nil {
		log.Fatalf("loading node config: %v", err)
	}
	heartbeatCfg, err := config.LoadHeartbeatConfig()
	if err != nil {
		log.Fatalf("loading heartbeat config: %v", err)
	}

	// Wire the subsystem loggers through a console btclog handler plus,
	// if a log directory is configured, a rotating-file handler fanned
	// out alongside it — the same dual-stream shape cmd/substrated used
	// for its actor/review loggers.
	btclogHandlers := []btclog.Handler{btclog.NewDefaultHandler(os.Stderr)}
	if *logDir != "" {
		logRotator := logutil.NewRotatingLogWriter()
		if err := logRotator.InitLogRotator(&logutil.LogRotatorConfig{
			LogDir:         *logDir,
			MaxLogFiles:    logutil.DefaultMaxLogFiles,
			MaxLogFileSize: logutil.DefaultMaxLogFileSize,
		}); err != nil {
			log.Printf("failed to init log rotator: %v (continuing without file logging)", err)
		} else {
			defer logRotator.Close()
			btclogHandlers = append(btclogHandlers, btclog.NewDefaultHandler(logRotator))
		}
	}
	combinedHandler := logutil.NewHandlerSet(btclogHandlers...)

	actor.UseLogger(logutil.NewSubsystemLogger("ACTR", combinedHandler))
	remoting.UseLogger(logutil.NewSubsystemLogger("RMTG", combinedHandler))
	cluster.UseLogger(logutil.NewSubsystemLogger("CLUS", combinedHandler))

	log.Printf("latticed starting: node_id=%d tag=%q listen=%s",
		nodeCfg.NodeID, nodeCfg.NodeTag, nodeCfg.ListenAddr)

	actorSystem := actor.NewActorSystem()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := actorSystem.Shutdown(shutdownCtx); err != nil {
			log.Printf("actor system shutdown incomplete: %v", err)
		}
	}()

	clients := remoting.NewClientRegistry()
	requests := remoting.NewRequestRegistry()
	handlers := remoting.NewHandlerRegistry()

	nodeRegistry := cluster.NewNodeRegistry(cluster.Config{
		NodeID:               nodeCfg.NodeID,
		NodeTag:              nodeCfg.NodeTag,
		ListenAddr:           nodeCfg.ListenAddr,
		ExternalAddr:         nodeCfg.ExternalAddr,
		ApplicationVersion:   "dev",
		OverrideIncomingAddr: true,
	}, clients, requests)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := remoting.NewServer(nodeCfg.NodeID, nodeRegistry, handlers, func(peerNodeID uint64, systemTerminated bool) {
		if systemTerminated {
			nodeRegistry.MarkTerminated(peerNodeID)
		}
	})
	if err := srv.Listen(nodeCfg.ListenAddr); err != nil {
		log.Fatalf("listening on %s: %v", nodeCfg.ListenAddr, err)
	}
	go func() {
		if err := srv.Serve(); err != nil {
			log.Printf("remoting server stopped: %v", err)
		}
	}()
	defer srv.Close()
	log.Printf("remoting server listening on %s", srv.Addr())

	if nodeCfg.SeedAddr != "" {
		go nodeRegistry.Discover(ctx, []string{nodeCfg.SeedAddr}, func() {
			log.Println("initial cluster discovery complete")
		})
	}

	heartbeat := cluster.NewHeartbeatManager(nodeRegistry, clients, heartbeatCfg,
		func(nodeID uint64) {
			log.Printf("node %d reclassified Terminated", nodeID)
		})
	go heartbeat.Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Printf("received %v, shutting down", sig)
	cancel()
}
