// Command gossipd runs a seed or peer node of the gossip overlay.
// Mirrors the reference repo's Cobra command tree: a root command with
// per-role subcommands, RunE handlers, flags for the optional ambient
// surfaces (debug HTTP, tunables override, audit sink).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/meshgossip/overlay/internal/daemon"
	"github.com/meshgossip/overlay/internal/domain"
	"github.com/meshgossip/overlay/internal/gossip"
	"github.com/meshgossip/overlay/internal/httpapi"
	"github.com/meshgossip/overlay/internal/infra/audit"
	"github.com/meshgossip/overlay/internal/liveness"
	"github.com/meshgossip/overlay/internal/logging"
	"github.com/meshgossip/overlay/internal/peer"
	"github.com/meshgossip/overlay/internal/router"
	"github.com/meshgossip/overlay/internal/seed"
	"github.com/meshgossip/overlay/internal/transport"
)

var rootCmd = &cobra.Command{
	Use:   "gossipd",
	Short: "Gossip overlay with replicated seed membership",
}

func init() {
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(peerCmd)

	for _, cmd := range []*cobra.Command{seedCmd, peerCmd} {
		cmd.Flags().String("http", "", "debug HTTP bind address (empty disables the debug surface)")
		cmd.Flags().String("tunables", "", "optional TOML file overriding runtime tunables")
		cmd.Flags().String("audit-db", "", "optional SQLite path for the write-only audit trail")
	}
}

var seedCmd = &cobra.Command{
	Use:   "seed CONFIG PORT",
	Short: "Run a seed membership node",
	Args:  cobra.ExactArgs(2),
	RunE:  runSeed,
}

var peerCmd = &cobra.Command{
	Use:   "peer CONFIG PORT [MY_IP]",
	Short: "Run a gossip peer node",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runPeer,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parsePort(s string) (uint16, error) {
	p, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", s, err)
	}
	return uint16(p), nil
}

// resolveSelfIP scans seeds for the entry whose port matches port and
// returns its IP, so a seed's own identity is the address the rest of
// the cluster actually dials rather than always "127.0.0.1". Falls
// back to "127.0.0.1" with found=false if no entry matches.
func resolveSelfIP(seeds []domain.NodeID, port uint16) (ip string, found bool) {
	for _, s := range seeds {
		if s.Port == port {
			return s.IP, true
		}
	}
	return "127.0.0.1", false
}

func runSeed(cmd *cobra.Command, args []string) error {
	configPath, portStr := args[0], args[1]
	port, err := parsePort(portStr)
	if err != nil {
		return err
	}

	allSeeds, err := daemon.LoadSeeds(configPath)
	if err != nil {
		return err
	}
	selfIP, found := resolveSelfIP(allSeeds, port)
	self := domain.NewNodeID(selfIP, port)

	log, err := logging.New("Seed", self.String(), "gossipd.log")
	if err != nil {
		return err
	}
	defer log.Close()

	if !found {
		log.Logf("Warning: port %d not found in config. Using default IP %s", port, selfIP)
	}

	var auditSink seed.AuditSink
	if path, _ := cmd.Flags().GetString("audit-db"); path != "" {
		db, err := audit.Open(path, log)
		if err != nil {
			return err
		}
		defer db.Close()
		auditSink = db
	}

	svc := seed.New(self, allSeeds, log, auditSink)
	r := router.NewSeedRouter(svc)

	srv, err := transport.Listen(self.String(), r.Dispatch, log.Logf)
	if err != nil {
		return fmt.Errorf("seed bind failed: %w", err)
	}
	log.Logf("Seed listening on %s", self)
	go srv.Serve()

	if httpAddr, _ := cmd.Flags().GetString("http"); httpAddr != "" {
		go serveDebugHTTP(httpAddr, httpapi.NewSeedServer(svc), log)
	}

	waitForShutdown(log)
	srv.Close()
	return nil
}

func runPeer(cmd *cobra.Command, args []string) error {
	configPath, portStr := args[0], args[1]
	myIP := "127.0.0.1"
	if len(args) > 2 {
		myIP = args[2]
	}
	port, err := parsePort(portStr)
	if err != nil {
		return err
	}

	seeds, err := daemon.LoadSeeds(configPath)
	if err != nil {
		return err
	}
	self := domain.NewNodeID(myIP, port)

	log, err := logging.New("Peer", self.String(), "gossipd.log")
	if err != nil {
		return err
	}
	defer log.Close()

	tunablesPath, _ := cmd.Flags().GetString("tunables")
	tunables, err := daemon.LoadTunables(tunablesPath)
	if err != nil {
		return err
	}

	var auditSink liveness.AuditSink
	if path, _ := cmd.Flags().GetString("audit-db"); path != "" {
		db, err := audit.Open(path, log)
		if err != nil {
			return err
		}
		defer db.Close()
		auditSink = db
	}

	state := peer.NewState(self)
	gossipEngine := gossip.New(state, log, tunables.MaxGossipMsgs)
	gossipEngine.SetIntervals(gossip.GenerationWarmup, tunables.GossipInterval)
	detector := liveness.New(self, seeds, state, liveness.ICMPReacher{}, log, auditSink)
	detector.SetIntervals(liveness.ProbeWarmup, tunables.ProbeInterval)
	detector.SetThreshold(tunables.SuspicionThresh)
	r := router.NewPeerRouter(state, gossipEngine, detector)

	srv, err := transport.Listen(self.String(), r.Dispatch, log.Logf)
	if err != nil {
		return fmt.Errorf("peer bind failed: %w", err)
	}
	log.Logf("Peer listening on %s", self)
	go srv.Serve()
	defer srv.Close()

	peer.Bootstrap(state, seeds, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go gossipEngine.Run(ctx)
	go detector.Run(ctx)

	if httpAddr, _ := cmd.Flags().GetString("http"); httpAddr != "" {
		go serveDebugHTTP(httpAddr, httpapi.NewPeerServer(peerDebugView{state, detector}), log)
	}

	waitForShutdown(log)
	return nil
}

type peerDebugView struct {
	state    *peer.State
	detector *liveness.Detector
}

func (v peerDebugView) Neighbors() []domain.NodeID      { return v.state.Neighbors() }
func (v peerDebugView) Suspects() map[domain.NodeID]int { return v.detector.Suspects() }
func (v peerDebugView) DeadNodes() []domain.NodeID      { return v.detector.DeadNodes() }

func serveDebugHTTP(addr string, handler http.Handler, log *logging.Logger) {
	log.Logf("Debug HTTP surface listening on %s", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Logf("Debug HTTP surface stopped: %v", err)
	}
}

func waitForShutdown(log *logging.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Logf("Shutting down")
}
