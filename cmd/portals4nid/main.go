// File: cmd/portals4nid/main.go
// Author: momentics <momentics@gmail.com>
//
// Standalone NI daemon: wires ni.Init -> ni.Serve against the TCP-backed
// rdma.Transport, exposes Prometheus metrics and debug probes over
// HTTP, and reloads LOG_LEVEL/CHECK_BUILD on SIGHUP without restarting
// the progress engine (spec §6 NIInit/NIFini, §4.8).
package main

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/momentics/portals4ni/api"
	"github.com/momentics/portals4ni/control"
	"github.com/momentics/portals4ni/ni"
	"github.com/momentics/portals4ni/transport/rdma"
)

func parseSelf(addr string) (api.ProcessID, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return api.ProcessID{}, err
	}
	ip := net.ParseIP(host).To4()
	if ip == nil {
		return api.ProcessID{}, &net.AddrError{Err: "not an IPv4 address", Addr: host}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return api.ProcessID{}, err
	}
	return api.ProcessID{NID: api.NID(binary.BigEndian.Uint32(ip)), PID: api.PID(port)}, nil
}

func main() {
	listenAddr := flag.String("listen", "127.0.0.1:49400", "self NID:PID, encoded as an IPv4 address and port (spec §6)")
	debugAddr := flag.String("debug-addr", "127.0.0.1:49401", "address serving /metrics and /debug")
	recvBuffers := flag.Int("recv-buffers", 64, "recv buffers primed before serving")
	pinCPU := flag.Int("pin-cpu", -1, "logical CPU requested for the progress loop; only logged, the loop is not pinned (-1 to omit)")
	flag.Parse()

	cfg := control.LoadNIConfig()
	log := control.NewLogger(cfg.LogLevel)

	self, err := parseSelf(*listenAddr)
	if err != nil {
		log.Fatal().Err(err).Str("listen", *listenAddr).Msg("portals4nid: invalid -listen address")
	}

	transport, err := rdma.Listen(self, log)
	if err != nil {
		log.Fatal().Err(err).Msg("portals4nid: failed to bind transport")
	}

	n := ni.Init(self, api.NIFlavorPhysical, api.MatchModeMatching, ni.DefaultLimits(), transport, log)

	debug := control.NewDebugProbes(128)
	debug.RegisterProbe("ni.status", func() any { return n.Status() })
	control.RegisterPlatformProbes(debug)

	if *pinCPU >= 0 {
		// ni.NI exposes no accessor for its progress engine, so
		// progress.Engine.PinTo is not reachable from here: the requested
		// CPU is logged and the progress loop runs unpinned.
		log.Info().Int("cpu", *pinCPU).Msg("portals4nid: -pin-cpu requested; progress loop is not pinned")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", control.Handler())
	mux.HandleFunc("/debug", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(debug.DumpState())
	})
	debugSrv := &http.Server{Addr: *debugAddr, Handler: mux}
	go func() {
		if err := debugSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn().Err(err).Msg("portals4nid: debug server stopped")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			cfg = control.LoadNIConfig()
			log.Info().Str("log_level", cfg.LogLevel).Msg("portals4nid: reloading tunables")
			control.TriggerHotReload()
		}
	}()

	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for idx, depth := range n.SampleEQDepths() {
					control.EQDepth.WithLabelValues(strconv.Itoa(int(idx))).Set(float64(depth))
				}
			}
		}
	}()

	log.Info().Str("self", *listenAddr).Int("recv_buffers", *recvBuffers).Msg("portals4nid: serving")
	serveErr := n.Serve(ctx, *recvBuffers)
	if serveErr != nil && serveErr != context.Canceled {
		log.Error().Err(serveErr).Msg("portals4nid: progress loop exited with error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = debugSrv.Shutdown(shutdownCtx)

	if err := n.Fini(); err != nil && err != api.ErrShuttingDown {
		log.Error().Err(err).Msg("portals4nid: NI teardown error")
	}
}
