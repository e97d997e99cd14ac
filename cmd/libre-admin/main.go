// Please use the library packages directly; this binary only exposes
// their Prometheus counters over HTTP for operators who want a
// standalone admin process rather than embedding libre in their own.
package main

import (
	"flag"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	lhttp "github.com/go-libre/libre/http"
	"github.com/go-libre/libre/logger"
	"github.com/go-libre/libre/stats"
)

const version = "0.1.0"

func main() {
	addr := flag.String("listen", ":1985", "admin HTTP listen address")
	flag.Parse()

	registry := stats.NewRegistry(nil)
	prometheus.MustRegister(registry)

	mux := lhttp.NewAdminMux(prometheus.DefaultGatherer, version)

	l, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.E(nil, "listen", *addr, "failed, err is", err)
		return
	}

	logger.I(nil, "admin http listening on", l.Addr())
	if err := http.Serve(l, mux); err != nil {
		logger.E(nil, "serve", *addr, "failed, err is", err)
	}
}
