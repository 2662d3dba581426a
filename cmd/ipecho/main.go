// Command ipecho is a stand-in public IP service for local training setups. It answers
// every request with the caller's address as plain text, and /fail always returns 500
// so the greeting's Unknown fallback can be demonstrated.
package main

import (
	"flag"
	"fmt"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/0xReLogic/TryHackMe/internal/logging"
)

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/fail", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = fmt.Fprint(w, "fail")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = fmt.Fprint(w, clientIP(r))
	})
	return mux
}

func main() {
	addr := flag.String("addr", ":9091", "listen address")
	flag.Parse()

	if err := logging.Init("info", false); err != nil {
		panic(err)
	}
	defer func() { _ = logging.Sync() }()

	logging.LogHTTPServerStart(*addr)
	if err := http.ListenAndServe(*addr, newMux()); err != nil {
		logging.GetLogger().Fatal("ipecho_stopped", zap.Error(err))
	}
}
