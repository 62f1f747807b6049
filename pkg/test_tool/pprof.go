package testtool

import (
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof handlers on the default mux

	"github.com/X9Cipher/alumni-portal-sub001/pkg/config"
	"github.com/X9Cipher/alumni-portal-sub001/pkg/logger"

	"go.uber.org/zap"
)

// StartPprof serves /debug/pprof on addr outside production.
func StartPprof(addr string) {
	if config.IsProduction() {
		logger.Log.Info("Production environment detected, pprof is disabled.")
		return
	}
	if addr == "" {
		addr = "localhost:6060"
	}

	go func() {
		logger.Log.Info("Starting pprof server", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Log.Warn("pprof server failed", zap.Error(err))
		}
	}()
}
