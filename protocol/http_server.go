package protocol

import (
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/datazip-inc/binlogdir/logger"
	"github.com/felixge/fgprof"
	"github.com/gorilla/mux"
)

// startDebugServer serves pprof and fgprof profiles on port for the lifetime of the process
func startDebugServer(port int) {
	master := mux.NewRouter()
	master.HandleFunc("/debug/pprof", pprof.Index)
	master.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	master.Handle("/debug/pprof/profile", fgprof.Handler())
	master.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	master.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	master.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	master.Handle("/debug/pprof/block", pprof.Handler("block"))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           master,
		ReadTimeout:       time.Second * 60,
		ReadHeaderTimeout: time.Second * 60,
		IdleTimeout:       time.Second * 65,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("debug server stopped: %s", err)
		}
	}()
	logger.Infof("debug server listening on :%d", port)
}
