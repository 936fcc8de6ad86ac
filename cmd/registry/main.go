// Command registry runs the NMOS IS-04/IS-05 registry: the resource
// store, expiration loop, query-subscription fanout, and the
// Registration/Query/Node/Connection HTTP surfaces, each bound to its
// own listener per the configured port table.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamspace/nmos-registry/internal/config"
	"github.com/streamspace/nmos-registry/internal/connectionapi"
	"github.com/streamspace/nmos-registry/internal/discovery"
	"github.com/streamspace/nmos-registry/internal/expiry"
	"github.com/streamspace/nmos-registry/internal/logger"
	"github.com/streamspace/nmos-registry/internal/nodeapi"
	"github.com/streamspace/nmos-registry/internal/queryapi"
	"github.com/streamspace/nmos-registry/internal/registration"
	"github.com/streamspace/nmos-registry/internal/router"
	"github.com/streamspace/nmos-registry/internal/store"
	"github.com/streamspace/nmos-registry/internal/subscription"
)

var apiVersions = []string{"v1.0", "v1.1", "v1.2"}

func main() {
	cfg := config.FromEnv()
	logger.Initialize(cfg.LoggingLevel, cfg.LoggingPretty)
	log := logger.GetLogger()

	s := store.New(cfg.AllowInvalidResources)

	host := advertiseHost(cfg)
	wsBase := "ws://" + host + ":" + strconv.Itoa(cfg.QueryWebSocketPort)
	subs := subscription.New(s, wsBase)
	expiryLoop := expiry.New(s, int64(cfg.RegistrationExpiryInterval))

	regAPI := registration.New(s)
	queryAPI := queryapi.New(s, subs)
	nodeAPI := nodeapi.New(s)
	connAPI := connectionapi.New(s)

	servers := []*http.Server{
		versionedServer(cfg.RegistrationPort, "registration", regAPI.Router(), apiVersions),
		versionedServer(cfg.QueryPort, "query", queryAPI.Router(), apiVersions),
		versionedServer(cfg.NodePort, "node", nodeAPI.Router(), apiVersions),
		versionedServer(cfg.ConnectionPort, "connection", connAPI.Router(), []string{"v1.0"}),
		rawServer(cfg.QueryWebSocketPort, subs.Router()),
	}

	advertiser := discovery.New(host)
	advertiseAPIs(advertiser, cfg, log)

	go expiryLoop.Run()
	go subs.Run()

	for _, srv := range servers {
		srv := srv
		go func() {
			log.Info().Str("addr", srv.Addr).Msg("listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal().Err(err).Str("addr", srv.Addr).Msg("listener failed")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Str("addr", srv.Addr).Msg("listener shutdown error")
		}
	}
	expiryLoop.Stop()
	subs.Stop()
	advertiser.Stop()
}

// versionedServer mounts h under /x-nmos/{apiName}/{version}/ for each
// of versions, one router per listener per the external-interfaces
// table's per-API port assignment.
func versionedServer(port int, apiName string, h *router.Router, versions []string) *http.Server {
	rt := router.New()
	for _, v := range versions {
		rt.Mount("/x-nmos/"+apiName+"/"+v, "", h.AsHandler())
	}
	return rawServer(port, rt)
}

func rawServer(port int, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func advertiseHost(cfg config.Settings) string {
	if cfg.HostAddress != "" {
		return cfg.HostAddress
	}
	if cfg.HostName != "" {
		return cfg.HostName
	}
	return "localhost"
}

// advertiseAPIs registers the three NMOS mDNS services named in the
// external-interfaces table. Failures are logged, not fatal: a
// registry unreachable over mDNS is still usable by clients with a
// direct URL.
func advertiseAPIs(a *discovery.MDNSAdvertiser, cfg config.Settings, log *zerolog.Logger) {
	instance := cfg.HostName
	if instance == "" {
		instance = "nmos-registry"
	}
	txt := discovery.TxtRecords(cfg.Priority)
	services := []discovery.Service{
		{Name: "_nmos-query._tcp", Instance: instance, Port: cfg.QueryPort, TXT: txt},
		{Name: "_nmos-registration._tcp", Instance: instance, Port: cfg.RegistrationPort, TXT: txt},
		{Name: "_nmos-node._tcp", Instance: instance, Port: cfg.NodePort, TXT: txt},
	}
	for _, svc := range services {
		if err := a.RegisterService(svc); err != nil {
			log.Warn().Err(err).Str("service", svc.Name).Msg("mdns advertisement failed")
		}
	}
}
