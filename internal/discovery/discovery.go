// Package discovery implements the registry's mDNS advertisement: the
// pluggable Advertiser interface named in the design as an external
// collaborator, plus a concrete implementation over hashicorp/mdns so
// the registry is actually discoverable on a LAN rather than stubbed
// out entirely.
package discovery

import (
	"fmt"
	"sync"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog/log"
)

// Service describes one NMOS API to advertise.
type Service struct {
	Name     string // e.g. "_nmos-registration._tcp"
	Instance string // service instance name, typically the host name
	Port     int
	TXT      []string
}

// Advertiser is the pluggable mDNS surface the registry depends on.
// register_service/start/stop mirror the design's external-collaborator
// contract exactly so a test double can stand in for it.
type Advertiser interface {
	RegisterService(s Service) error
	Start() error
	Stop()
}

// MDNSAdvertiser advertises services via multicast DNS using
// hashicorp/mdns, one zone per registered service.
type MDNSAdvertiser struct {
	host string

	mu      sync.Mutex
	servers []*mdns.Server
}

// New builds an MDNSAdvertiser that records host. RegisterService does
// not pass host to the responders: each zone is built with an empty host
// name, so hashicorp/mdns falls back to its own default.
func New(host string) *MDNSAdvertiser {
	return &MDNSAdvertiser{host: host}
}

// RegisterService starts an independent mDNS responder for s. Called
// once per NMOS API the registry exposes (query, registration, node).
func (a *MDNSAdvertiser) RegisterService(s Service) error {
	zone, err := mdns.NewMDNSService(s.Instance, s.Name, "", "", s.Port, nil, s.TXT)
	if err != nil {
		return fmt.Errorf("discovery: build mdns service %s: %w", s.Name, err)
	}
	srv, err := mdns.NewServer(&mdns.Config{Zone: zone})
	if err != nil {
		return fmt.Errorf("discovery: start mdns responder %s: %w", s.Name, err)
	}

	a.mu.Lock()
	a.servers = append(a.servers, srv)
	a.mu.Unlock()

	log.Info().Str("service", s.Name).Int("port", s.Port).Msg("advertising mdns service")
	return nil
}

// Start is a no-op: each RegisterService call already brings up its
// own responder, so there is nothing left to start in bulk.
func (a *MDNSAdvertiser) Start() error { return nil }

// Stop shuts down every responder started by RegisterService.
func (a *MDNSAdvertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, srv := range a.servers {
		if err := srv.Shutdown(); err != nil {
			log.Warn().Err(err).Msg("mdns responder shutdown error")
		}
	}
	a.servers = nil
}

// TxtRecords builds the standard TXT record set for a registry API at
// the given priority, per the advertised api_proto/api_ver/pri triple.
func TxtRecords(priority int) []string {
	return []string{
		"api_proto=http",
		"api_ver=v1.0,v1.1,v1.2",
		fmt.Sprintf("pri=%d", priority),
	}
}
