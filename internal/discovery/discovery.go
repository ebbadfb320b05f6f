// Package discovery announces this agent on the LAN and tracks other
// agents, using Avahi over D-Bus.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/godbus/dbus/v5"
	"github.com/holoplot/go-avahi"

	"github.com/shelfsyncapp/shelfsync-agent/internal/domain"
	"github.com/shelfsyncapp/shelfsync-agent/internal/events"
)

// ServiceType is the mDNS service type ShelfSync agents announce.
const ServiceType = "_shelfsync._tcp"

// Service announces this agent and browses for peers.
type Service struct {
	server    *avahi.Server
	group     *avahi.EntryGroup
	registry  *Registry
	publisher events.Publisher
	logger    *slog.Logger
}

// NewService connects to the Avahi daemon over the system D-Bus.
// Errors here are typically non-fatal for the agent as a whole: on
// hosts without Avahi the HTTP side still works, peers just have to
// type the address.
func NewService(publisher events.Publisher, logger *slog.Logger) (*Service, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}

	server, err := avahi.ServerNew(conn)
	if err != nil {
		return nil, fmt.Errorf("connect avahi: %w", err)
	}

	if publisher == nil {
		publisher = events.NoopPublisher{}
	}

	return &Service{
		server:    server,
		registry:  NewRegistry(),
		publisher: publisher,
		logger:    logger,
	}, nil
}

// Announce publishes this agent's service record. The instance name is
// the machine hostname so peers get a human-recognizable label.
func (s *Service) Announce(port int) error {
	name, err := os.Hostname()
	if err != nil {
		name = "shelfsync-agent"
	}

	group, err := s.server.EntryGroupNew()
	if err != nil {
		return fmt.Errorf("create entry group: %w", err)
	}

	err = group.AddService(
		avahi.InterfaceUnspec,
		avahi.ProtoUnspec,
		0,
		name,
		ServiceType,
		"local",
		"",
		uint16(port),
		nil,
	)
	if err != nil {
		return fmt.Errorf("add service record: %w", err)
	}

	if err := group.Commit(); err != nil {
		return fmt.Errorf("commit service record: %w", err)
	}

	s.group = group
	s.logger.Info("announcing on the LAN",
		"instance", name,
		"type", ServiceType,
		"port", port)
	return nil
}

// Browse watches for peer agents until ctx is cancelled. Run in a
// goroutine.
func (s *Service) Browse(ctx context.Context) error {
	browser, err := s.server.ServiceBrowserNew(
		avahi.InterfaceUnspec,
		avahi.ProtoUnspec,
		ServiceType,
		"local",
		0,
	)
	if err != nil {
		return fmt.Errorf("create service browser: %w", err)
	}
	defer s.server.ServiceBrowserFree(browser)

	s.logger.Info("browsing for peers", "type", ServiceType)

	for {
		select {
		case <-ctx.Done():
			return nil

		case svc := <-browser.AddChannel:
			resolved, err := s.server.ResolveService(
				svc.Interface,
				svc.Protocol,
				svc.Name,
				svc.Type,
				svc.Domain,
				avahi.ProtoUnspec,
				0,
			)
			if err != nil {
				s.logger.Warn("could not resolve peer",
					"name", svc.Name,
					"error", err)
				continue
			}
			s.handleResolved(domain.DiscoveredHost{
				IP:       resolved.Address,
				Port:     int(resolved.Port),
				Hostname: resolved.Name,
			})

		case svc := <-browser.RemoveChannel:
			s.handleRemoved(svc.Name)
		}
	}
}

// handleResolved records a peer and republishes the host list when it
// changed.
func (s *Service) handleResolved(host domain.DiscoveredHost) {
	if !s.registry.Add(host) {
		return
	}
	s.logger.Info("peer appeared",
		"instance", host.Hostname,
		"address", host.IP,
		"port", host.Port)
	s.publishHosts()
}

// handleRemoved drops a withdrawn peer by its instance name.
func (s *Service) handleRemoved(name string) {
	if !s.registry.RemoveByName(name) {
		return
	}
	s.logger.Info("peer withdrew", "instance", name)
	s.publishHosts()
}

func (s *Service) publishHosts() {
	s.publisher.Publish(events.EventDiscoveryUpdate, s.registry.Hosts())
}

// Hosts returns the currently visible peers.
func (s *Service) Hosts() []domain.DiscoveredHost {
	return s.registry.Hosts()
}

// Shutdown withdraws the service record and disconnects from Avahi.
func (s *Service) Shutdown(_ context.Context) error {
	if s.group != nil {
		s.server.EntryGroupFree(s.group)
		s.group = nil
	}
	s.server.Close()
	return nil
}
