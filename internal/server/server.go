package server

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/bscott/ts-tunnel/internal/config"
	"github.com/bscott/ts-tunnel/internal/master"
	"github.com/bscott/ts-tunnel/internal/relay"
	log "github.com/sirupsen/logrus"
	"tailscale.com/tsnet"
)

// Server is the relay engine
type Server struct {
	config   Config
	listener net.Listener
	tsServer *tsnet.Server
	hub      *relay.Hub
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	started  bool

	// exit is called when StartRelay can't bring the relay up
	exit func(code int)
}

// NewServer creates a relay engine with the given listener settings
func NewServer(cfg Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
		exit:   os.Exit,
	}
}

// StartRelay brings the relay up with the operator's startup configuration.
// Nobody waits on this call, so failures are logged and end the process.
func (s *Server) StartRelay(cfg config.StartupConfig) {
	if err := s.Start(cfg); err != nil {
		log.WithError(err).Error("Failed to start relay")
		s.exit(1)
	}
}

// Start opens the listener, starts accepting peers and, unless disabled,
// registers with the master directory
func (s *Server) Start(cfg config.StartupConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("relay already started")
	}

	name, ok := cfg.Name()
	if !ok {
		name = DefaultName
	}
	password, _ := cfg.Password()

	listener, err := s.listen()
	if err != nil {
		return err
	}

	s.listener = listener
	s.hub = relay.NewHub(name, cfg.MaxClients(), password)
	s.started = true

	log.WithFields(log.Fields{
		"name":        name,
		"port":        s.Port(),
		"max_clients": cfg.MaxClients(),
		"password":    s.hub.HasPassword(),
		"master":      cfg.RegisterWithMaster(),
	}).Info("Relay started")

	s.wg.Add(1)
	go s.acceptConnections()

	if cfg.DisableMasterRegistration() {
		log.Info("Master registration disabled")
	} else {
		announcer := master.NewAnnouncer(s.config.MasterURL, s.config.AnnounceInterval, s)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			announcer.Run(s.ctx)
		}()
	}

	return nil
}

// listen opens a tailnet or plain TCP listener on the configured port
func (s *Server) listen() (net.Listener, error) {
	addr := fmt.Sprintf(":%d", s.config.Port)

	if !s.config.EnableTailscale {
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("failed to listen on port %d: %w", s.config.Port, err)
		}
		return listener, nil
	}

	s.tsServer = &tsnet.Server{
		Hostname: s.config.HostName,
		AuthKey:  os.Getenv("TS_AUTHKEY"),
		Logf:     log.WithField("component", "tsnet").Debugf,
	}

	listener, err := s.tsServer.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start Tailscale listener on port %d: %w", s.config.Port, err)
	}

	lc, err := s.tsServer.LocalClient()
	if err != nil {
		log.Warnf("Unable to get Tailscale local client: %v", err)
		return listener, nil
	}
	status, err := lc.Status(s.ctx)
	if err != nil {
		log.Warnf("Unable to get Tailscale status: %v", err)
	} else if status.Self != nil && status.Self.DNSName != "" {
		log.WithField("dns_name", status.Self.DNSName).Info("Tailscale node running")
	}
	return listener, nil
}

// acceptConnections accepts peers until the server stops
func (s *Server) acceptConnections() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			log.Warnf("Error accepting connection: %v", err)
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection runs the handshake and relays the peer's traffic
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	// Unblocks a handshake still waiting for HELLO when the server stops
	stop := context.AfterFunc(s.ctx, func() { conn.Close() })
	defer stop()

	remoteAddr := conn.RemoteAddr().String()
	log.WithField("remote", remoteAddr).Debug("New connection")

	peer, err := relay.NewPeer(conn, s.hub)
	if err != nil {
		log.WithField("remote", remoteAddr).Infof("Connection rejected: %v", err)
		return
	}

	peer.Handle(s.ctx)
	log.WithFields(log.Fields{"remote": remoteAddr, "peer": peer.ID}).Debug("Connection closed")
}

// Port returns the port the relay listens on
func (s *Server) Port() int {
	if s.listener != nil {
		if addr, ok := s.listener.Addr().(*net.TCPAddr); ok && addr.Port != 0 {
			return addr.Port
		}
	}
	return s.config.Port
}

// Status implements master.StatusSource
func (s *Server) Status() master.Status {
	return master.Status{
		Name:        s.hub.Name(),
		Port:        s.Port(),
		Clients:     s.hub.Count(),
		MaxClients:  s.hub.Capacity(),
		HasPassword: s.hub.HasPassword(),
	}
}

// Stop closes the listener and every peer, then waits for them to finish
func (s *Server) Stop() error {
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		log.Debug("Closing listener")
		if err := s.listener.Close(); err != nil {
			log.Warnf("Error closing listener: %v", err)
		}
	}

	if s.hub != nil {
		s.hub.Close()
	}

	if s.tsServer != nil {
		log.Debug("Closing Tailscale node")
		if err := s.tsServer.Close(); err != nil {
			log.Warnf("Error closing Tailscale node: %v", err)
		}
	}

	s.wg.Wait()
	return nil
}
