package server

import "time"

// DefaultName is used when the operator leaves the tunnel name empty
const DefaultName = "Unnamed tunnel"

// Config holds the listener settings that aren't part of the startup form
type Config struct {
	Port             int           // TCP port to listen on
	EnableTailscale  bool          // Whether to listen on the tailnet instead of all interfaces
	HostName         string        // Tailscale hostname (only used if EnableTailscale is true)
	MasterURL        string        // Master directory announce endpoint
	AnnounceInterval time.Duration // Time between master announcements
}
