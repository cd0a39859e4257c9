package server

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bscott/ts-tunnel/internal/config"
)

func startTestServer(t *testing.T, cfg Config, raw config.RawInput) *Server {
	t.Helper()

	srv := NewServer(cfg)
	if err := srv.Start(config.Build(raw)); err != nil {
		t.Fatalf("failed to start relay: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })
	return srv
}

func hello(t *testing.T, srv *Server, line string) (net.Conn, string) {
	t.Helper()

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", srv.Port()))
	if err != nil {
		t.Fatalf("failed to dial relay: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
		t.Fatalf("failed to send hello: %v", err)
	}
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("failed to read reply: %v", err)
	}
	return conn, strings.TrimSpace(reply)
}

func TestStartUsesDefaultName(t *testing.T) {
	srv := startTestServer(t, Config{Port: 0}, config.RawInput{MaxClients: 0})

	st := srv.Status()
	if st.Name != DefaultName {
		t.Fatalf("expected default name, got %q", st.Name)
	}
	if st.MaxClients != config.MinClients {
		t.Fatalf("expected %d max clients, got %d", config.MinClients, st.MaxClients)
	}
	if st.HasPassword {
		t.Fatalf("expected no password")
	}
	if srv.Port() == 0 {
		t.Fatalf("expected a bound port")
	}
}

func TestRelayAdmitsUpToCapacity(t *testing.T) {
	srv := startTestServer(t, Config{Port: 0}, config.RawInput{Name: "Lobby", Password: "pw", MaxClients: 2})

	if _, reply := hello(t, srv, "HELLO nope"); reply != "ERR password" {
		t.Fatalf("expected ERR password, got %q", reply)
	}
	if _, reply := hello(t, srv, "HELLO pw"); !strings.HasPrefix(reply, "OK ") {
		t.Fatalf("expected OK, got %q", reply)
	}
	if _, reply := hello(t, srv, "HELLO pw"); !strings.HasPrefix(reply, "OK ") {
		t.Fatalf("expected OK, got %q", reply)
	}
	if _, reply := hello(t, srv, "HELLO pw"); reply != "ERR full" {
		t.Fatalf("expected ERR full, got %q", reply)
	}

	st := srv.Status()
	if st.Clients != 2 || st.Name != "Lobby" || !st.HasPassword {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestStartAnnouncesToMaster(t *testing.T) {
	hits := make(chan string, 4)
	master := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case hits <- r.URL.Query().Get("name"):
		default:
		}
	}))
	defer master.Close()

	startTestServer(t, Config{Port: 0, MasterURL: master.URL, AnnounceInterval: time.Hour},
		config.RawInput{Name: "Announced", MaxClients: 8, Register: true})

	select {
	case name := <-hits:
		if name != "Announced" {
			t.Fatalf("unexpected announced name %q", name)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("relay did not announce")
	}
}

func TestStartSkipsMasterWhenDisabled(t *testing.T) {
	hits := make(chan struct{}, 1)
	master := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits <- struct{}{}
	}))
	defer master.Close()

	startTestServer(t, Config{Port: 0, MasterURL: master.URL},
		config.RawInput{MaxClients: 8, Register: false})

	select {
	case <-hits:
		t.Fatalf("relay announced with registration disabled")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestStartRelayExitsOnListenError(t *testing.T) {
	busy, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to reserve port: %v", err)
	}
	defer busy.Close()

	srv := NewServer(Config{Port: busy.Addr().(*net.TCPAddr).Port})
	code := -1
	srv.exit = func(c int) { code = c }

	srv.StartRelay(config.Build(config.RawInput{MaxClients: 8}))
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}

func TestStartTwiceFails(t *testing.T) {
	srv := startTestServer(t, Config{Port: 0}, config.RawInput{MaxClients: 8})
	if err := srv.Start(config.Build(config.RawInput{MaxClients: 8})); err == nil {
		t.Fatalf("expected second start to fail")
	}
}

func TestStopClosesPendingHandshake(t *testing.T) {
	srv := NewServer(Config{Port: 0})
	if err := srv.Start(config.Build(config.RawInput{MaxClients: 8})); err != nil {
		t.Fatalf("failed to start relay: %v", err)
	}

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", srv.Port()))
	if err != nil {
		t.Fatalf("failed to dial relay: %v", err)
	}
	defer conn.Close()

	// Let the server accept the connection and block waiting for HELLO
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	srv.Stop()
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Stop took %v with a connection that never sent HELLO", elapsed)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Fatalf("expected the pending connection to be closed")
	}
}
