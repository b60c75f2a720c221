package mockserver

import (
	"encoding/json"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/covenant-oss/covenant/internal/app/pactfile"
)

// Typed failures so callers can map them onto their own error surface.
var (
	ErrInvalidPact = errors.New("pact document could not be parsed")
	ErrInvalidAddr = errors.New("bind address could not be parsed")
	ErrBindFailure = errors.New("unable to bind mock server port")
	ErrTLSFailure  = errors.New("unable to configure TLS for mock server")
	ErrNoServer    = errors.New("no mock server running on that port")
)

// Manager owns every running mock server in the process, keyed by
// bound port.
type Manager struct {
	servers sync.Map // int -> *Server
}

func NewManager() *Manager {
	return &Manager{}
}

// DefaultManager backs the package-level API surface.
var DefaultManager = NewManager()

// Start launches a mock server for the pact on the given address.
// addr is "host:port"; port 0 picks a free one. The bound port is
// returned and identifies the server from then on.
func (m *Manager) Start(pact *pactfile.Pact, addr string, useTLS bool) (int, error) {
	host, portText, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidAddr, "%q: %v", addr, err)
	}
	if host == "" {
		host = "127.0.0.1"
	}
	port, err := strconv.Atoi(portText)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidAddr, "%q: port is not numeric", addr)
	}

	server := newServer(pact, time.Now().UnixNano())
	if err := server.start(host, port, useTLS); err != nil {
		return 0, err
	}

	m.servers.Store(server.port, server)
	return server.port, nil
}

// StartString parses pactJSON and starts a server for it.
func (m *Manager) StartString(pactJSON, addr string, useTLS bool) (int, error) {
	pact, err := pactfile.Load([]byte(pactJSON))
	if err != nil {
		return 0, errors.Wrap(ErrInvalidPact, err.Error())
	}
	return m.Start(pact, addr, useTLS)
}

func (m *Manager) lookup(port int) (*Server, bool) {
	loaded, ok := m.servers.Load(port)
	if !ok {
		return nil, false
	}
	return loaded.(*Server), true
}

// Matched reports whether the server saw every interaction and nothing
// else.
func (m *Manager) Matched(port int) (bool, error) {
	server, ok := m.lookup(port)
	if !ok {
		return false, ErrNoServer
	}
	return server.matched(), nil
}

// MismatchesJSON renders the server's failure report as a JSON array.
// A fully matched server yields an empty array.
func (m *Manager) MismatchesJSON(port int) ([]byte, error) {
	server, ok := m.lookup(port)
	if !ok {
		return nil, ErrNoServer
	}
	docs := server.mismatchDocuments()
	if docs == nil {
		docs = []map[string]interface{}{}
	}
	encoded, err := json.Marshal(docs)
	if err != nil {
		return nil, errors.Wrap(err, "unable to serialize mismatch report")
	}
	return encoded, nil
}

// Pact returns the document the server on port is replaying.
func (m *Manager) Pact(port int) (*pactfile.Pact, error) {
	server, ok := m.lookup(port)
	if !ok {
		return nil, ErrNoServer
	}
	return server.pact, nil
}

// WritePact persists the server's pact under dir. The server keeps
// running; recording and shutdown are separate steps.
func (m *Manager) WritePact(port int, dir string, overwrite bool) error {
	server, ok := m.lookup(port)
	if !ok {
		return ErrNoServer
	}
	return pactfile.Write(server.pact, dir, overwrite)
}

// Stop shuts the server down and forgets it. The first call returns
// true, later calls false.
func (m *Manager) Stop(port int) bool {
	loaded, ok := m.servers.LoadAndDelete(port)
	if !ok {
		return false
	}
	loaded.(*Server).shutdown()
	log.Infof("mock server on port %d stopped", port)
	return true
}

// StopAll shuts down every running server, returning how many were
// stopped.
func (m *Manager) StopAll() int {
	stopped := 0
	m.servers.Range(func(key, _ interface{}) bool {
		if m.Stop(key.(int)) {
			stopped++
		}
		return true
	})
	return stopped
}

// Ports lists the ports with a running server.
func (m *Manager) Ports() []int {
	var ports []int
	m.servers.Range(func(key, _ interface{}) bool {
		ports = append(ports, key.(int))
		return true
	})
	return ports
}
