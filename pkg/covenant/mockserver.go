package covenant

import (
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/covenant-oss/covenant/internal/app/mockserver"
	"github.com/covenant-oss/covenant/internal/app/pactfile"
)

// Negative codes returned by CreateMockServer and
// CreateMockServerForPact in place of a port.
const (
	ErrCodeNullInput   = -1
	ErrCodeInvalidPact = -2
	ErrCodeStartFailed = -3
	ErrCodePanic       = -4
	ErrCodeInvalidAddr = -5
	ErrCodeTLSFailure  = -6
)

// CreateMockServer starts a mock server for the given pact JSON on
// addr ("host:port", port 0 picks a free one). Returns the bound port,
// or a negative code on failure.
func CreateMockServer(pactJSON, addr string, useTLS bool) (port int) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("mock server start panicked: %v", r)
			setLastError("panic while starting mock server")
			port = ErrCodePanic
		}
	}()

	if strings.TrimSpace(pactJSON) == "" {
		setLastError("pact JSON is empty")
		return ErrCodeNullInput
	}
	bound, err := mockserver.DefaultManager.StartString(pactJSON, addr, useTLS)
	if err != nil {
		setLastError(err.Error())
		return startErrorCode(err)
	}
	return bound
}

// CreateMockServerForPact starts a mock server for a pact built
// through this surface. The pact is frozen: every later mutation of it
// or its interactions returns false.
func CreateMockServerForPact(handle PactHandle, addr string, useTLS bool) (port int) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("mock server start panicked: %v", r)
			setLastError("panic while starting mock server")
			port = ErrCodePanic
		}
	}()

	object, ok := registry.Get(uint32(handle))
	if !ok {
		setLastError("unknown pact handle")
		return ErrCodeNullInput
	}
	p, ok := object.(*pactObject)
	if !ok {
		setLastError("handle does not refer to a pact")
		return ErrCodeNullInput
	}

	registry.Freeze(uint32(handle))
	for _, interaction := range p.interactions {
		registry.Freeze(interaction)
	}

	bound, err := mockserver.DefaultManager.Start(p.pact, addr, useTLS)
	if err != nil {
		setLastError(err.Error())
		return startErrorCode(err)
	}
	return bound
}

func startErrorCode(err error) int {
	switch {
	case errors.Is(err, mockserver.ErrInvalidPact):
		return ErrCodeInvalidPact
	case errors.Is(err, mockserver.ErrInvalidAddr):
		return ErrCodeInvalidAddr
	case errors.Is(err, mockserver.ErrTLSFailure):
		return ErrCodeTLSFailure
	default:
		return ErrCodeStartFailed
	}
}

// MockServerMatched reports whether the server on port saw every
// interaction and nothing unexpected. Unknown ports report false.
func MockServerMatched(port int) bool {
	matched, err := mockserver.DefaultManager.Matched(port)
	if err != nil {
		setLastError(err.Error())
		return false
	}
	return matched
}

// MockServerMismatches returns the mismatch report as a JSON array
// string. Unknown ports return the empty string.
func MockServerMismatches(port int) string {
	report, err := mockserver.DefaultManager.MismatchesJSON(port)
	if err != nil {
		setLastError(err.Error())
		return ""
	}
	return string(report)
}

// CleanupMockServer stops the server on port. True on the first call,
// false once it is already gone.
func CleanupMockServer(port int) bool {
	return mockserver.DefaultManager.Stop(port)
}

// WritePactFile persists the pact replayed by the server on port.
// Codes: 0 written, 1 I/O or serialization failure, 2 no mock server
// on that port, 3 merge conflict with the file on disk.
func WritePactFile(port int, dir string, overwrite bool) int {
	err := mockserver.DefaultManager.WritePact(port, dir, overwrite)
	if errors.Is(err, mockserver.ErrNoServer) {
		setLastError(err.Error())
		return 2
	}
	return writeCode(err)
}

func writeCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, pactfile.ErrMergeConflict):
		setLastError(err.Error())
		return 3
	default:
		setLastError(err.Error())
		return 1
	}
}
