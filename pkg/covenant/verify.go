package covenant

import (
	"github.com/covenant-oss/covenant/internal/app/verifier"
)

// Verify runs provider verification from a newline-delimited argument
// string (flag on one line, its value on the next). Status codes:
// 0 success, 1 verification failures, 2 empty input, 3 internal fault,
// 4 invalid arguments.
func Verify(args string) int {
	return verifier.Verify(args)
}

// ReleasePact drops a pact handle and the handles of its interactions.
func ReleasePact(handle PactHandle) bool {
	object, ok := registry.Get(uint32(handle))
	if !ok {
		return false
	}
	if p, ok := object.(*pactObject); ok {
		for _, interaction := range p.interactions {
			registry.Release(interaction)
		}
	}
	return registry.Release(uint32(handle))
}

// ReleaseMessagePact drops a message pact handle and its messages.
func ReleaseMessagePact(handle MessagePactHandle) bool {
	object, ok := registry.Get(uint32(handle))
	if !ok {
		return false
	}
	if p, ok := object.(*messagePactObject); ok {
		for _, message := range p.messages {
			registry.Release(message)
		}
	}
	return registry.Release(uint32(handle))
}
