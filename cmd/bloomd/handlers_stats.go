package main

import (
	"fmt"
	"io"
	"strings"

	"bloomd.lopezb.com/internal/bloom"
)

// keyOverhead approximates the fixed cost of one key on top of its bitset:
// the key string header (16), the map entry (~32), the Filter struct (64)
// and the bitset headers (~40).
const keyOverhead = 152

// handleMemory handles the MEMORY command.
// Syntax: MEMORY USAGE key
func (app *application) handleMemory(w io.Writer, args []string) {
	if len(args) < 1 {
		app.wrongNumberOfArgsResponse(w, "MEMORY")
		return
	}

	sub := strings.ToUpper(args[0])
	switch sub {
	case "USAGE":
		app.handleMemoryUsage(w, args[1:])
	default:
		_ = app.writeErrorResponse(w, fmt.Sprintf("ERR unknown subcommand '%s'. Try MEMORY USAGE <key>", sub))
	}
}

// handleMemoryUsage replies with the approximate bytes held by key, or nil
// when the key does not exist.
func (app *application) handleMemoryUsage(w io.Writer, args []string) {
	if len(args) != 1 {
		app.wrongNumberOfArgsResponse(w, "MEMORY USAGE")
		return
	}

	key := args[0]
	size := int64(-1)
	_ = app.store.View(key, func(f *bloom.Filter[string]) error {
		if f != nil {
			size = int64(len(key)) + int64(f.SizeBytes()) + keyOverhead
		}
		return nil
	})

	if size < 0 {
		_ = app.writeNilResponse(w)
		return
	}
	_ = app.writeIntegerResponse(w, size)
}
