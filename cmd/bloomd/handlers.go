// handlers.go implements the server-level commands: PING, INFO, DEL and
// EXISTS.

package main

import (
	"io"
	"strconv"
	"strings"
)

// handlePing handles the PING command.
// Syntax: PING
func (app *application) handlePing(w io.Writer, args []string) {
	if len(args) != 0 {
		app.wrongNumberOfArgsResponse(w, "PING")
		return
	}
	_ = app.writeSimpleStringResponse(w, "PONG")
}

// handleInfo handles the INFO command.
// Syntax: INFO
//
// Replies with a bulk string of CRLF-separated "key:value" lines grouped in
// "# Section" blocks, following the Redis INFO layout.
func (app *application) handleInfo(w io.Writer, args []string) {
	if len(args) != 0 {
		app.wrongNumberOfArgsResponse(w, "INFO")
		return
	}

	var b strings.Builder
	line := func(k string, v uint64) {
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(strconv.FormatUint(v, 10))
		b.WriteString("\r\n")
	}

	b.WriteString("# Server\r\n")
	line("connections_total", app.metrics.TotalConnections.Load())
	line("connections_active", uint64(len(app.connLimiter)))
	line("commands_processed_total", app.metrics.TotalCommands.Load())

	b.WriteString("# Filters\r\n")
	line("filters", uint64(app.store.Len()))
	line("hash_errors_total", app.metrics.HashErrors.Load())
	line("default_capacity", app.config.BFCapacity)
	line("default_probes", uint64(app.config.BFProbes))

	_ = app.writeBulkStringResponse(w, b.String())
}

// handleDel handles the DEL command.
// Syntax: DEL key [key ...]
//
// Returns the number of filters removed. Missing keys are ignored.
func (app *application) handleDel(w io.Writer, args []string) {
	if len(args) == 0 {
		app.wrongNumberOfArgsResponse(w, "DEL")
		return
	}

	var deleted int64
	for _, key := range args {
		if app.store.Delete(key) {
			deleted++
		}
	}
	_ = app.writeIntegerResponse(w, deleted)
}

// handleExists handles the EXISTS command.
// Syntax: EXISTS key [key ...]
//
// Returns how many of the given keys hold a filter. A key named twice is
// counted twice.
func (app *application) handleExists(w io.Writer, args []string) {
	if len(args) == 0 {
		app.wrongNumberOfArgsResponse(w, "EXISTS")
		return
	}

	var n int64
	for _, key := range args {
		if app.store.Exists(key) {
			n++
		}
	}
	_ = app.writeIntegerResponse(w, n)
}
