package main

import (
	"errors"
	"fmt"
	"io"

	"bloomd.lopezb.com/internal/bloom"
)

func (app *application) unknownCommandResponse(w io.Writer, commandName string) {
	_ = app.writeErrorResponse(w, fmt.Sprintf("ERR unknown command '%s'", commandName))
}

func (app *application) wrongNumberOfArgsResponse(w io.Writer, commandName string) {
	_ = app.writeErrorResponse(w, fmt.Sprintf("ERR wrong number of arguments for '%s' command", commandName))
}

// filterErrorResponse reports a failed filter operation. Hash failures are
// counted and logged because they point at a broken hashing setup rather
// than a bad request.
func (app *application) filterErrorResponse(w io.Writer, command, key string, err error) {
	if errors.Is(err, bloom.ErrHash) {
		app.metrics.hashFailed()
		app.logger.Warn().Err(err).Str("command", command).Str("key", key).Msg("hash failure")
	}
	_ = app.writeErrorResponse(w, "ERR "+err.Error())
}
