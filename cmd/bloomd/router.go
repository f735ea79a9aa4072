package main

import (
	"io"
	"strings"
)

// CommandHandler writes the reply for one command to w. The writer is
// normally a buffered writer wrapping the connection.
type CommandHandler func(w io.Writer, args []string)

// Router maps upper-case command names to handlers.
type Router struct {
	handlers map[string]CommandHandler
}

func NewRouter() *Router {
	return &Router{handlers: make(map[string]CommandHandler)}
}

// Handle registers handler under name. Names are case-insensitive.
func (r *Router) Handle(name string, handler CommandHandler) {
	r.handlers[strings.ToUpper(name)] = handler
}

// Dispatch runs the handler for parts[0] with the remaining parts as
// arguments. An empty command is ignored.
func (r *Router) Dispatch(app *application, w io.Writer, parts []string) {
	if len(parts) == 0 {
		return
	}

	name := strings.ToUpper(parts[0])
	handler, found := r.handlers[name]
	app.metrics.commandProcessed(name, found)

	if !found {
		app.unknownCommandResponse(w, name)
		return
	}
	handler(w, parts[1:])
}
