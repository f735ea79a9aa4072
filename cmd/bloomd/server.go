package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

const (
	writeTimeout              = 5 * time.Second
	rejectionTimeout          = 500 * time.Millisecond
	errMaxConnectionsResponse = "-ERR max number of clients reached\r\n"
)

// serve listens on the configured port and blocks until ctx is cancelled and
// in-flight connections have drained, or the shutdown timeout expires.
func (app *application) serve(ctx context.Context) error {
	//
	// DESIGN
	// ------
	//
	// 1. CONNECTION LIMITING
	//    connLimiter is a buffered channel used as a semaphore. A non-blocking
	//    send either takes a slot or rejects the client on the spot, so the
	//    accept loop never waits on a full server.
	//
	// 2. GRACEFUL SHUTDOWN
	//    A watcher goroutine waits for ctx. It closes the listener, which
	//    breaks the accept loop, then waits for the connection WaitGroup
	//    under a deadline of config.ShutdownTimeout.
	//
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", app.config.Port))
	if err != nil {
		return err
	}
	app.listener = ln
	addr := ln.Addr().String()

	if app.readyCh != nil {
		close(app.readyCh)
	}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		app.logger.Info().Str("address", addr).Msg("shutting down server")

		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			shutdownErr <- err
			return
		}

		drained := make(chan struct{})
		go func() {
			app.wg.Wait()
			close(drained)
		}()

		timer := time.NewTimer(app.config.ShutdownTimeout)
		defer timer.Stop()
		select {
		case <-drained:
			shutdownErr <- nil
		case <-timer.C:
			shutdownErr <- context.DeadlineExceeded
		}
	}()

	app.logger.Info().Str("address", addr).Msg("server starting")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			app.logger.Error().Err(err).Str("address", addr).Msg("failed to accept connection")
			continue
		}

		select {
		case app.connLimiter <- struct{}{}:
			app.wg.Add(1)
			go app.handleConnection(conn)
		default:
			app.logger.Info().Str("remote_addr", conn.RemoteAddr().String()).Msg("rejecting connection, limit reached")
			// A client that never reads must not stall the accept loop.
			_ = conn.SetWriteDeadline(time.Now().Add(rejectionTimeout))
			_, _ = conn.Write([]byte(errMaxConnectionsResponse))
			_ = conn.Close()
		}
	}

	// The listener was closed by something other than ctx.
	if ctx.Err() == nil {
		return nil
	}

	err = <-shutdownErr
	if errors.Is(err, context.DeadlineExceeded) {
		app.logger.Warn().Str("address", addr).Msg("shutdown timeout reached with clients still connected")
		return nil
	}
	if err != nil {
		return err
	}

	app.logger.Info().Str("address", addr).Msg("server stopped gracefully")
	return nil
}

// handleConnection runs the request loop for one client.
//
// Replies go through a bufio.Writer that is flushed only once the parser has
// no pipelined input left, so a burst of commands is answered with a single
// write.
func (app *application) handleConnection(conn net.Conn) {
	defer func() { <-app.connLimiter }()
	defer app.wg.Done()
	defer func() { _ = conn.Close() }()

	app.metrics.connectionOpened()

	remote := conn.RemoteAddr().String()
	log := app.logger.With().Str("remote_addr", remote).Logger()
	log.Debug().Msg("new connection")

	parser := NewParser(conn)
	writer := bufio.NewWriterSize(conn, 4096)

	// Replies to commands parsed before an error still reach the client.
	defer func() { _ = writer.Flush() }()

	for {
		if app.config.IdleTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(app.config.IdleTimeout)); err != nil {
				log.Error().Err(err).Msg("failed to set read deadline")
				return
			}
		}

		parts, err := parser.Parse()
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Debug().Msg("client disconnected")
				return
			}
			log.Warn().Err(err).Msg("parser error")
			// Protocol errors are reported before hanging up.
			var netErr net.Error
			if !errors.As(err, &netErr) && !errors.Is(err, net.ErrClosed) {
				_ = app.writeErrorResponse(writer, err.Error())
			}
			return
		}

		app.router.Dispatch(app, writer, parts)

		if parser.Buffered() == 0 {
			if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if err := writer.Flush(); err != nil {
				log.Error().Err(err).Msg("failed to flush response")
				return
			}
		}
	}
}
