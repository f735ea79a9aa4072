package main

import (
	"io"
	"strconv"
)

// Replies that are written often enough to keep preallocated.
var (
	respOK   = []byte("+OK\r\n")
	respPong = []byte("+PONG\r\n")
	respZero = []byte(":0\r\n")
	respOne  = []byte(":1\r\n")
	respNil  = []byte("$-1\r\n")
)

// RESP replies are built with append and strconv rather than fmt.

func (app *application) writeSimpleStringResponse(w io.Writer, s string) error {
	switch s {
	case "OK":
		_, err := w.Write(respOK)
		return err
	case "PONG":
		_, err := w.Write(respPong)
		return err
	}

	buf := make([]byte, 0, len(s)+3)
	buf = append(buf, '+')
	buf = append(buf, s...)
	buf = append(buf, '\r', '\n')
	_, err := w.Write(buf)
	return err
}

func (app *application) writeErrorResponse(w io.Writer, msg string) error {
	buf := make([]byte, 0, len(msg)+3)
	buf = append(buf, '-')
	buf = append(buf, msg...)
	buf = append(buf, '\r', '\n')
	_, err := w.Write(buf)
	return err
}

func (app *application) writeBulkStringResponse(w io.Writer, s string) error {
	buf := make([]byte, 0, len(s)+16)
	buf = append(buf, '$')
	buf = strconv.AppendInt(buf, int64(len(s)), 10)
	buf = append(buf, '\r', '\n')
	buf = append(buf, s...)
	buf = append(buf, '\r', '\n')
	_, err := w.Write(buf)
	return err
}

func (app *application) writeIntegerResponse(w io.Writer, i int64) error {
	switch i {
	case 0:
		_, err := w.Write(respZero)
		return err
	case 1:
		_, err := w.Write(respOne)
		return err
	}

	buf := make([]byte, 0, 24)
	buf = append(buf, ':')
	buf = strconv.AppendInt(buf, i, 10)
	buf = append(buf, '\r', '\n')
	_, err := w.Write(buf)
	return err
}

func (app *application) writeNilResponse(w io.Writer) error {
	_, err := w.Write(respNil)
	return err
}

// writeIntegerArrayResponse writes values as one RESP array of integers in a
// single Write call. BF.MADD and BF.MEXISTS reply with 0/1 flags.
func (app *application) writeIntegerArrayResponse(w io.Writer, values []int) error {
	buf := make([]byte, 0, 8+len(values)*4)
	buf = append(buf, '*')
	buf = strconv.AppendInt(buf, int64(len(values)), 10)
	buf = append(buf, '\r', '\n')
	for _, v := range values {
		buf = append(buf, ':')
		buf = strconv.AppendInt(buf, int64(v), 10)
		buf = append(buf, '\r', '\n')
	}
	_, err := w.Write(buf)
	return err
}
