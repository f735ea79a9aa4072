// handlers_bloom.go implements the Bloom filter commands.
//
// Each key holds one fixed-size *bloom.Filter[string]. BF.RESERVE creates a
// filter with explicit parameters; BF.ADD and BF.MADD create one with the
// server defaults (--bf-capacity, --bf-probes) when the key is missing.
//
// Concurrency Strategy
// ====================
//   - BF.RESERVE, BF.ADD, BF.MADD: Mutate(), exclusive shard lock.
//   - BF.EXISTS, BF.MEXISTS, BF.INFO: View(), shared shard lock.
//
// With --bf-concurrent-inserts the filters use atomic bitsets, and adds to a
// key that already exists run under View() as well. Only the creation of a
// missing key still takes the exclusive lock.

package main

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"bloomd.lopezb.com/internal/bloom"
)

var errFilterNotFound = errors.New("ERR not found")

func (app *application) newFilter(capacity uint64, probes uint32) (*bloom.Filter[string], error) {
	return bloom.NewString(capacity, probes, app.filterOpts...)
}

// handleBFReserve handles the BF.RESERVE command.
// Syntax: BF.RESERVE key capacity probes
//
// capacity is the number of bits and probes the number of bits set per item.
// Both are capped by --bf-max-capacity and --bf-max-probes. Fails if key
// already holds a filter.
func (app *application) handleBFReserve(w io.Writer, args []string) {
	if len(args) != 3 {
		app.wrongNumberOfArgsResponse(w, "BF.RESERVE")
		return
	}

	key := args[0]
	capacity, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		_ = app.writeErrorResponse(w, "ERR bad capacity")
		return
	}
	probes, err := strconv.ParseUint(args[2], 10, 32)
	if err != nil {
		_ = app.writeErrorResponse(w, "ERR bad probe count")
		return
	}
	if capacity > app.config.BFMaxCapacity {
		_ = app.writeErrorResponse(w, "ERR capacity exceeds limit of "+strconv.FormatUint(app.config.BFMaxCapacity, 10))
		return
	}
	if uint32(probes) > app.config.BFMaxProbes {
		_ = app.writeErrorResponse(w, "ERR probe count exceeds limit of "+strconv.FormatUint(uint64(app.config.BFMaxProbes), 10))
		return
	}

	f, err := app.newFilter(capacity, uint32(probes))
	if err != nil {
		_ = app.writeErrorResponse(w, "ERR "+err.Error())
		return
	}

	if !app.store.Reserve(key, f) {
		_ = app.writeErrorResponse(w, "ERR item exists")
		return
	}
	_ = app.writeSimpleStringResponse(w, "OK")
}

// handleBFAdd handles the BF.ADD command.
// Syntax: BF.ADD key item
//
// Returns 1 if at least one bit of the item flipped, 0 if the item was
// (probably) already present.
func (app *application) handleBFAdd(w io.Writer, args []string) {
	if len(args) != 2 {
		app.wrongNumberOfArgsResponse(w, "BF.ADD")
		return
	}

	added, err := app.addItems(args[0], args[1:])
	if err != nil {
		app.filterErrorResponse(w, "BF.ADD", args[0], err)
		return
	}
	_ = app.writeIntegerResponse(w, int64(added[0]))
}

// handleBFMAdd handles the BF.MADD command.
// Syntax: BF.MADD key item [item ...]
//
// Returns one 0/1 flag per item, in order, with BF.ADD semantics. Items
// are added in order under a single lock acquisition. If hashing fails part
// way, the items before the failure stay added and an error is returned.
func (app *application) handleBFMAdd(w io.Writer, args []string) {
	if len(args) < 2 {
		app.wrongNumberOfArgsResponse(w, "BF.MADD")
		return
	}

	added, err := app.addItems(args[0], args[1:])
	if err != nil {
		app.filterErrorResponse(w, "BF.MADD", args[0], err)
		return
	}
	_ = app.writeIntegerArrayResponse(w, added)
}

// addItems inserts items into the filter at key, creating it with the
// default parameters if needed.
func (app *application) addItems(key string, items []string) ([]int, error) {
	results := make([]int, len(items))
	add := func(f *bloom.Filter[string]) error {
		for i, item := range items {
			changed, err := f.Add(item)
			if changed {
				results[i] = 1
			}
			if err != nil {
				return err
			}
		}
		return nil
	}

	if app.config.BFConcurrentInserts {
		found := false
		err := app.store.View(key, func(f *bloom.Filter[string]) error {
			if f == nil {
				return nil
			}
			found = true
			return add(f)
		})
		if found {
			return results, err
		}
	}

	err := app.store.Mutate(key, func(f *bloom.Filter[string]) (*bloom.Filter[string], error) {
		if f == nil {
			var err error
			f, err = app.newFilter(app.config.BFCapacity, app.config.BFProbes)
			if err != nil {
				return nil, err
			}
		}
		return f, add(f)
	})
	return results, err
}

// handleBFExists handles the BF.EXISTS command.
// Syntax: BF.EXISTS key item
//
// Returns 1 if the item may be present, 0 if it is definitely absent. A
// missing key answers 0.
func (app *application) handleBFExists(w io.Writer, args []string) {
	if len(args) != 2 {
		app.wrongNumberOfArgsResponse(w, "BF.EXISTS")
		return
	}

	found, err := app.queryItems(args[0], args[1:])
	if err != nil {
		app.filterErrorResponse(w, "BF.EXISTS", args[0], err)
		return
	}
	_ = app.writeIntegerResponse(w, int64(found[0]))
}

// handleBFMExists handles the BF.MEXISTS command.
// Syntax: BF.MEXISTS key item [item ...]
func (app *application) handleBFMExists(w io.Writer, args []string) {
	if len(args) < 2 {
		app.wrongNumberOfArgsResponse(w, "BF.MEXISTS")
		return
	}

	found, err := app.queryItems(args[0], args[1:])
	if err != nil {
		app.filterErrorResponse(w, "BF.MEXISTS", args[0], err)
		return
	}
	_ = app.writeIntegerArrayResponse(w, found)
}

func (app *application) queryItems(key string, items []string) ([]int, error) {
	results := make([]int, len(items))
	err := app.store.View(key, func(f *bloom.Filter[string]) error {
		if f == nil {
			return nil
		}
		for i, item := range items {
			ok, err := f.Query(item)
			if err != nil {
				return err
			}
			if ok {
				results[i] = 1
			}
		}
		return nil
	})
	return results, err
}

// handleBFInfo handles the BF.INFO command.
// Syntax: BF.INFO key
//
// Replies with a bulk string of "field:value" lines describing the filter.
func (app *application) handleBFInfo(w io.Writer, args []string) {
	if len(args) != 1 {
		app.wrongNumberOfArgsResponse(w, "BF.INFO")
		return
	}

	var report string
	err := app.store.View(args[0], func(f *bloom.Filter[string]) error {
		if f == nil {
			return errFilterNotFound
		}
		report = filterReport(f)
		return nil
	})
	if err != nil {
		_ = app.writeErrorResponse(w, err.Error())
		return
	}
	_ = app.writeBulkStringResponse(w, report)
}

func filterReport(f *bloom.Filter[string]) string {
	var b strings.Builder
	field := func(k, v string) {
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(v)
		b.WriteString("\r\n")
	}

	field("capacity", strconv.FormatUint(f.Capacity(), 10))
	field("probes", strconv.FormatUint(uint64(f.ProbeCount()), 10))
	field("bits_set", strconv.FormatUint(f.BitsSet(), 10))
	field("inserts", strconv.FormatUint(f.Inserts(), 10))
	field("size_bytes", strconv.FormatUint(f.SizeBytes(), 10))
	field("saturation", strconv.FormatFloat(f.Saturation(), 'f', 6, 64))
	field("estimated_fpr", strconv.FormatFloat(f.EstimatedFalsePositiveRate(), 'g', 6, 64))
	return b.String()
}
