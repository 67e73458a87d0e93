package commands

import (
	"context"
	"fmt"

	"cogrange/src/args"
	"cogrange/src/rangereader"
	"cogrange/src/ranges"
	"cogrange/src/transport"
)

// RunHeader executes the header command
func RunHeader(ctx context.Context, headerArgs *args.HeaderArgs, env *Env) error {
	rr, err := env.openReader(ctx, headerArgs.Locator, headerArgs.Length)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", headerArgs.Locator, err)
	}
	defer closeReader(rr)

	header, err := rr.ReadHeader(ctx)
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}

	return env.emit(HeaderOutput{
		Locator: headerArgs.Locator,
		Length:  len(header),
		Data:    header,
	})
}

// RunStat executes the stat command
func RunStat(ctx context.Context, statArgs *args.StatArgs, env *Env) error {
	loc, err := transport.ParseLocator(statArgs.Locator)
	if err != nil {
		return err
	}

	rr, err := env.openReader(ctx, statArgs.Locator, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", statArgs.Locator, err)
	}
	defer closeReader(rr)

	size, err := rr.ResolveFileSize(ctx)
	if err != nil {
		return err
	}

	return env.emit(StatOutput{
		Locator: statArgs.Locator,
		Backend: string(loc.Kind),
		Size:    size,
	})
}

// RunRead executes the read command
func RunRead(ctx context.Context, readArgs *args.ReadArgs, env *Env) error {
	rs := make([]ranges.ByteRange, 0, len(readArgs.Ranges))
	for _, s := range readArgs.Ranges {
		r, err := ranges.ParseByteRange(s)
		if err != nil {
			return err
		}
		rs = append(rs, r)
	}

	var opts []rangereader.Option
	if readArgs.Timeout > 0 {
		opts = append(opts, rangereader.WithTimeout(readArgs.Timeout))
	}

	rr, err := env.openReader(ctx, readArgs.Locator, 0, opts...)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", readArgs.Locator, err)
	}
	defer closeReader(rr)

	if err := emitRanges(ctx, env, rr, "", readArgs.Locator, rs); err != nil {
		return err
	}

	if readArgs.Stats {
		return env.emit(StatsOutput{Locator: readArgs.Locator, Stats: rr.Stats()})
	}
	return nil
}

// emitRanges reads rs with one call and prints them in request order
func emitRanges(ctx context.Context, env *Env, rr *rangereader.RangeReader, id, locator string, rs []ranges.ByteRange) error {
	data, err := rr.Read(ctx, rs)
	if err != nil {
		return fmt.Errorf("failed to read ranges: %w", err)
	}

	for _, r := range rs {
		// a longer range sharing this start may have won the key
		chunk := data[r.Start][:r.Length()]
		if err := env.emit(RangeOutput{
			ID:      id,
			Locator: locator,
			Start:   r.Start,
			End:     r.End,
			Data:    chunk,
		}); err != nil {
			return err
		}
	}
	return nil
}
