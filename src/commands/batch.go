package commands

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"cogrange/src/args"
	"cogrange/src/commands/sources"
	"cogrange/src/rangereader"
)

// RunBatch executes the batch command. Requests run in input order; a failed
// request prints an error line and the batch goes on.
func RunBatch(ctx context.Context, batchArgs *args.BatchArgs, env *Env) error {
	var input *string
	if batchArgs.Input != "" {
		input = &batchArgs.Input
	}

	source, err := sources.ConnectToSource(input)
	if err != nil {
		return fmt.Errorf("failed to connect to source: %w", err)
	}
	defer source.Close()

	var opts []rangereader.Option
	if batchArgs.Timeout > 0 {
		opts = append(opts, rangereader.WithTimeout(batchArgs.Timeout))
	}

	readers := make(map[string]*rangereader.RangeReader)
	defer func() {
		for _, rr := range readers {
			closeReader(rr)
		}
	}()

	total, failed := 0, 0
	for {
		item, err := source.GetOne(ctx)
		if err != nil {
			return fmt.Errorf("failed to get request from source: %w", err)
		}
		if item.Type == sources.SourceItemTypeClose {
			break
		}

		total++
		req := item.Request
		if err := runRequest(ctx, env, readers, req, opts); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			logrus.Warnf("Request %s on %s failed: %v", req.ID, req.Locator, err)
			if err := env.emit(ErrorOutput{ID: req.ID, Locator: req.Locator, Error: err.Error()}); err != nil {
				return err
			}
		}
	}

	for locator, rr := range readers {
		stats := rr.Stats()
		logrus.Debugf("Reader on %s: %d fetches, %d bytes, %d cached reads",
			locator, stats.Fetches, stats.BytesFetched, stats.CachedReads)
	}
	logrus.Infof("Ran %d requests on %d objects (%d failed)", total, len(readers), failed)

	if failed > 0 {
		return fmt.Errorf("%d of %d requests failed", failed, total)
	}
	return nil
}

func runRequest(
	ctx context.Context,
	env *Env,
	readers map[string]*rangereader.RangeReader,
	req *sources.ReadRequest,
	opts []rangereader.Option,
) error {
	if err := req.Validate(); err != nil {
		return err
	}
	rs, err := req.ByteRanges()
	if err != nil {
		return err
	}

	rr, ok := readers[req.Locator]
	if !ok {
		rr, err = env.openReader(ctx, req.Locator, 0, opts...)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", req.Locator, err)
		}
		readers[req.Locator] = rr
	}

	if req.Header {
		var header []byte
		if req.HeaderLength > 0 {
			header, err = rr.ReadHeaderLength(ctx, req.HeaderLength)
		} else {
			header, err = rr.ReadHeader(ctx)
		}
		if err != nil {
			return fmt.Errorf("failed to read header: %w", err)
		}
		if err := env.emit(HeaderOutput{ID: req.ID, Locator: req.Locator, Length: len(header), Data: header}); err != nil {
			return err
		}
	}

	if len(rs) > 0 {
		if err := emitRanges(ctx, env, rr, req.ID, req.Locator, rs); err != nil {
			return err
		}
	}

	if len(req.Tiles) > 0 {
		if err := emitTiles(ctx, env, rr, req.ID, req.Locator, req.Tiles); err != nil {
			return err
		}
	}
	return nil
}
