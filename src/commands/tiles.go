package commands

import (
	"context"
	"fmt"

	"cogrange/src/args"
	"cogrange/src/rangereader"
)

// RunTiles executes the tiles command. Without tile indices it lists the
// registered layout, otherwise it reads the requested tiles.
func RunTiles(ctx context.Context, tilesArgs *args.TilesArgs, env *Env) error {
	cat, err := env.requireCatalog("tiles")
	if err != nil {
		return err
	}

	if len(tilesArgs.Tiles) == 0 {
		m, err := cat.Load(ctx, tilesArgs.Locator)
		if err != nil {
			return err
		}
		idx, err := m.BuildIndex(env.Config.HeaderLength)
		if err != nil {
			return fmt.Errorf("invalid layout registered for %s: %w", tilesArgs.Locator, err)
		}
		for _, tile := range idx.Tiles() {
			if err := env.emit(TileOutput{
				Locator: tilesArgs.Locator,
				Tile:    tile.TileIndex,
				Start:   tile.Range.Start,
				End:     tile.Range.End,
			}); err != nil {
				return err
			}
		}
		return nil
	}

	rr, err := env.openReader(ctx, tilesArgs.Locator, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", tilesArgs.Locator, err)
	}
	defer closeReader(rr)

	return emitTiles(ctx, env, rr, "", tilesArgs.Locator, tilesArgs.Tiles)
}

// emitTiles reads tiles with one call and prints them in request order
func emitTiles(ctx context.Context, env *Env, rr *rangereader.RangeReader, id, locator string, tiles []uint64) error {
	data, err := rr.ReadTiles(ctx, tiles...)
	if err != nil {
		return fmt.Errorf("failed to read tiles: %w", err)
	}

	for _, tileIndex := range tiles {
		tile, _ := rr.TileIndex().TileRange(tileIndex)
		if err := env.emit(TileOutput{
			ID:      id,
			Locator: locator,
			Tile:    tileIndex,
			Start:   tile.Range.Start,
			End:     tile.Range.End,
			Data:    data[tileIndex],
		}); err != nil {
			return err
		}
	}
	return nil
}
