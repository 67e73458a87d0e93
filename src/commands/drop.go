package commands

import (
	"context"
	"fmt"

	"cogrange/src/args"
)

// DropOutput is printed once a layout is removed
type DropOutput struct {
	Locator string `json:"locator"`
	Dropped bool   `json:"dropped"`
}

// RunDrop executes the drop command
func RunDrop(ctx context.Context, dropArgs *args.DropArgs, env *Env) error {
	cat, err := env.requireCatalog("drop")
	if err != nil {
		return err
	}

	if err := cat.Delete(ctx, dropArgs.Locator); err != nil {
		return fmt.Errorf("failed to drop layout: %w", err)
	}

	return env.emit(DropOutput{Locator: dropArgs.Locator, Dropped: true})
}
