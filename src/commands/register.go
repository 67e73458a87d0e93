package commands

import (
	"context"
	"fmt"

	"cogrange/src/args"
	"cogrange/src/catalog"
)

// RegisterOutput summarizes a registered layout
type RegisterOutput struct {
	Locator      string `json:"locator"`
	HeaderLength uint64 `json:"header_length"`
	Tiles        int    `json:"tiles"`
}

// RunRegister executes the register command
func RunRegister(ctx context.Context, registerArgs *args.RegisterArgs, env *Env) error {
	cat, err := env.requireCatalog("register")
	if err != nil {
		return err
	}

	m, err := catalog.LoadManifestFromPath(registerArgs.ManifestPath)
	if err != nil {
		return err
	}

	if err := cat.Save(ctx, m); err != nil {
		return err
	}

	// report the header length readers will actually use
	idx, err := m.BuildIndex(env.Config.HeaderLength)
	if err != nil {
		return fmt.Errorf("failed to build tile index: %w", err)
	}

	return env.emit(RegisterOutput{
		Locator:      m.Locator,
		HeaderLength: idx.HeaderLength(),
		Tiles:        idx.Len(),
	})
}
