package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	"mergetree/internal/manifest"
	"mergetree/internal/merge"
	"mergetree/internal/snapshot"
	"mergetree/internal/tree"
)

// config is one merge invocation.
type config struct {
	base   string
	uppers []string
	spec   tree.WhiteoutSpec
	strict bool
}

// configFromContext reads the layers from --manifest or from the layer flags.
func configFromContext(c *cli.Context) (*config, error) {
	path := c.String("manifest")
	if path == "" {
		return configFromFlags(c)
	}
	if c.String("base") != "" || len(c.StringSlice("upper")) > 0 {
		return nil, fmt.Errorf("use either --manifest or --base/--upper, not both")
	}

	mgr, err := manifest.NewManager(path)
	if err != nil {
		return nil, err
	}
	mf, err := mgr.Load()
	if err != nil {
		return nil, err
	}
	spec, err := mf.Spec()
	if err != nil {
		return nil, err
	}
	return &config{
		base:   mf.Base,
		uppers: mf.Uppers,
		spec:   spec,
		strict: c.Bool("strict-paths"),
	}, nil
}

func configFromFlags(c *cli.Context) (*config, error) {
	base := c.String("base")
	if base == "" {
		return nil, fmt.Errorf("--base is required")
	}
	uppers := c.StringSlice("upper")
	if len(uppers) == 0 {
		return nil, fmt.Errorf("at least one --upper is required")
	}
	spec, err := tree.ParseWhiteoutSpec(c.String("whiteout"))
	if err != nil {
		return nil, err
	}
	return &config{
		base:   base,
		uppers: uppers,
		spec:   spec,
		strict: c.Bool("strict-paths"),
	}, nil
}

// merge snapshots the base, then builds and applies each upper layer in
// order. Any snapshot failure aborts before a partial result is returned.
func (cfg *config) merge(fsys afero.Fs) (*tree.Tree, error) {
	builder := snapshot.NewBuilder(fsys)

	logger.Debug("Building base layer %s", cfg.base)
	base, err := builder.Open(cfg.base, tree.RoleLower, cfg.spec)
	if err != nil {
		return nil, err
	}

	var opts []merge.Option
	if cfg.strict {
		opts = append(opts, merge.WithStrictPaths())
	}
	stack := merge.NewStack(base, cfg.spec, opts...)

	for _, p := range cfg.uppers {
		logger.Debug("Building upper layer %s", p)
		upper, err := builder.Open(p, tree.RoleNone, cfg.spec)
		if err != nil {
			return nil, err
		}
		stack.Apply(upper)
	}

	logger.Info("Merged %d upper layers onto %s: %d entries", stack.Layers(), cfg.base, stack.Tree().Len()-1)
	return stack.Tree(), nil
}

// manifest describes cfg with absolute layer paths, since a manifest's
// relative paths resolve against its own directory.
func (cfg *config) manifest() (*manifest.Manifest, error) {
	base, err := filepath.Abs(cfg.base)
	if err != nil {
		return nil, err
	}
	uppers := make([]string, len(cfg.uppers))
	for i, u := range cfg.uppers {
		if uppers[i], err = filepath.Abs(u); err != nil {
			return nil, err
		}
	}
	return &manifest.Manifest{
		Version:  manifest.Version,
		Base:     base,
		Uppers:   uppers,
		Whiteout: cfg.spec.String(),
	}, nil
}
