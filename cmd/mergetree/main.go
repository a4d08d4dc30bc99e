package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"bazil.org/fuse"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	"mergetree/internal/fs"
	"mergetree/internal/logging"
	"mergetree/internal/manifest"
	"mergetree/internal/render"
)

var (
	logger = logging.GetLogger()
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:      "mergetree",
		Usage:     "Merge layered filesystem trees with OCI or overlayfs whiteouts",
		UsageText: "mergetree -b BASE -u UPPER [-u UPPER...] [-w oci|overlayfs]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "base",
				Aliases: []string{"b"},
				Usage:   "Base layer (directory or tar file)",
				EnvVars: []string{"MERGETREE_BASE"},
			},
			&cli.StringSliceFlag{
				Name:    "upper",
				Aliases: []string{"u"},
				Usage:   "Upper layer (directory or tar file), repeat in application order",
				EnvVars: []string{"MERGETREE_UPPER"},
			},
			&cli.StringFlag{
				Name:    "whiteout",
				Aliases: []string{"w"},
				Usage:   "Whiteout convention: oci (0) or overlayfs (1)",
				Value:   "oci",
				EnvVars: []string{"MERGETREE_WHITEOUT"},
			},
			&cli.StringFlag{
				Name:    "manifest",
				Aliases: []string{"m"},
				Usage:   "Read base, uppers and whiteout convention from a manifest file",
				EnvVars: []string{"MERGETREE_MANIFEST"},
			},
			&cli.BoolFlag{
				Name:  "strict-paths",
				Usage: "Anchor upper entries by full parent path instead of by depth and parent name",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format: tree or paths",
				Value: "tree",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (error, warn, info, debug, trace)",
				Value:   "info",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			level, err := logging.ParseLevel(c.String("log-level"))
			if err != nil {
				return err
			}
			logger.SetLevel(level)
			return nil
		},
		Action: printAction,
		Commands: []*cli.Command{
			{
				Name:      "mount",
				Usage:     "Serve the merged tree read-only over FUSE until interrupted",
				ArgsUsage: "MOUNTPOINT",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "allow-other",
						Usage: "Allow other users to access the mount",
					},
				},
				Action: mountAction,
			},
			{
				Name:  "manifest",
				Usage: "Write the layer flags to a manifest file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "out",
						Aliases:  []string{"o"},
						Usage:    "Manifest file to write",
						Required: true,
					},
				},
				Action: manifestAction,
			},
		},
	}
}

func printAction(c *cli.Context) error {
	cfg, err := configFromContext(c)
	if err != nil {
		return err
	}
	merged, err := cfg.merge(afero.NewOsFs())
	if err != nil {
		return err
	}

	switch format := c.String("format"); format {
	case "tree":
		return render.Tree(c.App.Writer, merged)
	case "paths":
		return render.Paths(c.App.Writer, merged)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func mountAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one MOUNTPOINT argument, got %d", c.NArg())
	}
	mountPoint := filepath.Clean(c.Args().First())

	cfg, err := configFromContext(c)
	if err != nil {
		return err
	}
	merged, err := cfg.merge(afero.NewOsFs())
	if err != nil {
		return err
	}

	var opts []fuse.MountOption
	if c.Bool("allow-other") {
		opts = append(opts, fuse.AllowOther())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	vfs := fs.New(merged)
	if err := vfs.Mount(mountPoint, opts...); err != nil {
		return err
	}
	logger.Info("Filesystem mounted and ready at %s", mountPoint)

	sig := <-sigChan
	logger.Info("Received signal %v", sig)
	if err := vfs.Unmount(mountPoint); err != nil {
		return fmt.Errorf("unmount %s: %w", mountPoint, err)
	}
	logger.Info("Clean shutdown complete")
	return nil
}

func manifestAction(c *cli.Context) error {
	if c.String("manifest") != "" {
		return fmt.Errorf("--manifest cannot be combined with the manifest command")
	}
	cfg, err := configFromFlags(c)
	if err != nil {
		return err
	}

	mgr, err := manifest.NewManager(c.String("out"))
	if err != nil {
		return err
	}
	mf, err := cfg.manifest()
	if err != nil {
		return err
	}
	if err := mgr.Save(mf); err != nil {
		return err
	}
	logger.Info("Wrote manifest %s", mgr.Path())
	return nil
}
