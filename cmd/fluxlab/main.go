package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/fluxlab/internal/app"
	"github.com/san-kum/fluxlab/internal/command"
	"github.com/san-kum/fluxlab/internal/console"
	"github.com/san-kum/fluxlab/internal/engine"
	"github.com/san-kum/fluxlab/internal/gpu"
	"github.com/san-kum/fluxlab/internal/logger"
	"github.com/san-kum/fluxlab/internal/lut"
	"github.com/san-kum/fluxlab/internal/preset"
	"github.com/san-kum/fluxlab/internal/sims"
)

var (
	presetDir string
	width     int
	height    int
	kind      string
	presetArg string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fluxlab",
		Short: "interactive 2d simulation lab",
		RunE:  runWindow,
	}

	home, _ := os.UserHomeDir()
	rootCmd.PersistentFlags().StringVar(&presetDir, "presets", filepath.Join(home, ".fluxlab", "presets"), "user preset directory")
	rootCmd.Flags().IntVar(&width, "width", 1280, "window width")
	rootCmd.Flags().IntVar(&height, "height", 800, "window height")
	rootCmd.Flags().StringVar(&kind, "sim", "", "simulation to load at startup")
	rootCmd.Flags().StringVar(&presetArg, "preset", "", "preset to apply at startup")

	consoleCmd := &cobra.Command{
		Use:   "console",
		Short: "terminal front end (no window)",
		RunE:  runConsole,
	}

	simsCmd := &cobra.Command{
		Use:   "sims",
		Short: "list simulation kinds",
		Run: func(cmd *cobra.Command, args []string) {
			for _, k := range engine.AllKinds {
				fmt.Println(k)
			}
		},
	}

	lutsCmd := &cobra.Command{
		Use:   "luts",
		Short: "list color lookup tables",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range lut.NewRegistry().Names() {
				fmt.Println(name)
			}
		},
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [kind]",
		Short: "list presets for a simulation kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := engine.ParseKind(args[0])
			if err != nil {
				return err
			}
			mgr, cleanup, err := buildPresets()
			if err != nil {
				return err
			}
			defer cleanup()

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			for _, name := range mgr.List(string(k)) {
				tag := "user"
				if mgr.IsBuiltIn(string(k), name) {
					tag = "built-in"
				}
				fmt.Fprintf(w, "%s\t%s\n", name, tag)
			}
			return w.Flush()
		},
	}

	rootCmd.AddCommand(consoleCmd, simsCmd, lutsCmd, presetsCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildPresets wires the preset manager with the file store; the cleanup
// closes the store's watcher.
func buildPresets() (*preset.Manager, func(), error) {
	log := logger.New()
	store, err := preset.NewFileStore(presetDir, log)
	if err != nil {
		return nil, nil, fmt.Errorf("preset store: %w", err)
	}
	return preset.NewManager(store), func() { _ = store.Close() }, nil
}

// buildRuntime assembles the full engine stack shared by the window and
// console front ends.
func buildRuntime(w, h int) (*engine.Manager, *command.Dispatcher, *zap.Logger, func(), error) {
	log := logger.New()

	ctx, err := gpu.Acquire(gpu.AcquireOptions{Width: w, Height: h})
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("gpu context: %w", err)
	}

	store, err := preset.NewFileStore(presetDir, log)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("preset store: %w", err)
	}

	mgr := engine.NewManager(ctx, lut.NewRegistry(), preset.NewManager(store), sims.BuildRegistry(), log)
	cmds := command.New(mgr, log)

	cleanup := func() {
		mgr.Unload()
		_ = store.Close()
		_ = log.Sync()
	}
	return mgr, cmds, log, cleanup, nil
}

func runWindow(cmd *cobra.Command, args []string) error {
	mgr, cmds, log, cleanup, err := buildRuntime(width, height)
	if err != nil {
		return err
	}
	defer cleanup()

	if kind != "" {
		k, err := engine.ParseKind(kind)
		if err != nil {
			return err
		}
		if err := mgr.Load(k, presetArg); err != nil {
			return err
		}
	}

	log.Info("starting window",
		zap.Int("width", width),
		zap.Int("height", height),
		zap.String("sim", kind))
	return app.New(mgr, cmds, log).Run("fluxlab")
}

func runConsole(cmd *cobra.Command, args []string) error {
	mgr, cmds, _, cleanup, err := buildRuntime(640, 480)
	if err != nil {
		return err
	}
	defer cleanup()
	return console.Run(mgr, cmds)
}
