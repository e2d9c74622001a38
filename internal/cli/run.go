// Package cli implements the slotstore command line.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/slotstore/internal/config"
	"github.com/calvinalkan/slotstore/pkg/catalog"
)

const binaryName = "slotstore"

var (
	errNoCommand      = errors.New("no command provided")
	errUnknownCommand = errors.New("unknown command")
)

// store is the catalog flavour used by the command line: payloads and
// metadata are arbitrary JSON documents.
type store = catalog.Manager[json.RawMessage, json.RawMessage]

// Run is the main entry point. Returns exit code.
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	globals := newGlobalFlags()

	if len(args) < 2 {
		printUsage(out, globals.set, nil)
		return 0
	}

	err := globals.set.Parse(args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage(out, globals.set, commandList(nil))
			return 0
		}

		fprintln(errOut, "error:", err)
		fprintln(errOut)
		printUsage(errOut, globals.set, commandList(nil))

		return 1
	}

	rest := globals.set.Args()
	if len(rest) == 0 {
		fprintln(errOut, "error:", errNoCommand)
		fprintln(errOut)
		printUsage(errOut, globals.set, commandList(nil))

		return 1
	}

	overrides, err := globals.overrides()
	if err != nil {
		fprintln(errOut, "error:", err)
		fprintln(errOut)
		printUsage(errOut, globals.set, commandList(nil))

		return 1
	}

	cfg, err := config.Load(config.LoadInput{
		WorkDirOverride: globals.workDir,
		ConfigPath:      globals.configPath,
		Overrides:       overrides,
		Env:             env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}

	a := &app{
		cfg:     cfg,
		env:     env,
		log:     slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: cfg.Level})),
		metrics: &catalog.BasicMetricsCollector{},
	}

	o := NewIO(in, out, errOut)
	defer o.Finish()

	return dispatch(ctx, a, o, rest)
}

// dispatch runs the command named by args[0].
func dispatch(ctx context.Context, a *app, o *IO, args []string) int {
	name := args[0]

	if name == "help" {
		printUsage(o.out, newGlobalFlags().set, commandList(a))
		return 0
	}

	if cmd := findCommand(commandList(a), name); cmd != nil {
		return cmd.Run(ctx, o, args[1:])
	}

	o.ErrPrintln("error:", fmt.Errorf("%w: %s", errUnknownCommand, name))
	o.ErrPrintln()
	printUsage(o.errOut, newGlobalFlags().set, commandList(a))

	return 1
}

// commandList builds fresh commands. FlagSets keep state between parses, so
// the shell asks for a new list on every line.
func commandList(a *app) []*Command {
	return []*Command{
		LsCmd(a),
		ShowCmd(a),
		LatestCmd(a),
		SaveCmd(a),
		AutosaveCmd(a),
		UpdateCmd(a),
		RmCmd(a),
		InfoCmd(a),
		PrintConfigCmd(a),
		ShellCmd(a),
	}
}

type globalFlags struct {
	set         *flag.FlagSet
	workDir     string
	configPath  string
	dir         string
	capacity    int
	metadata    bool
	lockTimeout string
	logLevel    string
}

func newGlobalFlags() *globalFlags {
	g := &globalFlags{set: flag.NewFlagSet(binaryName, flag.ContinueOnError)}

	g.set.SetOutput(io.Discard)
	g.set.SetInterspersed(false)
	g.set.StringVarP(&g.workDir, "cwd", "C", "", "Run as if started in `dir`")
	g.set.StringVarP(&g.configPath, "config", "c", "", "Use the specified config `file`")
	g.set.StringVar(&g.dir, "dir", "", "Catalog directory, relative to the working directory")
	g.set.IntVar(&g.capacity, "capacity", 0, "Automatic entry capacity (0 disables automatic entries)")
	g.set.BoolVar(&g.metadata, "metadata", false, "Store a metadata document next to each payload")
	g.set.StringVar(&g.lockTimeout, "lock-timeout", "", "Catalog lock timeout, e.g. 5s or none")
	g.set.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn or error")

	return g
}

// overrides turns explicitly set flags into a config overlay.
func (g *globalFlags) overrides() (config.Config, error) {
	var cfg config.Config

	if g.set.Changed("dir") {
		if strings.TrimSpace(g.dir) == "" {
			return config.Config{}, config.ErrDirEmpty
		}

		cfg.Dir = g.dir
	}

	if g.set.Changed("capacity") {
		c := g.capacity
		cfg.AutomaticCapacity = &c
	}

	if g.set.Changed("metadata") {
		m := g.metadata
		cfg.Metadata = &m
	}

	cfg.LockTimeout = g.lockTimeout
	cfg.LogLevel = g.logLevel

	return cfg, nil
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer, globals *flag.FlagSet, cmds []*Command) {
	fprintln(w, binaryName+" - catalog of versioned JSON documents")
	fprintln(w)
	fprintln(w, "Usage:", binaryName, "[global flags] <command> [args]")
	fprintln(w)
	fprintln(w, "Global flags:")

	var buf strings.Builder
	globals.SetOutput(&buf)
	globals.PrintDefaults()
	globals.SetOutput(io.Discard)
	_, _ = io.WriteString(w, buf.String())
	fprintln(w, "  -h, --help                 Show this help")

	if cmds == nil {
		cmds = commandList(nil)
	}

	fprintln(w)
	fprintln(w, "Commands:")

	for _, cmd := range cmds {
		fprintln(w, cmd.HelpLine())
	}
}
