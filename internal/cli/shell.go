package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/slotstore/pkg/catalog/promcollector"
)

const historyName = ".slotstore_history"

// prompter is the part of liner.State the shell needs.
type prompter interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// ShellCmd returns the interactive shell command.
func ShellCmd(a *app) *Command {
	fs := flag.NewFlagSet("shell", flag.ContinueOnError)
	metricsAddr := fs.String("metrics-addr", "", "Serve Prometheus metrics on `addr` while the shell runs")

	return &Command{
		Flags: fs,
		Usage: "shell [flags]",
		Short: "Run commands interactively against one open catalog",
		Long: `Start an interactive shell. Every command except shell is available,
without the program name. The catalog is opened once and kept open until
exit, quit or end of input.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			if *metricsAddr != "" {
				stop, err := serveMetrics(a, o, *metricsAddr)
				if err != nil {
					return err
				}
				defer stop()
			}

			return execShell(ctx, a, o)
		},
	}
}

func execShell(ctx context.Context, a *app, o *IO) error {
	if o.in == nil {
		return errNoStdin
	}

	_, err := a.catalog(ctx, o)
	if err != nil {
		return err
	}

	p, done := newPrompter(a, o)
	defer done()

	o.Println(binaryName, "shell on", a.cfg.DirAbs)
	o.Println("Type 'help' for available commands.")
	o.Finish()

	for {
		line, err := p.Prompt(binaryName + "> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		p.AppendHistory(line)

		fields := strings.Fields(line)

		switch fields[0] {
		case "exit", "quit", "q":
			return nil
		case "help", "?":
			for _, cmd := range shellCommands(a) {
				o.Println(cmd.HelpLine())
			}

			o.Println(fmt.Sprintf("  %-26s %s", "exit", "Leave the shell"))

			continue
		}

		cmd := findCommand(shellCommands(a), fields[0])
		if cmd == nil {
			o.ErrPrintln("error:", fmt.Errorf("%w: %s", errUnknownCommand, fields[0]))
		} else {
			cmd.Run(ctx, o, fields[1:])
		}

		o.Finish()

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func shellCommands(a *app) []*Command {
	var out []*Command

	for _, cmd := range commandList(a) {
		if cmd.Name() != "shell" {
			out = append(out, cmd)
		}
	}

	return out
}

func findCommand(cmds []*Command, name string) *Command {
	for _, cmd := range cmds {
		if cmd.Name() == name {
			return cmd
		}
	}

	return nil
}

// newPrompter uses liner when attached to the process stdin and a plain line
// scanner otherwise.
func newPrompter(a *app, o *IO) (prompter, func()) {
	if f, ok := o.in.(*os.File); !ok || f != os.Stdin {
		return &scanPrompter{sc: bufio.NewScanner(o.in)}, func() {}
	}

	state := liner.NewLiner()
	state.SetCtrlCAborts(true)
	state.SetCompleter(func(line string) []string {
		var out []string

		for _, cmd := range shellCommands(a) {
			if strings.HasPrefix(cmd.Name(), line) {
				out = append(out, cmd.Name())
			}
		}

		return out
	})

	history := historyPath(a.env)

	if f, err := os.Open(history); err == nil {
		_, _ = state.ReadHistory(f)
		_ = f.Close()
	}

	return state, func() {
		if history != "" {
			if f, err := os.Create(history); err == nil {
				_, _ = state.WriteHistory(f)
				_ = f.Close()
			}
		}

		_ = state.Close()
	}
}

func historyPath(env map[string]string) string {
	home := env["HOME"]
	if home == "" {
		return ""
	}

	return filepath.Join(home, historyName)
}

type scanPrompter struct {
	sc *bufio.Scanner
}

func (s *scanPrompter) Prompt(string) (string, error) {
	if !s.sc.Scan() {
		if err := s.sc.Err(); err != nil {
			return "", err
		}

		return "", io.EOF
	}

	return s.sc.Text(), nil
}

func (*scanPrompter) AppendHistory(string) {}

// serveMetrics registers a Prometheus collector for the catalog and serves
// it until the returned stop function is called.
func serveMetrics(a *app, o *IO, addr string) (func(), error) {
	reg := prometheus.NewRegistry()

	col, err := promcollector.New(reg, nil)
	if err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	a.extra = col

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server stopped", "error", err)
		}
	}()

	o.Println("serving metrics on", "http://"+ln.Addr().String()+"/metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		_ = srv.Shutdown(ctx)
	}, nil
}
