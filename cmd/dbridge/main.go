// Package main provides a minimal console for the dbridge client: it
// dials a running driver bridge, connects a data source, and submits
// SQL lines from stdin.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/querydeck/dbridge/pkg/bridge"
	"github.com/querydeck/dbridge/pkg/config"
	"github.com/querydeck/dbridge/pkg/rowset"
	"github.com/querydeck/dbridge/pkg/source"
	"github.com/querydeck/dbridge/pkg/workspace"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	address    string
	uri        string
	username   string
	secret     string
}

func parseFlags() options {
	opts := options{}
	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.address, "addr", "", "Bridge address (overrides config)")
	flag.StringVar(&opts.uri, "uri", "", "Data source URI")
	flag.StringVar(&opts.username, "user", "", "Data source username")
	flag.StringVar(&opts.secret, "secret", "", "Data source secret")
	flag.Parse()
	return opts
}

func setupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx
}

func run() error {
	opts := parseFlags()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.address != "" {
		cfg.BridgeAddress = opts.address
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(log)

	ctx := setupSignalHandler()

	ws, err := workspace.New(workspace.Options{Config: cfg, Logger: log})
	if err != nil {
		return err
	}

	tr, err := bridge.Dial(cfg.BridgeAddress)
	if err != nil {
		return err
	}

	sess, err := ws.Connect(ctx, tr, source.New(opts.uri, opts.username, opts.secret))
	if err != nil {
		return err
	}
	defer sess.Close()

	editor := sess.NewEditor(consoleRenderer{out: os.Stdout})
	defer editor.Close()

	fmt.Println(`Connected. Enter SQL, \prev and \next to navigate history, \q to quit.`)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == `\q`:
			return nil
		case line == `\prev`:
			if text, ok := editor.NavigateHistory(workspace.Older); ok {
				fmt.Printf("> %s\n", text)
			}
			continue
		case line == `\next`:
			if text, ok := editor.NavigateHistory(workspace.Newer); ok {
				fmt.Printf("> %s\n", text)
			}
			continue
		}
		if _, err := editor.Submit(ctx, line).Await(ctx); err != nil {
			// Driver diagnostics were already rendered; anything else
			// is fatal to the connection.
			var terr *bridge.TransportError
			if errors.As(err, &terr) {
				return err
			}
		}
	}
	return scanner.Err()
}

type consoleRenderer struct {
	out *os.File
}

func (r consoleRenderer) RenderResult(res *rowset.Result) {
	fmt.Fprintln(r.out, strings.Join(res.Columns, "\t"))
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, c := range row {
			if c == nil {
				cells[i] = ""
				continue
			}
			cells[i] = fmt.Sprint(c)
		}
		fmt.Fprintln(r.out, strings.Join(cells, "\t"))
	}
	fmt.Fprintf(r.out, "(%d rows)\n", res.Len())
}

func (r consoleRenderer) RenderMessage(msg string) {
	fmt.Fprintln(r.out, msg)
}

func (r consoleRenderer) RenderError(derr *bridge.DriverError) {
	fmt.Fprintf(r.out, "%s: %s\n", derr.State, derr.Message)
}
