// Package main provides the causality CLI. It routes subcommands that
// operate on encoded graph artifacts: inspection, optimization, the
// content-addressed store and the directory watcher.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/causality-lang/causality"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	sub := os.Args[1]
	args := os.Args[2:]

	switch sub {
	case "help", "-h", "--help":
		usage()
	case "version", "-v", "--version":
		fmt.Printf("causality %s\n", version)
	case "inspect":
		must(inspect(args))
	case "optimize":
		must(optimize(args))
	case "store":
		must(storeCmd(args))
	case "watch":
		must(watch(args))
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand: %s\n", sub)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println("usage: causality <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  inspect   Print a summary of an encoded graph file")
	fmt.Println("  optimize  Rewrite a graph under an optimization level or config")
	fmt.Println("  store     Manage the content-addressed artifact database")
	fmt.Println("  watch     Index graph files in a directory and follow changes")
	fmt.Println("  version   Print the tool version")
}

func must(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "causality: %v\n", err)
		os.Exit(1)
	}
}

func readGraph(path string) (*causality.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return causality.DecodeGraph(data)
}

func inspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: causality inspect <file.teg>")
		os.Exit(2)
	}

	g, err := readGraph(fs.Arg(0))
	if err != nil {
		return err
	}

	fmt.Printf("graph   %s\n", causality.ContentID(g))
	fmt.Printf("nodes   %d\n", len(g.Nodes))
	fmt.Printf("edges   %d\n", len(g.Edges))

	for _, id := range g.NodeIDs() {
		n := g.Nodes[id]
		flags := ""
		if n.Observable {
			flags += " observable"
		}
		if n.SideEffect {
			flags += " side-effect"
		}
		if n.Linear {
			flags += " linear"
		}
		fmt.Printf("  %s  %s%s\n", id.Short(), n.Tag, flags)
	}

	return nil
}

func optimize(args []string) error {
	fs := flag.NewFlagSet("optimize", flag.ExitOnError)
	level := fs.Int("level", 2, "optimization level (0-3), ignored when -config is set")
	cfgPath := fs.String("config", "", "YAML optimizer configuration file")
	outPath := fs.String("o", "", "output file (defaults to rewriting the input)")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: causality optimize [-level N | -config file] [-o out.teg] <file.teg>")
		os.Exit(2)
	}

	in := fs.Arg(0)
	g, err := readGraph(in)
	if err != nil {
		return err
	}

	cfg := causality.DefaultConfig()
	if *cfgPath != "" {
		cfg, err = causality.LoadConfig(*cfgPath)
		if err != nil {
			return err
		}
	} else {
		cfg.Level = *level
	}

	out, blocked, err := causality.Optimize(g, cfg)
	if err != nil {
		return err
	}
	for _, b := range blocked {
		fmt.Fprintf(os.Stderr, "causality: rolled back pass %s (invariant %d)\n", b.Pass, b.Invariant)
	}

	dst := *outPath
	if dst == "" {
		dst = in
	}
	if err := os.WriteFile(dst, causality.EncodeGraph(out), 0o644); err != nil {
		return err
	}

	fmt.Printf("%s  %s\n", causality.ContentID(out), dst)
	return nil
}

func storeCmd(args []string) error {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: causality store <put|get|list> -db <file.db> [arguments]")
		os.Exit(2)
	}

	op := args[0]
	fs := flag.NewFlagSet("store "+op, flag.ExitOnError)
	dbPath := fs.String("db", "causality.db", "artifact database file")
	outPath := fs.String("o", "", "output file for get")
	_ = fs.Parse(args[1:])

	s, err := causality.OpenStore(*dbPath, log.New(os.Stderr, "", 0))
	if err != nil {
		return err
	}
	defer s.Close()

	switch op {
	case "put":
		if fs.NArg() != 1 {
			fmt.Fprintln(os.Stderr, "usage: causality store put -db <file.db> <file.teg>")
			os.Exit(2)
		}
		g, err := readGraph(fs.Arg(0))
		if err != nil {
			return err
		}
		id, err := s.PutGraph(g)
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil

	case "get":
		if fs.NArg() != 1 {
			fmt.Fprintln(os.Stderr, "usage: causality store get -db <file.db> [-o out] <id>")
			os.Exit(2)
		}
		id, err := parseID(fs.Arg(0))
		if err != nil {
			return err
		}
		_, data, err := s.Get(id)
		if err != nil {
			return err
		}
		if *outPath == "" {
			_, err = os.Stdout.Write(data)
			return err
		}
		return os.WriteFile(*outPath, data, 0o644)

	case "list":
		for _, kind := range fs.Args() {
			ids, err := s.List(kind)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Printf("%s  %s\n", kind, id)
			}
		}
		return nil

	default:
		fmt.Fprintf(os.Stderr, "unknown store operation: %s\n", op)
		os.Exit(2)
		return nil
	}
}

func watch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: causality watch <dir>")
		os.Exit(2)
	}

	w, err := causality.WatchGraphs(fs.Arg(0), log.New(os.Stderr, "", log.LstdFlags))
	if err != nil {
		return err
	}
	defer w.Close()

	for _, id := range w.IDs() {
		path, _ := w.Lookup(id)
		fmt.Printf("%s  %s\n", id, path)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-stop:
			return nil
		case err := <-w.Errors():
			return err
		case path := <-w.Updates():
			fmt.Println(path)
		}
	}
}

func parseID(s string) (causality.ID, error) {
	var id causality.ID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("malformed identifier %q: %w", s, err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("identifier %q is %d bytes, want %d", s, len(raw), len(id))
	}
	copy(id[:], raw)
	return id, nil
}
