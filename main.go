package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/plaans/aries-sub004/solver"
)

func main() {
	debug.SetGCPercent(300)
	var (
		verbose bool
		stats   bool
		threads int
		timeout time.Duration
	)
	flag.BoolVarP(&verbose, "verbose", "v", false, "sets verbose mode on")
	flag.BoolVar(&stats, "stats", false, "prints search statistics after solving")
	flag.IntVarP(&threads, "threads", "j", 1, "number of parallel workers")
	flag.DurationVar(&timeout, "timeout", 0, "gives up after this duration (0: no limit)")
	flag.Parse()
	if len(flag.Args()) != 1 {
		fmt.Fprintf(os.Stderr, "Syntax: %s [options] (file.cnf|file.stn)\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}
	path := flag.Args()[0]
	fmt.Printf("c solving %s\n", path)

	pb, err := parse(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not parse problem: %v\n", err)
		os.Exit(1)
	}
	if err := run(pb, verbose, stats, threads, timeout); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func parse(path string) (*problem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %q: %v", path, err)
	}
	defer f.Close()
	switch {
	case strings.HasSuffix(path, ".cnf"):
		return parseCNF(f)
	case strings.HasSuffix(path, ".stn"):
		return parseSTN(f)
	default:
		return nil, fmt.Errorf("invalid file format for %q", path)
	}
}

func run(pb *problem, verbose, stats bool, threads int, timeout time.Duration) error {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.WarnLevel)
	}
	s := solver.New(pb.model)
	s.SetLogger(logrus.NewEntry(log).WithField("solver", 0))

	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var (
		res *solver.Assignment
		err error
	)
	switch {
	case pb.objective != nil:
		var value int
		value, res, err = s.Minimize(ctx, *pb.objective)
		if res != nil {
			fmt.Printf("o %d\n", value)
		}
	case threads > 1:
		p := solver.NewParSolver(s, threads)
		res, err = p.Solve(ctx)
	default:
		res, err = s.Solve(ctx)
	}
	switch {
	case errors.Is(err, solver.ErrTimeout):
		fmt.Println("s UNKNOWN")
		return err
	case err != nil:
		return err
	case res == nil:
		fmt.Println("s UNSATISFIABLE")
	default:
		fmt.Println("s SATISFIABLE")
		pb.printModel(res)
	}
	if stats {
		for _, line := range strings.Split(strings.TrimSpace(s.Stats().String()), "\n") {
			fmt.Printf("c %s\n", line)
		}
	}
	return nil
}
