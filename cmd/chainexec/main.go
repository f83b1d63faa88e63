package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/kingrea/chainexec/internal/config"
	"github.com/kingrea/chainexec/internal/history"
	"github.com/kingrea/chainexec/internal/planfile"
	"github.com/kingrea/chainexec/internal/tui"
	"github.com/kingrea/chainexec/internal/watch"
)

const usage = `usage: chainexec <command> [flags]

commands:
  init                      create .chainexec/ with a default config
  run [flags] <plan>        execute a plan file
  watch [flags] <plan>      re-run a plan file whenever it changes
  validate <plan>           parse a plan file and list its steps
  history [-n N] [-run ID]  list recent runs or one run's steps
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "init":
		runInit(args)
	case "run":
		os.Exit(runPlan(args))
	case "watch":
		runWatch(args)
	case "validate":
		runValidate(args)
	case "history":
		runHistory(args)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func projectFlag(fs *flag.FlagSet) *string {
	return fs.String("project", "", "path to the project directory (defaults to cwd)")
}

func loadProject(project string) *config.Config {
	if project == "" {
		var err error
		project, err = os.Getwd()
		if err != nil {
			die("determine working directory: %v", err)
		}
	}
	absoluteProject, err := filepath.Abs(project)
	if err != nil {
		die("resolve project dir: %v", err)
	}
	if err := config.InitDir(absoluteProject); err != nil {
		die("init %s: %v", config.ProjectDirName, err)
	}
	cfg, err := config.New(absoluteProject)
	if err != nil {
		die("load config: %v", err)
	}
	return cfg
}

func loadPlan(cfg *config.Config, name string) (string, planfile.Definition) {
	path, err := planfile.Resolve(cfg.PlansDir(), name)
	if err != nil {
		die("%v", err)
	}
	def, err := planfile.LoadFile(path)
	if err != nil {
		die("load plan: %v", err)
	}
	return path, def
}

func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	project := projectFlag(fs)
	fs.Parse(args)
	cfg := loadProject(*project)
	fmt.Printf("Initialized %s\n", cfg.StateDir)
}

type runFlags struct {
	fs        *flag.FlagSet
	project   *string
	noHistory *bool
	quiet     *bool
	sets      overrideFlag
}

func newRunFlags(name string) *runFlags {
	rf := &runFlags{fs: flag.NewFlagSet(name, flag.ExitOnError)}
	rf.project = projectFlag(rf.fs)
	rf.noHistory = rf.fs.Bool("no-history", false, "do not record this run in the history database")
	rf.quiet = rf.fs.Bool("quiet", false, "write step output to the transcript only")
	rf.fs.Var(&rf.sets, "set", "plan config override (key=bool, repeatable)")
	return rf
}

func (rf *runFlags) options() sessionOptions {
	return sessionOptions{overrides: rf.sets.Config(), history: !*rf.noHistory, quiet: *rf.quiet}
}

func (rf *runFlags) planArg() string {
	if rf.fs.NArg() != 1 {
		die("%s: exactly one plan file is required", rf.fs.Name())
	}
	return rf.fs.Arg(0)
}

func runPlan(args []string) int {
	rf := newRunFlags("run")
	useTUI := rf.fs.Bool("tui", false, "render live progress instead of streaming output")
	rf.fs.Parse(args)
	name := rf.planArg()
	opts := rf.options()

	cfg := loadProject(*rf.project)
	_, def := loadPlan(cfg, name)
	if *useTUI {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			die("-tui requires an interactive terminal")
		}
		opts.quiet = true
	}
	s, err := newSession(cfg, opts)
	if err != nil {
		die("prepare run: %v", err)
	}
	defer s.Close()
	if err := s.load(def, !*useTUI); err != nil {
		die("load plan: %v", err)
	}

	var completed bool
	if *useTUI {
		completed, err = tui.Run(s.plan, def.Name, s.labels())
		if err != nil {
			die("%v", err)
		}
	} else {
		completed = s.runRound()
	}
	if err := s.historyErr(); err != nil {
		fmt.Fprintf(os.Stderr, "history: %v\n", err)
	}
	if !completed {
		return 1
	}
	return 0
}

func runWatch(args []string) {
	rf := newRunFlags("watch")
	debounce := rf.fs.Duration("debounce", watch.DefaultDebounce, "quiet period after a change before re-running")
	rf.fs.Parse(args)
	name := rf.planArg()
	opts := rf.options()

	cfg := loadProject(*rf.project)
	path, def := loadPlan(cfg, name)
	s, err := newSession(cfg, opts)
	if err != nil {
		die("prepare run: %v", err)
	}
	defer s.Close()

	round := func(def planfile.Definition) {
		if err := s.load(def, true); err != nil {
			fmt.Fprintf(os.Stderr, "load plan: %v\n", err)
			return
		}
		started := time.Now()
		status := "finished without completing"
		if s.runRound() {
			status = "complete"
		}
		fmt.Printf("%s: %s in %s\n", def.Name, status, time.Since(started).Round(time.Millisecond))
	}
	round(def)

	w, err := watch.New(path, func() {
		next, err := planfile.LoadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reload plan: %v\n", err)
			return
		}
		round(next)
	}, watch.WithDebounce(*debounce), watch.WithErrorHandler(func(err error) {
		s.logger.Printf("watch %s: %v", path, err)
	}))
	if err != nil {
		die("%v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	fmt.Printf("Watching %s (ctrl+c to stop)\n", path)
	if err := w.Run(ctx); err != nil {
		die("%v", err)
	}
}

func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	project := projectFlag(fs)
	fs.Parse(args)
	if fs.NArg() != 1 {
		die("validate: exactly one plan file is required")
	}
	cfg := loadProject(*project)
	path, def := loadPlan(cfg, fs.Arg(0))
	fmt.Printf("%s (%s): %d step(s)\n", def.Name, path, len(def.Steps))
	for i, step := range def.Steps {
		policy := ""
		if d := step.Decision(); d.Overrides() {
			policy = fmt.Sprintf(" [on_error=%s]", d)
		}
		fmt.Printf("  %2d. %-16s %s%s\n", i+1, step.ID, step.Command, policy)
	}
}

func runHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	project := projectFlag(fs)
	limit := fs.Int("n", 20, "number of runs to list")
	runID := fs.String("run", "", "show the steps of one run")
	fs.Parse(args)

	cfg := loadProject(*project)
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		die("%v", err)
	}
	defer store.Close()

	if id := strings.TrimSpace(*runID); id != "" {
		steps, err := store.Steps(id)
		if err != nil {
			die("%v", err)
		}
		if len(steps) == 0 {
			die("no steps recorded for run %s", id)
		}
		for _, step := range steps {
			status := "ok"
			if step.Failed() {
				status = fmt.Sprintf("failed (exit %d): %s", step.ExitCode, step.Error)
			}
			fmt.Printf("%2d. %s\n    %s\n", step.Index+1, step.Command, status)
		}
		return
	}

	runs, err := store.Recent(*limit)
	if err != nil {
		die("%v", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return
	}
	for _, run := range runs {
		fmt.Printf("%s  %-20s %-10s %d step(s)  %s  %s\n",
			run.ID, run.PlanName, run.Status, run.Steps,
			run.StartedAt.Local().Format(time.DateTime), run.Duration().Round(time.Millisecond))
	}
}
