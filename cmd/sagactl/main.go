// Command sagactl runs a demo travel-booking saga. It exercises failures,
// cancellation, step jumps, persistence and crash recovery from the shell.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	_ "github.com/mattn/go-sqlite3"

	saga "github.com/goliatone/go-saga"
	"github.com/goliatone/go-saga/config"
	"github.com/goliatone/go-saga/recovery"
)

// CLI is the sagactl command tree.
type CLI struct {
	LogLevel  string `name:"log-level" default:"info" enum:"trace,debug,info,warn,error" help:"Log level."`
	LogFormat string `name:"log-format" default:"json" enum:"json,text" help:"Log format."`

	Run      RunCmd      `cmd:"" help:"Run the booking saga."`
	Recover  RecoverCmd  `cmd:"" help:"Recover an interrupted booking saga from its store."`
	Validate ValidateCmd `cmd:"" help:"Validate a transaction config file."`
}

// StoreFlags select the session store, overriding the config file.
type StoreFlags struct {
	Driver    string        `name:"driver" help:"Session store driver (memory, sqlite, redis)."`
	DSN       string        `name:"dsn" help:"Store DSN: a sqlite file path or a redis URL."`
	Table     string        `name:"table" help:"SQLite table name."`
	KeyPrefix string        `name:"key-prefix" help:"Redis key prefix."`
	TTL       time.Duration `name:"ttl" help:"Redis key TTL."`
	Retries   int           `name:"retries" help:"Retry failed persistence calls this many times."`
}

// ScenarioFlags steer the demo step handlers.
type ScenarioFlags struct {
	Config    string            `name:"config" type:"existingfile" help:"Transaction config (YAML or JSON)."`
	Traveler  string            `name:"traveler" default:"ada" help:"Traveler name stored in the booking."`
	FailAt    string            `name:"fail-at" help:"Step whose action fails."`
	CancelAt  string            `name:"cancel-at" help:"Step whose action cancels the session."`
	CrashAt   string            `name:"crash-at" help:"Step whose action exits the process, leaving the session in the store."`
	GoForward map[string]string `name:"go-forward" help:"step=target: jump forward from step to target."`
	GoBack    map[string]string `name:"go-back" help:"step=target: go back from step to target once."`
	Delay     time.Duration     `name:"delay" help:"Delay before each step action."`
	Executor  string            `name:"executor" enum:"inline,goroutine,queue" default:"inline" help:"Executor for the default config steps."`
	LogTime   bool              `name:"log-time" help:"Log execution time of every step."`

	Store StoreFlags `embed:"" prefix:"store-"`
}

// RunCmd runs a fresh session.
type RunCmd struct {
	ScenarioFlags `embed:""`

	From string `name:"from" help:"Start at this step (run_from_step mode)."`
}

// RecoverCmd recovers the saved session once, or on a schedule.
type RecoverCmd struct {
	ScenarioFlags `embed:""`

	Mode     string        `name:"mode" default:"recover_and_continue" enum:"recover_and_continue,recover_and_undo_and_run" help:"Recovery mode."`
	Schedule string        `name:"schedule" help:"Cron expression; sweep repeatedly until interrupted."`
	For      time.Duration `name:"for" help:"Stop a scheduled sweep after this long."`
}

// ValidateCmd checks a config file.
type ValidateCmd struct {
	Path string `arg:"" type:"existingfile" help:"Config file."`
}

// runtime carries process collaborators bound into command Run methods.
type runtime struct {
	ctx    context.Context
	out    io.Writer
	logger saga.Logger
	exit   func(code int)
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("sagactl"),
		kong.Description("Run and recover a demo booking saga."),
		kong.UsageOnError(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt := &runtime{
		ctx:    ctx,
		out:    os.Stdout,
		logger: newLogger(os.Stderr, cli.LogFormat, cli.LogLevel),
		exit:   os.Exit,
	}
	kctx.FatalIfErrorf(kctx.Run(rt))
}

func (c *RunCmd) Run(rt *runtime) error {
	mode := saga.ModeRun
	if c.From != "" {
		mode = saga.ModeRunFromStep
	}
	built, sc, err := c.build(rt)
	if err != nil {
		return err
	}
	defer built.Close()

	result, err := built.Transaction.Run(rt.ctx, func(rs *saga.RunSettings[string, *Booking]) {
		rs.Mode = mode
		rs.Data = &Booking{Traveler: c.Traveler}
		rs.StartStep = c.From
	})
	if err != nil {
		return err
	}
	return report(sc, result)
}

func (c *RecoverCmd) Run(rt *runtime) error {
	mode, err := saga.ParseRunMode(c.Mode)
	if err != nil {
		return err
	}
	built, sc, err := c.build(rt)
	if err != nil {
		return err
	}
	defer built.Close()
	if built.Store == nil {
		return fmt.Errorf("recover requires a session store, set --store-driver")
	}

	if c.Schedule == "" {
		result, err := built.Transaction.Run(rt.ctx, func(rs *saga.RunSettings[string, *Booking]) {
			rs.Mode = mode
		})
		if err != nil {
			return err
		}
		return report(sc, result)
	}

	scheduler := recovery.NewScheduler(recovery.WithLogger(rt.logger))
	handle, err := recovery.ScheduleRecovery[string, *Booking](scheduler, c.Schedule, built.Transaction, mode,
		recovery.OnResult(func(r *saga.Result[*Booking]) {
			if r.Kind != saga.ResultNoTransactionToRecover {
				_ = report(sc, r)
			}
		}),
	)
	if err != nil {
		return err
	}
	if err := scheduler.Start(rt.ctx); err != nil {
		return err
	}
	sc.printf("recovery of %s scheduled %q", built.Transaction.Name(), c.Schedule)

	wait := rt.ctx
	if c.For > 0 {
		var cancel context.CancelFunc
		wait, cancel = context.WithTimeout(rt.ctx, c.For)
		defer cancel()
	}
	<-wait.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := scheduler.Stop(stopCtx); err != nil {
		return err
	}
	sc.printf("recovery stopped after %d sweep(s)", handle.Runs())
	return nil
}

func (c *ValidateCmd) Run(rt *runtime) error {
	cfg, err := config.Load(c.Path)
	if err != nil {
		return err
	}
	fmt.Fprintf(rt.out, "%s: %d step(s) ok\n", cfg.Name, len(cfg.Steps))
	return nil
}

func (f *ScenarioFlags) build(rt *runtime) (*config.Built[*Booking], *scenario, error) {
	cfg := defaultConfig(f.Executor, f.LogTime)
	if f.Config != "" {
		loaded, err := config.Load(f.Config)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
		cfg.LogExecutionTime = cfg.LogExecutionTime || f.LogTime
	}
	if f.Store.Driver != "" {
		cfg.Store = config.StoreConfig{
			Driver:    f.Store.Driver,
			DSN:       f.Store.DSN,
			Table:     f.Store.Table,
			KeyPrefix: f.Store.KeyPrefix,
			TTL:       f.Store.TTL,
		}
		if f.Store.Retries > 0 {
			cfg.Store.Retry = &config.RetryConfig{Retries: f.Store.Retries, Base: 50 * time.Millisecond, Max: time.Second}
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	sc := &scenario{
		out:      rt.out,
		failAt:   f.FailAt,
		cancelAt: f.CancelAt,
		crashAt:  f.CrashAt,
		forward:  f.GoForward,
		back:     f.GoBack,
		delay:    f.Delay,
		crash: func(step string) {
			fmt.Fprintf(rt.out, "!! crashing at %s\n", step)
			rt.exit(3)
		},
	}
	reg, err := sc.registry()
	if err != nil {
		return nil, nil, err
	}
	built, err := config.Build(rt.ctx, cfg, config.BuildContext[*Booking]{
		Handlers: reg,
		Logger:   rt.logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return built, sc, nil
}

func report(sc *scenario, r *saga.Result[*Booking]) error {
	sc.printf("result: %s (session %s, recovered=%t, %d error(s))", r.Kind, r.SessionID, r.Recovered, len(r.Errors))
	for _, err := range r.Errors {
		sc.printf("  error: %v", err)
	}
	if r.Data != nil && len(r.Data.Confirmations) > 0 {
		steps := make([]string, 0, len(r.Data.Confirmations))
		for _, name := range bookingSteps {
			if code, ok := r.Data.Confirmations[name]; ok {
				steps = append(steps, name+"="+code)
			}
		}
		sc.printf("confirmations: %s", strings.Join(steps, " "))
	}
	if r.Kind == saga.ResultFailed {
		return fmt.Errorf("booking %s failed", r.SessionID)
	}
	return nil
}
