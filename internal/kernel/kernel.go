// Package kernel boots the automaton and supervises its subsystems for the
// life of the process: the agent loop, the heartbeat scheduler, the kill
// switch watcher, and the observability API.
package kernel

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"automa/internal/api"
	"automa/internal/chain"
	"automa/internal/config"
	"automa/internal/guard"
	"automa/internal/heartbeat"
	"automa/internal/killswitch"
	"automa/internal/logging"
	"automa/internal/loop"
	"automa/internal/memory"
	"automa/internal/perception"
	"automa/internal/prompt"
	"automa/internal/sandbox"
	"automa/internal/social"
	"automa/internal/store"
	"automa/internal/survival"
	"automa/internal/tools"
)

const (
	// apiDrain bounds HTTP shutdown, long enough for stream handlers to
	// notice the closing signal.
	apiDrain = 5 * time.Second

	// redriveEvery re-enters the agent loop even without a wake signal, so
	// an expired sleep window is picked up when the wakeup heartbeat is
	// disabled.
	redriveEvery = time.Minute
)

// Options are boot-time overrides layered on top of the persisted
// configuration.
type Options struct {
	HomeDir string // empty means AUTOMA_HOME or ~/.automa
	Port    int    // overrides runtime.port when positive
	Debug   bool   // forces debug logging when true
}

// Kernel owns every subsystem of a running automaton. Boot wires it, Run
// supervises it, Close releases it.
type Kernel struct {
	Home     *config.Home
	Config   *config.Config
	Identity *config.Identity
	Store    *store.Store

	inference perception.Client
	chain     chain.Client
	sandbox   sandbox.Client
	social    social.Client

	life    *survival.Lifecycle
	monitor *survival.Monitor

	loop  *loop.Loop
	sched *heartbeat.Scheduler
	kill  *killswitch.Watcher
	api   *api.Server
}

// Boot loads configuration and identity, opens the state store, and wires
// every subsystem. A non-nil error means the process cannot run; an
// unusable state store is deliberately fatal rather than limped around.
//
// On first boot the loaded configuration (defaults plus environment) is
// written to config.json for the operator to edit. Flag overrides apply to
// the running process only and are never persisted.
func Boot(ctx context.Context, opts Options) (*Kernel, error) {
	home, err := config.NewHome(opts.HomeDir)
	if err != nil {
		return nil, err
	}

	_, statErr := os.Stat(home.ConfigPath())
	firstBoot := os.IsNotExist(statErr)

	cfg, err := config.Load(home.ConfigPath())
	if err != nil {
		return nil, err
	}
	if firstBoot {
		if err := cfg.Save(home.ConfigPath()); err != nil {
			return nil, fmt.Errorf("writing initial config: %w", err)
		}
	}
	if opts.Port > 0 {
		cfg.Runtime.Port = opts.Port
	}
	if opts.Debug {
		cfg.Runtime.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := logging.Initialize(home.Dir, cfg.Runtime.Debug); err != nil {
		return nil, err
	}
	logging.Boot("Home %s (first boot %v), provider %s", home.Dir, firstBoot, cfg.Inference.Provider)

	st, err := store.Open(home.DatabasePath())
	if err != nil {
		logging.BootError("State store unusable: %v", err)
		logging.CloseAll()
		return nil, fmt.Errorf("opening state store: %w", err)
	}
	booted := false
	defer func() {
		if !booted {
			st.Close()
			logging.CloseAll()
		}
	}()

	identity, err := home.LoadIdentity(cfg)
	if err != nil {
		return nil, fmt.Errorf("loading identity: %w", err)
	}
	wallet, err := home.LoadWallet()
	if err != nil {
		return nil, fmt.Errorf("loading wallet: %w", err)
	}
	if wallet == nil {
		logging.BootWarn("No wallet.json; running unfunded")
	}

	inference, err := perception.NewClient(ctx, cfg.Inference, cfg.GetInferenceTimeout())
	if err != nil {
		return nil, fmt.Errorf("starting inference client: %w", err)
	}

	// The mock provider keeps the whole boot offline; every external
	// dependency gets its in-memory double.
	var (
		chainClient   chain.Client
		sandboxClient sandbox.Client
		socialClient  social.Client
	)
	if cfg.Inference.Provider == "mock" {
		chainClient = chain.NewMockChain()
		sandboxClient = sandbox.NewMockSandbox()
		socialClient = social.NewMockSocial()
	} else {
		chainClient = chain.NewHTTPClient(cfg.Chain, identity.Address, cfg.GetChainTimeout())
		sandboxClient = sandbox.NewHTTPClient(cfg.Sandbox, cfg.GetSandboxTimeout())
		socialClient = social.NewHTTPClient(cfg.Social, identity.Address, cfg.GetSocialTimeout())
	}

	life := survival.NewLifecycle(st)
	monitor := survival.NewMonitor(st, life, inference)

	// Death survives restarts; everything else wakes.
	if life.State() != survival.StateDead {
		life.Set(survival.StateWaking)
	}

	sessionID := store.NewID()
	mem := memory.NewPipeline(st, sessionID)
	asm := prompt.NewAssembler(st)
	grd := guard.New(st, home.Dir)

	registry := tools.NewRegistry()
	if err := tools.RegisterAll(registry, &tools.Deps{
		Store:     st,
		Chain:     chainClient,
		Sandbox:   sandboxClient,
		Social:    socialClient,
		Inference: inference,
		Home:      home,
		Config:    cfg,
		SessionID: sessionID,
		State:     life.State,
		Tier:      func() string { return string(monitor.CurrentTier()) },
	}); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}

	k := &Kernel{
		Home:      home,
		Config:    cfg,
		Identity:  identity,
		Store:     st,
		inference: inference,
		chain:     chainClient,
		sandbox:   sandboxClient,
		social:    socialClient,
		life:      life,
		monitor:   monitor,
	}
	k.loop = loop.New(loop.Deps{
		Store:     st,
		Config:    cfg,
		Identity:  identity,
		Home:      home,
		Inference: inference,
		Chain:     chainClient,
		Registry:  registry,
		Guard:     grd,
		Monitor:   monitor,
		Lifecycle: life,
		Memory:    mem,
		Assembler: asm,
	})
	k.sched = heartbeat.New(heartbeat.Deps{
		Store:    st,
		Config:   cfg,
		Identity: identity,
		Home:     home,
		Chain:    chainClient,
		Social:   socialClient,
		Monitor:  monitor,
		Life:     life,
	})
	k.kill = killswitch.New(st, home)
	k.api = api.New(api.Deps{
		Store:      st,
		Config:     cfg,
		Identity:   identity,
		Inference:  inference,
		Monitor:    monitor,
		Life:       life,
		Heartbeats: k.sched,
	})

	logging.Kernel("Booted %s (%s): model %s, port %d",
		identity.Name, identity.Address, cfg.Inference.Model, cfg.Runtime.Port)
	booted = true
	return k, nil
}

// Run supervises the runtime until ctx is canceled or a subsystem fails
// unrecoverably. The first hard error tears everything down.
func (k *Kernel) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return k.api.Serve()
	})
	g.Go(func() error {
		<-ctx.Done()
		drain, cancel := context.WithTimeout(context.Background(), apiDrain)
		defer cancel()
		return k.api.Shutdown(drain)
	})
	g.Go(func() error {
		return k.sched.Run(ctx)
	})
	g.Go(func() error {
		return k.kill.Run(ctx)
	})
	g.Go(func() error {
		return k.driveLoop(ctx)
	})

	err := g.Wait()
	logging.Kernel("Runtime stopped")
	return err
}

// driveLoop re-enters the agent loop whenever the scheduler signals a wake.
// The loop exiting is normal (sleep, death, error streak); only a store
// failure propagates.
func (k *Kernel) driveLoop(ctx context.Context) error {
	fallback := time.NewTicker(redriveEvery)
	defer fallback.Stop()
	for {
		if err := k.loop.Run(ctx); err != nil {
			logging.KernelError("Agent loop failed: %v", err)
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-k.sched.Wake():
		case <-fallback.C:
		}
	}
}

// Close releases what Boot opened. Call after Run has returned.
func (k *Kernel) Close() {
	if k.Store != nil {
		if err := k.Store.Close(); err != nil {
			logging.KernelWarn("Closing state store: %v", err)
		}
	}
	logging.CloseAll()
}
