package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"trading-runtime/internal/api"
	"trading-runtime/internal/events"
	"trading-runtime/internal/journal"
	"trading-runtime/internal/market"
	"trading-runtime/internal/monitor"
	"trading-runtime/internal/oms"
	"trading-runtime/internal/strategy"
	"trading-runtime/pkg/config"
	"trading-runtime/pkg/gateway/paper"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	log.Printf("starting trading runtime on :%s, symbols=%v", cfg.Port, cfg.Symbols)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core services
	engine := events.NewEngine(cfg.TimerInterval)
	store := oms.NewEngine(engine)
	metrics := monitor.NewCollector(engine, monitor.NewSystemMetrics())
	engine.SetErrorHandler(func(ev events.Event, r any) {
		metrics.Metrics().IncrementErrors()
		log.Printf("handler panic on %q: %v", ev.Type, r)
	})

	// Mirror in-stream log events onto the process log.
	engine.Register(events.EventLog, func(ev events.Event) {
		if entry, ok := ev.Data.(events.LogData); ok {
			log.Printf("[%s] %s", entry.Source, entry.Message)
		}
	})

	// Venue
	gw := paper.New(engine, cfg.InitialCash)
	if err := gw.Connect(map[string]any{"initial_cash": cfg.InitialCash}); err != nil {
		log.Fatalf("gateway connect failed: %v", err)
	}
	defer gw.Close()
	for _, sym := range cfg.Symbols {
		gw.Subscribe(sym)
	}

	// Strategies
	strategies := buildStrategies(cfg, engine, store, gw)
	defer func() {
		for _, s := range strategies {
			s.Stop()
		}
	}()

	// External signals fan out to every strategy on the dispatcher goroutine.
	engine.Register(events.EventSignal, func(ev events.Event) {
		sig, ok := ev.Data.(strategy.Signal)
		if !ok {
			return
		}
		metrics.Metrics().IncrementSignals()
		for _, s := range strategies {
			s.OnSignal(sig)
		}
	})

	// Each timer tick, let strategies retry convergence with fresh closes.
	engine.Register(events.EventTimer, func(ev events.Event) {
		bars := make(map[string]float64, len(cfg.Symbols))
		for _, sym := range cfg.Symbols {
			if bar, ok := store.GetBar(sym); ok {
				bars[sym] = bar.Close
			}
		}
		for _, s := range strategies {
			s.OnBar(bars)
		}
	})

	// Journal
	if cfg.EnableJournal {
		jnl, err := journal.Open(engine, cfg.JournalPath)
		if err != nil {
			log.Fatalf("journal open failed: %v", err)
		}
		defer jnl.Close()
		log.Printf("journal writing to %s", cfg.JournalPath)
	}

	engine.Start()
	defer engine.Stop()

	for _, s := range strategies {
		s.OnInit()
	}

	// Market data
	if cfg.UseMockFeed {
		feed := &market.MockFeed{
			Engine:     engine,
			Symbols:    cfg.Symbols,
			StartPrice: cfg.MockStartPrice,
			Step:       cfg.MockStep,
			Interval:   cfg.MockFeedInterval,
		}
		feed.Start(ctx)
		log.Printf("mock feed started (interval %v)", cfg.MockFeedInterval)
	}

	// API
	version := os.Getenv("APP_VERSION")
	if version == "" {
		version = "dev"
	}
	server := api.NewServer(engine, store, metrics, api.SystemMeta{
		Venue:       gw.Name(),
		Symbols:     cfg.Symbols,
		UseMockFeed: cfg.UseMockFeed,
		Version:     version,
	})
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("api server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("shutting down")
}

// buildStrategies creates signal strategies from the YAML config when one is
// set, else a single default strategy over the configured symbols.
func buildStrategies(cfg *config.Config, engine *events.Engine, store *oms.Engine, gw *paper.Gateway) []*strategy.SignalStrategy {
	if cfg.StrategyConfigPath == "" {
		return []*strategy.SignalStrategy{
			strategy.NewSignalStrategy("signal", cfg.Symbols, engine, store, gw,
				strategy.Setting{"price_add": cfg.PriceAdd}),
		}
	}

	configs, err := strategy.LoadConfig(cfg.StrategyConfigPath)
	if err != nil {
		log.Fatalf("strategy config load failed: %v", err)
	}
	out := make([]*strategy.SignalStrategy, 0, len(configs))
	for _, sc := range configs {
		out = append(out, strategy.NewSignalStrategy(sc.Name, sc.Symbols, engine, store, gw, sc.Settings))
		log.Printf("strategy %s loaded, symbols=%v", sc.Name, sc.Symbols)
	}
	return out
}
