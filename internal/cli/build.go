package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nevindra/lumen"
	"github.com/nevindra/lumen/ingest"
	"github.com/nevindra/lumen/internal/config"
	"github.com/nevindra/lumen/observer"
	"github.com/nevindra/lumen/provider/resolve"
	"github.com/nevindra/lumen/rag"
	"github.com/nevindra/lumen/store/postgres"
	"github.com/nevindra/lumen/store/sqlite"
	"github.com/nevindra/lumen/tools/calculator"
	"github.com/nevindra/lumen/tools/weather"
	"github.com/nevindra/lumen/vector"
	"github.com/nevindra/lumen/vector/chromem"
)

// components assembles lumen building blocks from config. When the observer
// is enabled every provider, embedding and tool it hands out is instrumented.
type components struct {
	cfg      config.Config
	logger   *slog.Logger
	inst     *observer.Instruments
	tracer   lumen.Tracer
	shutdown func(context.Context) error
	closers  []func() error
	pool     *pgxpool.Pool
}

func newComponents(ctx context.Context, cfg config.Config, logger *slog.Logger) (*components, error) {
	c := &components{cfg: cfg, logger: logger}
	if !cfg.Observer.Enabled {
		return c, nil
	}
	pricing := make(map[string]observer.ModelPricing, len(cfg.Observer.Pricing))
	for model, p := range cfg.Observer.Pricing {
		pricing[model] = observer.ModelPricing{InputPerMillion: p.Input, OutputPerMillion: p.Output}
	}
	inst, shutdown, err := observer.Init(ctx, pricing)
	if err != nil {
		return nil, fmt.Errorf("init observer: %w", err)
	}
	c.inst, c.shutdown, c.tracer = inst, shutdown, observer.NewTracer()
	logger.Debug("observer enabled")
	return c, nil
}

// close releases stores and flushes telemetry.
func (c *components) close(ctx context.Context) error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	if c.shutdown != nil {
		errs = append(errs, c.shutdown(ctx))
	}
	return errors.Join(errs...)
}

// provider builds the chat provider with retry and rate limiting applied.
func (c *components) provider(temperature float64) (lumen.Provider, error) {
	llm := c.cfg.LLM
	p, err := resolve.Provider(resolve.Config{
		Provider:    llm.Provider,
		APIKey:      llm.APIKey,
		Model:       llm.Model,
		BaseURL:     llm.BaseURL,
		Temperature: &temperature,
		MaxTokens:   llm.MaxTokens,
		Logger:      c.logger,
	})
	if err != nil {
		return nil, err
	}

	if llm.MaxRetries > 0 {
		p = lumen.WithRetry(p, lumen.RetryMaxAttempts(llm.MaxRetries+1), lumen.RetryLogger(c.logger))
	}
	if llm.RPM > 0 {
		p = lumen.WithRateLimit(p, lumen.RPM(llm.RPM))
	}
	if c.inst != nil {
		p = observer.WrapProvider(p, llm.Model, c.inst)
	}
	return p, nil
}

// embedding builds the embedding provider. The query cache sits outermost so
// a repeated question costs neither a request nor a rate-limit token.
func (c *components) embedding() (lumen.EmbeddingProvider, error) {
	ec := c.cfg.Embedding
	e, err := resolve.EmbeddingProvider(resolve.EmbeddingConfig{
		Provider:   ec.Provider,
		APIKey:     ec.APIKey,
		Model:      ec.Model,
		BaseURL:    ec.BaseURL,
		Dimensions: ec.Dimensions,
	})
	if err != nil {
		return nil, err
	}
	if ec.MaxRetries > 0 {
		e = lumen.WithEmbeddingRetry(e, lumen.RetryMaxAttempts(ec.MaxRetries+1), lumen.RetryLogger(c.logger))
	}
	if ec.RPM > 0 {
		e = lumen.WithEmbeddingRateLimit(e, lumen.RPM(ec.RPM))
	}
	if c.inst != nil {
		e = observer.WrapEmbedding(e, ec.Model, c.inst)
	}
	if ec.CacheSize > 0 {
		return lumen.WithQueryCache(e, int64(ec.CacheSize))
	}
	return e, nil
}

func (c *components) index(ctx context.Context) (lumen.VectorIndex, error) {
	switch c.cfg.RAG.Index {
	case "chromem":
		idx, err := chromem.New("lumen")
		if err != nil {
			return nil, err
		}
		return idx, nil
	case "postgres":
		pool, err := c.pgPool(ctx)
		if err != nil {
			return nil, err
		}
		idx := postgres.NewIndex(pool, c.cfg.Embedding.Dimensions, postgres.WithCollection(c.cfg.Postgres.Collection))
		if err := idx.Init(ctx); err != nil {
			return nil, err
		}
		return idx, nil
	case "exhaustive", "":
		return vector.New(), nil
	default:
		return nil, fmt.Errorf("unknown index %q", c.cfg.RAG.Index)
	}
}

// pgPool opens the shared Postgres pool on first use.
func (c *components) pgPool(ctx context.Context) (*pgxpool.Pool, error) {
	if c.pool != nil {
		return c.pool, nil
	}
	pool, err := pgxpool.New(ctx, c.cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	c.pool = pool
	c.closers = append(c.closers, func() error { pool.Close(); return nil })
	return pool, nil
}

// memory builds the agent memory. With a transcript backend configured, the
// stored transcript is replayed into the window.
func (c *components) memory(ctx context.Context) (lumen.Memory, error) {
	opts := []lumen.MemoryOption{lumen.WithMemoryLogger(c.logger)}
	mc := c.cfg.Memory

	var store interface {
		lumen.TranscriptStore
		Init(context.Context) error
	}
	switch {
	case mc.Backend == "postgres":
		pool, err := c.pgPool(ctx)
		if err != nil {
			return nil, err
		}
		store = postgres.New(pool, postgres.WithSession(mc.Session), postgres.WithLogger(c.logger))
	case mc.TranscriptPath != "":
		s := sqlite.New(mc.TranscriptPath, sqlite.WithLogger(c.logger), sqlite.WithSession(mc.Session))
		c.closers = append(c.closers, s.Close)
		store = s
	default:
		return lumen.NewWindowMemory(c.cfg.Agent.MemoryWindow, opts...), nil
	}

	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("init transcript store: %w", err)
	}
	mem := lumen.NewWindowMemory(c.cfg.Agent.MemoryWindow, append(opts, lumen.WithTranscriptStore(store))...)
	if err := mem.Restore(ctx); err != nil {
		return nil, fmt.Errorf("restore transcript: %w", err)
	}
	c.logger.Debug("transcript restored", "backend", mc.Backend, "session", mc.Session, "messages", mem.Len())
	return mem, nil
}

// tools registers the built-in tools.
func (c *components) tools() (*lumen.ToolRegistry, error) {
	reg := lumen.NewToolRegistry(lumen.WithRegistryLogger(c.logger))
	for _, t := range []lumen.Tool{calculator.New(), weather.New()} {
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	if c.inst == nil {
		return reg, nil
	}
	return observer.WrapRegistry(reg, c.inst, lumen.WithRegistryLogger(c.logger))
}

// agent assembles the ReAct agent with its tools and memory.
func (c *components) agent(ctx context.Context) (observer.Runner, error) {
	provider, err := c.provider(c.cfg.LLM.Temperature)
	if err != nil {
		return nil, err
	}
	reg, err := c.tools()
	if err != nil {
		return nil, err
	}
	mem, err := c.memory(ctx)
	if err != nil {
		return nil, err
	}
	opts := []lumen.AgentOption{
		lumen.WithMemory(mem),
		lumen.WithMaxIterations(c.cfg.Agent.MaxIterations),
		lumen.WithRunTimeout(c.cfg.Agent.Timeout()),
		lumen.WithAgentLogger(c.logger),
	}
	if c.tracer != nil {
		opts = append(opts, lumen.WithAgentTracer(c.tracer))
	}
	agent := lumen.NewReActAgent(provider, reg, opts...)
	if c.inst != nil {
		return observer.WrapAgent(agent, c.inst), nil
	}
	return agent, nil
}

// pipeline assembles the RAG pipeline over a fresh index.
func (c *components) pipeline(ctx context.Context) (*rag.Pipeline, error) {
	provider, err := c.provider(c.cfg.RAG.Temperature)
	if err != nil {
		return nil, err
	}
	emb, err := c.embedding()
	if err != nil {
		return nil, err
	}
	idx, err := c.index(ctx)
	if err != nil {
		return nil, err
	}
	opts := []rag.Option{
		rag.WithLogger(c.logger),
		rag.WithIngestOptions(
			ingest.WithConcurrency(c.cfg.RAG.Concurrency),
			ingest.WithBatchSize(c.cfg.RAG.BatchSize),
		),
	}
	if c.tracer != nil {
		opts = append(opts, rag.WithTracer(c.tracer))
	}
	return rag.New(provider, emb, idx, opts...), nil
}
