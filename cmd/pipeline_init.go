package main

import (
	"context"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/doc-intake/internal/config"
	"github.com/sells-group/doc-intake/internal/document"
	"github.com/sells-group/doc-intake/internal/entity"
	"github.com/sells-group/doc-intake/internal/model"
	"github.com/sells-group/doc-intake/internal/monitoring"
	"github.com/sells-group/doc-intake/internal/notify"
	"github.com/sells-group/doc-intake/internal/pipeline"
	"github.com/sells-group/doc-intake/internal/registry"
	"github.com/sells-group/doc-intake/internal/resilience"
	"github.com/sells-group/doc-intake/internal/store"
	anthropicpkg "github.com/sells-group/doc-intake/pkg/anthropic"
	"github.com/sells-group/doc-intake/pkg/notion"
)

// pipelineEnv holds the store, registry and pipeline needed by the run and
// serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Registry *registry.Registry
	Metrics  *monitoring.Metrics
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates the config for mode, opens the store, loads the
// registry and template and builds the Pipeline. Callers should defer
// env.Close().
func initPipeline(ctx context.Context, mode config.Mode) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	env, err := buildPipeline(ctx, st, initAnthropic(), initSender(mode))
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return env, nil
}

// buildPipeline wires the collaborators around an open store.
func buildPipeline(ctx context.Context, st store.Store, ai anthropicpkg.Client, sender notify.Sender) (*pipelineEnv, error) {
	records, err := loadClients(ctx)
	if err != nil {
		return nil, err
	}
	reg := registry.New(records)

	tmpl, err := loadTemplate()
	if err != nil {
		return nil, err
	}

	zap.L().Info("registry loaded",
		zap.String("source", cfg.Registry.Source),
		zap.Int("clients", reg.Len()),
	)

	document.SetMaxPartSize(int64(cfg.Pipeline.MaxPartMB) << 20)

	aiPolicy := resilience.PolicyFor("anthropic", cfg.Retry)
	mailPolicy := resilience.PolicyFor("smtp", cfg.Retry)

	extOpts := []entity.Option{entity.WithBreaker(resilience.NewCircuitBreaker(aiPolicy.Breaker))}
	if rps := cfg.Anthropic.RequestsPerSecond; rps > 0 {
		extOpts = append(extOpts, entity.WithLimiter(rate.NewLimiter(rate.Limit(rps), 1)))
	}
	ext := entity.New(ai, entity.Config{
		Model:             cfg.Anthropic.Model,
		VisionModel:       cfg.Anthropic.VisionModel,
		MaxTokens:         cfg.Anthropic.MaxTokens,
		CallTimeout:       time.Duration(cfg.Pipeline.CallTimeoutSecs) * time.Second,
		MaxImageEdge:      cfg.Pipeline.MaxImageEdge,
		VisionConcurrency: cfg.Pipeline.VisionConcurrency,
		Retry:             aiPolicy.Retry,
	}, extOpts...)

	metrics := monitoring.NewMetrics()
	opts := []pipeline.Option{
		pipeline.WithMetrics(metrics),
		pipeline.WithPreviewLength(cfg.Pipeline.PreviewLength),
		pipeline.WithDefaultAlias(cfg.SMTP.DefaultAlias),
	}
	if cfg.Audit.Enabled {
		opts = append(opts, pipeline.WithAudit(pipeline.NewFileAudit(cfg.Audit.Dir)))
	}

	p, err := pipeline.New(st, pipeline.Deps{
		Extractor: ext,
		Directory: reg,
		Notifier:  notify.NewDispatcher(sender, mailPolicy.Retry),
		Template:  tmpl,
		Images:    document.ImageOptions{DPI: cfg.Pipeline.PDFDPI},
	}, opts...)
	if err != nil {
		return nil, err
	}

	return &pipelineEnv{
		Store:    st,
		Pipeline: p,
		Registry: reg,
		Metrics:  metrics,
	}, nil
}

// initAnthropic builds the SDK client. Retries are handled by the extractor,
// so the SDK's own retry loop is disabled.
func initAnthropic() anthropicpkg.Client {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.Anthropic.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.Anthropic.BaseURL))
	}
	return anthropicpkg.NewClient(cfg.Anthropic.Key, opts...)
}

// initSender returns the SMTP sender, or a logging sender for dry runs.
func initSender(mode config.Mode) notify.Sender {
	if mode == config.ModeDryRun {
		zap.L().Info("dry run: emails will be logged, not sent")
		return notify.LogSender{}
	}
	return notify.NewSMTPSender(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		Sender:   cfg.SMTP.Sender,
		SSL:      cfg.SMTP.SSL,
		Timeout:  time.Duration(cfg.SMTP.TimeoutSecs) * time.Second,
	})
}

// loadClients reads the client registry from the configured source.
func loadClients(ctx context.Context) ([]model.ClientRecord, error) {
	switch cfg.Registry.Source {
	case config.RegistrySourceBuiltin, "":
		return registry.DefaultClients(), nil
	case config.RegistrySourceFile:
		return registry.LoadFile(cfg.Registry.Path)
	case config.RegistrySourceXLSX:
		return registry.LoadXLSX(cfg.Registry.Path, cfg.Registry.Sheet)
	case config.RegistrySourceNotion:
		client := notion.NewClient(cfg.Notion.Token)
		return registry.LoadNotion(ctx, client, cfg.Registry.NotionDatabaseID)
	default:
		return nil, eris.Errorf("unsupported registry source: %s", cfg.Registry.Source)
	}
}

// loadTemplate reads the email template, falling back to the built-in one.
func loadTemplate() (registry.Template, error) {
	if cfg.Template.Path == "" {
		return registry.DefaultTemplate(), nil
	}
	return registry.LoadTemplate(cfg.Template.Path)
}
