package handlers

import (
	"context"
	"fmt"

	"factseeker/internal/articleindex"
	"factseeker/internal/claims"
	"factseeker/internal/config"
	"factseeker/internal/evidence"
	"factseeker/internal/fetch"
	"factseeker/internal/judge"
	"factseeker/internal/llm"
	"factseeker/internal/logger"
	"factseeker/internal/objstore"
	"factseeker/internal/pipeline"
	"factseeker/internal/search"
	"factseeker/internal/titleindex"
)

// app holds the wired component graph behind the CLI commands.
type app struct {
	cfg      *config.Config
	model    *llm.Client
	fetcher  *fetch.TextFetcher
	objects  *objstore.Store // nil without an S3 bucket
	registry *titleindex.Registry
	loader   *titleindex.Loader
	articles *articleindex.Cache
	driver   *pipeline.Driver
}

// newApp constructs the full pipeline from the loaded configuration.
func newApp(ctx context.Context) (*app, error) {
	cfg := config.Get()

	model, err := llm.NewClient(cfg.AI.Gemini.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	fetcher := fetch.NewTextFetcher(config.SearchTimeout())

	var objects *objstore.Store
	if cfg.Storage.S3Bucket != "" {
		objects, err = objstore.New(ctx, cfg.Storage.S3Bucket, config.StorageTimeout())
		if err != nil {
			return nil, fmt.Errorf("failed to create object store client: %w", err)
		}
	} else {
		logger.Warn("S3_BUCKET_NAME not set, running on local caches only")
	}

	registry := titleindex.NewRegistry(cfg.TitleIndex.OverflowPartition)
	var loaderStore titleindex.ObjectStore
	if objects != nil {
		loaderStore = objects
	}
	loader := titleindex.NewLoader(loaderStore, registry, cfg.Storage.PartitionLocalDir, cfg.Storage.PartitionPrefix)

	var articleStore articleindex.ObjectStore
	if objects != nil {
		articleStore = objects
	}
	articles := articleindex.New(cfg.Storage.LocalCacheDir, cfg.Storage.ArticlePrefix, articleStore, fetcher, model)

	primary, err := newProvider(cfg, cfg.Search.Primary)
	if err != nil {
		return nil, fmt.Errorf("primary search provider %q: %w", cfg.Search.Primary, err)
	}
	secondary, err := newProvider(cfg, cfg.Search.Secondary)
	if err != nil {
		logger.Warn("Secondary search provider unavailable, cascade disabled",
			"provider", cfg.Search.Secondary, "error", err.Error())
		secondary = nil
	}

	retriever := evidence.NewRetriever(model, articles, registry, evidence.Config{
		DistanceThreshold: cfg.FactCheck.DistanceThreshold,
		MaxArticles:       cfg.FactCheck.MaxArticlesPerClaim,
		PartitionStopHits: cfg.FactCheck.PartitionStopHits,
		BodyConcurrency:   cfg.FactCheck.MaxConcurrentJudgments,
		SearchTimeout:     config.SearchTimeout(),
		SearchMaxResults:  cfg.Search.MaxResults,
		SearchLanguage:    cfg.Search.Providers.Google.Language,
		SearchCountry:     cfg.Search.Providers.Google.Country,
	})

	processor := claims.NewProcessor(retriever, judge.New(model), primary, secondary, claims.Config{
		MaxEvidences:           cfg.FactCheck.MaxEvidencesPerClaim,
		JudgmentConcurrency:    cfg.FactCheck.MaxConcurrentJudgments,
		LowConfidenceThreshold: cfg.FactCheck.LowConfidenceThreshold,
	})

	driver := pipeline.NewDriver(fetcher, model, processor, pipeline.Config{
		MaxClaims:           cfg.FactCheck.MaxClaims,
		MaxConcurrentClaims: cfg.FactCheck.MaxConcurrentClaims,
	})

	return &app{
		cfg:      cfg,
		model:    model,
		fetcher:  fetcher,
		objects:  objects,
		registry: registry,
		loader:   loader,
		articles: articles,
		driver:   driver,
	}, nil
}

// newProvider builds one configured search provider by name.
func newProvider(cfg *config.Config, name string) (search.Provider, error) {
	factory := search.NewProviderFactory()
	switch search.ProviderType(name) {
	case search.ProviderTypeNaver:
		return factory.CreateProvider(search.ProviderTypeNaver, map[string]string{
			"client_id":     cfg.Search.Providers.Naver.ClientID,
			"client_secret": cfg.Search.Providers.Naver.ClientSecret,
		})
	case search.ProviderTypeGoogle:
		return factory.CreateProvider(search.ProviderTypeGoogle, map[string]string{
			"api_key":   cfg.Search.Providers.Google.APIKey,
			"search_id": cfg.Search.Providers.Google.SearchID,
		})
	case search.ProviderTypeMock:
		return factory.CreateProvider(search.ProviderTypeMock, nil)
	default:
		return nil, search.ErrUnsupportedProvider
	}
}
