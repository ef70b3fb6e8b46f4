package cli

import (
	"context"
	"io"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/phrazzld/judith/pkg/adapter"
	"github.com/phrazzld/judith/pkg/model"
	"github.com/phrazzld/judith/pkg/repository"
	"github.com/phrazzld/judith/pkg/service/embedding"
	"github.com/phrazzld/judith/pkg/service/significance"
	"github.com/phrazzld/judith/pkg/usecase/memory"
	"github.com/phrazzld/judith/pkg/utils/logging"
	"github.com/urfave/cli/v3"
	"google.golang.org/api/option"
	"gopkg.in/yaml.v3"
)

const (
	backendFirestore = "firestore"
	backendMemory    = "memory"
)

// config holds configuration values
type config struct {
	// Repository
	backend     string
	project     string
	database    string
	credentials string
	owner       string

	// Logging
	logLevel  string
	logFormat string

	// Adapters
	geminiProject   string
	geminiLocation  string
	embeddingModel  string
	generativeModel string
	dimensions      int64
	cacheSize       int64

	// Scoring
	scoringConfig      string
	timeDecayFactor    float64
	significanceWeight float64
	similarityWeight   float64
	topK               int64

	// Storage
	bucket string
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "owner",
			Aliases:     []string{"u"},
			Usage:       "User ID whose memory stream is used",
			Sources:     cli.EnvVars("JUDITH_OWNER"),
			Destination: &cfg.owner,
		},
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "Memory store backend (firestore, memory)",
			Value:       backendFirestore,
			Sources:     cli.EnvVars("JUDITH_BACKEND"),
			Destination: &cfg.backend,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "credentials",
			Usage:       "Path to a service account key file. Application default credentials are used when empty",
			Sources:     cli.EnvVars("JUDITH_CREDENTIALS"),
			Destination: &cfg.credentials,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("JUDITH_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       string(logging.FormatConsole),
			Sources:     cli.EnvVars("JUDITH_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Usage:       "Gemini embedding model",
			Value:       "gemini-embedding-001",
			Sources:     cli.EnvVars("JUDITH_EMBEDDING_MODEL"),
			Destination: &cfg.embeddingModel,
		},
		&cli.StringFlag{
			Name:        "generative-model",
			Usage:       "Gemini model used to classify significance",
			Value:       "gemini-2.5-flash",
			Sources:     cli.EnvVars("JUDITH_GENERATIVE_MODEL"),
			Destination: &cfg.generativeModel,
		},
		&cli.IntFlag{
			Name:        "embedding-dimensions",
			Usage:       "Embedding size. Must stay the same for an owner's whole memory stream",
			Value:       768,
			Sources:     cli.EnvVars("JUDITH_EMBEDDING_DIMENSIONS"),
			Destination: &cfg.dimensions,
		},
		&cli.IntFlag{
			Name:        "embedding-cache-size",
			Usage:       "Number of embeddings kept in memory (0 disables the cache)",
			Value:       1024,
			Sources:     cli.EnvVars("JUDITH_EMBEDDING_CACHE_SIZE"),
			Destination: &cfg.cacheSize,
		},
	}
}

// scoringFlags returns retrieval tuning flags with destination config
func scoringFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "scoring-config",
			Usage:       "Path to a YAML file with scoring parameters",
			Sources:     cli.EnvVars("JUDITH_SCORING_CONFIG"),
			Destination: &cfg.scoringConfig,
		},
		&cli.FloatFlag{
			Name:        "time-decay-factor",
			Usage:       "Decay applied to significance per millisecond since last access",
			Value:       memory.DefaultTimeDecayFactor,
			Sources:     cli.EnvVars("JUDITH_TIME_DECAY_FACTOR"),
			Destination: &cfg.timeDecayFactor,
		},
		&cli.FloatFlag{
			Name:        "significance-weight",
			Usage:       "Weight of the decayed significance term",
			Value:       memory.DefaultSignificanceWeight,
			Sources:     cli.EnvVars("JUDITH_SIGNIFICANCE_WEIGHT"),
			Destination: &cfg.significanceWeight,
		},
		&cli.FloatFlag{
			Name:        "similarity-weight",
			Usage:       "Weight of the cosine similarity term",
			Value:       memory.DefaultSimilarityWeight,
			Sources:     cli.EnvVars("JUDITH_SIMILARITY_WEIGHT"),
			Destination: &cfg.similarityWeight,
		},
		&cli.IntFlag{
			Name:        "top-k",
			Aliases:     []string{"k"},
			Usage:       "Number of memories to recall",
			Value:       memory.DefaultTopK,
			Sources:     cli.EnvVars("JUDITH_TOP_K"),
			Destination: &cfg.topK,
		},
	}
}

// storageFlags returns flags for snapshot storage
func storageFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket for memory stream snapshots",
			Sources:     cli.EnvVars("JUDITH_BUCKET"),
			Destination: &cfg.bucket,
		},
	}
}

// setupLogger attaches a logger built from the log flags to ctx
func (cfg *config) setupLogger(ctx context.Context, w io.Writer) context.Context {
	if w == nil {
		w = os.Stderr
	}
	logger := logging.New(cfg.logLevel, logging.Format(cfg.logFormat), w)
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

func (cfg *config) ownerID() (model.OwnerID, error) {
	owner := model.OwnerID(cfg.owner)
	if err := owner.Validate(); err != nil {
		return "", goerr.Wrap(err, "owner is required (--owner or JUDITH_OWNER)")
	}
	return owner, nil
}

func (cfg *config) clientOptions() []option.ClientOption {
	if cfg.credentials == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(cfg.credentials)}
}

// newRepository creates a new repository instance. The returned function
// releases the underlying client.
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, func(), error) {
	switch cfg.backend {
	case backendMemory:
		return repository.NewMemory(), func() {}, nil

	case backendFirestore, "":
		if cfg.project == "" {
			return nil, nil, goerr.New("project is required")
		}
		if cfg.database == "" {
			return nil, nil, goerr.New("database is required")
		}

		repo, err := repository.New(ctx, cfg.project, cfg.database, cfg.clientOptions()...)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to create repository")
		}
		return repo, func() {
			if err := repo.Close(); err != nil {
				logging.From(ctx).Warn("failed to close firestore client", "error", err)
			}
		}, nil

	default:
		return nil, nil, goerr.New("unsupported backend",
			goerr.V("backend", cfg.backend),
			goerr.V("supported", []string{backendFirestore, backendMemory}))
	}
}

// newGemini creates a new Gemini adapter instance
func (cfg *config) newGemini(ctx context.Context) (adapter.Gemini, error) {
	project := cfg.geminiProject
	if project == "" {
		project = cfg.project
	}
	if project == "" {
		return nil, goerr.New("gemini-project is required")
	}
	if cfg.geminiLocation == "" {
		return nil, goerr.New("gemini-location is required")
	}

	client, err := adapter.NewGemini(ctx, project, cfg.geminiLocation,
		adapter.WithEmbeddingModel(cfg.embeddingModel),
		adapter.WithGenerativeModel(cfg.generativeModel),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create gemini client")
	}
	return client, nil
}

// newEmbedder wraps the Gemini embedder with a cache unless the cache is disabled
func (cfg *config) newEmbedder(gemini adapter.Gemini) (memory.Embedder, func(), error) {
	if cfg.dimensions < 0 {
		return nil, nil, goerr.New("embedding-dimensions must not be negative", goerr.V("dimensions", cfg.dimensions))
	}
	embedder := embedding.New(gemini, embedding.WithDimensions(int(cfg.dimensions)))
	if cfg.cacheSize <= 0 {
		return embedder, func() {}, nil
	}

	cache, err := embedding.NewCache(embedder, cfg.cacheSize)
	if err != nil {
		return nil, nil, err
	}
	return cache, cache.Close, nil
}

// newStorage creates a new Storage adapter instance
func (cfg *config) newStorage(ctx context.Context) (adapter.Storage, error) {
	if cfg.bucket == "" {
		return nil, goerr.New("bucket is required")
	}

	storage, err := adapter.NewStorage(ctx, cfg.bucket, cfg.clientOptions()...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	return storage, nil
}

// scoringFile is the YAML layout of --scoring-config. Absent keys keep the
// flag value.
type scoringFile struct {
	TimeDecayFactor    *float64 `yaml:"time_decay_factor"`
	SignificanceWeight *float64 `yaml:"significance_weight"`
	SimilarityWeight   *float64 `yaml:"similarity_weight"`
	TopK               *int     `yaml:"top_k"`
}

// loadScoring resolves scoring parameters: flags set on the command line or
// through the environment win over the YAML file, which wins over defaults.
func (cfg *config) loadScoring(c *cli.Command) (memory.Weights, int, error) {
	w := memory.Weights{
		TimeDecayFactor:    cfg.timeDecayFactor,
		SignificanceWeight: cfg.significanceWeight,
		SimilarityWeight:   cfg.similarityWeight,
	}
	topK := int(cfg.topK)

	if cfg.scoringConfig != "" {
		data, err := os.ReadFile(cfg.scoringConfig)
		if err != nil {
			return w, 0, goerr.Wrap(err, "failed to read scoring config", goerr.V("path", cfg.scoringConfig))
		}

		var file scoringFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return w, 0, goerr.Wrap(err, "failed to parse scoring config", goerr.V("path", cfg.scoringConfig))
		}

		if file.TimeDecayFactor != nil && !c.IsSet("time-decay-factor") {
			w.TimeDecayFactor = *file.TimeDecayFactor
		}
		if file.SignificanceWeight != nil && !c.IsSet("significance-weight") {
			w.SignificanceWeight = *file.SignificanceWeight
		}
		if file.SimilarityWeight != nil && !c.IsSet("similarity-weight") {
			w.SimilarityWeight = *file.SimilarityWeight
		}
		if file.TopK != nil && !c.IsSet("top-k") {
			topK = *file.TopK
		}
	}

	if err := w.Validate(); err != nil {
		return w, 0, err
	}
	// 0 would make every recall empty
	if topK <= 0 {
		return w, 0, goerr.Wrap(model.ErrInvalidTopK, "top-k must be positive", goerr.V("top_k", topK))
	}

	return w, topK, nil
}

// newUseCase wires the repository, Gemini embedder and classifier into a
// memory.UseCase. The returned function releases all clients.
func (cfg *config) newUseCase(ctx context.Context, c *cli.Command, opts ...memory.Option) (*memory.UseCase, func(), error) {
	weights, topK, err := cfg.loadScoring(c)
	if err != nil {
		return nil, nil, err
	}

	repo, closeRepo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, nil, err
	}

	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		closeRepo()
		return nil, nil, err
	}

	embedder, closeEmbedder, err := cfg.newEmbedder(gemini)
	if err != nil {
		closeRepo()
		return nil, nil, err
	}

	classifier, err := significance.New(gemini)
	if err != nil {
		closeEmbedder()
		closeRepo()
		return nil, nil, err
	}

	options := []memory.Option{
		memory.WithEmbedder(embedder),
		memory.WithClassifier(classifier),
		memory.WithWeights(weights),
		memory.WithTopK(topK),
	}
	options = append(options, opts...)

	cleanup := func() {
		closeEmbedder()
		closeRepo()
	}
	return memory.New(repo, options...), cleanup, nil
}
