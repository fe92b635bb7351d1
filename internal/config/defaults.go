package config

const (
	defaultDataDir               = "~/.local/share/bookshelf"
	defaultAPIBind               = "127.0.0.1:7491"
	defaultInferenceBaseURL      = "http://127.0.0.1:8080/v1/chat/completions"
	defaultInferenceTimeout      = 120
	defaultBatchSize             = 50
	defaultTargetChunkSize       = 900
	defaultMaxContentChars       = 5000
	defaultEpubSections          = 5
	defaultExtractTimeoutSeconds = 15
	defaultMinTextLength         = 5
	defaultTaggingMaxTokens      = 500
	defaultTaggingTemperature    = 0.3
	defaultTaxonomyBatchSize     = 500
	defaultApplyProgressEvery    = 50
	defaultTaxonomyMaxTokens     = 1000
	defaultTaxonomyTemperature   = 0.1
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 60
)

// DefaultContextSizes is the context ladder tried when establishing a model context.
func DefaultContextSizes() []int {
	return []int{8192, 4096, 2048}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			APIBind: defaultAPIBind,
		},
		Inference: Inference{
			BaseURL:        defaultInferenceBaseURL,
			TimeoutSeconds: defaultInferenceTimeout,
			ContextSizes:   DefaultContextSizes(),
		},
		Job: Job{
			BatchSize:             defaultBatchSize,
			TargetChunkSize:       defaultTargetChunkSize,
			MaxContentChars:       defaultMaxContentChars,
			EpubSections:          defaultEpubSections,
			ExtractTimeoutSeconds: defaultExtractTimeoutSeconds,
			MinTextLength:         defaultMinTextLength,
		},
		Tagging: Tagging{
			MaxTokens:   defaultTaggingMaxTokens,
			Temperature: defaultTaggingTemperature,
		},
		Taxonomy: Taxonomy{
			AIBatchSize:        defaultTaxonomyBatchSize,
			ApplyProgressEvery: defaultApplyProgressEvery,
			MaxTokens:          defaultTaxonomyMaxTokens,
			Temperature:        defaultTaxonomyTemperature,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
