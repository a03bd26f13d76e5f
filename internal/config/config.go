package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/xxxsen/common/logger"
	"gopkg.in/yaml.v3"
)

const MaxSubjects = 3

type Config struct {
	Port             int                `json:"port"`
	LogConfig        logger.LogConfig   `json:"log_config"`
	Database         DatabaseConfig     `json:"database"`
	Index            PluginConfig       `json:"index"`
	AIProvider       []AIProviderConfig `json:"ai_provider"`
	AI               AIConfig           `json:"ai"`
	Speech           SpeechConfig       `json:"speech"`
	FileStore        FileStoreConfig    `json:"file_store"`
	RAG              RAGConfig          `json:"rag"`
	Schedule         ScheduleConfig     `json:"schedule"`
	RateLimitSeconds int                `json:"rate_limit_seconds"`
	CORSAllowlist    []string           `json:"cors_allowlist"`
	Activity         ActivityConfig     `json:"activity"`
}

// DatabaseConfig enables the postgres backed embedding cache. Empty means disabled.
type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

func (c DatabaseConfig) Enabled() bool {
	return c.DSN != "" || c.Host != ""
}

// PluginConfig selects a registered implementation and carries its raw arguments.
type PluginConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type AIProviderConfig struct {
	Name string      `json:"name"`
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type ModelEntry struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type AIConfig struct {
	Answer            []ModelEntry     `json:"answer"`
	Voice             []ModelEntry     `json:"voice"`
	Quiz              []ModelEntry     `json:"quiz"`
	Embed             ModelEntry       `json:"embed"`
	Timeout           int              `json:"timeout"`
	AnswerTemperature *float32         `json:"answer_temperature"`
	QuizTemperature   *float32         `json:"quiz_temperature"`
	EmbedCache        EmbedCacheConfig `json:"embed_cache"`
}

type EmbedCacheConfig struct {
	LRUSize       int  `json:"lru_size"`
	LRUTTLMinutes int  `json:"lru_ttl_minutes"`
	DB            bool `json:"db"`
}

type SpeechConfig struct {
	Transcriber PluginConfig `json:"transcriber"`
	Synthesizer PluginConfig `json:"synthesizer"`
}

type FileStoreConfig struct {
	Type string   `json:"type"`
	Dir  string   `json:"dir"`
	S3   S3Config `json:"s3"`
}

type S3Config struct {
	Endpoint     string `json:"endpoint"`
	SecretID     string `json:"secret_id"`
	SecretKey    string `json:"secret_key"`
	Bucket       string `json:"bucket"`
	Region       string `json:"region"`
	Prefix       string `json:"prefix"`
	UsePathStyle bool   `json:"use_path_style"`
}

type RAGConfig struct {
	TopK            int     `json:"top_k"`
	SimilarityFloor float64 `json:"similarity_floor"`
	HistoryTurns    int     `json:"history_turns"`
	ChunkSize       int     `json:"chunk_size"`
	ChunkOverlap    int     `json:"chunk_overlap"`
	QuizPool        int     `json:"quiz_pool"`
	QuizSample      int     `json:"quiz_sample"`
	MaxUploadMB     int     `json:"max_upload_mb"`
	EmbedWorkers    int     `json:"embed_workers"`
}

type ScheduleConfig struct {
	EmbedCacheCleanup    string `json:"embed_cache_cleanup"`
	EmbedCacheMaxAgeDays int    `json:"embed_cache_max_age_days"`
}

type ActivityConfig struct {
	Type string `json:"type"`
}

func float32Ptr(v float32) *float32 {
	return &v
}

// Default returns a config that runs fully in memory.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8000
	}
	if c.LogConfig.Level == "" {
		c.LogConfig.Level = "info"
	}
	if c.Index.Type == "" {
		c.Index.Type = "memory"
	}
	if c.AI.Timeout <= 0 {
		c.AI.Timeout = 60
	}
	if c.AI.AnswerTemperature == nil {
		c.AI.AnswerTemperature = float32Ptr(0.1)
	}
	if c.AI.QuizTemperature == nil {
		c.AI.QuizTemperature = float32Ptr(0.7)
	}
	if len(c.AI.Voice) == 0 {
		c.AI.Voice = c.AI.Answer
	}
	if len(c.AI.Quiz) == 0 {
		c.AI.Quiz = c.AI.Answer
	}
	r := &c.RAG
	if r.TopK <= 0 {
		r.TopK = 8
	}
	if r.SimilarityFloor <= 0 {
		r.SimilarityFloor = 0.15
	}
	if r.HistoryTurns <= 0 {
		r.HistoryTurns = 6
	}
	if r.ChunkSize <= 0 {
		r.ChunkSize = 256
	}
	if r.ChunkOverlap < 0 {
		r.ChunkOverlap = 0
	}
	if r.ChunkOverlap == 0 {
		r.ChunkOverlap = 40
	}
	if r.ChunkOverlap > r.ChunkSize/2 {
		r.ChunkOverlap = r.ChunkSize / 2
	}
	if r.QuizPool <= 0 {
		r.QuizPool = 100
	}
	if r.QuizSample <= 0 {
		r.QuizSample = 10
	}
	if r.MaxUploadMB <= 0 {
		r.MaxUploadMB = 50
	}
	if r.EmbedWorkers <= 0 {
		r.EmbedWorkers = 4
	}
	if c.Schedule.EmbedCacheCleanup == "" {
		c.Schedule.EmbedCacheCleanup = "0 3 * * *"
	}
	if c.Schedule.EmbedCacheMaxAgeDays <= 0 {
		c.Schedule.EmbedCacheMaxAgeDays = 30
	}
	if c.RateLimitSeconds < 0 {
		c.RateLimitSeconds = 0
	}
	if c.Activity.Type == "" {
		c.Activity.Type = "log"
	}
}

func (c *Config) validate() error {
	switch c.FileStore.Type {
	case "", "none":
	case "local":
		if c.FileStore.Dir == "" {
			return fmt.Errorf("file_store.dir is required for local store")
		}
	case "s3":
		if c.FileStore.S3.Bucket == "" {
			return fmt.Errorf("file_store.s3.bucket is required for s3 store")
		}
		if c.FileStore.S3.Region == "" {
			c.FileStore.S3.Region = "us-east-1"
		}
	default:
		return fmt.Errorf("file_store.type must be none, local or s3")
	}
	names := make(map[string]bool, len(c.AIProvider))
	for _, p := range c.AIProvider {
		if p.Name == "" || p.Type == "" {
			return fmt.Errorf("ai_provider entries need name and type")
		}
		if names[p.Name] {
			return fmt.Errorf("duplicate ai_provider name: %s", p.Name)
		}
		names[p.Name] = true
	}
	groups := map[string][]ModelEntry{"answer": c.AI.Answer, "voice": c.AI.Voice, "quiz": c.AI.Quiz}
	for group, entries := range groups {
		for _, e := range entries {
			if !names[e.Provider] {
				return fmt.Errorf("ai.%s references unknown provider: %s", group, e.Provider)
			}
		}
	}
	if c.AI.Embed.Provider != "" && !names[c.AI.Embed.Provider] {
		return fmt.Errorf("ai.embed references unknown provider: %s", c.AI.Embed.Provider)
	}
	if c.AI.EmbedCache.DB && !c.Database.Enabled() {
		return fmt.Errorf("ai.embed_cache.db requires database")
	}
	return nil
}

// Provider returns the ai_provider entry with the given name.
func (c *Config) Provider(name string) (AIProviderConfig, bool) {
	for _, p := range c.AIProvider {
		if p.Name == name {
			return p, true
		}
	}
	return AIProviderConfig{}, false
}

// Load reads a JSON or YAML config file. A .env file next to the config, or in
// the working directory, is loaded first and ${VAR} references are expanded.
func Load(path string) (*Config, error) {
	loadDotEnv(path)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	cfg, err := Parse(filepath.Ext(path), []byte(os.ExpandEnv(string(raw))))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes config content; ext selects yaml for .yaml and .yml.
func Parse(ext string, data []byte) (*Config, error) {
	jsonData := data
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		var tree interface{}
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("decode yaml config: %w", err)
		}
		converted, err := json.Marshal(tree)
		if err != nil {
			return nil, fmt.Errorf("normalize yaml config: %w", err)
		}
		jsonData = converted
	}
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jsonData))
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnv(configPath string) {
	candidates := []string{filepath.Join(filepath.Dir(configPath), ".env"), ".env"}
	for _, p := range candidates {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		// existing environment variables win over the file
		_ = godotenv.Load(p)
	}
}
