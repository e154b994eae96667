package app

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Settings is the configuration surface named in spec §6: budget,
// retrieval, ingestion, privacy, capsules, and graph defaults.
type Settings struct {
	DBPath string `yaml:"db_path"`

	Budget struct {
		MaxTokens int `yaml:"max_tokens"`
	} `yaml:"budget"`

	Retrieval struct {
		CandidatePoolMax   int     `yaml:"candidate_pool_max"`
		RetrievedChunksMax int     `yaml:"retrieved_chunks_max"`
		Alpha              float64 `yaml:"alpha"`
		Beta               float64 `yaml:"beta"`
		Gamma              float64 `yaml:"gamma"`
	} `yaml:"retrieval"`

	Ingestion struct {
		MaxBytesPerToolResult int    `yaml:"max_bytes_per_tool_result"`
		DefaultScope          string `yaml:"default_scope"`
	} `yaml:"ingestion"`

	Privacy struct {
		NeverStoreSecrets *bool `yaml:"never_store_secrets"`
	} `yaml:"privacy"`

	Capsules struct {
		DefaultTTLDays int `yaml:"default_ttl_days"`
	} `yaml:"capsules"`

	Graph struct {
		MaxTraversalDepth int `yaml:"max_traversal_depth"`
	} `yaml:"graph"`

	Embedding struct {
		APIKey string `yaml:"-"` // sourced from MEMORYD_EMBEDDING_API_KEY only, never written to disk
		Model  string `yaml:"embedding_model"`
	} `yaml:"embedding"`
}

// defaults applies the numeric defaults from spec §6 when a field is unset
// (zero-valued) in the loaded config.
func (s *Settings) defaults() {
	if s.Budget.MaxTokens == 0 {
		s.Budget.MaxTokens = 65000
	}
	if s.Retrieval.CandidatePoolMax == 0 {
		s.Retrieval.CandidatePoolMax = 2000
	}
	if s.Retrieval.RetrievedChunksMax == 0 {
		s.Retrieval.RetrievedChunksMax = 200
	}
	if s.Retrieval.Alpha == 0 && s.Retrieval.Beta == 0 && s.Retrieval.Gamma == 0 {
		s.Retrieval.Alpha, s.Retrieval.Beta, s.Retrieval.Gamma = 0.6, 0.3, 0.1
	}
	if s.Ingestion.MaxBytesPerToolResult == 0 {
		s.Ingestion.MaxBytesPerToolResult = 64 * 1024
	}
	if s.Ingestion.DefaultScope == "" {
		s.Ingestion.DefaultScope = "global"
	}
	if s.Capsules.DefaultTTLDays == 0 {
		s.Capsules.DefaultTTLDays = 7
	}
	if s.Graph.MaxTraversalDepth == 0 {
		s.Graph.MaxTraversalDepth = 5
	}
	if s.Privacy.NeverStoreSecrets == nil {
		t := true
		s.Privacy.NeverStoreSecrets = &t
	}
}

//nolint:gochecknoglobals // sync.Once singleton + RWMutex override, same pattern as the teacher's app.settings
var (
	settingsOnce     sync.Once
	settingsCached   Settings
	settingsErr      error
	dbPathOverrideMu sync.RWMutex
	dbPathOverride   string
)

// SetDBPathOverride sets a process-wide database path override (e.g. a
// --db-path flag on the memoryd CLI entrypoint).
func SetDBPathOverride(path string) {
	dbPathOverrideMu.Lock()
	dbPathOverride = path
	dbPathOverrideMu.Unlock()
}

func getDBPathOverride() string {
	dbPathOverrideMu.RLock()
	v := dbPathOverride
	dbPathOverrideMu.RUnlock()
	return v
}

// LoadSettings loads configuration once using the documented lookup order:
// 1) ~/.config/memoryd/config.yaml
// 2) /etc/memoryd/config.yaml
// 3) ./config.yaml (lowest priority)
// Environment variables (MEMORYD_*) are applied on top and are not cached,
// so tests can vary them freely.
func LoadSettings() (Settings, error) {
	settingsOnce.Do(func() {
		settingsCached = Settings{}

		dir, err := ConfigDir()
		if err != nil {
			settingsErr = err
			return
		}
		if s, loadErr := loadSettingsFile(filepath.Join(dir, "config.yaml")); loadErr == nil {
			settingsCached = s
		} else if !errors.Is(loadErr, os.ErrNotExist) {
			settingsErr = loadErr
			return
		} else if s, loadErr := loadSettingsFile(filepath.Join(string(os.PathSeparator), "etc", "memoryd", "config.yaml")); loadErr == nil {
			settingsCached = s
		} else if !errors.Is(loadErr, os.ErrNotExist) {
			settingsErr = loadErr
			return
		} else if s, loadErr := loadSettingsFile("config.yaml"); loadErr == nil {
			settingsCached = s
		} else if !errors.Is(loadErr, os.ErrNotExist) {
			settingsErr = loadErr
			return
		}

		settingsCached.defaults()
	})

	s := settingsCached
	if envPath := os.Getenv("MEMORYD_DB_PATH"); envPath != "" {
		s.DBPath = envPath
	}
	if key := os.Getenv("MEMORYD_EMBEDDING_API_KEY"); key != "" {
		s.Embedding.APIKey = key
	}
	return s, settingsErr
}

func loadSettingsFile(path string) (Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}
	var s Settings
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}
