package credentials

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	keyOCR    = "ocr_api_key"
	keyLLM    = "kimi_api_key"
	keyWarned = "warned"

	// Environment fallbacks used when the settings file has no value.
	OCREnvVar = "OCR_API_KEY"
	LLMEnvVar = "KIMI_API_KEY"
)

// Credentials are the two service keys plus the first-run hint flag.
type Credentials struct {
	OCRKey string `mapstructure:"ocr_api_key"`
	LLMKey string `mapstructure:"kimi_api_key"`
	Warned bool   `mapstructure:"warned"`
}

// Complete reports whether both keys are present.
func (c Credentials) Complete() bool {
	return strings.TrimSpace(c.OCRKey) != "" && strings.TrimSpace(c.LLMKey) != ""
}

// Missing names the absent keys, for user-facing messages.
func (c Credentials) Missing() []string {
	var out []string
	if strings.TrimSpace(c.OCRKey) == "" {
		out = append(out, "OCR.space API key")
	}
	if strings.TrimSpace(c.LLMKey) == "" {
		out = append(out, "Kimi API key")
	}
	return out
}

// Source is a read-only credential provider. Each Load reads fresh.
type Source interface {
	Load() (Credentials, error)
}

// Store is a YAML settings file. Nothing is cached between calls, so edits
// made by another process are visible on the next Load.
type Store struct {
	path string
}

// NewStore returns a store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the settings file location.
func (s *Store) Path() string { return s.path }

func (s *Store) open() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("yaml")
	v.SetDefault(keyOCR, "")
	v.SetDefault(keyLLM, "")
	v.SetDefault(keyWarned, false)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.Is(err, fs.ErrNotExist) || errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("failed to read settings %s: %w", s.path, err)
	}
	return v, nil
}

// Load reads the settings file, falling back to OCR_API_KEY / KIMI_API_KEY
// for keys the file does not set. A missing file is not an error.
func (s *Store) Load() (Credentials, error) {
	v, err := s.open()
	if err != nil {
		return Credentials{}, err
	}

	var c Credentials
	if err := v.Unmarshal(&c); err != nil {
		return Credentials{}, fmt.Errorf("failed to decode settings %s: %w", s.path, err)
	}
	c.OCRKey = strings.TrimSpace(c.OCRKey)
	c.LLMKey = strings.TrimSpace(c.LLMKey)

	if c.OCRKey == "" {
		c.OCRKey = strings.TrimSpace(os.Getenv(OCREnvVar))
	}
	if c.LLMKey == "" {
		c.LLMKey = strings.TrimSpace(os.Getenv(LLMEnvVar))
	}
	return c, nil
}

// Save stores both keys, keeping the other settings in the file.
func (s *Store) Save(ocrKey, llmKey string) error {
	return s.update(func(v *viper.Viper) {
		v.Set(keyOCR, strings.TrimSpace(ocrKey))
		v.Set(keyLLM, strings.TrimSpace(llmKey))
	})
}

// Clear removes both keys from the file. Environment fallbacks are untouched.
func (s *Store) Clear() error {
	return s.update(func(v *viper.Viper) {
		v.Set(keyOCR, "")
		v.Set(keyLLM, "")
	})
}

// MarkWarned records that the first-run hint has been shown.
func (s *Store) MarkWarned() error {
	return s.update(func(v *viper.Viper) {
		v.Set(keyWarned, true)
	})
}

func (s *Store) update(apply func(v *viper.Viper)) error {
	v, err := s.open()
	if err != nil {
		return err
	}
	apply(v)

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create settings dir: %w", err)
		}
	}
	v.SetConfigPermissions(0o600)
	if err := v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("failed to write settings %s: %w", s.path, err)
	}
	log.Printf("Credentials: updated %s", s.path)
	return nil
}
