package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvFileEnvVar      = "SCREEN_GRADER_ENV"
	SettingsFileEnvVar = "SETTINGS_FILE"

	DefaultHotkey         = "Ctrl+Shift+G"
	DefaultOCREndpoint    = "https://api.ocr.space/parse/image"
	DefaultOCRLanguage    = "chs"
	DefaultOCREngine      = "2"
	DefaultLLMBaseURL     = "https://api.moonshot.cn/v1"
	DefaultLLMModel       = "kimi-k2-turbo-preview"
	DefaultTimeoutSec     = 25
	DefaultMinSelectionPx = 10.0
	DefaultMaxPromptChars = 8000

	minTimeoutSec = 1
	maxTimeoutSec = 120
)

type LoadOptions struct {
	SettingsFileOverride string
}

type Config struct {
	Hotkey            string
	EnableFileLogging bool

	OCREndpoint   string
	OCRLanguage   string
	OCREngine     string
	OCRTimeoutSec int

	LLMBaseURL    string
	LLMModel      string
	LLMTimeoutSec int

	MinSelectionPx   float64
	MaxPromptChars   int
	DevicePixelRatio float64 // 0 means ask the overlay
	CopyToClipboard  bool

	SettingsFile string
	EnvPath      string
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Load configuration from sources in priority order:
	// 1) .env in the application (executable) directory
	// 2) If not found, use SCREEN_GRADER_ENV as a path to a config file
	// Variables already present in the environment win over the file.
	envPath := resolveEnvPath()
	dotenvValues := readDotenvValues(envPath)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}

	cfg := &Config{
		Hotkey:            getEnvWithDefault("HOTKEY", DefaultHotkey),
		EnableFileLogging: getBool("ENABLE_FILE_LOGGING", false),

		OCREndpoint:   getEnvWithDefault("OCR_ENDPOINT", DefaultOCREndpoint),
		OCRLanguage:   getEnvWithDefault("OCR_LANGUAGE", DefaultOCRLanguage),
		OCREngine:     getEnvWithDefault("OCR_ENGINE", DefaultOCREngine),
		OCRTimeoutSec: getTimeout("OCR_TIMEOUT_SEC"),

		LLMBaseURL:    strings.TrimRight(getEnvWithDefault("LLM_BASE_URL", DefaultLLMBaseURL), "/"),
		LLMModel:      getEnvWithDefault("LLM_MODEL", DefaultLLMModel),
		LLMTimeoutSec: getTimeout("LLM_TIMEOUT_SEC"),

		MinSelectionPx:   getPositiveFloat("MIN_SELECTION_PX", DefaultMinSelectionPx),
		MaxPromptChars:   getPositiveInt("MAX_PROMPT_CHARS", DefaultMaxPromptChars),
		DevicePixelRatio: getPositiveFloat("DEVICE_PIXEL_RATIO", 0),
		CopyToClipboard:  getBool("COPY_TO_CLIPBOARD", true),

		SettingsFile: resolveSettingsFile(opts, dotenvValues),
		EnvPath:      envPath,
	}

	return cfg, nil
}

func resolveEnvPath() string {
	execPath, err := os.Executable()
	if err == nil {
		exeEnv := filepath.Join(filepath.Dir(execPath), ".env")
		if _, err := os.Stat(exeEnv); err == nil {
			return exeEnv
		}
	}

	if alt := os.Getenv(EnvFileEnvVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}

func readDotenvValues(envPath string) map[string]string {
	if envPath == "" {
		return map[string]string{}
	}

	values, err := godotenv.Read(envPath)
	if err != nil {
		return map[string]string{}
	}

	return values
}

// resolveSettingsFile picks the credential store path: CLI override, then
// the .env file, then the environment, then the per-user config dir.
func resolveSettingsFile(opts LoadOptions, dotenvValues map[string]string) string {
	if p := strings.TrimSpace(opts.SettingsFileOverride); p != "" {
		return p
	}
	if p := strings.TrimSpace(dotenvValues[SettingsFileEnvVar]); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(SettingsFileEnvVar)); p != "" {
		return p
	}
	return DefaultSettingsFile()
}

// DefaultSettingsFile is settings.yaml under the user config directory,
// or the working directory when that cannot be determined.
func DefaultSettingsFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "settings.yaml"
	}
	return filepath.Join(dir, "screen-grader", "settings.yaml")
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(strings.ToLower(v))
	if err != nil {
		return defaultValue
	}
	return b
}

func getTimeout(key string) int {
	n := getPositiveInt(key, DefaultTimeoutSec)
	if n < minTimeoutSec {
		return minTimeoutSec
	}
	if n > maxTimeoutSec {
		return maxTimeoutSec
	}
	return n
}

func getPositiveInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func getPositiveFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f > 0 {
			return f
		}
	}
	return defaultValue
}
