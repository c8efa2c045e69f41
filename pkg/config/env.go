package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	envVarPatterns = struct {
		withDefault *regexp.Regexp
		braced      *regexp.Regexp
		simple      *regexp.Regexp
	}{
		withDefault: regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*):-(.*?)\}`),
		braced:      regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`),
		simple:      regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`),
	}
)

func expandEnvVars(s string) string {

	if !strings.Contains(s, "$") {
		return s
	}

	s = envVarPatterns.withDefault.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.withDefault.FindStringSubmatch(match)
		if len(parts) == 3 {
			envVar := parts[1]
			defaultVal := parts[2]
			if val := os.Getenv(envVar); val != "" {
				return val
			}
			return defaultVal
		}
		return match
	})

	s = envVarPatterns.braced.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.braced.FindStringSubmatch(match)
		if len(parts) == 2 {
			return os.Getenv(parts[1])
		}
		return match
	})

	s = envVarPatterns.simple.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.simple.FindStringSubmatch(match)
		if len(parts) == 2 {
			return os.Getenv(parts[1])
		}
		return match
	})

	return s
}

func parseValue(value string) interface{} {

	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}

	if intVal, err := strconv.Atoi(value); err == nil {
		return intVal
	}

	if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
		return floatVal
	}

	return value
}

// ExpandEnvVarsInData walks a decoded YAML tree and expands ${VAR},
// ${VAR:-default}, and $VAR references in string values.
func ExpandEnvVarsInData(data interface{}) interface{} {
	switch v := data.(type) {
	case string:
		expanded := expandEnvVars(v)

		if expanded != v {
			return parseValue(expanded)
		}
		return expanded

	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, value := range v {
			result[key] = ExpandEnvVarsInData(value)
		}
		return result

	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = ExpandEnvVarsInData(item)
		}
		return result

	default:
		return v
	}
}

// LoadEnvFiles loads .env.local and .env if present. Missing files are fine.
func LoadEnvFiles() error {
	envFiles := []string{".env.local", ".env"}

	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	return nil
}

// ApplyEnvOverrides applies MYDOCS_* environment variables on top of the
// loaded config. Variable names carry their unit where one applies
// (e.g. MYDOCS_TOOL_TIMEOUT_SECONDS).
func (c *Config) ApplyEnvOverrides() error {
	if v := os.Getenv("MYDOCS_DOCUMENT_ROOT"); v != "" {
		c.Server.DocumentRoots = splitList(v)
	}
	if v := os.Getenv("MYDOCS_DOCUMENT_EXTENSIONS"); v != "" {
		c.Server.DocumentExtensions = splitList(v)
	}
	if v := os.Getenv("MYDOCS_DATABASE_PATH"); v != "" {
		c.Store.DatabasePath = v
	}
	if v := os.Getenv("MYDOCS_LOG_LEVEL"); v != "" {
		c.Logger.Level = strings.ToLower(v)
	}
	if v := os.Getenv("MYDOCS_LOG_FORMAT"); v != "" {
		c.Logger.Format = v
	}
	if v := os.Getenv("MYDOCS_LOG_FILE"); v != "" {
		c.Logger.File = v
	}

	var err error
	if v := os.Getenv("MYDOCS_MAX_DOCUMENT_BYTES"); v != "" {
		if c.Server.MaxDocumentBytes, err = strconv.ParseInt(v, 10, 64); err != nil {
			return fmt.Errorf("MYDOCS_MAX_DOCUMENT_BYTES: %w", err)
		}
	}
	if v := os.Getenv("MYDOCS_MAX_SEARCH_RESULTS"); v != "" {
		if c.Store.MaxSearchResults, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("MYDOCS_MAX_SEARCH_RESULTS: %w", err)
		}
	}
	if v := os.Getenv("MYDOCS_QUERY_CACHE_TTL_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MYDOCS_QUERY_CACHE_TTL_SECONDS: %w", err)
		}
		c.Store.QueryCacheTTL = time.Duration(secs) * time.Second
	}
	if v := os.Getenv("MYDOCS_TOOL_TIMEOUT_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MYDOCS_TOOL_TIMEOUT_SECONDS: %w", err)
		}
		c.Tools.Timeout = time.Duration(secs) * time.Second
	}
	if v := os.Getenv("MYDOCS_WATCH_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MYDOCS_WATCH_ENABLED: %w", err)
		}
		c.Watcher.Enabled = &enabled
	}
	if v := os.Getenv("MYDOCS_WATCH_DEBOUNCE_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MYDOCS_WATCH_DEBOUNCE_MS: %w", err)
		}
		c.Watcher.Debounce = time.Duration(ms) * time.Millisecond
	}
	if v := os.Getenv("MYDOCS_WATCH_BATCH_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MYDOCS_WATCH_BATCH_MS: %w", err)
		}
		c.Watcher.BatchInterval = time.Duration(ms) * time.Millisecond
	}
	if v := os.Getenv("MYDOCS_METRICS_ADDR"); v != "" {
		c.Metrics.Enabled = true
		c.Metrics.Addr = v
	}

	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
