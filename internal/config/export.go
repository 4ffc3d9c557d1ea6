package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
)

// ExportFilename is the name of the well-known file, under the storage
// root, that hook scripts source configuration from. Callers that cannot read the file fall back to DefaultConfig()'s
// values, which are kept identical to what ExportShell writes for an
// unmodified default Config.
const ExportFilename = "calm.env"

// shellVars lists every documented field as (KEY, accessor), in a fixed
// order so repeated exports of an unchanged Config are byte-identical.
func (c *Config) shellVars() []struct {
	Key   string
	Value string
} {
	return []struct {
		Key   string
		Value string
	}{
		{"CALM_HTTP_HOST", c.Network.HTTPHost},
		{"CALM_HTTP_PORT", fmt.Sprintf("%d", c.Network.HTTPPort)},
		{"CALM_VECTOR_STORE_URL", c.Network.VectorStoreURL},
		{"CALM_STORAGE_ROOT", c.Paths.StorageRoot},
		{"CALM_PID_FILE", c.Paths.PIDFile},
		{"CALM_LOG_FILE", c.Paths.LogFile},
		{"CALM_JOURNAL_DIR", c.Paths.JournalDir},
		{"CALM_TIMEOUT_VERIFICATION", c.Timeouts.Verification},
		{"CALM_TIMEOUT_HTTP_CALL", c.Timeouts.HTTPCall},
		{"CALM_TIMEOUT_VECTOR_STORE", c.Timeouts.VectorStore},
		{"CALM_FAST_EMBEDDING_PROVIDER", c.Embedding.FastProvider},
		{"CALM_OLLAMA_ENDPOINT", c.Embedding.OllamaEndpoint},
		{"CALM_OLLAMA_MODEL", c.Embedding.OllamaModel},
		{"CALM_QUALITY_EMBEDDING_PROVIDER", c.Embedding.QualityProvider},
		{"CALM_GENAI_MODEL", c.Embedding.GenAIModel},
		{"CALM_GENAI_TASK_TYPE", c.Embedding.TaskType},
		{"CALM_MIN_CLUSTER_SIZE", fmt.Sprintf("%d", c.Clustering.MinClusterSize)},
		{"CALM_MIN_SAMPLES", fmt.Sprintf("%d", c.Clustering.MinSamples)},
		{"CALM_TAU_ACCEPT", fmt.Sprintf("%g", c.Clustering.TauAccept)},
		{"CALM_CHECK_IN_FREQUENCY", fmt.Sprintf("%d", c.GHAP.CheckInFrequency)},
	}
}

// ExportShell writes the configuration as a shell-sourceable file of
// `KEY=value` lines at path. Hook scripts run `source <path>` and fall
// back to DefaultConfig()'s values if the file is absent.
func (c *Config) ExportShell(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "# generated by calm; do not edit by hand")
	for _, v := range c.shellVars() {
		fmt.Fprintf(w, "%s=%q\n", v.Key, v.Value)
	}
	return w.Flush()
}

// SourceShell reads an exported shell file back into a Config, reversing
// ExportShell. Fields not present in the file keep their DefaultConfig()
// values, matching a hook script's own fallback behavior.
func SourceShell(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open export file: %w", err)
	}
	defer f.Close()

	vars := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || line[0] == '#' {
			continue
		}
		key, value, ok := splitShellAssignment(line)
		if !ok {
			continue
		}
		vars[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	cfg.applyShellVars(vars)
	return cfg, nil
}

func splitShellAssignment(line string) (key, value string, ok bool) {
	idx := -1
	for i, r := range line {
		if r == '=' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", "", false
	}
	key = line[:idx]
	value = unquote(line[idx+1:])
	return key, value, true
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func (c *Config) applyShellVars(vars map[string]string) {
	set := func(key string, dst *string) {
		if v, ok := vars[key]; ok {
			*dst = v
		}
	}
	set("CALM_HTTP_HOST", &c.Network.HTTPHost)
	set("CALM_VECTOR_STORE_URL", &c.Network.VectorStoreURL)
	set("CALM_STORAGE_ROOT", &c.Paths.StorageRoot)
	set("CALM_PID_FILE", &c.Paths.PIDFile)
	set("CALM_LOG_FILE", &c.Paths.LogFile)
	set("CALM_JOURNAL_DIR", &c.Paths.JournalDir)
	set("CALM_TIMEOUT_VERIFICATION", &c.Timeouts.Verification)
	set("CALM_TIMEOUT_HTTP_CALL", &c.Timeouts.HTTPCall)
	set("CALM_TIMEOUT_VECTOR_STORE", &c.Timeouts.VectorStore)
	set("CALM_FAST_EMBEDDING_PROVIDER", &c.Embedding.FastProvider)
	set("CALM_OLLAMA_ENDPOINT", &c.Embedding.OllamaEndpoint)
	set("CALM_OLLAMA_MODEL", &c.Embedding.OllamaModel)
	set("CALM_QUALITY_EMBEDDING_PROVIDER", &c.Embedding.QualityProvider)
	set("CALM_GENAI_MODEL", &c.Embedding.GenAIModel)
	set("CALM_GENAI_TASK_TYPE", &c.Embedding.TaskType)

	if v, ok := vars["CALM_HTTP_PORT"]; ok {
		fmt.Sscanf(v, "%d", &c.Network.HTTPPort)
	}
	if v, ok := vars["CALM_MIN_CLUSTER_SIZE"]; ok {
		fmt.Sscanf(v, "%d", &c.Clustering.MinClusterSize)
	}
	if v, ok := vars["CALM_MIN_SAMPLES"]; ok {
		fmt.Sscanf(v, "%d", &c.Clustering.MinSamples)
	}
	if v, ok := vars["CALM_TAU_ACCEPT"]; ok {
		fmt.Sscanf(v, "%g", &c.Clustering.TauAccept)
	}
	if v, ok := vars["CALM_CHECK_IN_FREQUENCY"]; ok {
		fmt.Sscanf(v, "%d", &c.GHAP.CheckInFrequency)
	}
}
