package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"

	"github.com/tidwall/jsonc"

	"github.com/opencode-ai/opencode/pkg/types"
)

// Load loads configuration from multiple sources (priority order, later
// sources override earlier ones):
//  1. Global config (~/.sessiond/, then ~/.config/sessiond/)
//  2. Project config (directory/.sessiond/)
//  3. SESSIOND_CONFIG file
//  4. SESSIOND_CONFIG_CONTENT inline JSON
//  5. Environment variable overrides (SESSIOND_MODEL, provider API keys, ...)
func Load(directory string) (*types.Config, error) {
	config := &types.Config{
		Provider: make(map[string]types.ProviderConfig),
		Agent:    make(map[string]types.AgentConfig),
	}

	// 1. Global config
	if home, err := os.UserHomeDir(); err == nil {
		loadConfigFile(filepath.Join(home, ".sessiond", "sessiond.json"), config)
		loadConfigFile(filepath.Join(home, ".sessiond", "sessiond.jsonc"), config)
	}
	globalPath := GetPaths().Config
	loadConfigFile(filepath.Join(globalPath, "sessiond.json"), config)
	loadConfigFile(filepath.Join(globalPath, "sessiond.jsonc"), config)

	// 2. Project config
	if directory != "" {
		loadConfigFile(filepath.Join(directory, ".sessiond", "sessiond.json"), config)
		loadConfigFile(filepath.Join(directory, ".sessiond", "sessiond.jsonc"), config)
	}

	// 3. Explicit config file override
	if customPath := os.Getenv("SESSIOND_CONFIG"); customPath != "" {
		loadConfigFile(customPath, config)
	}

	// 4. Inline JSON override
	if content := os.Getenv("SESSIOND_CONFIG_CONTENT"); content != "" {
		loadConfigContent([]byte(content), directory, config)
	}

	// 5. Environment variables
	applyEnvOverrides(config)

	return config, nil
}

// loadConfigFile loads a single config file, interpolating {env:...}/
// {file:...} placeholders with the file's own directory as the base for
// relative {file:...} paths.
func loadConfigFile(path string, config *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err // File doesn't exist, skip
	}

	data = stripJSONComments(data)
	data = interpolate(data, filepath.Dir(path))

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// loadConfigContent merges inline JSON (SESSIOND_CONFIG_CONTENT) into
// config, interpolating relative {file:...} references against baseDir
// (the directory Load was asked to resolve project config from).
func loadConfigContent(data []byte, baseDir string, config *types.Config) error {
	data = interpolate(data, baseDir)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// interpolatePattern matches {env:NAME} and {file:path} placeholders.
var interpolatePattern = regexp.MustCompile(`\{(env|file):([^}]+)\}`)

// interpolate expands {env:NAME} to the named environment variable's value
// (empty string if unset) and {file:path} to the named file's contents,
// escaped for use inside a JSON string (relative paths resolved against
// baseDir, ~/ expanded to the user's home directory). A {file:path} placeholder whose file can't be read is left
// untouched rather than expanded to an error message, since the raw JSON
// this runs against must still round-trip through json.Unmarshal.
func interpolate(data []byte, baseDir string) []byte {
	return interpolatePattern.ReplaceAllFunc(data, func(match []byte) []byte {
		sub := interpolatePattern.FindSubmatch(match)
		kind, value := string(sub[1]), string(sub[2])
		switch kind {
		case "env":
			return []byte(os.Getenv(value))
		case "file":
			path := value
			if home, err := os.UserHomeDir(); err == nil {
				if path == "~" {
					path = home
				} else if len(path) > 1 && path[:2] == "~/" {
					path = filepath.Join(home, path[2:])
				}
			}
			if !filepath.IsAbs(path) {
				path = filepath.Join(baseDir, path)
			}
			content, err := os.ReadFile(path)
			if err != nil {
				return match
			}
			escaped, _ := json.Marshal(string(content))
			return escaped[1 : len(escaped)-1]
		default:
			return match
		}
	})
}

// stripJSONComments removes // and /* */ comments (and trailing commas)
// from JSONC using tidwall/jsonc, leaving string literals untouched.
func stripJSONComments(data []byte) []byte {
	return jsonc.ToJSON(data)
}

// mergeConfig merges source config into target.
func mergeConfig(target, source *types.Config) {
	if source.Model != "" {
		target.Model = source.Model
	}
	if source.SmallModel != "" {
		target.SmallModel = source.SmallModel
	}
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.Username != "" {
		target.Username = source.Username
	}
	if source.Instructions != nil {
		target.Instructions = source.Instructions
	}

	// Merge providers
	if source.Provider != nil {
		if target.Provider == nil {
			target.Provider = make(map[string]types.ProviderConfig)
		}
		for k, v := range source.Provider {
			target.Provider[k] = v
		}
	}

	// Merge agents
	if source.Agent != nil {
		if target.Agent == nil {
			target.Agent = make(map[string]types.AgentConfig)
		}
		for k, v := range source.Agent {
			target.Agent[k] = v
		}
	}

	// Merge MCP servers and commands
	for k, v := range source.MCP {
		if target.MCP == nil {
			target.MCP = make(map[string]types.MCPConfig)
		}
		target.MCP[k] = v
	}
	for k, v := range source.Command {
		if target.Command == nil {
			target.Command = make(map[string]types.CommandConfig)
		}
		target.Command[k] = v
	}

	// Merge LSP config
	if source.LSP != nil {
		target.LSP = source.LSP
	}

	// Merge watcher config
	if source.Watcher != nil {
		target.Watcher = source.Watcher
	}

	// Merge experimental config
	if source.Experimental != nil {
		target.Experimental = source.Experimental
	}

	// Merge permission config
	if source.Permission != nil {
		target.Permission = source.Permission
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *types.Config) {
	// Provider API keys
	providerEnvMap := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
		"google":    "GOOGLE_API_KEY",
		"bedrock":   "AWS_ACCESS_KEY_ID",
	}

	for provider, envVar := range providerEnvMap {
		if apiKey := os.Getenv(envVar); apiKey != "" {
			if config.Provider == nil {
				config.Provider = make(map[string]types.ProviderConfig)
			}
			p := config.Provider[provider]
			if p.APIKey == "" {
				p.APIKey = apiKey
				config.Provider[provider] = p
			}
		}
	}

	// Model override
	if model := os.Getenv("SESSIOND_MODEL"); model != "" {
		config.Model = model
	}

	// Small model override
	if smallModel := os.Getenv("SESSIOND_SMALL_MODEL"); smallModel != "" {
		config.SmallModel = smallModel
	}

	// Permission override, as an inline JSON object matching PermissionConfig.
	if permJSON := os.Getenv("SESSIOND_PERMISSION"); permJSON != "" {
		var perm types.PermissionConfig
		if err := json.Unmarshal([]byte(permJSON), &perm); err == nil {
			config.Permission = &perm
		}
	}
}

// Save saves the configuration to a file.
func Save(config *types.Config, path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
