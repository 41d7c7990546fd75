// Package config provides configuration loading, merging, and path management for this service.
//
// This package handles the complex configuration system that supports multiple sources
// and formats, with a hierarchical loading strategy that ensures proper precedence
// and compatibility with both TypeScript and Go implementations.
//
// # Configuration Loading
//
// The Load function implements a sophisticated configuration loading strategy that
// searches for and merges configuration from multiple sources in priority order:
//
//  1. Global config (~/.sessiond/ - TypeScript compatible)
//  2. Global config (~/.config/sessiond/ - XDG compatible)
//  3. Project config in the directory passed to Load
//     (.sessiond/sessiond.json and .sessiond/sessiond.jsonc)
//  4. SESSIOND_CONFIG file
//  5. SESSIOND_CONFIG_CONTENT inline JSON
//  6. Environment variables
//
// Configuration files are loaded in a specific order to ensure that more specific
// configurations override more general ones, while environment variables have the
// highest precedence.
//
// # Supported Formats
//
// The package supports both JSON and JSONC (JSON with Comments) formats:
//   - sessiond.json - Standard JSON configuration
//   - sessiond.jsonc - JSON with comments, processed using tidwall/jsonc
//
// # Variable Interpolation
//
// Configuration files support two types of variable interpolation:
//   - {env:VAR_NAME} - Expands to environment variable values
//   - {file:path} - Expands to file contents (properly escaped for JSON)
//
// File paths in {file:path} placeholders support:
//   - Absolute paths
//   - Relative paths (resolved relative to config file directory)
//   - Home directory expansion (~/)
//
// Example configuration with interpolation:
//
//	{
//	  "provider": {
//	    "anthropic": {
//	      "options": {
//	        "apiKey": "{env:ANTHROPIC_API_KEY}"
//	      }
//	    }
//	  },
//	  "instructions": [
//	    "{file:~/custom-instructions.txt}"
//	  ]
//	}
//
// # Configuration Merging
//
// When multiple configuration sources are found, each is merged into the result
// in load order:
//   - Non-empty model, small_model, username and $schema values overwrite
//   - The provider, agent, mcp and command maps are combined by key; a later
//     source's entry replaces the earlier entry for that key as a whole
//   - instructions, permission, lsp, watcher and experimental are replaced as a
//     whole by a later source that sets them
//   - theme, share, tools, promptVariables and formatter are not merged
//
// # Path Management
//
// The package provides XDG Base Directory Specification compliant path management
// through the Paths type:
//   - Data: ~/.local/share/sessiond (XDG_DATA_HOME)
//   - Config: ~/.config/sessiond (XDG_CONFIG_HOME)
//   - Cache: ~/.cache/sessiond (XDG_CACHE_HOME)
//   - State: ~/.local/state/sessiond (XDG_STATE_HOME)
//
// On Windows, these paths are adapted to use APPDATA as appropriate.
//
// # Environment Variable Overrides
//
// Several environment variables provide direct configuration overrides:
//   - SESSIOND_MODEL - Override the default model
//   - SESSIOND_SMALL_MODEL - Override the small model
//   - SESSIOND_PERMISSION - JSON string for permission configuration
//   - SESSIOND_CONFIG - Path to a specific config file
//   - SESSIOND_CONFIG_CONTENT - Inline JSON configuration
//
// No SESSIOND_* variable relocates the config directory; it follows
// XDG_CONFIG_HOME as described under Path Management.
//
// # TypeScript Compatibility
//
// The configuration system maintains compatibility with the earlier TypeScript
// implementation by supporting the ~/.sessiond directory structure and
// TypeScript-style provider configuration with Options objects.
//
// # Usage Example
//
//	// Load configuration from the current directory
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Get standard paths
//	paths := config.GetPaths()
//	err = paths.EnsurePaths() // Create directories if they don't exist
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Save configuration
//	err = config.Save(cfg, config.GlobalConfigPath())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Project Structure Discovery
//
// The configuration loader looks for project configuration only in the .sessiond
// directory of the directory it is given. It does not walk up the directory tree
// and does not look for a Git repository root.
package config