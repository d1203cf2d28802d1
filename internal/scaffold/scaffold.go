// Package scaffold installs a starter tsgdraft.yml and registers the
// tsgdraft MCP server in a project's .mcp.json.
package scaffold

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dusk-indust/tsgdraft/internal/config"
)

// TemplatesFS contains the embedded starter files.
//
//go:embed templates/*
var TemplatesFS embed.FS

// configTemplate is the embedded path of the starter config.
const configTemplate = "templates/tsgdraft.yml"

// mcpConfig represents the structure of a .mcp.json file.
type mcpConfig struct {
	MCPServers map[string]json.RawMessage `json:"mcpServers"`
}

// mcpEntry is the MCP server configuration for the tsgdraft binary.
var mcpEntry = json.RawMessage(`{
  "type": "stdio",
  "command": "tsgdraft",
  "args": ["serve-mcp"]
}`)

// Init writes tsgdraft.yml and merges the tsgdraft entry into .mcp.json
// under dir. Existing files are left alone unless force is set. One line per
// action is reported to w.
func Init(dir string, force bool, w io.Writer) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return err
	}

	if err := writeConfig(filepath.Join(abs, config.FileNames[0]), force, w); err != nil {
		return err
	}
	return mergeMCPConfig(filepath.Join(abs, ".mcp.json"), force, w)
}

func writeConfig(dest string, force bool, w io.Writer) error {
	if !force {
		if _, err := os.Stat(dest); err == nil {
			fmt.Fprintf(w, "  skipped %s (exists, use --force to overwrite)\n", filepath.Base(dest))
			return nil
		}
	}

	data, err := TemplatesFS.ReadFile(configTemplate)
	if err != nil {
		return fmt.Errorf("reading embedded %s: %w", configTemplate, err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	fmt.Fprintf(w, "  created %s\n", filepath.Base(dest))
	return nil
}

// mergeMCPConfig creates or merges the tsgdraft entry into .mcp.json.
// Other servers in the file are preserved.
func mergeMCPConfig(mcpPath string, force bool, w io.Writer) error {
	var cfg mcpConfig

	data, err := os.ReadFile(mcpPath)
	if err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parsing %s: %w", mcpPath, err)
		}
	}

	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]json.RawMessage)
	}

	if _, exists := cfg.MCPServers["tsgdraft"]; exists && !force {
		fmt.Fprintf(w, "  skipped .mcp.json tsgdraft entry (exists, use --force to overwrite)\n")
		return nil
	}

	cfg.MCPServers["tsgdraft"] = mcpEntry

	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling .mcp.json: %w", err)
	}

	if err := os.WriteFile(mcpPath, append(out, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", mcpPath, err)
	}

	action := "created"
	if data != nil {
		action = "updated"
	}
	fmt.Fprintf(w, "  %s .mcp.json with tsgdraft MCP server\n", action)
	return nil
}
