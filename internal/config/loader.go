package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// rawDoc mirrors the on-disk JSON schema from spec.md §6:
//
//	{ "mcpServers": { "<name>": { "type": ..., "command": ..., ... } } }
type rawDoc struct {
	MCPServers map[string]rawUpstream `json:"mcpServers"`
}

type rawUpstream struct {
	Type     string            `json:"type"`
	Disabled bool              `json:"disabled"`
	Tags     []string          `json:"tags"`
	Command  string            `json:"command"`
	Args     []string          `json:"args"`
	Env      map[string]string `json:"env"`
	Cwd      string            `json:"cwd"`
	URL      string            `json:"url"`
	Headers  map[string]string `json:"headers"`
	Timeout  int               `json:"timeout"`

	RestartOnExit bool `json:"restartOnExit"`
	MaxRestarts   int  `json:"maxRestarts"`
	RestartDelay  int  `json:"restartDelay"`

	OAuth *OAuthHint `json:"oauth"`
}

// Load reads and validates the JSON config file at path, producing a
// Snapshot. Unknown top-level or per-server fields are rejected so typos in
// hand-edited config surface immediately as a ConfigError rather than being
// silently ignored.
func Load(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, newError(path, "failed to read config file", err)
	}
	return Parse(path, data)
}

// Parse validates raw JSON bytes into a Snapshot. path is used only for
// error messages.
func Parse(path string, data []byte) (Snapshot, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var doc rawDoc
	if err := dec.Decode(&doc); err != nil {
		return Snapshot{}, newError(path, "invalid JSON", err)
	}

	upstreams := make(map[string]UpstreamDef, len(doc.MCPServers))
	for name, raw := range doc.MCPServers {
		if name == "" {
			return Snapshot{}, newError(path, "upstream name must not be empty", nil)
		}
		if strings.Contains(name, "_1mcp_") {
			return Snapshot{}, newError(path, fmt.Sprintf("upstream name %q must not contain the reserved separator \"_1mcp_\"", name), nil)
		}
		def, err := toUpstreamDef(name, raw)
		if err != nil {
			return Snapshot{}, newError(path, fmt.Sprintf("invalid upstream %q", name), err)
		}
		upstreams[name] = def
	}

	return Snapshot{Upstreams: upstreams}, nil
}

func toUpstreamDef(name string, raw rawUpstream) (UpstreamDef, error) {
	kind := UpstreamKind(raw.Type)
	if kind == "" {
		switch {
		case raw.URL != "":
			kind = KindHTTP
		case raw.Command != "":
			kind = KindStdio
		default:
			return UpstreamDef{}, fmt.Errorf("cannot infer transport type: specify %q, or one of command/url", "type")
		}
	}

	switch kind {
	case KindStdio:
		if raw.Command == "" {
			return UpstreamDef{}, fmt.Errorf("stdio upstream requires \"command\"")
		}
	case KindHTTP, KindSSE:
		if raw.URL == "" {
			return UpstreamDef{}, fmt.Errorf("%s upstream requires \"url\"", kind)
		}
	default:
		return UpstreamDef{}, fmt.Errorf("unknown transport type %q", raw.Type)
	}

	return UpstreamDef{
		Name:           name,
		Kind:           kind,
		Disabled:       raw.Disabled,
		Tags:           raw.Tags,
		Command:        raw.Command,
		Args:           raw.Args,
		Env:            raw.Env,
		Cwd:            raw.Cwd,
		URL:            raw.URL,
		Headers:        raw.Headers,
		TimeoutSeconds: raw.Timeout,
		RestartOnExit:  raw.RestartOnExit,
		MaxRestarts:    raw.MaxRestarts,
		RestartDelayMs: raw.RestartDelay,
		OAuth:          raw.OAuth,
	}, nil
}
