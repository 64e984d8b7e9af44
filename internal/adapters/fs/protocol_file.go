package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bft-labs/swarmcoord/internal/domain"
)

// protocolConfig is the layout of protocol_manager.json. Keys other than
// custom_protocols are ignored.
type protocolConfig struct {
	CustomProtocols map[string]domain.EmergencyProtocol `json:"custom_protocols" yaml:"custom_protocols"`
}

// ProtocolFileSource implements ports.ProtocolSource. Files ending in
// .yaml or .yml are parsed as YAML, anything else as JSON.
type ProtocolFileSource struct {
	path string
}

// NewProtocolFileSource creates a source reading custom protocols from path.
func NewProtocolFileSource(path string) *ProtocolFileSource {
	return &ProtocolFileSource{path: path}
}

// LoadProtocols returns the custom protocols keyed by name. A missing file
// yields an empty map. Protocols without a name take their key.
func (s *ProtocolFileSource) LoadProtocols(ctx context.Context) (map[string]domain.EmergencyProtocol, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]domain.EmergencyProtocol{}, nil
		}
		return nil, fmt.Errorf("read protocol config %s: %w", s.path, err)
	}

	var cfg protocolConfig
	switch strings.ToLower(filepath.Ext(s.path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse protocol config %s: %w", s.path, err)
	}

	out := make(map[string]domain.EmergencyProtocol, len(cfg.CustomProtocols))
	for key, p := range cfg.CustomProtocols {
		if p.Name == "" {
			p.Name = key
		}
		out[p.Name] = p
	}
	return out, nil
}

// Path returns the configured file path.
func (s *ProtocolFileSource) Path() string {
	return s.path
}
