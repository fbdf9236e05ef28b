package scp

import "strings"

// SourceAE identifies an authorized remote application entity: its AE
// title and the host it calls from.
type SourceAE struct {
	AETitle string
	Host    string
}

// ConfigAEManager is an AEManager backed by static gateway
// configuration. AE titles compare case-sensitively per the DICOM
// standard; hosts compare case-insensitively.
type ConfigAEManager struct {
	localAETitles map[string]struct{}
	sources       []SourceAE
	cfg           AEConfig
}

// NewConfigAEManager builds an AE manager from the configured local AE
// titles and allowed sources.
func NewConfigAEManager(localAETitles []string, sources []SourceAE, cfg AEConfig) *ConfigAEManager {
	local := make(map[string]struct{}, len(localAETitles))
	for _, ae := range localAETitles {
		ae = strings.TrimSpace(ae)
		if ae != "" {
			local[ae] = struct{}{}
		}
	}
	return &ConfigAEManager{localAETitles: local, sources: sources, cfg: cfg}
}

func (m *ConfigAEManager) IsAeTitleConfigured(calledAE string) bool {
	_, ok := m.localAETitles[calledAE]
	return ok
}

func (m *ConfigAEManager) IsValidSource(callingAE, host string) bool {
	for _, src := range m.sources {
		if src.AETitle == callingAE && strings.EqualFold(src.Host, host) {
			return true
		}
	}
	return false
}

func (m *ConfigAEManager) Config() AEConfig {
	return m.cfg
}
