package authflow

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// profileRecord is the derived configuration written next to the tool's
// auth files after every dialogue, so the download stage and the tool
// agree on profile naming.
type profileRecord struct {
	Profile  string `toml:"profile"`
	Country  string `toml:"country"`
	AuthFile string `toml:"auth_file"`
}

func (m *Machine) persistProfile(name string) error {
	if name == "" {
		return nil
	}
	record := profileRecord{
		Profile:  name,
		Country:  m.cfg.Auth.Country,
		AuthFile: name + ".json",
	}
	encoded, err := toml.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	path := filepath.Join(m.cfg.Paths.AuthDir, name+".profile.toml")
	if err := os.WriteFile(path, encoded, 0o600); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}
