package config

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
)

// RenderEffective writes cfg to w as TOML, the same format the config file
// uses, so the output of `config show` can be pasted straight back into a
// config file.
func RenderEffective(cfg *Config, w io.Writer) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("config: rendering: %w", err)
	}

	return nil
}
