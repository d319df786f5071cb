package portal

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/talentops/bgvsync/internal/config"
)

// DefaultTabs returns the portal's report tabs in display order.
func DefaultTabs() []string {
	return []string{
		"Today's allocated",
		"Not started",
		"Draft",
		"Rejected / Insufficient",
		"Submitted",
		"Work in progress",
		"BGV closed",
	}
}

// Tabs resolves the tab list for a run: the YAML override when configured,
// else the stock list.
func Tabs(cfg config.FetchConfig) ([]string, error) {
	if cfg.TabsFile == "" {
		return DefaultTabs(), nil
	}
	return LoadTabs(cfg.TabsFile)
}

// LoadTabs reads a tab list override: a YAML file holding a bare list of
// display names.
func LoadTabs(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "portal: read tabs file %s", path)
	}
	var tabs []string
	if err := yaml.Unmarshal(data, &tabs); err != nil {
		return nil, eris.Wrapf(err, "portal: parse tabs file %s", path)
	}
	if len(tabs) == 0 {
		return nil, eris.Errorf("portal: tabs file %s lists no tabs", path)
	}
	return tabs, nil
}
