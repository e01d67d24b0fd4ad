package configstack

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	defs "mountkit/definitions"
	"mountkit/pkg/utils"
)

var (
	defaultDropinSearch = []string{defs.ConfDropin}
	defaultConfigFile   = filepath.Join(defs.ConfDir, defs.DefaultConf)
)

// DiscoverConfigFiles lists the INI files to load, in load order.
// priority env::file > env::dropin_dir > default::dropin_dir > default config file
func DiscoverConfigFiles() ([]string, error) {
	if override := os.Getenv(defs.ConfEnv); override != "" {
		if err := checkConfigFile(override); err != nil {
			return nil, err
		}
		return []string{override}, nil
	}

	if dirByEnv := os.Getenv(defs.ConfDirEnv); dirByEnv != "" {
		files, err := listConfigDir(dirByEnv)
		if err != nil {
			return nil, err
		}
		if len(files) > 0 {
			return files, nil
		}
	}

	var aggregated []string
	for _, dir := range defaultDropinSearch {
		files, err := listConfigDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		aggregated = append(aggregated, files...)
	}
	if len(aggregated) > 0 {
		return aggregated, nil
	}

	if !utils.FileExist(defaultConfigFile) {
		return nil, nil
	}
	if err := checkConfigFile(defaultConfigFile); err != nil {
		return nil, err
	}
	return []string{defaultConfigFile}, nil
}

func checkConfigFile(path string) error {
	if !utils.IsRegular(path) {
		return fmt.Errorf("mountkit config %s is not a regular file or failed to stat it", path)
	}
	if !isConfigFile(path) {
		return fmt.Errorf("unsupported mountkit config extension: %s, should be .ini or .conf", path)
	}
	return nil
}

func listConfigDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		full := filepath.Join(dir, entry.Name())
		if !isConfigFile(full) {
			continue
		}
		files = append(files, full)
	}
	sort.Strings(files)
	return files, nil
}

func isConfigFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ini", ".conf":
		return true
	default:
		return false
	}
}
