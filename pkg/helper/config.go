package helper

import (
	"os"
	"path/filepath"
)

// SystemConfigDir is searched last for configuration files
const SystemConfigDir = "/etc/liveadmin"

// GetCfgPath resolves a configuration file name. Absolute names are used as
// they are; relative ones are looked up in the working directory, then in
// its configs/ subdirectory, and finally under SystemConfigDir even if the
// file is missing there, so the caller reports a meaningful path.
func GetCfgPath(filename string) string {
	if filename == "" {
		panic("filename cannot be empty")
	}
	if filepath.IsAbs(filename) {
		return filename
	}
	if found := findInWorkDir(filename); found != "" {
		return found
	}
	return filepath.Join(SystemConfigDir, filename)
}

func findInWorkDir(filename string) string {
	wd, err := os.Getwd()
	if err != nil || wd == "" {
		return ""
	}
	for _, dir := range []string{wd, filepath.Join(wd, "configs")} {
		candidate := filepath.Join(dir, filename)
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		if abs, err := filepath.Abs(candidate); err == nil {
			return abs
		}
	}
	return ""
}
