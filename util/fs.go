package util

import (
	"os"
	"path/filepath"
	"strings"
)

func ExpandHomeDir(filename string) (string, error) {
	if !strings.HasPrefix(filename, "~/") {
		return filename, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", NewError(err, "cannot resolve home directory")
	}
	return filepath.Join(home, filename[2:]), nil
}

func GetFileSize(filename string) (uint64, error) {
	info, err := os.Stat(filename)
	if err != nil {
		return 0, err
	}
	return uint64(info.Size()), nil
}

func GetenvDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
