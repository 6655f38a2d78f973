package util

import (
	"crypto/md5"
	"fmt"
	"io"
	"os"
)

// ContentHash returns the hex MD5 of a file's content.
// This is the value stored in the file table's md5 column and carried in
// AddFiles payloads, so peers can compare files without seeing paths.
func ContentHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}

	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// FileStat extracts basic filesystem metadata
func FileStat(path string) (size int64, mtime int64, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to stat file: %w", err)
	}

	return info.Size(), info.ModTime().Unix(), nil
}
