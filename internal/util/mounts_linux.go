//go:build linux

package util

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

func detectMount(path string) (*MountInfo, error) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return nil, fmt.Errorf("failed to read mounts: %w", err)
	}
	defer f.Close()

	mounts, err := parseMounts(f)
	if err != nil {
		return nil, err
	}
	return matchMount(path, mounts), nil
}

// parseMounts reads /proc/mounts lines: device mountpoint fstype options dump pass
func parseMounts(r io.Reader) (map[string]string, error) {
	mounts := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		// Spaces in mount points are octal-escaped
		mountPoint := strings.ReplaceAll(fields[1], `\040`, " ")
		mounts[mountPoint] = strings.ToLower(fields[2])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse mounts: %w", err)
	}
	return mounts, nil
}

// matchMount picks the deepest mount point containing path
func matchMount(path string, mounts map[string]string) *MountInfo {
	info := &MountInfo{}
	for mountPoint, fsType := range mounts {
		if !under(path, mountPoint) || len(mountPoint) <= len(info.MountPoint) {
			continue
		}
		info.MountPoint = mountPoint
		info.FSType = fsType
	}
	info.Network = isNetworkFSType(info.FSType)
	return info
}
