package util

import (
	"fmt"
	"path/filepath"
	"strings"
)

// MountInfo describes the filesystem a path lives on
type MountInfo struct {
	Network    bool   // SMB/CIFS, NFS, sshfs and similar remote mounts
	FSType     string // filesystem type name, lowercased
	MountPoint string
}

// networkFSTypes are substrings of filesystem type names served by a remote host
var networkFSTypes = []string{"nfs", "cifs", "smb", "ncpfs", "afpfs", "webdav", "fuse.sshfs", "fuse.rclone", "osxfuse"}

func isNetworkFSType(fsType string) bool {
	for _, t := range networkFSTypes {
		if strings.Contains(fsType, t) {
			return true
		}
	}
	return false
}

// DetectMount reports which filesystem path is on. File watching does not
// see changes other hosts make on network mounts.
func DetectMount(path string) (*MountInfo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	return detectMount(absPath)
}

// IsNetworkPath reports whether path is on a network mount. Errors count as local.
func IsNetworkPath(path string) bool {
	info, err := DetectMount(path)
	return err == nil && info.Network
}

// under reports whether path is mountPoint or below it
func under(path, mountPoint string) bool {
	if mountPoint == "/" || path == mountPoint {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(mountPoint, "/")+"/")
}
