package util

import (
	"fmt"

	"github.com/spf13/viper"
)

// PeerName returns the stable peer identifier used on the replication channel.
// It is required whenever replication is enabled.
func PeerName() (string, error) {
	name := viper.GetString("peer.name")
	if name == "" {
		return "", fmt.Errorf("%w: peer.name is not set (use --peer or MSYNC_PEER_NAME)", ErrInvalidConfig)
	}
	return name, nil
}

// FriendlyName returns the display name announced to other peers
// Falls back to the peer name
func FriendlyName() string {
	if fname := viper.GetString("peer.friendly_name"); fname != "" {
		return fname
	}
	return viper.GetString("peer.name")
}
