//go:build !unix

package command

import (
	"net"

	"github.com/layerkv/layerkv/internal/server/config"
)

func spawnRelay(net.Listener, config.RelaySection, string) error {
	return errSpawnUnsupported
}
