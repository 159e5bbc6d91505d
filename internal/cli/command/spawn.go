package command

import "errors"

// errSpawnUnsupported is returned by spawnRelay where a detached relay
// process cannot be started.
var errSpawnUnsupported = errors.New("detached relay not supported on this platform")
