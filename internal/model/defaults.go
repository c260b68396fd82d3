package model

import "time"

// Shared defaults used by the binary and the packages it wires together.
const (
	DefaultAuthLog       = "/var/log/auth.log"
	DefaultNotifyURL     = "https://ntfy.sh/topic"
	DefaultNotifyTimeout = 5 * time.Second
	DefaultPollInterval  = time.Second
	DefaultLockFile      = "/tmp/monitor-ssh.lock"
	DefaultLogOutput     = "/tmp/monitor-ssh.log"
)
