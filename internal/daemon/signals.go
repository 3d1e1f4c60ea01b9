package daemon

import "syscall"

// hangupSignal and killSignal are the two signals Session.kill
// escalates through (spec §4.6/§5: SIGHUP then SIGKILL after a grace
// window).
const (
	hangupSignal = syscall.SIGHUP
	killSignal   = syscall.SIGKILL
)
