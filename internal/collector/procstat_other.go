//go:build !linux

package collector

// childrenTimes is only available through procfs; other platforms report
// zero, matching collectors that expose a field the OS cannot fill.
func childrenTimes(pid int32) (user, system float64) {
	return 0, 0
}
