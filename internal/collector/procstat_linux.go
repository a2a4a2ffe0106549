//go:build linux

package collector

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tklauser/go-sysconf"
)

var clockTicks = func() float64 {
	if tck, err := sysconf.Sysconf(sysconf.SC_CLK_TCK); err == nil && tck > 0 {
		return float64(tck)
	}
	return 100
}()

// childrenTimes reads the accumulated cpu time of a process's reaped
// children from /proc/<pid>/stat (cutime and cstime), in seconds. Returns
// zeros on any failure: these fields are best-effort.
func childrenTimes(pid int32) (user, system float64) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0, 0
	}
	// comm can contain spaces and parentheses; skip past the last ')'.
	i := bytes.LastIndexByte(data, ')')
	if i < 0 {
		return 0, 0
	}
	fields := strings.Fields(string(data[i+1:]))
	// fields[0] is the process state (stat field 3), so stat field n sits
	// at index n-3. cutime is field 16, cstime field 17.
	if len(fields) < 15 {
		return 0, 0
	}
	cutime, err := strconv.ParseFloat(fields[13], 64)
	if err != nil {
		return 0, 0
	}
	cstime, err := strconv.ParseFloat(fields[14], 64)
	if err != nil {
		return 0, 0
	}
	return cutime / clockTicks, cstime / clockTicks
}
