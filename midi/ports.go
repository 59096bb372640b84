package midi

import (
	"errors"
	"fmt"
	"strings"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

var (
	ErrScanTimeout  = errors.New("midi port scan timed out")
	ErrPortNotFound = errors.New("midi port not found")
)

// ScanTimeout bounds a port scan. CoreMIDI can hang indefinitely.
const ScanTimeout = 3 * time.Second

// Ports lists input and output ports, giving up after timeout
func Ports(timeout time.Duration) ([]drivers.In, []drivers.Out, error) {
	type result struct {
		ins  []drivers.In
		outs []drivers.Out
	}
	ch := make(chan result, 1)
	go func() {
		ch <- result{ins: gomidi.GetInPorts(), outs: gomidi.GetOutPorts()}
	}()

	select {
	case r := <-ch:
		return r.ins, r.outs, nil
	case <-time.After(timeout):
		return nil, nil, ErrScanTimeout
	}
}

// FindOut returns the first output port whose name contains name,
// ignoring case. An empty name picks the first port.
func FindOut(name string) (drivers.Out, error) {
	_, outs, err := Ports(ScanTimeout)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(outs))
	for i, p := range outs {
		names[i] = p.String()
	}
	i := matchPort(names, name)
	if i < 0 {
		return nil, fmt.Errorf("output %q: %w", name, ErrPortNotFound)
	}
	return outs[i], nil
}

// FindIn is FindOut for input ports
func FindIn(name string) (drivers.In, error) {
	ins, _, err := Ports(ScanTimeout)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(ins))
	for i, p := range ins {
		names[i] = p.String()
	}
	i := matchPort(names, name)
	if i < 0 {
		return nil, fmt.Errorf("input %q: %w", name, ErrPortNotFound)
	}
	return ins[i], nil
}

func matchPort(names []string, want string) int {
	if len(names) == 0 {
		return -1
	}
	if want == "" {
		return 0
	}
	want = strings.ToLower(want)
	for i, n := range names {
		if strings.ToLower(n) == want {
			return i
		}
	}
	for i, n := range names {
		if strings.Contains(strings.ToLower(n), want) {
			return i
		}
	}
	return -1
}
