package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

var ErrNoDevices = errors.New("no capture devices found")

// FindDevice looks a capture device up by its display name. An empty name
// selects the system default and returns nil without error.
func FindDevice(ctx Context, name string) (*DeviceInfo, error) {
	if name == "" {
		return nil, nil
	}
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	for i := range devices {
		if devices[i].Name == name {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("capture device %q not found", name)
}

// PrintDevices writes one line per capture device, flagging Bluetooth
// headsets whose microphone profile degrades quality.
func PrintDevices(w io.Writer, ctx Context) error {
	devices, err := ctx.Devices()
	if err != nil {
		return fmt.Errorf("enumerating devices: %w", err)
	}
	if len(devices) == 0 {
		return ErrNoDevices
	}
	for _, d := range devices {
		tag := ""
		if IsBluetooth(d.Name) {
			tag = "  (bluetooth)"
		}
		fmt.Fprintf(w, "%s%s\n", d.Name, tag)
	}
	return nil
}

type picker struct {
	devices []DeviceInfo
	cursor  int
}

func (p *picker) render(first bool) {
	if !first {
		fmt.Printf("\x1b[%dA", len(p.devices)+2)
	}
	fmt.Print("\r\x1b[J")
	fmt.Print("Select input device (↑/↓, Enter to confirm):\r\n\r\n")
	for i, d := range p.devices {
		btTag := ""
		if IsBluetooth(d.Name) {
			btTag = " \x1b[33m[⚠ Lower audio quality]\x1b[0m"
		}
		if i == p.cursor {
			fmt.Printf("  \x1b[1;36m▶ %s%s\x1b[0m\r\n", d.Name, btTag)
		} else {
			fmt.Printf("    %s%s\r\n", d.Name, btTag)
		}
	}
}

// key applies one keypress and reports whether the choice is confirmed or
// the picker was cancelled.
func (p *picker) key(buf []byte) (done, cancelled bool) {
	switch {
	case len(buf) == 1 && buf[0] == 13:
		return true, false
	case len(buf) == 1 && (buf[0] == 3 || buf[0] == 'q'):
		return false, true
	case len(buf) == 1 && buf[0] == 'j', len(buf) == 3 && buf[0] == 0x1b && buf[2] == 'B':
		if p.cursor < len(p.devices)-1 {
			p.cursor++
		}
	case len(buf) == 1 && buf[0] == 'k', len(buf) == 3 && buf[0] == 0x1b && buf[2] == 'A':
		if p.cursor > 0 {
			p.cursor--
		}
	}
	return false, false
}

// SelectDevice presents an interactive device picker and returns the selected device.
// If only one device is available, it returns that device without prompting.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, ErrNoDevices
	}
	if len(devices) == 1 {
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	p := &picker{devices: devices}
	p.render(true)

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		done, cancelled := p.key(buf[:n])
		if cancelled {
			fmt.Print("\r\n")
			return nil, nil
		}
		if done {
			fmt.Print("\r\n")
			return &devices[p.cursor], nil
		}
		p.render(false)
	}
}
