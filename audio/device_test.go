package audio

import (
	"bytes"
	"strings"
	"testing"
)

type listContext struct {
	FakeContext
	devices []DeviceInfo
}

func (l *listContext) Devices() ([]DeviceInfo, error) { return l.devices, nil }

func TestFindDevice(t *testing.T) {
	ctx := &listContext{devices: []DeviceInfo{{ID: "1", Name: "Built-in"}, {ID: "2", Name: "AirPods Pro"}}}

	dev, err := FindDevice(ctx, "")
	if err != nil || dev != nil {
		t.Errorf("empty name: got %v, %v; want nil, nil", dev, err)
	}
	dev, err = FindDevice(ctx, "AirPods Pro")
	if err != nil {
		t.Fatal(err)
	}
	if dev.ID != "2" {
		t.Errorf("ID = %q, want 2", dev.ID)
	}
	if _, err := FindDevice(ctx, "USB Mic"); err == nil {
		t.Error("expected error for unknown device")
	}
}

func TestPrintDevices(t *testing.T) {
	ctx := &listContext{devices: []DeviceInfo{{Name: "Built-in"}, {Name: "AirPods Pro"}}}
	var buf bytes.Buffer
	if err := PrintDevices(&buf, ctx); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[1], "bluetooth") {
		t.Errorf("expected bluetooth tag, got %q", lines[1])
	}

	empty := &listContext{}
	if err := PrintDevices(&buf, empty); err != ErrNoDevices {
		t.Errorf("err = %v, want ErrNoDevices", err)
	}
}

func TestPickerKeys(t *testing.T) {
	p := &picker{devices: make([]DeviceInfo, 3)}
	p.key([]byte{0x1b, '[', 'B'})
	p.key([]byte{'j'})
	p.key([]byte{'j'})
	if p.cursor != 2 {
		t.Errorf("cursor = %d, want 2 (clamped)", p.cursor)
	}
	p.key([]byte{0x1b, '[', 'A'})
	if p.cursor != 1 {
		t.Errorf("cursor = %d, want 1", p.cursor)
	}
	if done, _ := p.key([]byte{13}); !done {
		t.Error("enter should confirm")
	}
	if _, cancelled := p.key([]byte{3}); !cancelled {
		t.Error("ctrl+c should cancel")
	}
}

func TestIsBluetooth(t *testing.T) {
	for _, tt := range []struct {
		name string
		want bool
	}{
		{"AirPods Pro", true},
		{"WH-1000XM4", true},
		{"MacBook Pro Microphone", false},
		{"USB Audio (BT)", true},
		{"Headset [BT]", true},
		{"Tozo T10", true},
		{"Anker Soundcore Life", true},
		{"Skullcandy Indy", true},
		{"Built-in Subtitle Mic", false},
	} {
		if got := IsBluetooth(tt.name); got != tt.want {
			t.Errorf("IsBluetooth(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
