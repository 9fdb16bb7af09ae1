// Copyright 2026 The Traceplane Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"errors"
	"strings"
	"testing"

	"github.com/traceplane/traceplane/lib/payload"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		output Output
		valid  bool
	}{
		{
			"local path",
			Output{Name: "nightly", Destination: LocalDestination{Path: "/var/trace/snap"}, MaxSize: 1 << 20},
			true,
		},
		{
			"default name and unbounded size",
			Output{Name: "", Destination: LocalDestination{Path: "/tmp/snap"}, MaxSize: 0},
			true,
		},
		{
			"network endpoint",
			Output{Name: "relay", Destination: NetworkDestination{Host: "relay.lan", ControlPort: 5342, DataPort: 5343}},
			true,
		},
		{
			"empty path",
			Output{Name: "x", Destination: LocalDestination{}},
			false,
		},
		{
			"empty host",
			Output{Name: "x", Destination: NetworkDestination{ControlPort: 1, DataPort: 2}},
			false,
		},
		{
			"zero control port",
			Output{Name: "x", Destination: NetworkDestination{Host: "h", ControlPort: 0, DataPort: 2}},
			false,
		},
		{
			"zero data port",
			Output{Name: "x", Destination: NetworkDestination{Host: "h", ControlPort: 1, DataPort: 0}},
			false,
		},
		{
			"no destination",
			Output{Name: "x"},
			false,
		},
		{
			"name too long",
			Output{Name: strings.Repeat("n", MaxNameLength+1), Destination: LocalDestination{Path: "/p"}},
			false,
		},
		{
			"name at bound",
			Output{Name: strings.Repeat("n", MaxNameLength), Destination: LocalDestination{Path: "/p"}},
			true,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.output.Validate()
			if test.valid && err != nil {
				t.Errorf("Validate = %v, want nil", err)
			}
			if !test.valid {
				if !errors.Is(err, ErrInvalidOutput) {
					t.Errorf("Validate = %v, want ErrInvalidOutput", err)
				}
				if _, newErr := NewOutput(test.output.Name, test.output.Destination, test.output.MaxSize); newErr == nil {
					t.Error("NewOutput accepted an invalid descriptor")
				}
			}
		})
	}
}

func TestEqual(t *testing.T) {
	local, err := NewOutput("snap", LocalDestination{Path: "/var/trace"}, 4096)
	if err != nil {
		t.Fatalf("NewOutput: %v", err)
	}
	sameLocal, _ := NewOutput("snap", LocalDestination{Path: "/var/trace"}, 4096)
	if !local.Equal(sameLocal) {
		t.Error("identical outputs not equal")
	}

	network, _ := NewOutput("snap", NetworkDestination{Host: "relay.lan", ControlPort: 5342, DataPort: 5343}, 4096)
	if local.Equal(network) {
		t.Error("outputs with different destination kinds reported equal")
	}

	differentPath, _ := NewOutput("snap", LocalDestination{Path: "/var/other"}, 4096)
	differentName, _ := NewOutput("other", LocalDestination{Path: "/var/trace"}, 4096)
	differentSize, _ := NewOutput("snap", LocalDestination{Path: "/var/trace"}, 8192)
	for name, other := range map[string]*Output{
		"path":     differentPath,
		"name":     differentName,
		"max size": differentSize,
		"nil":      nil,
	} {
		if local.Equal(other) {
			t.Errorf("outputs differing in %s reported equal", name)
		}
	}

	differentPorts, _ := NewOutput("snap", NetworkDestination{Host: "relay.lan", ControlPort: 5342, DataPort: 9999}, 4096)
	if network.Equal(differentPorts) {
		t.Error("outputs with different data ports reported equal")
	}
}

func TestRoundtripLocal(t *testing.T) {
	original, err := NewOutput("", LocalDestination{Path: "/tmp/snap"}, 0)
	if err != nil {
		t.Fatalf("NewOutput: %v", err)
	}
	encoded, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, consumed, err := DecodeOutput(payload.NewView(encoded))
	if err != nil {
		t.Fatalf("DecodeOutput: %v", err)
	}
	if consumed != len(encoded) {
		t.Errorf("consumed = %d, want %d", consumed, len(encoded))
	}
	if !original.Equal(decoded) {
		t.Error("decoded output not equal to original")
	}
	// MaxSize 0 reads back as the real value zero (unbounded), not as
	// some absent state.
	if decoded.MaxSize != 0 {
		t.Errorf("MaxSize = %d, want 0", decoded.MaxSize)
	}
	if decoded.Name != "" {
		t.Errorf("Name = %q, want empty (default output)", decoded.Name)
	}
}

func TestRoundtripNetwork(t *testing.T) {
	original, err := NewOutput("relay", NetworkDestination{Host: "relay.lan", ControlPort: 5342, DataPort: 5343}, 1<<30)
	if err != nil {
		t.Fatalf("NewOutput: %v", err)
	}
	encoded, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, _, err := DecodeOutput(payload.NewView(encoded))
	if err != nil {
		t.Fatalf("DecodeOutput: %v", err)
	}
	if !original.Equal(decoded) {
		t.Error("decoded output not equal to original")
	}
}

func TestDecodeTruncated(t *testing.T) {
	output, err := NewOutput("relay", NetworkDestination{Host: "relay.lan", ControlPort: 5342, DataPort: 5343}, 1)
	if err != nil {
		t.Fatalf("NewOutput: %v", err)
	}
	encoded, err := output.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for cut := 0; cut < len(encoded); cut++ {
		decoded, _, err := DecodeOutput(payload.NewView(encoded[:cut]))
		if !errors.Is(err, payload.ErrTruncated) {
			t.Errorf("cut at %d: err = %v, want ErrTruncated", cut, err)
		}
		if decoded != nil {
			t.Errorf("cut at %d: got partial output", cut)
		}
	}
}

// writeName appends a name field: length (terminator-inclusive) then
// the terminated bytes.
func writeName(builder *payload.Builder, name string) {
	builder.WriteUint32(uint32(len(name) + 1))
	builder.WriteTerminatedString(name)
}

func TestDecodeRejectsInvalid(t *testing.T) {
	t.Run("unknown destination kind", func(t *testing.T) {
		builder := payload.NewBuilder()
		writeName(builder, "x")
		builder.WriteUint32(9) // not a destination kind
		builder.WriteUint64(0)
		if _, _, err := DecodeOutput(builder.View()); !errors.Is(err, ErrInvalidOutput) {
			t.Errorf("err = %v, want ErrInvalidOutput", err)
		}
	})

	t.Run("port above TCP range", func(t *testing.T) {
		builder := payload.NewBuilder()
		writeName(builder, "x")
		builder.WriteUint32(2) // network
		builder.WriteUint32(uint32(len("h") + 1))
		builder.WriteTerminatedString("h")
		builder.WriteUint32(70000)
		builder.WriteUint32(5343)
		builder.WriteUint64(0)
		if _, _, err := DecodeOutput(builder.View()); !errors.Is(err, ErrInvalidOutput) {
			t.Errorf("err = %v, want ErrInvalidOutput", err)
		}
	})

	t.Run("zero port on wire", func(t *testing.T) {
		builder := payload.NewBuilder()
		writeName(builder, "x")
		builder.WriteUint32(2)
		builder.WriteUint32(uint32(len("h") + 1))
		builder.WriteTerminatedString("h")
		builder.WriteUint32(0)
		builder.WriteUint32(5343)
		builder.WriteUint64(0)
		if _, _, err := DecodeOutput(builder.View()); !errors.Is(err, ErrInvalidOutput) {
			t.Errorf("err = %v, want ErrInvalidOutput", err)
		}
	})

	t.Run("empty path on wire", func(t *testing.T) {
		builder := payload.NewBuilder()
		writeName(builder, "x")
		builder.WriteUint32(1) // local
		builder.WriteUint32(1)
		builder.WriteTerminatedString("")
		builder.WriteUint64(0)
		if _, _, err := DecodeOutput(builder.View()); !errors.Is(err, ErrInvalidOutput) {
			t.Errorf("err = %v, want ErrInvalidOutput", err)
		}
	})
}
