package codec

import (
	"bytes"
	"testing"
)

func TestParseDescriptor(t *testing.T) {
	cases := []struct {
		in   string
		want Descriptor
	}{
		{"", Descriptor{}},
		{"lz4", Descriptor{Name: "lz4"}},
		{"ZSTD(3)", Descriptor{Name: "zstd", Level: 3}},
		{"delta,lz4", Descriptor{Name: "lz4", Delta: true}},
		{"delta(4),zstd(1)", Descriptor{Name: "zstd", Level: 1, Delta: true, DeltaWidth: 4}},
		{"none", Descriptor{Name: "none"}},
	}
	for _, tc := range cases {
		got, err := ParseDescriptor(tc.in)
		if err != nil {
			t.Fatalf("ParseDescriptor(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseDescriptor(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestParseDescriptorErrors(t *testing.T) {
	for _, in := range []string{"brotli", "lz4,zstd", "lz4,delta", "zstd(x)", "delta", "delta(300),lz4"} {
		if _, err := ParseDescriptor(in); err == nil {
			t.Errorf("ParseDescriptor(%q) succeeded, want error", in)
		}
	}
}

func TestGetUnknownCodec(t *testing.T) {
	if _, err := Get(Descriptor{Name: "brotli"}, 0, Descriptor{}, false); err == nil {
		t.Fatal("resolving an unknown codec succeeded, want error")
	}
}

func TestGetDefaultResolution(t *testing.T) {
	def := Descriptor{Name: "zstd", Level: 3}

	c, err := Get(Descriptor{}, 0, def, true)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if c.String() != "zstd(3)" {
		t.Errorf("zero descriptor resolved to %q, want zstd(3)", c.String())
	}

	c, err = Get(Descriptor{Name: "default"}, 0, def, true)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if c.String() != "zstd(3)" {
		t.Errorf("default descriptor resolved to %q, want zstd(3)", c.String())
	}
}

func TestCodecIdentityHash(t *testing.T) {
	a, err := Get(Descriptor{Name: "lz4"}, 8, Descriptor{}, false)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Get(Descriptor{Name: "lz4"}, 0, Descriptor{}, true)
	if err != nil {
		t.Fatal(err)
	}
	if a.Hash() != b.Hash() {
		t.Error("generic lz4 resolved to different identities for different widths")
	}

	z, err := Get(Descriptor{Name: "zstd"}, 0, Descriptor{}, true)
	if err != nil {
		t.Fatal(err)
	}
	if a.Hash() == z.Hash() {
		t.Error("lz4 and zstd share an identity hash")
	}

	d, err := Get(Descriptor{Name: "lz4", Delta: true}, 8, Descriptor{}, false)
	if err != nil {
		t.Fatal(err)
	}
	if d.Hash() == a.Hash() {
		t.Error("delta,lz4 shares an identity hash with plain lz4")
	}
}

func TestGenericOnlyStripsDelta(t *testing.T) {
	c, err := Get(Descriptor{Name: "lz4", Delta: true}, 8, Descriptor{}, true)
	if err != nil {
		t.Fatal(err)
	}
	if c.String() != "lz4" {
		t.Errorf("generic-only resolution kept delta: %q", c.String())
	}
}

func TestBlockRoundTrip(t *testing.T) {
	payloads := map[string][]byte{
		"compressible":   bytes.Repeat([]byte("granule granule granule "), 200),
		"short":          []byte("x"),
		"incompressible": incompressible(4096),
	}

	for _, desc := range []string{"none", "lz4", "lz4(9)", "zstd", "zstd(9)", "delta(8),lz4", "delta,zstd"} {
		for name, data := range payloads {
			d, err := ParseDescriptor(desc)
			if err != nil {
				t.Fatal(err)
			}
			c, err := Get(d, 8, Descriptor{}, false)
			if err != nil {
				t.Fatalf("%s: %v", desc, err)
			}

			var out bytes.Buffer
			bw := NewBlockWriter(&out, c, DefaultBlockSize)
			if _, err := bw.Write(data); err != nil {
				t.Fatalf("%s/%s: write: %v", desc, name, err)
			}
			if err := bw.Close(); err != nil {
				t.Fatalf("%s/%s: close: %v", desc, name, err)
			}

			got, consumed, err := DecompressBlock(out.Bytes())
			if err != nil {
				t.Fatalf("%s/%s: decompress: %v", desc, name, err)
			}
			if consumed != out.Len() {
				t.Errorf("%s/%s: consumed %d of %d frame bytes", desc, name, consumed, out.Len())
			}
			if !bytes.Equal(got, data) {
				t.Errorf("%s/%s: round trip mismatch", desc, name)
			}
		}
	}
}

func TestBlockChecksumMismatch(t *testing.T) {
	c, err := Get(Descriptor{Name: "lz4"}, 0, Descriptor{}, true)
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	bw := NewBlockWriter(&out, c, DefaultBlockSize)
	if _, err := bw.Write(bytes.Repeat([]byte("abc"), 100)); err != nil {
		t.Fatal(err)
	}
	if err := bw.Close(); err != nil {
		t.Fatal(err)
	}

	frame := out.Bytes()
	frame[len(frame)-1] ^= 0xff
	if _, _, err := DecompressBlock(frame); err == nil {
		t.Fatal("decompressing a corrupted block succeeded")
	}
}

func TestBlockWriterFlushBoundary(t *testing.T) {
	c, err := Get(Descriptor{Name: "none"}, 0, Descriptor{}, true)
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	bw := NewBlockWriter(&out, c, 64)

	if _, err := bw.Write(make([]byte, 32)); err != nil {
		t.Fatal(err)
	}
	if bw.Buffered() != 32 {
		t.Errorf("Buffered() = %d, want 32", bw.Buffered())
	}
	if out.Len() != 0 {
		t.Error("block emitted before the block size was reached")
	}

	if _, err := bw.Write(make([]byte, 32)); err != nil {
		t.Fatal(err)
	}
	if bw.Buffered() != 0 {
		t.Errorf("Buffered() = %d after boundary, want 0", bw.Buffered())
	}
	if out.Len() == 0 {
		t.Error("no block emitted at the block size boundary")
	}

	// Empty flush must not emit an empty block.
	before := out.Len()
	if err := bw.Flush(); err != nil {
		t.Fatal(err)
	}
	if out.Len() != before {
		t.Error("flush of an empty buffer emitted bytes")
	}
}

func TestDeltaTransform(t *testing.T) {
	src := []byte{10, 0, 20, 0, 30, 0, 40, 0}
	enc := deltaEncode(src, 2)
	want := []byte{10, 0, 10, 0, 10, 0, 10, 0}
	if !bytes.Equal(enc, want) {
		t.Errorf("deltaEncode = %v, want %v", enc, want)
	}
	if dec := deltaDecode(enc, 2); !bytes.Equal(dec, src) {
		t.Errorf("deltaDecode = %v, want %v", dec, src)
	}
}

// incompressible produces bytes with no repetition for the raw-fallback path.
func incompressible(n int) []byte {
	out := make([]byte, n)
	state := uint32(0x12345678)
	for i := range out {
		state = state*1664525 + 1013904223
		out[i] = byte(state >> 24)
	}
	return out
}
