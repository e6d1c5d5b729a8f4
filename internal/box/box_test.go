package box

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/boxcutter-go/boxcutter/internal/boxerr"
	"github.com/boxcutter-go/boxcutter/internal/source"
)

func TestType_String(t *testing.T) {
	tests := []struct {
		typ  Type
		want string
	}{
		{TypeFromString("ftyp"), "ftyp"},
		{TypeFromString("jxlc"), "jxlc"},
		{TypeFromString("brob"), "brob"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("Type.String() = %q, want %q", got, tt.want)
		}
	}
}

func TestWriteBoxHeader(t *testing.T) {
	tests := []struct {
		name        string
		payloadSize int64
		wantLen     int
		wantSize    uint32
	}{
		{"empty payload", 0, 8, 8},
		{"small payload", 3, 8, 11},
		{"implicit size", -1, 8, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			n, err := WriteBoxHeader(&buf, TypeFromString("AAAA"), tt.payloadSize)
			if err != nil {
				t.Fatalf("WriteBoxHeader: %v", err)
			}
			if n != tt.wantLen {
				t.Errorf("wrote %d header bytes, want %d", n, tt.wantLen)
			}
			got := binary.BigEndian.Uint32(buf.Bytes()[0:4])
			if got != tt.wantSize {
				t.Errorf("size field = %d, want %d", got, tt.wantSize)
			}
			if string(buf.Bytes()[4:8]) != "AAAA" {
				t.Errorf("type field = %q, want AAAA", buf.Bytes()[4:8])
			}
		})
	}
}

func TestWriteBoxHeader_Extended(t *testing.T) {
	var buf bytes.Buffer
	n, err := WriteBoxHeader(&buf, TypeFromString("mdat"), 0x100000000)
	if err != nil {
		t.Fatalf("WriteBoxHeader: %v", err)
	}
	if n != 16 {
		t.Fatalf("wrote %d header bytes, want 16", n)
	}
	if binary.BigEndian.Uint32(buf.Bytes()[0:4]) != 1 {
		t.Errorf("size field = %d, want 1", binary.BigEndian.Uint32(buf.Bytes()[0:4]))
	}
	gotSize := binary.BigEndian.Uint64(buf.Bytes()[8:16])
	if gotSize != 16+0x100000000 {
		t.Errorf("extended size = %d, want %d", gotSize, 16+0x100000000)
	}
}

// rawBox builds a raw 8-byte-header box with the given type and payload.
func rawBox(typ string, payload []byte) []byte {
	buf := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(8+len(payload)))
	copy(buf[4:8], typ)
	copy(buf[8:], payload)
	return buf
}

func rawExtendedBox(typ string, payload []byte) []byte {
	buf := make([]byte, 16+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], 1)
	copy(buf[4:8], typ)
	binary.BigEndian.PutUint64(buf[8:16], uint64(16+len(payload)))
	copy(buf[16:], payload)
	return buf
}

func rawImplicitBox(typ string, payload []byte) []byte {
	buf := make([]byte, 8+len(payload))
	copy(buf[4:8], typ)
	copy(buf[8:], payload)
	return buf
}

func TestReader_NextBox(t *testing.T) {
	data := append(rawBox("AAAA", nil), rawBox("BBBB", []byte("bbb"))...)
	r := NewReader(source.NewBuffer(data))

	hdr, ok, err := r.NextBox()
	if err != nil || !ok {
		t.Fatalf("NextBox #1: ok=%v err=%v", ok, err)
	}
	if hdr.BoxType.String() != "AAAA" || hdr.Length != 8 {
		t.Errorf("box 1 = %+v", hdr)
	}

	hdr, ok, err = r.NextBox()
	if err != nil || !ok {
		t.Fatalf("NextBox #2: ok=%v err=%v", ok, err)
	}
	if hdr.BoxType.String() != "BBBB" || hdr.Length != 11 {
		t.Errorf("box 2 = %+v", hdr)
	}
	payload, err := r.ReadPayload(3)
	if err != nil || string(payload) != "bbb" {
		t.Errorf("payload = %q, err=%v", payload, err)
	}

	_, ok, err = r.NextBox()
	if err != nil {
		t.Fatalf("NextBox #3: %v", err)
	}
	if ok {
		t.Error("expected EOF")
	}
}

func TestReader_NextBox_SkipsUnreadPayload(t *testing.T) {
	data := append(rawBox("AAAA", []byte("unread")), rawBox("BBBB", nil)...)
	r := NewReader(source.NewBuffer(data))

	if _, ok, err := r.NextBox(); !ok || err != nil {
		t.Fatalf("box 1: ok=%v err=%v", ok, err)
	}
	// Deliberately don't read the payload of box 1.
	hdr, ok, err := r.NextBox()
	if err != nil || !ok {
		t.Fatalf("box 2: ok=%v err=%v", ok, err)
	}
	if hdr.BoxType.String() != "BBBB" {
		t.Errorf("expected BBBB, got %v", hdr.BoxType)
	}
}

func TestReader_ExtendedSize(t *testing.T) {
	data := rawExtendedBox("CCCC", []byte("ccccc"))
	r := NewReader(source.NewBuffer(data))
	hdr, ok, err := r.NextBox()
	if err != nil || !ok {
		t.Fatalf("NextBox: ok=%v err=%v", ok, err)
	}
	if !hdr.HasExtendedSize || hdr.Length != 21 {
		t.Errorf("hdr = %+v", hdr)
	}
}

func TestReader_ImplicitFinalBox(t *testing.T) {
	data := append(rawBox("AAAA", nil), rawImplicitBox("DDDD", []byte("tail-bytes"))...)
	r := NewReader(source.NewBuffer(data))

	if _, ok, err := r.NextBox(); !ok || err != nil {
		t.Fatalf("box 1: ok=%v err=%v", ok, err)
	}
	hdr, ok, err := r.NextBox()
	if err != nil || !ok {
		t.Fatalf("box 2: ok=%v err=%v", ok, err)
	}
	if !hdr.Implicit() {
		t.Fatalf("expected implicit size, got %+v", hdr)
	}
	size, err := r.FinalBoxSize()
	if err != nil {
		t.Fatalf("FinalBoxSize: %v", err)
	}
	if size != 8+10 {
		t.Errorf("FinalBoxSize = %d, want %d", size, 8+10)
	}

	_, ok, err = r.NextBox()
	if err != nil || ok {
		t.Fatalf("expected EOF after implicit box, ok=%v err=%v", ok, err)
	}
}

func TestReader_InvalidType(t *testing.T) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:4], 8)
	buf[4], buf[5], buf[6], buf[7] = 0x01, 'B', 'B', 'B'
	r := NewReader(source.NewBuffer(buf))
	_, _, err := r.NextBox()
	if err == nil {
		t.Fatal("expected error for non-ASCII type")
	}
	if !errors.Is(err, boxerr.ErrInvalidBmff) {
		t.Errorf("error %v is not ErrInvalidBmff", err)
	}
}

func TestReader_LengthShorterThanHeader(t *testing.T) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:4], 4)
	copy(buf[4:8], "ABCD")
	r := NewReader(source.NewBuffer(buf))
	_, _, err := r.NextBox()
	if err == nil {
		t.Fatal("expected error for length shorter than header")
	}
}

func TestReader_RawCodestreamDetection(t *testing.T) {
	data := []byte{0xFF, 0x0A, 0x00, 0x11, 0x00, 0x00, 0x00, 0x00}
	r := NewReader(source.NewBuffer(data))
	_, _, err := r.NextBox()
	if err != boxerr.ErrRawJxl {
		t.Fatalf("expected ErrRawJxl, got %v", err)
	}
}

func TestReader_MixedModePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic mixing full and payload reads")
		}
	}()
	data := rawBox("AAAA", []byte("xyz"))
	r := NewReader(source.NewBuffer(data))
	if _, _, err := r.NextBox(); err != nil {
		t.Fatal(err)
	}
	if _, err := r.ReadPayload(1); err != nil {
		t.Fatal(err)
	}
	_, _ = r.ReadCurrent(1)
}

func TestReader_CopyCurrent_IncludesHeader(t *testing.T) {
	data := rawBox("BBBB", []byte("bbb"))
	r := NewReader(source.NewBuffer(data))
	if _, _, err := r.NextBox(); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	n, err := r.CopyCurrent(int64(len(data)), &out)
	if err != nil {
		t.Fatalf("CopyCurrent: %v", err)
	}
	if n != int64(len(data)) || !bytes.Equal(out.Bytes(), data) {
		t.Errorf("CopyCurrent produced %q, want %q", out.Bytes(), data)
	}
}

func TestReader_RawHeader(t *testing.T) {
	small := rawBox("BBBB", []byte("bbb"))
	extended := rawExtendedBox("CCCC", []byte("ccccc"))
	data := append(append([]byte{}, small...), extended...)
	r := NewReader(source.NewBuffer(data))

	if _, _, err := r.NextBox(); err != nil {
		t.Fatal(err)
	}
	if got := r.RawHeader(); !bytes.Equal(got, small[:8]) {
		t.Errorf("RawHeader #1 = % x, want % x", got, small[:8])
	}
	if _, _, err := r.NextBox(); err != nil {
		t.Fatal(err)
	}
	if got := r.RawHeader(); !bytes.Equal(got, extended[:16]) {
		t.Errorf("RawHeader #2 = % x, want % x (extended header must not be normalized)", got, extended[:16])
	}
}

func TestReader_EmptyStream(t *testing.T) {
	r := NewReader(source.NewBuffer(nil))
	_, ok, err := r.NextBox()
	if err != nil || ok {
		t.Fatalf("empty stream: ok=%v err=%v", ok, err)
	}
}

func TestReader_TruncatedHeader(t *testing.T) {
	r := NewReader(source.NewBuffer([]byte{0, 0, 0}))
	_, _, err := r.NextBox()
	if err == nil {
		t.Fatal("expected error for truncated header")
	}
}

func FuzzReader(f *testing.F) {
	f.Add(rawBox("AAAA", nil))
	f.Add(rawBox("BBBB", []byte("bbb")))
	f.Add(rawExtendedBox("CCCC", []byte("ccccc")))
	f.Add(rawImplicitBox("DDDD", []byte("aaa")))
	f.Fuzz(func(t *testing.T, data []byte) {
		r := NewReader(source.NewBuffer(data))
		for i := 0; i < 64; i++ {
			hdr, ok, err := r.NextBox()
			if err != nil || !ok {
				return
			}
			if hdr.Implicit() {
				if _, err := r.FinalBoxSize(); err != nil {
					return
				}
				return
			}
			var sink bytes.Buffer
			if _, err := r.CopyPayload(hdr.PayloadSize(), &sink); err != nil {
				return
			}
		}
	})
}
