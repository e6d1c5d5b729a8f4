package jxl

import (
	"bytes"
	"testing"

	"github.com/boxcutter-go/boxcutter/internal/box"
	"github.com/boxcutter-go/boxcutter/internal/source"
	"github.com/boxcutter-go/boxcutter/internal/writer"
)

func TestAssembleThenExtract_SingleJxlc_Roundtrip(t *testing.T) {
	codestream := append([]byte{0xFF, 0x0A}, bytes.Repeat([]byte("jxldata!"), 20)...)

	sink := writer.NewBufferSink()
	if err := AssembleContainer(source.NewBuffer(codestream), sink, WrapOptions{}); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	warnings, err := ExtractCodestream(source.NewBuffer(sink.Bytes()), &out)
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	if !bytes.Equal(out.Bytes(), codestream) {
		t.Errorf("roundtrip mismatch: got %d bytes, want %d", out.Len(), len(codestream))
	}
}

func TestAssembleContainer_WithLevel(t *testing.T) {
	codestream := append([]byte{0xFF, 0x0A}, []byte("abc")...)
	level := byte(7)
	sink := writer.NewBufferSink()
	if err := AssembleContainer(source.NewBuffer(codestream), sink, WrapOptions{Level: &level}); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	warnings, err := ExtractCodestream(source.NewBuffer(sink.Bytes()), &out)
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected one level warning, got %v", warnings)
	}
	if !bytes.Equal(out.Bytes(), codestream) {
		t.Errorf("roundtrip mismatch")
	}
}

func TestAssembleThenExtract_Splits_Roundtrip(t *testing.T) {
	codestream := append([]byte{0xFF, 0x0A}, bytes.Repeat([]byte("0123456789"), 10)...)

	sink := writer.NewBufferSink()
	if err := AssembleContainer(source.NewBuffer(codestream), sink, WrapOptions{Splits: []int64{10, 40}}); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	_, err := ExtractCodestream(source.NewBuffer(sink.Bytes()), &out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.Bytes(), codestream) {
		t.Errorf("split roundtrip mismatch: got %d bytes, want %d", out.Len(), len(codestream))
	}
}

func TestAssembleContainer_UnsortedSplitsStillRoundtrip(t *testing.T) {
	codestream := append([]byte{0xFF, 0x0A}, bytes.Repeat([]byte("0123456789"), 10)...)

	sink := writer.NewBufferSink()
	if err := AssembleContainer(source.NewBuffer(codestream), sink, WrapOptions{Splits: []int64{40, 10}}); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if _, err := ExtractCodestream(source.NewBuffer(sink.Bytes()), &out); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.Bytes(), codestream) {
		t.Errorf("unsorted split roundtrip mismatch: got %d bytes, want %d", out.Len(), len(codestream))
	}
}

func TestAssembleContainer_SplitPastEndClamps(t *testing.T) {
	codestream := []byte{0xFF, 0x0A, 0x00, 0x11}

	sink := writer.NewBufferSink()
	if err := AssembleContainer(source.NewBuffer(codestream), sink, WrapOptions{Splits: []int64{8}}); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if _, err := ExtractCodestream(source.NewBuffer(sink.Bytes()), &out); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.Bytes(), codestream) {
		t.Errorf("out-of-range split roundtrip mismatch: got %d bytes, want %d", out.Len(), len(codestream))
	}
}

func TestExtractCodestream_RejectsBadSignature(t *testing.T) {
	_, err := ExtractCodestream(source.NewBuffer([]byte("not a jxl container at all..")), &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected an error for a bad signature")
	}
}

func TestExtractCodestream_OutOfSequenceJxlpFails(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(ContainerSignature[:])
	// A jxlp box whose sequence number is 1 when 0 was expected.
	buf.Write([]byte{0, 0, 0, 12, 'j', 'x', 'l', 'p', 0, 0, 0, 1})

	_, err := ExtractCodestream(source.NewBuffer(buf.Bytes()), &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected an out-of-sequence error")
	}
}

func TestExtractCodestream_JbrdWarning(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(ContainerSignature[:])
	buf.Write([]byte{0, 0, 0, 8, 'j', 'b', 'r', 'd'})
	buf.Write([]byte{0, 0, 0, 10, 'j', 'x', 'l', 'c', 0xFF, 0x0A})

	var out bytes.Buffer
	warnings, err := ExtractCodestream(source.NewBuffer(buf.Bytes()), &out)
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected one jbrd warning, got %v", warnings)
	}
}

func TestMergeJxlp_ConcatenatesRun(t *testing.T) {
	codestream := append([]byte{0xFF, 0x0A}, bytes.Repeat([]byte("abcdefgh"), 10)...)
	assembled := writer.NewBufferSink()
	if err := AssembleContainer(source.NewBuffer(codestream), assembled, WrapOptions{Splits: []int64{10, 30, 60}}); err != nil {
		t.Fatal(err)
	}

	merged := writer.NewBufferSink()
	if err := MergeJxlp(source.NewBuffer(assembled.Bytes()), merged); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	_, err := ExtractCodestream(source.NewBuffer(merged.Bytes()), &out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.Bytes(), codestream) {
		t.Errorf("merged roundtrip mismatch: got %d bytes, want %d", out.Len(), len(codestream))
	}

	// The merge should have produced a single jxlp box, not four.
	src := source.NewBuffer(merged.Bytes())
	var sig [12]byte
	if _, err := src.Read(sig[:]); err != nil {
		t.Fatal(err)
	}
	r := box.NewReader(src)
	jxlpCount := 0
	for {
		hdr, ok, err := r.NextBox()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		if hdr.BoxType.String() == "jxlp" {
			jxlpCount++
		}
	}
	if jxlpCount != 1 {
		t.Errorf("expected a single merged jxlp box, got %d", jxlpCount)
	}
}

func TestMergeJxlp_RequiresSeekableSink(t *testing.T) {
	codestream := append([]byte{0xFF, 0x0A}, []byte("x")...)
	assembled := writer.NewBufferSink()
	if err := AssembleContainer(source.NewBuffer(codestream), assembled, WrapOptions{Splits: []int64{1}}); err != nil {
		t.Fatal(err)
	}

	err := MergeJxlp(source.NewBuffer(assembled.Bytes()), nonSeekableSink{})
	if err == nil {
		t.Fatal("expected an error for a non-seekable sink")
	}
}

type nonSeekableSink struct{}

func (nonSeekableSink) Write(p []byte) (int, error) { return len(p), nil }
func (nonSeekableSink) Seekable() bool              { return false }
func (nonSeekableSink) Seek(offset int64, whence int) (int64, error) {
	return 0, bytes.ErrTooLarge
}
