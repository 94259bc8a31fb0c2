package radio

import (
	"bytes"
	"context"
	"testing"
)

func TestConvertU8(t *testing.T) {
	samps := ConvertU8(nil, []byte{128, 128, 0, 255, 64, 192, 7})
	want := []complex64{complex(0, 0), complex(-1, 127.0/128), complex(-0.5, 0.5)}
	if len(samps) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(samps))
	}
	for i := range want {
		if samps[i] != want[i] {
			t.Fatalf("sample %d: got %v, want %v", i, samps[i], want[i])
		}
	}
}

func TestIQReaderBlocks(t *testing.T) {
	raw := []byte{128, 128, 129, 127, 130, 126, 131, 125, 132, 124}
	iqr := NewIQReader(bytes.NewReader(raw))
	var lens []int
	for blk := range iqr.BlockStream(context.Background(), 2) {
		if blk.Seq != uint64(len(lens)) {
			t.Fatalf("unexpected seq %d", blk.Seq)
		}
		lens = append(lens, len(blk.Samples))
	}
	if err := iqr.Err(); err != nil {
		t.Fatal(err)
	}
	if len(lens) != 3 || lens[0] != 2 || lens[1] != 2 || lens[2] != 1 {
		t.Fatalf("unexpected block lengths %v", lens)
	}
}

func TestIQWriter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewIQWriter(&buf).Write64([]complex64{complex(0, -1), complex(2, -2)}); err != nil {
		t.Fatal(err)
	}
	if got := buf.Bytes(); !bytes.Equal(got, []byte{128, 0, 255, 0}) {
		t.Fatalf("got %v", got)
	}
}
