package networking

import (
	"bytes"
	"testing"
)

func TestSummaryTopic(t *testing.T) {
	if got := SummaryTopic("songbird"); got != "/attester/songbird/round_summary/ssz_snappy" {
		t.Errorf("SummaryTopic = %s", got)
	}
}

func TestComputeMessageID(t *testing.T) {
	topic := []byte(SummaryTopic("flare"))
	data := []byte{0x01, 0x02, 0x03, 0x04}

	valid := ComputeMessageID(topic, data, true)
	invalid := ComputeMessageID(topic, data, false)
	if bytes.Equal(valid[:], invalid[:]) {
		t.Error("expected different IDs for valid and invalid snappy")
	}

	again := ComputeMessageID(topic, data, true)
	if valid != again {
		t.Error("expected same ID for same input")
	}
}

func TestComputeMessageID_DifferentInputs(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	if ComputeMessageID([]byte("topic1"), data, true) == ComputeMessageID([]byte("topic2"), data, true) {
		t.Error("expected different IDs for different topics")
	}
	if ComputeMessageID([]byte("topic"), []byte{0x01}, true) == ComputeMessageID([]byte("topic"), []byte{0x02}, true) {
		t.Error("expected different IDs for different data")
	}
}

func TestCompressRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("summary"), 20)
	out, err := DecompressMessage(CompressMessage(data))
	if err != nil {
		t.Fatalf("DecompressMessage: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Error("round trip changed the payload")
	}
	if _, err := DecompressMessage([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Error("expected error for invalid snappy")
	}
}
