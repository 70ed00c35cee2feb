package commissioner

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestHexRoundTrip(t *testing.T) {
	raw := []byte{0x00, 0x1f, 0xff, 0xe0, 0xab}
	back, err := hexToBytes("x", bytesToHex(raw))
	if err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if !bytes.Equal(back, raw) {
		t.Errorf("round trip = %x, want %x", back, raw)
	}
}

func TestHexToBytesMalformed(t *testing.T) {
	_, err := hexToBytes("SteeringData", "zz12")
	var ce *CodecError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want CodecError", err)
	}
	if ce.Field != "SteeringData" {
		t.Errorf("Field = %q", ce.Field)
	}
}

func TestActiveDatasetRoundTrip(t *testing.T) {
	ds := Dataset{
		TLVActiveTimestamp: Timestamp{Seconds: 0x1234567890ab, Ticks: 100, U: true},
		TLVChannel:         Channel{Number: 19, Page: 0},
		TLVChannelMask: []ChannelMaskEntry{
			{Page: 0, Masks: []byte{0x00, 0x1f, 0xff, 0xe0}},
			{Page: 2, Masks: []byte{0xff}},
		},
		TLVExtendedPanID:    []byte{0xde, 0xad, 0x00, 0xbe, 0xef, 0x00, 0xca, 0xfe},
		TLVNetworkMasterKey: []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff},
		TLVNetworkName:      "demo-net",
		TLVPanID:            int64(0xface),
		TLVSecurityPolicy:   SecurityPolicy{RotationTime: 672, Flags: 0xff},
	}

	doc, err := EncodeActiveDataset(ds)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	back, err := DecodeActiveDataset(doc)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !reflect.DeepEqual(back, ds) {
		t.Errorf("round trip mismatch:\n got %#v\nwant %#v", back, ds)
	}
}

func TestPendingDatasetRoundTrip(t *testing.T) {
	ds := Dataset{
		TLVPendingTimestamp: Timestamp{Seconds: 20, Ticks: 0, U: false},
		TLVActiveTimestamp:  Timestamp{Seconds: 10, Ticks: 1, U: false},
		TLVDelayTimer:       int64(30000),
		TLVNetworkName:      "next-net",
	}

	doc, err := EncodePendingDataset(ds)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	back, err := DecodePendingDataset(doc)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !reflect.DeepEqual(back, ds) {
		t.Errorf("round trip mismatch:\n got %#v\nwant %#v", back, ds)
	}

	// Encoding must not strip the caller's typed timestamp.
	if _, ok := ds[TLVPendingTimestamp].(Timestamp); !ok {
		t.Errorf("encode mutated the input dataset: %#v", ds[TLVPendingTimestamp])
	}
}

func TestCommissionerDatasetRoundTrip(t *testing.T) {
	ds := Dataset{
		TLVBorderAgentLocator: int64(0x0400),
		TLVCommSessionID:      int64(57),
		TLVSteeringData:       []byte{0xff},
		TLVAeSteeringData:     []byte{0x01, 0x02},
		TLVNmkpSteeringData:   []byte{0x03},
		TLVJoinerUDPPort:      int64(1000),
	}

	doc, err := EncodeCommissionerDataset(ds)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	// Steering data travels as hex strings.
	if !strings.Contains(doc, `"SteeringData":"ff"`) {
		t.Errorf("steering data not hex encoded: %s", doc)
	}
	back, err := DecodeCommissionerDataset(doc)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !reflect.DeepEqual(back, ds) {
		t.Errorf("round trip mismatch:\n got %#v\nwant %#v", back, ds)
	}
}

func TestBBRDatasetRoundTrip(t *testing.T) {
	ds := Dataset{
		TLVTriHostname:       "tri.example.com",
		TLVRegistrarHostname: "registrar.example.com",
		TLVRegistrarIPv6Addr: "fdaa::1234",
	}
	doc, err := EncodeBBRDataset(ds)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	back, err := DecodeBBRDataset(doc)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !reflect.DeepEqual(back, ds) {
		t.Errorf("round trip mismatch:\n got %#v\nwant %#v", back, ds)
	}
}

func TestTimestampLimits(t *testing.T) {
	_, err := EncodeActiveDataset(Dataset{
		TLVActiveTimestamp: Timestamp{Seconds: 1 << 48},
	})
	var ce *CodecError
	if !errors.As(err, &ce) {
		t.Fatalf("seconds overflow: err = %v, want CodecError", err)
	}

	// The boundary values themselves are valid.
	ds := Dataset{TLVActiveTimestamp: Timestamp{Seconds: maxTimestampSeconds, Ticks: maxTimestampTicks}}
	doc, err := EncodeActiveDataset(ds)
	if err != nil {
		t.Fatalf("boundary encode failed: %v", err)
	}
	back, err := DecodeActiveDataset(doc)
	if err != nil {
		t.Fatalf("boundary decode failed: %v", err)
	}
	if !reflect.DeepEqual(back, ds) {
		t.Errorf("boundary round trip mismatch: %#v", back)
	}
}

func TestDecodeUnknownKey(t *testing.T) {
	_, err := DecodeActiveDataset(`{"Bogus":1}`)
	var ce *CodecError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want CodecError", err)
	}
	if ce.Field != "Bogus" {
		t.Errorf("Field = %q", ce.Field)
	}
}

func TestEncodeUnknownType(t *testing.T) {
	_, err := EncodeActiveDataset(Dataset{TLVType(250): int64(1)})
	var ce *CodecError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want CodecError", err)
	}
}

func TestDecodeShapeMismatch(t *testing.T) {
	cases := []string{
		`{"Channel":5}`,
		`{"ActiveTimestamp":[1,2]}`,
		`{"ChannelMask":{"Page":0}}`,
		`{"NetworkMasterKey":12}`,
		`{"ExtendedPanId":"xyz"}`,
		`not json at all`,
	}
	for _, doc := range cases {
		_, err := DecodeActiveDataset(doc)
		var ce *CodecError
		if !errors.As(err, &ce) {
			t.Errorf("DecodeActiveDataset(%q) err = %v, want CodecError", doc, err)
		}
	}
}

func TestDecodeEnergyReport(t *testing.T) {
	report, err := DecodeEnergyReport(`{"ChannelMask":[{"Masks":"001fffe0","Page":0},{"Masks":"ff","Page":2}],"EnergyList":"a1b2c3d4"}`)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(report.ChannelMask) != 2 {
		t.Fatalf("mask entries = %d, want 2", len(report.ChannelMask))
	}
	if report.ChannelMask[1].Page != 2 || !bytes.Equal(report.ChannelMask[1].Masks, []byte{0xff}) {
		t.Errorf("second entry = %+v", report.ChannelMask[1])
	}
	if !bytes.Equal(report.EnergyList, []byte{0xa1, 0xb2, 0xc3, 0xd4}) {
		t.Errorf("energy list = %x", report.EnergyList)
	}

	if _, err := DecodeEnergyReport(`{"EnergyList":"a1"}`); err == nil {
		t.Error("missing channel mask decoded")
	}
}
