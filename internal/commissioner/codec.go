package commissioner

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Dataset maps TLV type ids to decoded field values. Plain fields hold
// int64 or string; byte-sequence fields hold []byte; the structured fields
// hold Timestamp, Channel, []ChannelMaskEntry or SecurityPolicy.
type Dataset map[TLVType]any

// Timestamp is a MeshCoP timestamp. U marks it authoritative.
type Timestamp struct {
	Seconds uint64 // 48-bit on the wire
	Ticks   uint16 // 15-bit on the wire
	U       bool
}

// Channel identifies a radio channel on a channel page.
type Channel struct {
	Number int64
	Page   int64
}

// ChannelMaskEntry is the mask for one channel page. A dataset's channel
// mask is an ordered sequence of entries.
type ChannelMaskEntry struct {
	Page  int64
	Masks []byte
}

// SecurityPolicy holds the network key rotation time and policy flag bits.
type SecurityPolicy struct {
	RotationTime int64
	Flags        int64
}

// EnergyReport is the result of an energy scan: per-page channel masks and
// one signed energy reading per scanned channel.
type EnergyReport struct {
	ChannelMask []ChannelMaskEntry
	EnergyList  []byte
}

const maxTimestampSeconds = 1<<48 - 1
const maxTimestampTicks = 1<<15 - 1

func bytesToHex(b []byte) string {
	return hex.EncodeToString(b)
}

func hexToBytes(field, s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, &CodecError{Field: field, Reason: fmt.Sprintf("malformed hex %q", s)}
	}
	return b, nil
}

// jsonInt coerces a decoded JSON value to int64. Decoding runs with
// json.Number so integers survive the trip without float rounding.
func jsonInt(field string, v any) (int64, error) {
	num, ok := v.(json.Number)
	if !ok {
		return 0, &CodecError{Field: field, Reason: fmt.Sprintf("expected number, got %T", v)}
	}
	i, err := num.Int64()
	if err != nil {
		return 0, &CodecError{Field: field, Reason: fmt.Sprintf("non-integer value %q", num.String())}
	}
	return i, nil
}

func jsonString(field string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", &CodecError{Field: field, Reason: fmt.Sprintf("expected string, got %T", v)}
	}
	return s, nil
}

func jsonObject(field string, v any) (map[string]any, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, &CodecError{Field: field, Reason: fmt.Sprintf("expected object, got %T", v)}
	}
	return obj, nil
}

// parseJSON decodes a JSON document keeping numbers as json.Number.
func parseJSON(doc string, out any) error {
	dec := json.NewDecoder(strings.NewReader(doc))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return &CodecError{Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return nil
}

// --- Timestamp ---

func timestampToJSON(field string, v any) (map[string]any, error) {
	ts, ok := v.(Timestamp)
	if !ok {
		return nil, &CodecError{Field: field, Reason: fmt.Sprintf("expected Timestamp, got %T", v)}
	}
	if ts.Seconds > maxTimestampSeconds {
		return nil, &CodecError{Field: field, Reason: "seconds exceeds 48 bits"}
	}
	if ts.Ticks > maxTimestampTicks {
		return nil, &CodecError{Field: field, Reason: "ticks exceeds 15 bits"}
	}
	u := 0
	if ts.U {
		u = 1
	}
	return map[string]any{
		"Seconds": ts.Seconds,
		"Ticks":   ts.Ticks,
		"U":       u,
	}, nil
}

func timestampFromJSON(field string, v any) (Timestamp, error) {
	obj, err := jsonObject(field, v)
	if err != nil {
		return Timestamp{}, err
	}
	seconds, err := jsonInt(field+".Seconds", obj["Seconds"])
	if err != nil {
		return Timestamp{}, err
	}
	ticks, err := jsonInt(field+".Ticks", obj["Ticks"])
	if err != nil {
		return Timestamp{}, err
	}
	u, err := jsonInt(field+".U", obj["U"])
	if err != nil {
		return Timestamp{}, err
	}
	return Timestamp{Seconds: uint64(seconds), Ticks: uint16(ticks), U: u != 0}, nil
}

// --- Channel mask ---

func channelMaskToJSON(field string, v any) ([]map[string]any, error) {
	entries, ok := v.([]ChannelMaskEntry)
	if !ok {
		return nil, &CodecError{Field: field, Reason: fmt.Sprintf("expected []ChannelMaskEntry, got %T", v)}
	}
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"Masks": bytesToHex(e.Masks),
			"Page":  e.Page,
		})
	}
	return out, nil
}

func channelMaskFromJSON(field string, v any) ([]ChannelMaskEntry, error) {
	arr, ok := v.([]any)
	if !ok {
		return nil, &CodecError{Field: field, Reason: fmt.Sprintf("expected array, got %T", v)}
	}
	entries := make([]ChannelMaskEntry, 0, len(arr))
	for i, item := range arr {
		obj, err := jsonObject(fmt.Sprintf("%s[%d]", field, i), item)
		if err != nil {
			return nil, err
		}
		maskHex, err := jsonString(fmt.Sprintf("%s[%d].Masks", field, i), obj["Masks"])
		if err != nil {
			return nil, err
		}
		masks, err := hexToBytes(fmt.Sprintf("%s[%d].Masks", field, i), maskHex)
		if err != nil {
			return nil, err
		}
		page, err := jsonInt(fmt.Sprintf("%s[%d].Page", field, i), obj["Page"])
		if err != nil {
			return nil, err
		}
		entries = append(entries, ChannelMaskEntry{Page: page, Masks: masks})
	}
	return entries, nil
}

// --- Generic name mapping ---

// datasetToNamed converts TLV keys to canonical names without touching the
// values. Unknown ids fail encode.
func datasetToNamed(ds Dataset) (map[string]any, error) {
	out := make(map[string]any, len(ds))
	for typ, v := range ds {
		name, ok := typ.Name()
		if !ok {
			return nil, &CodecError{Reason: fmt.Sprintf("unknown TLV type %d", typ)}
		}
		out[name] = v
	}
	return out, nil
}

// namedToDataset converts canonical names back to TLV keys. Unknown names
// fail decode.
func namedToDataset(obj map[string]any) (Dataset, error) {
	ds := make(Dataset, len(obj))
	for name, v := range obj {
		typ, ok := TLVTypeByName(name)
		if !ok {
			return nil, &CodecError{Field: name, Reason: "unknown TLV key"}
		}
		ds[typ] = v
	}
	return ds, nil
}

// normalizePlain converts untyped leftovers from JSON decode into the
// Dataset value domain: json.Number becomes int64, strings stay.
func normalizePlain(ds Dataset) error {
	for typ, v := range ds {
		num, ok := v.(json.Number)
		if !ok {
			continue
		}
		name, _ := typ.Name()
		i, err := jsonInt(name, num)
		if err != nil {
			return err
		}
		ds[typ] = i
	}
	return nil
}

// --- Commissioner dataset ---

var steeringDataTLVs = []TLVType{TLVSteeringData, TLVAeSteeringData, TLVNmkpSteeringData}

// EncodeCommissionerDataset renders a commissioner dataset as the JSON
// document the commdataset command accepts.
func EncodeCommissionerDataset(ds Dataset) (string, error) {
	named := make(map[string]any, len(ds))
	for typ, v := range ds {
		name, ok := typ.Name()
		if !ok {
			return "", &CodecError{Reason: fmt.Sprintf("unknown TLV type %d", typ)}
		}
		if typ == TLVSteeringData || typ == TLVAeSteeringData || typ == TLVNmkpSteeringData {
			b, bok := v.([]byte)
			if !bok {
				return "", &CodecError{Field: name, Reason: fmt.Sprintf("expected []byte, got %T", v)}
			}
			named[name] = bytesToHex(b)
			continue
		}
		named[name] = v
	}
	data, err := json.Marshal(named)
	if err != nil {
		return "", &CodecError{Reason: err.Error()}
	}
	return string(data), nil
}

// DecodeCommissionerDataset parses the JSON document the commdataset
// command prints.
func DecodeCommissionerDataset(doc string) (Dataset, error) {
	var obj map[string]any
	if err := parseJSON(doc, &obj); err != nil {
		return nil, err
	}
	ds, err := namedToDataset(obj)
	if err != nil {
		return nil, err
	}
	for _, typ := range steeringDataTLVs {
		v, ok := ds[typ]
		if !ok {
			continue
		}
		name, _ := typ.Name()
		s, err := jsonString(name, v)
		if err != nil {
			return nil, err
		}
		b, err := hexToBytes(name, s)
		if err != nil {
			return nil, err
		}
		ds[typ] = b
	}
	if err := normalizePlain(ds); err != nil {
		return nil, err
	}
	return ds, nil
}

// --- Active / pending operational datasets ---

// EncodeActiveDataset renders an active operational dataset as JSON,
// applying the per-field transcoding rules.
func EncodeActiveDataset(ds Dataset) (string, error) {
	named, err := activeToNamed(ds)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(named)
	if err != nil {
		return "", &CodecError{Reason: err.Error()}
	}
	return string(data), nil
}

func activeToNamed(ds Dataset) (map[string]any, error) {
	named := make(map[string]any, len(ds))
	for typ, v := range ds {
		name, ok := typ.Name()
		if !ok {
			return nil, &CodecError{Reason: fmt.Sprintf("unknown TLV type %d", typ)}
		}
		switch typ {
		case TLVActiveTimestamp:
			obj, err := timestampToJSON(name, v)
			if err != nil {
				return nil, err
			}
			named[name] = obj
		case TLVChannel:
			ch, ok := v.(Channel)
			if !ok {
				return nil, &CodecError{Field: name, Reason: fmt.Sprintf("expected Channel, got %T", v)}
			}
			named[name] = map[string]any{"Number": ch.Number, "Page": ch.Page}
		case TLVChannelMask:
			arr, err := channelMaskToJSON(name, v)
			if err != nil {
				return nil, err
			}
			named[name] = arr
		case TLVExtendedPanID, TLVNetworkMasterKey:
			b, ok := v.([]byte)
			if !ok {
				return nil, &CodecError{Field: name, Reason: fmt.Sprintf("expected []byte, got %T", v)}
			}
			named[name] = bytesToHex(b)
		case TLVSecurityPolicy:
			sp, ok := v.(SecurityPolicy)
			if !ok {
				return nil, &CodecError{Field: name, Reason: fmt.Sprintf("expected SecurityPolicy, got %T", v)}
			}
			named[name] = map[string]any{"Flags": sp.Flags, "RotationTime": sp.RotationTime}
		default:
			named[name] = v
		}
	}
	return named, nil
}

// DecodeActiveDataset parses an active operational dataset document.
func DecodeActiveDataset(doc string) (Dataset, error) {
	var obj map[string]any
	if err := parseJSON(doc, &obj); err != nil {
		return nil, err
	}
	ds, err := namedToDataset(obj)
	if err != nil {
		return nil, err
	}
	if err := activeFromNamed(ds); err != nil {
		return nil, err
	}
	if err := normalizePlain(ds); err != nil {
		return nil, err
	}
	return ds, nil
}

func activeFromNamed(ds Dataset) error {
	if v, ok := ds[TLVActiveTimestamp]; ok {
		ts, err := timestampFromJSON("ActiveTimestamp", v)
		if err != nil {
			return err
		}
		ds[TLVActiveTimestamp] = ts
	}
	if v, ok := ds[TLVChannel]; ok {
		obj, err := jsonObject("Channel", v)
		if err != nil {
			return err
		}
		number, err := jsonInt("Channel.Number", obj["Number"])
		if err != nil {
			return err
		}
		page, err := jsonInt("Channel.Page", obj["Page"])
		if err != nil {
			return err
		}
		ds[TLVChannel] = Channel{Number: number, Page: page}
	}
	if v, ok := ds[TLVChannelMask]; ok {
		entries, err := channelMaskFromJSON("ChannelMask", v)
		if err != nil {
			return err
		}
		ds[TLVChannelMask] = entries
	}
	for _, typ := range []TLVType{TLVExtendedPanID, TLVNetworkMasterKey} {
		v, ok := ds[typ]
		if !ok {
			continue
		}
		name, _ := typ.Name()
		s, err := jsonString(name, v)
		if err != nil {
			return err
		}
		b, err := hexToBytes(name, s)
		if err != nil {
			return err
		}
		ds[typ] = b
	}
	if v, ok := ds[TLVSecurityPolicy]; ok {
		obj, err := jsonObject("SecurityPolicy", v)
		if err != nil {
			return err
		}
		flags, err := jsonInt("SecurityPolicy.Flags", obj["Flags"])
		if err != nil {
			return err
		}
		rotation, err := jsonInt("SecurityPolicy.RotationTime", obj["RotationTime"])
		if err != nil {
			return err
		}
		ds[TLVSecurityPolicy] = SecurityPolicy{RotationTime: rotation, Flags: flags}
	}
	return nil
}

// EncodePendingDataset is the active encoding plus the PendingTimestamp rule.
func EncodePendingDataset(ds Dataset) (string, error) {
	if v, ok := ds[TLVPendingTimestamp]; ok {
		obj, err := timestampToJSON("PendingTimestamp", v)
		if err != nil {
			return "", err
		}
		// Work on a copy so the caller's dataset keeps its typed value.
		clone := make(Dataset, len(ds))
		for k, val := range ds {
			clone[k] = val
		}
		named, err := activeToNamed(withoutKey(clone, TLVPendingTimestamp))
		if err != nil {
			return "", err
		}
		name, _ := TLVPendingTimestamp.Name()
		named[name] = obj
		data, err := json.Marshal(named)
		if err != nil {
			return "", &CodecError{Reason: err.Error()}
		}
		return string(data), nil
	}
	return EncodeActiveDataset(ds)
}

func withoutKey(ds Dataset, typ TLVType) Dataset {
	delete(ds, typ)
	return ds
}

// DecodePendingDataset is the active decoding plus the PendingTimestamp rule.
func DecodePendingDataset(doc string) (Dataset, error) {
	var obj map[string]any
	if err := parseJSON(doc, &obj); err != nil {
		return nil, err
	}
	ds, err := namedToDataset(obj)
	if err != nil {
		return nil, err
	}
	if v, ok := ds[TLVPendingTimestamp]; ok {
		ts, err := timestampFromJSON("PendingTimestamp", v)
		if err != nil {
			return nil, err
		}
		ds[TLVPendingTimestamp] = ts
	}
	if err := activeFromNamed(ds); err != nil {
		return nil, err
	}
	if err := normalizePlain(ds); err != nil {
		return nil, err
	}
	return ds, nil
}

// --- BBR dataset ---

// EncodeBBRDataset renders a BBR dataset; all fields are JSON primitives.
func EncodeBBRDataset(ds Dataset) (string, error) {
	named, err := datasetToNamed(ds)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(named)
	if err != nil {
		return "", &CodecError{Reason: err.Error()}
	}
	return string(data), nil
}

// DecodeBBRDataset parses a BBR dataset document.
func DecodeBBRDataset(doc string) (Dataset, error) {
	var obj map[string]any
	if err := parseJSON(doc, &obj); err != nil {
		return nil, err
	}
	ds, err := namedToDataset(obj)
	if err != nil {
		return nil, err
	}
	if err := normalizePlain(ds); err != nil {
		return nil, err
	}
	return ds, nil
}

// --- Energy report ---

// DecodeEnergyReport parses the energy report document printed after a scan.
func DecodeEnergyReport(doc string) (*EnergyReport, error) {
	var obj map[string]any
	if err := parseJSON(doc, &obj); err != nil {
		return nil, err
	}
	mask, err := channelMaskFromJSON("ChannelMask", obj["ChannelMask"])
	if err != nil {
		return nil, err
	}
	listHex, err := jsonString("EnergyList", obj["EnergyList"])
	if err != nil {
		return nil, err
	}
	list, err := hexToBytes("EnergyList", listHex)
	if err != nil {
		return nil, err
	}
	return &EnergyReport{ChannelMask: mask, EnergyList: list}, nil
}
