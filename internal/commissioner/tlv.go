package commissioner

// TLVType identifies a MeshCoP TLV field by its Thread 1.2 type id.
type TLVType int

// Commissioner dataset TLVs.
const (
	TLVBorderAgentLocator TLVType = 9
	TLVCommSessionID      TLVType = 11
	TLVSteeringData       TLVType = 8
	TLVAeSteeringData     TLVType = 61
	TLVNmkpSteeringData   TLVType = 62
	TLVJoinerUDPPort      TLVType = 18
	TLVAeUDPPort          TLVType = 65
	TLVNmkpUDPPort        TLVType = 66
)

// Active/pending operational dataset TLVs.
const (
	TLVActiveTimestamp   TLVType = 14
	TLVChannel           TLVType = 0
	TLVChannelMask       TLVType = 53
	TLVExtendedPanID     TLVType = 2
	TLVMeshLocalPrefix   TLVType = 7
	TLVNetworkMasterKey  TLVType = 5
	TLVNetworkName       TLVType = 3
	TLVPanID             TLVType = 1
	TLVPSKc              TLVType = 4
	TLVSecurityPolicy    TLVType = 12
	TLVDelayTimer        TLVType = 52
	TLVPendingTimestamp  TLVType = 51
)

// BBR dataset TLVs.
const (
	TLVTriHostname       TLVType = 67
	TLVRegistrarHostname TLVType = 69
	TLVRegistrarIPv6Addr TLVType = 68
)

var tlvNames = map[TLVType]string{
	TLVBorderAgentLocator: "BorderAgentLocator",
	TLVCommSessionID:      "SessionId",
	TLVSteeringData:       "SteeringData",
	TLVAeSteeringData:     "AeSteeringData",
	TLVNmkpSteeringData:   "NmkpSteeringData",
	TLVJoinerUDPPort:      "JoinerUdpPort",
	TLVAeUDPPort:          "AeUdpPort",
	TLVNmkpUDPPort:        "NmkpUdpPort",
	TLVActiveTimestamp:    "ActiveTimestamp",
	TLVChannel:            "Channel",
	TLVChannelMask:        "ChannelMask",
	TLVExtendedPanID:      "ExtendedPanId",
	TLVMeshLocalPrefix:    "MeshLocalPrefix",
	TLVNetworkMasterKey:   "NetworkMasterKey",
	TLVNetworkName:        "NetworkName",
	TLVPanID:              "PanId",
	TLVPSKc:               "PSKc",
	TLVSecurityPolicy:     "SecurityPolicy",
	TLVDelayTimer:         "DelayTimer",
	TLVPendingTimestamp:   "PendingTimestamp",
	TLVTriHostname:        "TriHostname",
	TLVRegistrarHostname:  "RegistrarHostname",
	TLVRegistrarIPv6Addr:  "RegistrarIpv6Addr",
}

var tlvTypes = func() map[string]TLVType {
	m := make(map[string]TLVType, len(tlvNames))
	for typ, name := range tlvNames {
		m[name] = typ
	}
	return m
}()

// Name returns the canonical field name used in the CLI JSON encoding.
func (t TLVType) Name() (string, bool) {
	name, ok := tlvNames[t]
	return name, ok
}

// TLVTypeByName resolves a canonical field name back to its type id.
func TLVTypeByName(name string) (TLVType, bool) {
	typ, ok := tlvTypes[name]
	return typ, ok
}

// JoinerType selects the commissioning flow a joiner uses.
type JoinerType int

const (
	JoinerMeshCoP JoinerType = iota // PSKd-based MeshCoP joining
	JoinerAE                        // CCM autonomous enrollment
	JoinerNMKP                      // CCM network master key provisioning
)

var joinerNames = map[JoinerType]string{
	JoinerMeshCoP: "meshcop",
	JoinerAE:      "ae",
	JoinerNMKP:    "nmkp",
}

func (j JoinerType) String() string {
	if name, ok := joinerNames[j]; ok {
		return name
	}
	return "unknown"
}
