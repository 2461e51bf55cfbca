package model

// ProtocolType is the transport protocol class of a feature record.
type ProtocolType string

const (
	ProtocolTCP   ProtocolType = "tcp"
	ProtocolUDP   ProtocolType = "udp"
	ProtocolICMP  ProtocolType = "icmp"
	ProtocolOther ProtocolType = "other"
)

// NetworkFeatureRecord is the fixed-schema classifier input derived from a
// single packet. The field set mirrors the NSL-KDD basic and content features.
// Fields the single-packet view cannot observe stay at zero, and none of the
// tags use omitempty so every request carries the full schema.
type NetworkFeatureRecord struct {
	Duration        int          `json:"duration"`
	ProtocolType    ProtocolType `json:"protocol_type"`
	Service         string       `json:"service"`
	Flag            string       `json:"flag"`
	SrcBytes        int64        `json:"src_bytes"`
	DstBytes        int64        `json:"dst_bytes"`
	Land            int          `json:"land"`
	WrongFragment   int          `json:"wrong_fragment"`
	Urgent          int          `json:"urgent"`
	Hot             int          `json:"hot"`
	NumFailedLogins int          `json:"num_failed_logins"`
	LoggedIn        int          `json:"logged_in"`
	NumCompromised  int          `json:"num_compromised"`
	RootShell       int          `json:"root_shell"`
	SuAttempted     int          `json:"su_attempted"`
	NumRoot         int          `json:"num_root"`
}
