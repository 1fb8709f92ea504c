package discovery

import (
	"fmt"
	"slices"
	"strings"

	"github.com/AdianComits/netopeer2/pkg/version"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeAgentTXT creates the TXT records of an agent.
func EncodeAgentTXT(info *AgentInfo) TXTRecordMap {
	txt := TXTRecordMap{
		TXTKeyVersion: ProtocolVersion,
		TXTKeyAgentID: info.AgentID,
	}
	if len(info.Streams) > 0 {
		txt[TXTKeyStreams] = strings.Join(info.Streams, ",")
	}
	if len(info.Replay) > 0 {
		txt[TXTKeyReplay] = strings.Join(info.Replay, ",")
	}
	if len(info.Datastores) > 0 {
		txt[TXTKeyDatastores] = strings.Join(info.Datastores, ",")
	}
	return txt
}

// DecodeAgentTXT parses agent TXT records into a service description.
// Host, port and addresses are left for the caller.
func DecodeAgentTXT(txt TXTRecordMap) (*AgentService, error) {
	svc := &AgentService{}
	var ok bool
	if svc.Version, ok = txt[TXTKeyVersion]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyVersion)
	}
	if _, err := version.Negotiate(svc.Version); err != nil {
		return nil, err
	}
	if svc.AgentID, ok = txt[TXTKeyAgentID]; !ok || svc.AgentID == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyAgentID)
	}
	svc.Streams = splitList(txt[TXTKeyStreams])
	svc.Replay = splitList(txt[TXTKeyReplay])
	svc.Datastores = splitList(txt[TXTKeyDatastores])
	return svc, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// TXTRecordsToStrings converts a TXTRecordMap to "key=value" strings,
// sorted by key.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	slices.Sort(result)
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			// Key without value (boolean flag)
			txt[parts[0]] = ""
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInstanceNameTooLong)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
