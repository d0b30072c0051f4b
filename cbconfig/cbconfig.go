package cbconfig

// JSON definitions for the subset of the ns_server REST surface this
// client consumes.  Field names and shapes follow the server contract.

type TerseNodeJson struct {
	CouchApiBase string         `json:"couchApiBase,omitempty"`
	Hostname     string         `json:"hostname,omitempty"`
	Ports        map[string]int `json:"ports,omitempty"`
}

type TerseExtNodeJson struct {
	Services map[string]int `json:"services,omitempty"`
	ThisNode bool           `json:"thisNode,omitempty"`
	Hostname string         `json:"hostname,omitempty"`
	UUID     string         `json:"nodeUUID,omitempty"`
}

type TerseConfigJson struct {
	Rev                uint64             `json:"rev,omitempty"`
	RevEpoch           uint64             `json:"revEpoch,omitempty"`
	Name               string             `json:"name,omitempty"`
	NodeLocator        string             `json:"nodeLocator,omitempty"`
	UUID               string             `json:"uuid,omitempty"`
	URI                string             `json:"uri,omitempty"`
	StreamingURI       string             `json:"streamingUri,omitempty"`
	BucketCapabilities []string           `json:"bucketCapabilities,omitempty"`
	Nodes              []TerseNodeJson    `json:"nodes,omitempty"`
	NodesExt           []TerseExtNodeJson `json:"nodesExt,omitempty"`
}
