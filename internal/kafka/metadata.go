package kafka

import "sort"

// ClusterMetadata is a point-in-time listing of a cluster's brokers and
// topics.
type ClusterMetadata struct {
	Brokers []BrokerInfo `json:"brokers"`
	Topics  []TopicInfo  `json:"topics"`
}

// BrokerInfo identifies one broker in the cluster.
type BrokerInfo struct {
	ID   int32  `json:"id"`
	Addr string `json:"addr"`
	Rack string `json:"rack,omitempty"`
}

// TopicInfo summarizes one topic.
type TopicInfo struct {
	Name              string `json:"name"`
	Partitions        int32  `json:"partitions"`
	ReplicationFactor int16  `json:"replication_factor"`
	Internal          bool   `json:"internal,omitempty"`
}

// sortMetadata puts brokers in id order and topics in name order so listings
// come out the same regardless of engine or map iteration order.
func sortMetadata(md *ClusterMetadata) {
	sort.Slice(md.Brokers, func(i, j int) bool { return md.Brokers[i].ID < md.Brokers[j].ID })
	sort.Slice(md.Topics, func(i, j int) bool { return md.Topics[i].Name < md.Topics[j].Name })
}
