package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// franzEngine binds the capability set to the franz-go client.
type franzEngine struct{}

// Franz is the franz-go engine binding, the default engine.
var Franz Interface = franzEngine{}

func init() { register(Franz) }

func (franzEngine) Name() string { return "franz" }

func (franzEngine) NewConsumer(ctx context.Context, cfg ConsumerConfig) (Consumer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	params, err := BuildClientParams(cfg.Auth)
	if err != nil {
		return nil, err
	}

	// No group option: partitions are consumed directly and nothing is ever
	// committed, so no group session is formed. The group id only feeds
	// stored-offset resolution.
	client, err := newFranzClient(params)
	if err != nil {
		return nil, err
	}
	if err := pingFranz(ctx, client); err != nil {
		client.Close()
		return nil, err
	}

	return newFranzConsumer(client, cfg), nil
}

func (franzEngine) NewProducer(ctx context.Context, cfg ProducerConfig) (Producer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	params, err := BuildClientParams(cfg.Auth)
	if err != nil {
		return nil, err
	}

	client, err := newFranzClient(params,
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RecordDeliveryTimeout(MessageTimeout),
	)
	if err != nil {
		return nil, err
	}
	if err := pingFranz(ctx, client); err != nil {
		client.Close()
		return nil, err
	}

	return &franzProducer{client: client, topic: cfg.Topic}, nil
}

func (franzEngine) NewAdmin(ctx context.Context, auth AuthConfig) (Admin, error) {
	params, err := BuildClientParams(auth)
	if err != nil {
		return nil, err
	}

	client, err := newFranzClient(params)
	if err != nil {
		return nil, err
	}
	if err := pingFranz(ctx, client); err != nil {
		client.Close()
		return nil, err
	}

	return &franzAdmin{client: client, adm: kadm.NewClient(client)}, nil
}

func newFranzClient(params ClientParams, extra ...kgo.Opt) (*kgo.Client, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(params.Brokers...),
		kgo.ClientID("kafcat"),
	}
	if params.UseTLS {
		tlsConfig, err := newTLSConfig(params.TLS)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConnect, err)
		}
		opts = append(opts, kgo.DialTLSConfig(tlsConfig))
	}
	opts = append(opts, extra...)

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: create client: %w", ErrConnect, err)
	}
	return client, nil
}

// pingFranz verifies connectivity once at construction. kgo connects lazily,
// so without this a misconfigured broker list would only surface on the
// first operation.
func pingFranz(ctx context.Context, client *kgo.Client) error {
	ctx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}
	return nil
}

// isFranzAuthErr reports authentication and authorization failures, plus the
// first-read EOF kgo raises when a TLS client hits a plaintext port. These
// are permanent; retrying cannot help.
func isFranzAuthErr(err error) bool {
	var ke *kerr.Error
	if errors.As(err, &ke) {
		switch ke {
		case kerr.SaslAuthenticationFailed,
			kerr.UnsupportedSaslMechanism,
			kerr.IllegalSaslState,
			kerr.TopicAuthorizationFailed,
			kerr.ClusterAuthorizationFailed,
			kerr.GroupAuthorizationFailed:
			return true
		}
	}

	var eof *kgo.ErrFirstReadEOF
	return errors.As(err, &eof)
}

// wrapFranzErr maps an engine failure into the error taxonomy: permanent
// auth failures become ErrConnect so callers do not retry them, everything
// else is a broker round-trip failure.
func wrapFranzErr(op string, err error) error {
	if isFranzAuthErr(err) {
		return fmt.Errorf("%w: %s: %w", ErrConnect, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrBroker, op, err)
}

type franzProducer struct {
	client *kgo.Client
	topic  string
}

func (p *franzProducer) WriteOne(ctx context.Context, msg Message) error {
	if err := p.client.ProduceSync(ctx, franzRecord(p.topic, msg)).FirstErr(); err != nil {
		return wrapFranzErr(fmt.Sprintf("produce to %q", p.topic), err)
	}
	return nil
}

// franzRecord builds the outgoing record. Zero-length key and payload are
// omitted entirely; headers are attached in a stable order.
func franzRecord(topic string, msg Message) *kgo.Record {
	rec := &kgo.Record{Topic: topic}
	if len(msg.Key) > 0 {
		rec.Key = msg.Key
	}
	if len(msg.Payload) > 0 {
		rec.Value = msg.Payload
	}
	for _, key := range headerKeys(msg.Headers) {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: key, Value: msg.Headers[key]})
	}
	return rec
}

func (p *franzProducer) Close() error {
	p.client.Close()
	return nil
}

type franzAdmin struct {
	client *kgo.Client
	adm    *kadm.Client
}

func (a *franzAdmin) CreateTopic(ctx context.Context, name string, partitions int32) error {
	resp, err := a.adm.CreateTopics(ctx, partitions, 1, nil, name)
	if err != nil {
		return wrapFranzErr(fmt.Sprintf("create topic %q", name), err)
	}
	if topic, ok := resp[name]; ok && topic.Err != nil {
		return wrapFranzErr(fmt.Sprintf("create topic %q", name), topic.Err)
	}
	return nil
}

func (a *franzAdmin) Metadata(ctx context.Context, topics ...string) (*ClusterMetadata, error) {
	meta, err := a.adm.Metadata(ctx, topics...)
	if err != nil {
		return nil, wrapFranzErr("fetch metadata", err)
	}
	return metadataFromKadm(meta)
}

// metadataFromKadm maps a kadm metadata response onto the engine-neutral
// shape. A topic-level error aborts the listing, so a filtered lookup of a
// missing topic fails instead of returning an empty entry.
func metadataFromKadm(meta kadm.Metadata) (*ClusterMetadata, error) {
	md := &ClusterMetadata{}
	for _, broker := range meta.Brokers {
		rack := ""
		if broker.Rack != nil {
			rack = *broker.Rack
		}
		md.Brokers = append(md.Brokers, BrokerInfo{
			ID:   broker.NodeID,
			Addr: net.JoinHostPort(broker.Host, strconv.Itoa(int(broker.Port))),
			Rack: rack,
		})
	}
	for name, detail := range meta.Topics {
		if detail.Err != nil {
			return nil, wrapFranzErr(fmt.Sprintf("describe topic %q", name), detail.Err)
		}
		var replication int16
		if p, ok := detail.Partitions[0]; ok {
			replication = int16(len(p.Replicas))
		}
		md.Topics = append(md.Topics, TopicInfo{
			Name:              name,
			Partitions:        int32(len(detail.Partitions)),
			ReplicationFactor: replication,
			Internal:          detail.IsInternal,
		})
	}
	sortMetadata(md)
	return md, nil
}

func (a *franzAdmin) Close() error {
	a.client.Close()
	return nil
}
