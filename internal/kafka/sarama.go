package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
)

// saramaEngine binds the capability set to the IBM sarama client.
type saramaEngine struct{}

// Sarama is the sarama engine binding.
var Sarama Interface = saramaEngine{}

func init() { register(Sarama) }

func (saramaEngine) Name() string { return "sarama" }

func (saramaEngine) NewConsumer(ctx context.Context, cfg ConsumerConfig) (Consumer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	params, err := BuildClientParams(cfg.Auth)
	if err != nil {
		return nil, err
	}
	saramaCfg, err := newSaramaConfig(params)
	if err != nil {
		return nil, err
	}

	// NewClient refreshes metadata eagerly, so an unreachable cluster fails
	// here rather than on the first operation.
	client, err := sarama.NewClient(params.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	return newSaramaConsumer(client, consumer, cfg), nil
}

func (saramaEngine) NewProducer(ctx context.Context, cfg ProducerConfig) (Producer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	params, err := BuildClientParams(cfg.Auth)
	if err != nil {
		return nil, err
	}
	saramaCfg, err := newSaramaConfig(params)
	if err != nil {
		return nil, err
	}

	client, err := sarama.NewClient(params.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	return &saramaProducer{client: client, producer: producer, topic: cfg.Topic}, nil
}

func (saramaEngine) NewAdmin(ctx context.Context, auth AuthConfig) (Admin, error) {
	params, err := BuildClientParams(auth)
	if err != nil {
		return nil, err
	}
	saramaCfg, err := newSaramaConfig(params)
	if err != nil {
		return nil, err
	}

	admin, err := sarama.NewClusterAdmin(params.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	return &saramaAdmin{admin: admin}, nil
}

// newSaramaConfig maps ClientParams onto a sarama configuration carrying the
// fixed engine parameters: no auto-commit, the standard session timeout, and
// a bounded producer delivery wait.
func newSaramaConfig(params ClientParams) (*sarama.Config, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = "kafcat"
	cfg.Version = sarama.V2_1_0_0

	cfg.Consumer.Offsets.AutoCommit.Enable = false
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cfg.Consumer.Group.Session.Timeout = SessionTimeout
	cfg.Consumer.Return.Errors = true

	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Timeout = MessageTimeout

	if params.UseTLS {
		tlsConfig, err := newTLSConfig(params.TLS)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConnect, err)
		}
		cfg.Net.TLS.Enable = true
		cfg.Net.TLS.Config = tlsConfig
	}

	return cfg, nil
}

// wrapSaramaErr maps a sarama failure into the error taxonomy: permanent
// auth failures become ErrConnect so callers do not retry them, everything
// else is a broker round-trip failure.
func wrapSaramaErr(op string, err error) error {
	switch {
	case errors.Is(err, sarama.ErrSASLAuthenticationFailed),
		errors.Is(err, sarama.ErrTopicAuthorizationFailed),
		errors.Is(err, sarama.ErrClusterAuthorizationFailed),
		errors.Is(err, sarama.ErrGroupAuthorizationFailed):
		return fmt.Errorf("%w: %s: %w", ErrConnect, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrBroker, op, err)
}

type saramaProducer struct {
	client   sarama.Client
	producer sarama.SyncProducer
	topic    string
}

func (p *saramaProducer) WriteOne(ctx context.Context, msg Message) error {
	// SendMessage has no context; honor an already-cancelled one up front.
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, _, err := p.producer.SendMessage(saramaRecord(p.topic, msg)); err != nil {
		return wrapSaramaErr(fmt.Sprintf("produce to %q", p.topic), err)
	}
	return nil
}

// saramaRecord builds the outgoing record. Zero-length key and payload are
// omitted entirely; headers are attached in a stable order.
func saramaRecord(topic string, msg Message) *sarama.ProducerMessage {
	rec := &sarama.ProducerMessage{Topic: topic}
	if len(msg.Key) > 0 {
		rec.Key = sarama.ByteEncoder(msg.Key)
	}
	if len(msg.Payload) > 0 {
		rec.Value = sarama.ByteEncoder(msg.Payload)
	}
	for _, key := range headerKeys(msg.Headers) {
		rec.Headers = append(rec.Headers, sarama.RecordHeader{Key: []byte(key), Value: msg.Headers[key]})
	}
	return rec
}

func (p *saramaProducer) Close() error {
	var errs []error
	if err := p.producer.Close(); err != nil {
		errs = append(errs, err)
	}
	if p.client != nil {
		if err := p.client.Close(); err != nil && !errors.Is(err, sarama.ErrClosedClient) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type saramaAdmin struct {
	admin sarama.ClusterAdmin
}

func (a *saramaAdmin) CreateTopic(ctx context.Context, name string, partitions int32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	detail := &sarama.TopicDetail{NumPartitions: partitions, ReplicationFactor: 1}
	if err := a.admin.CreateTopic(name, detail, false); err != nil {
		return wrapSaramaErr(fmt.Sprintf("create topic %q", name), err)
	}
	return nil
}

func (a *saramaAdmin) Metadata(ctx context.Context, topics ...string) (*ClusterMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	brokers, _, err := a.admin.DescribeCluster()
	if err != nil {
		return nil, wrapSaramaErr("fetch metadata", err)
	}
	md := &ClusterMetadata{}
	for _, broker := range brokers {
		md.Brokers = append(md.Brokers, BrokerInfo{ID: broker.ID(), Addr: broker.Addr(), Rack: broker.Rack()})
	}

	if len(topics) == 0 {
		listed, err := a.admin.ListTopics()
		if err != nil {
			return nil, wrapSaramaErr("list topics", err)
		}
		for name := range listed {
			topics = append(topics, name)
		}
	}
	if len(topics) > 0 {
		metas, err := a.admin.DescribeTopics(topics)
		if err != nil {
			return nil, wrapSaramaErr("describe topics", err)
		}
		for _, topic := range metas {
			if topic.Err != sarama.ErrNoError {
				return nil, wrapSaramaErr(fmt.Sprintf("describe topic %q", topic.Name), topic.Err)
			}
			var replication int16
			if len(topic.Partitions) > 0 {
				replication = int16(len(topic.Partitions[0].Replicas))
			}
			md.Topics = append(md.Topics, TopicInfo{
				Name:              topic.Name,
				Partitions:        int32(len(topic.Partitions)),
				ReplicationFactor: replication,
				Internal:          topic.IsInternal,
			})
		}
	}

	sortMetadata(md)
	return md, nil
}

func (a *saramaAdmin) Close() error {
	return a.admin.Close()
}
