package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/neverchanje/kafcat/internal/config"
	"github.com/neverchanje/kafcat/internal/format"
	"github.com/neverchanje/kafcat/internal/kafka"
	"github.com/neverchanje/kafcat/internal/logging"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

const (
	defaultBroker    = "localhost:9092"
	defaultGroupID   = "kafcat"
	produceQueueSize = 256
)

// errCountReached stops a stream once --count messages were consumed. It
// never escapes runConsume.
var errCountReached = errors.New("message count reached")

func main() {
	logging.Init(false)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		// After the first signal cancels ctx, restore default handling so a
		// second signal terminates immediately.
		<-ctx.Done()
		stop()
	}()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		// An interrupt mid-stream is a normal way to stop tailing.
		if errors.Is(err, context.Canceled) {
			return
		}
		slog.Error("command failed", "error", err)
		_, _ = fmt.Fprintf(os.Stderr, "Tip: Use 'kafcat --help' for usage information.\n")
		os.Exit(1)
	}
}

// connOptions are the connection flags shared by every command that talks to
// a cluster.
type connOptions struct {
	brokers          []string
	engine           string
	securityProtocol string
	tlsCA            string
	tlsCert          string
	tlsKey           string
}

func addConnFlags(cmd *cobra.Command, opts *connOptions) {
	flags := cmd.Flags()
	flags.StringSliceVarP(&opts.brokers, "brokers", "b", nil, "Kafka brokers (host:port, comma-separated)")
	flags.StringVar(&opts.engine, "engine", "", "Client engine (franz|sarama)")
	flags.StringVar(&opts.securityProtocol, "security-protocol", "", "Security protocol (plaintext|ssl)")
	flags.StringVar(&opts.tlsCA, "tls-ca", "", "Path to TLS CA certificate")
	flags.StringVar(&opts.tlsCert, "tls-cert", "", "Path to TLS client certificate")
	flags.StringVar(&opts.tlsKey, "tls-key", "", "Path to TLS client private key")
}

func (o connOptions) authConfig() (kafka.AuthConfig, error) {
	brokers := o.brokers
	if len(brokers) == 0 {
		brokers = []string{defaultBroker}
	}

	protocol, err := kafka.ParseSecurityProtocol(o.securityProtocol)
	if err != nil {
		return kafka.AuthConfig{}, err
	}

	auth := kafka.AuthConfig{Brokers: brokers, Protocol: protocol}
	if o.tlsCA != "" || o.tlsCert != "" || o.tlsKey != "" {
		auth.TLS = &kafka.TLSPaths{CAFile: o.tlsCA, CertFile: o.tlsCert, KeyFile: o.tlsKey}
	}
	return auth, nil
}

func newRootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:           "kafcat",
		Short:         "kafcat reads and writes Kafka topics from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Init(verbose)
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(newConsumeCmd())
	cmd.AddCommand(newProduceCmd())
	cmd.AddCommand(newCopyCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newCreateTopicCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(out, "version: %s\n", Version); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(out, "commit:  %s\n", GitCommit); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(out, "date:    %s\n", BuildDate); err != nil {
				return err
			}
			return nil
		},
	}
}

type consumeOptions struct {
	conn      connOptions
	topic     string
	group     string
	partition int32
	offset    string
	exit      bool
	count     int
	format    string
	keyDelim  string
	msgDelim  string
}

func newConsumeCmd() *cobra.Command {
	var opts consumeOptions

	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Consume messages from a topic partition and print them to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := resolveConsumeOptions(cmd, opts)
			if err != nil {
				return err
			}
			return runConsume(cmd, resolved)
		},
	}

	addConnFlags(cmd, &opts.conn)
	flags := cmd.Flags()
	flags.StringVarP(&opts.topic, "topic", "t", "", "Topic to consume from")
	flags.StringVarP(&opts.group, "group-id", "g", defaultGroupID, "Consumer group id")
	flags.Int32VarP(&opts.partition, "partition", "p", 0, "Partition to consume from")
	flags.StringVarP(&opts.offset, "offset", "o", "beginning", "Start offset (beginning|end|stored|<n>|-<n>|<b>..<e>|s@<ms>..e@<ms>)")
	flags.BoolVarP(&opts.exit, "exit", "e", false, "Exit once the partition is drained")
	flags.IntVarP(&opts.count, "count", "c", 0, "Exit after consuming this many messages")
	flags.StringVar(&opts.format, "format", "text", "Output format (text|json)")
	flags.StringVarP(&opts.keyDelim, "key-delimiter", "K", "", "Delimiter between key and payload")
	flags.StringVarP(&opts.msgDelim, "msg-delimiter", "D", "\n", "Delimiter between messages")

	if err := cmd.MarkFlagRequired("topic"); err != nil {
		panic(err)
	}

	return cmd
}

func resolveConsumeOptions(cmd *cobra.Command, opts consumeOptions) (consumeOptions, error) {
	cfg, cfgPath, err := config.Load()
	if err != nil {
		return opts, err
	}
	if cfg != nil {
		slog.Debug("loaded defaults from config", "path", cfgPath)
		opts.conn = applyConnDefaults(cmd, opts.conn, cfg)
		if !flagChanged(cmd, "group-id") && strings.TrimSpace(cfg.GroupID) != "" {
			opts.group = cfg.GroupID
		}
		if !flagChanged(cmd, "format") && strings.TrimSpace(cfg.Format) != "" {
			opts.format = cfg.Format
		}
		if !flagChanged(cmd, "exit") && cfg.ExitOnDone != nil {
			opts.exit = *cfg.ExitOnDone
		}
	}

	return opts, nil
}

func runConsume(cmd *cobra.Command, opts consumeOptions) error {
	start := time.Now()

	spec, err := kafka.ParseOffsetSpec(opts.offset)
	if err != nil {
		return err
	}
	formatter, err := format.New(cmd.OutOrStdout(), opts.format, opts.keyDelim, opts.msgDelim)
	if err != nil {
		return err
	}
	auth, err := opts.conn.authConfig()
	if err != nil {
		return err
	}
	engine, err := kafka.LookupEngine(opts.conn.engine)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	consumer, err := engine.NewConsumer(ctx, kafka.ConsumerConfig{
		Auth:       auth,
		GroupID:    opts.group,
		Topic:      opts.topic,
		Partition:  opts.partition,
		ExitOnDone: opts.exit,
	})
	if err != nil {
		return err
	}
	defer closeQuietly(consumer, "consumer")

	if err := consumer.Assign(ctx, spec); err != nil {
		return err
	}

	slog.Debug("consuming",
		"engine", engine.Name(),
		"topic", opts.topic,
		"partition", opts.partition,
		"offset", spec.String(),
	)

	received := 0
	if opts.count == 1 && !opts.exit {
		// A plain single-message wait needs no stream. With --exit the
		// stream path supplies the idle cutoff.
		msg, err := consumer.ReceiveOne(ctx)
		if err != nil {
			return err
		}
		if err := formatter.Write(msg); err != nil {
			return err
		}
		received++
	} else {
		err := kafka.ForEach(ctx, consumer, func(_ context.Context, msg kafka.Message) error {
			if err := formatter.Write(msg); err != nil {
				return err
			}
			received++
			if opts.count > 0 && received >= opts.count {
				return errCountReached
			}
			return nil
		})
		if err != nil && !errors.Is(err, errCountReached) {
			return err
		}
	}

	slog.Debug("consume finished", "messages", received, "duration", time.Since(start))
	return nil
}

type produceOptions struct {
	conn     connOptions
	topic    string
	key      string
	keyDelim string
	msgDelim string
}

func newProduceCmd() *cobra.Command {
	var opts produceOptions

	cmd := &cobra.Command{
		Use:   "produce",
		Short: "Read records from stdin and produce them to a topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := resolveProduceOptions(cmd, opts)
			if err != nil {
				return err
			}
			return runProduce(cmd, resolved)
		},
	}

	addConnFlags(cmd, &opts.conn)
	flags := cmd.Flags()
	flags.StringVarP(&opts.topic, "topic", "t", "", "Topic to produce to")
	flags.StringVarP(&opts.key, "key", "k", "", "Static key attached to every message")
	flags.StringVarP(&opts.keyDelim, "key-delimiter", "K", "", "Delimiter between key and payload in the input")
	flags.StringVarP(&opts.msgDelim, "msg-delimiter", "D", "\n", "Delimiter between input records")

	if err := cmd.MarkFlagRequired("topic"); err != nil {
		panic(err)
	}

	return cmd
}

func resolveProduceOptions(cmd *cobra.Command, opts produceOptions) (produceOptions, error) {
	cfg, cfgPath, err := config.Load()
	if err != nil {
		return opts, err
	}
	if cfg != nil {
		slog.Debug("loaded defaults from config", "path", cfgPath)
		opts.conn = applyConnDefaults(cmd, opts.conn, cfg)
	}

	return opts, nil
}

func runProduce(cmd *cobra.Command, opts produceOptions) error {
	start := time.Now()

	auth, err := opts.conn.authConfig()
	if err != nil {
		return err
	}
	engine, err := kafka.LookupEngine(opts.conn.engine)
	if err != nil {
		return err
	}

	producer, err := engine.NewProducer(cmd.Context(), kafka.ProducerConfig{Auth: auth, Topic: opts.topic})
	if err != nil {
		return err
	}
	defer closeQuietly(producer, "producer")

	var staticKey []byte
	if opts.key != "" {
		staticKey = []byte(opts.key)
	}
	scanner := format.NewScanner(cmd.InOrStdin(), format.ScanConfig{
		MsgDelimiter: opts.msgDelim,
		KeyDelimiter: opts.keyDelim,
		Key:          staticKey,
	})

	slog.Debug("producing", "engine", engine.Name(), "topic", opts.topic)

	msgs := make(chan kafka.Message, produceQueueSize)
	group, ctx := errgroup.WithContext(cmd.Context())

	group.Go(func() error {
		defer close(msgs)
		for {
			msg, err := scanner.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			select {
			case msgs <- msg:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	var sent int
	group.Go(func() error {
		for msg := range msgs {
			if err := writeWithRetry(ctx, producer, msg); err != nil {
				return err
			}
			sent++
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		return err
	}

	slog.Debug("produce finished", "messages", sent, "duration", time.Since(start))
	return nil
}

type copyOptions struct {
	conn      connOptions
	fromTopic string
	toTopic   string
	toBrokers []string
	group     string
	partition int32
	offset    string
	exit      bool
}

func newCopyCmd() *cobra.Command {
	var opts copyOptions

	cmd := &cobra.Command{
		Use:   "copy",
		Short: "Copy messages from one topic partition to another topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := resolveCopyOptions(cmd, opts)
			if err != nil {
				return err
			}
			return runCopy(cmd, resolved)
		},
	}

	addConnFlags(cmd, &opts.conn)
	flags := cmd.Flags()
	flags.StringVar(&opts.fromTopic, "from-topic", "", "Topic to copy from")
	flags.StringVar(&opts.toTopic, "to-topic", "", "Topic to copy to")
	flags.StringSliceVar(&opts.toBrokers, "to-brokers", nil, "Destination brokers (defaults to the source brokers)")
	flags.StringVarP(&opts.group, "group-id", "g", defaultGroupID, "Consumer group id")
	flags.Int32VarP(&opts.partition, "partition", "p", 0, "Partition to copy from")
	flags.StringVarP(&opts.offset, "offset", "o", "beginning", "Start offset (beginning|end|stored|<n>|-<n>|<b>..<e>|s@<ms>..e@<ms>)")
	flags.BoolVarP(&opts.exit, "exit", "e", false, "Exit once the source partition is drained")

	for _, name := range []string{"from-topic", "to-topic"} {
		if err := cmd.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}

	return cmd
}

func resolveCopyOptions(cmd *cobra.Command, opts copyOptions) (copyOptions, error) {
	cfg, cfgPath, err := config.Load()
	if err != nil {
		return opts, err
	}
	if cfg != nil {
		slog.Debug("loaded defaults from config", "path", cfgPath)
		opts.conn = applyConnDefaults(cmd, opts.conn, cfg)
		if !flagChanged(cmd, "group-id") && strings.TrimSpace(cfg.GroupID) != "" {
			opts.group = cfg.GroupID
		}
		if !flagChanged(cmd, "exit") && cfg.ExitOnDone != nil {
			opts.exit = *cfg.ExitOnDone
		}
	}

	return opts, nil
}

func runCopy(cmd *cobra.Command, opts copyOptions) error {
	start := time.Now()

	spec, err := kafka.ParseOffsetSpec(opts.offset)
	if err != nil {
		return err
	}
	auth, err := opts.conn.authConfig()
	if err != nil {
		return err
	}
	engine, err := kafka.LookupEngine(opts.conn.engine)
	if err != nil {
		return err
	}

	destConn := opts.conn
	if len(opts.toBrokers) > 0 {
		destConn.brokers = opts.toBrokers
	}
	destAuth, err := destConn.authConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	consumer, err := engine.NewConsumer(ctx, kafka.ConsumerConfig{
		Auth:       auth,
		GroupID:    opts.group,
		Topic:      opts.fromTopic,
		Partition:  opts.partition,
		ExitOnDone: opts.exit,
	})
	if err != nil {
		return err
	}
	defer closeQuietly(consumer, "consumer")

	producer, err := engine.NewProducer(ctx, kafka.ProducerConfig{Auth: destAuth, Topic: opts.toTopic})
	if err != nil {
		return err
	}
	defer closeQuietly(producer, "producer")

	if err := consumer.Assign(ctx, spec); err != nil {
		return err
	}

	slog.Debug("copying",
		"engine", engine.Name(),
		"from", opts.fromTopic,
		"to", opts.toTopic,
		"partition", opts.partition,
		"offset", spec.String(),
	)

	copied := 0
	err = kafka.ForEach(ctx, consumer, func(ctx context.Context, msg kafka.Message) error {
		if err := writeWithRetry(ctx, producer, msg); err != nil {
			return err
		}
		copied++
		return nil
	})
	if err != nil {
		return err
	}

	slog.Debug("copy finished", "messages", copied, "duration", time.Since(start))
	return nil
}

type queryOptions struct {
	conn      connOptions
	topic     string
	partition int32
}

func newQueryCmd() *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print the low and high watermark offsets of a topic partition",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := resolveQueryOptions(cmd, opts)
			if err != nil {
				return err
			}
			return runQuery(cmd, resolved)
		},
	}

	addConnFlags(cmd, &opts.conn)
	flags := cmd.Flags()
	flags.StringVarP(&opts.topic, "topic", "t", "", "Topic to query")
	flags.Int32VarP(&opts.partition, "partition", "p", 0, "Partition to query")

	if err := cmd.MarkFlagRequired("topic"); err != nil {
		panic(err)
	}

	return cmd
}

func resolveQueryOptions(cmd *cobra.Command, opts queryOptions) (queryOptions, error) {
	cfg, cfgPath, err := config.Load()
	if err != nil {
		return opts, err
	}
	if cfg != nil {
		slog.Debug("loaded defaults from config", "path", cfgPath)
		opts.conn = applyConnDefaults(cmd, opts.conn, cfg)
	}

	return opts, nil
}

func runQuery(cmd *cobra.Command, opts queryOptions) error {
	auth, err := opts.conn.authConfig()
	if err != nil {
		return err
	}
	engine, err := kafka.LookupEngine(opts.conn.engine)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	consumer, err := engine.NewConsumer(ctx, kafka.ConsumerConfig{
		Auth:      auth,
		Topic:     opts.topic,
		Partition: opts.partition,
	})
	if err != nil {
		return err
	}
	defer closeQuietly(consumer, "consumer")

	low, high, err := consumer.Watermarks(ctx)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "topic %s partition %d: low %d high %d\n", opts.topic, opts.partition, low, high)
	return err
}

type listOptions struct {
	conn   connOptions
	topic  string
	format string
}

func newListCmd() *cobra.Command {
	var opts listOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the cluster's brokers and topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := resolveListOptions(cmd, opts)
			if err != nil {
				return err
			}
			return runList(cmd, resolved)
		},
	}

	addConnFlags(cmd, &opts.conn)
	flags := cmd.Flags()
	flags.StringVarP(&opts.topic, "topic", "t", "", "List only this topic")
	flags.StringVar(&opts.format, "format", "text", "Output format (text|json)")

	return cmd
}

func resolveListOptions(cmd *cobra.Command, opts listOptions) (listOptions, error) {
	cfg, cfgPath, err := config.Load()
	if err != nil {
		return opts, err
	}
	if cfg != nil {
		slog.Debug("loaded defaults from config", "path", cfgPath)
		opts.conn = applyConnDefaults(cmd, opts.conn, cfg)
		if !flagChanged(cmd, "format") && strings.TrimSpace(cfg.Format) != "" {
			opts.format = cfg.Format
		}
	}

	return opts, nil
}

func runList(cmd *cobra.Command, opts listOptions) error {
	switch opts.format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown format %q (expected text or json)", opts.format)
	}

	auth, err := opts.conn.authConfig()
	if err != nil {
		return err
	}
	engine, err := kafka.LookupEngine(opts.conn.engine)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	admin, err := engine.NewAdmin(ctx, auth)
	if err != nil {
		return err
	}
	defer closeQuietly(admin, "admin")

	var topics []string
	if opts.topic != "" {
		topics = append(topics, opts.topic)
	}
	md, err := admin.Metadata(ctx, topics...)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(md)
	}
	return printMetadata(cmd.OutOrStdout(), md)
}

// printMetadata renders the listing in kafkacat's -L layout: brokers first,
// then topics with partition counts.
func printMetadata(w io.Writer, md *kafka.ClusterMetadata) error {
	if _, err := fmt.Fprintf(w, "%d brokers:\n", len(md.Brokers)); err != nil {
		return err
	}
	for _, b := range md.Brokers {
		line := fmt.Sprintf("  broker %d at %s", b.ID, b.Addr)
		if b.Rack != "" {
			line += fmt.Sprintf(" (rack %s)", b.Rack)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(w, "%d topics:\n", len(md.Topics)); err != nil {
		return err
	}
	for _, topic := range md.Topics {
		line := fmt.Sprintf("  topic %q: %d partitions, replication %d", topic.Name, topic.Partitions, topic.ReplicationFactor)
		if topic.Internal {
			line += " (internal)"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

type createTopicOptions struct {
	conn       connOptions
	topic      string
	partitions int32
}

func newCreateTopicCmd() *cobra.Command {
	var opts createTopicOptions

	cmd := &cobra.Command{
		Use:   "create-topic",
		Short: "Create a topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := resolveCreateTopicOptions(cmd, opts)
			if err != nil {
				return err
			}
			return runCreateTopic(cmd, resolved)
		},
	}

	addConnFlags(cmd, &opts.conn)
	flags := cmd.Flags()
	flags.StringVarP(&opts.topic, "topic", "t", "", "Topic to create")
	flags.Int32Var(&opts.partitions, "partitions", 1, "Number of partitions")

	if err := cmd.MarkFlagRequired("topic"); err != nil {
		panic(err)
	}

	return cmd
}

func resolveCreateTopicOptions(cmd *cobra.Command, opts createTopicOptions) (createTopicOptions, error) {
	cfg, cfgPath, err := config.Load()
	if err != nil {
		return opts, err
	}
	if cfg != nil {
		slog.Debug("loaded defaults from config", "path", cfgPath)
		opts.conn = applyConnDefaults(cmd, opts.conn, cfg)
	}

	return opts, nil
}

func runCreateTopic(cmd *cobra.Command, opts createTopicOptions) error {
	if opts.partitions < 1 {
		return errors.New("partitions must be at least 1")
	}

	auth, err := opts.conn.authConfig()
	if err != nil {
		return err
	}
	engine, err := kafka.LookupEngine(opts.conn.engine)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	admin, err := engine.NewAdmin(ctx, auth)
	if err != nil {
		return err
	}
	defer closeQuietly(admin, "admin")

	if err := admin.CreateTopic(ctx, opts.topic, opts.partitions); err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "created topic %q with %d partitions\n", opts.topic, opts.partitions)
	return err
}

func applyConnDefaults(cmd *cobra.Command, opts connOptions, cfg *config.Config) connOptions {
	if !flagChanged(cmd, "brokers") && len(opts.brokers) == 0 && len(cfg.Brokers) > 0 {
		opts.brokers = append([]string(nil), cfg.Brokers...)
	}
	if !flagChanged(cmd, "engine") && strings.TrimSpace(opts.engine) == "" && strings.TrimSpace(cfg.Engine) != "" {
		opts.engine = cfg.Engine
	}
	if !flagChanged(cmd, "security-protocol") && strings.TrimSpace(opts.securityProtocol) == "" && strings.TrimSpace(cfg.SecurityProtocol) != "" {
		opts.securityProtocol = cfg.SecurityProtocol
	}
	if !flagChanged(cmd, "tls-ca") && opts.tlsCA == "" && cfg.TLSCAFile != "" {
		opts.tlsCA = cfg.TLSCAFile
	}
	if !flagChanged(cmd, "tls-cert") && opts.tlsCert == "" && cfg.TLSCertFile != "" {
		opts.tlsCert = cfg.TLSCertFile
	}
	if !flagChanged(cmd, "tls-key") && opts.tlsKey == "" && cfg.TLSKeyFile != "" {
		opts.tlsKey = cfg.TLSKeyFile
	}

	return opts
}

func flagChanged(cmd *cobra.Command, name string) bool {
	if cmd == nil {
		return false
	}

	flag := cmd.Flags().Lookup(name)
	if flag == nil {
		return false
	}

	return flag.Changed
}

// writeWithRetry sends one message, retrying transient broker failures with
// exponential backoff. Configuration and connection errors are permanent.
func writeWithRetry(ctx context.Context, producer kafka.Producer, msg kafka.Message) error {
	operation := func() error {
		err := producer.WriteOne(ctx, msg)
		if err == nil {
			return nil
		}
		if errors.Is(err, kafka.ErrBroker) {
			return err
		}
		return backoff.Permanent(err)
	}

	notify := func(err error, wait time.Duration) {
		slog.Warn("write failed, retrying", "error", err, "backoff", wait)
	}

	return backoff.RetryNotify(operation, newProduceBackoff(ctx), notify)
}

func newProduceBackoff(ctx context.Context) backoff.BackOffContext {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = 15 * time.Second
	return backoff.WithContext(policy, ctx)
}

func closeQuietly(c io.Closer, what string) {
	if err := c.Close(); err != nil {
		slog.Warn("close "+what, "error", err)
	}
}
