package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
)

// SubjectPrefix is followed by the job status, e.g. podcast.jobs.completed.
const SubjectPrefix = "podcast.jobs."

type natsConn interface {
	Publish(subject string, data []byte) error
}

// NATSForwarder publishes every event on a status-specific subject.
type NATSForwarder struct {
	conn   natsConn
	closer func()
}

type NATSOptions struct {
	Servers        []string
	Token          string
	ConnectTimeout time.Duration
}

func ConnectNATS(opts NATSOptions, logger *log.Logger) (*NATSForwarder, error) {
	if len(opts.Servers) == 0 {
		return nil, fmt.Errorf("no NATS servers configured")
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	options := []nats.Option{
		nats.Name("ai-podcaster"),
		nats.Timeout(opts.ConnectTimeout),
	}
	if opts.Token != "" {
		options = append(options, nats.Token(opts.Token))
	}

	url := strings.Join(opts.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	logger.Info("connected to NATS", "servers", url)
	return &NATSForwarder{conn: conn, closer: func() {
		_ = conn.Drain()
		conn.Close()
	}}, nil
}

func (f *NATSForwarder) Forward(_ context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return f.conn.Publish(SubjectPrefix+e.Status, data)
}

func (f *NATSForwarder) Close() {
	if f != nil && f.closer != nil {
		f.closer()
	}
}
