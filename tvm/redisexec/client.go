// Package redisexec reaches the tracing executor service over a Redis work
// queue: tasks are pushed msgpack-encoded, results come back through a pubsub
// channel plus a result hash keyed by task id.
package redisexec

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tvmlabs/tonctl/internal/logz"
	"github.com/tvmlabs/tonctl/tvm"
)

const (
	resultChannelPrefix = "result_channel_"
	resultHsetPrefix    = "result_hset_"
	errorChannelPrefix  = "error_channel_"
)

// Config holds the queue settings.
type Config struct {
	Addr    string
	Queue   string
	Timeout time.Duration
}

// DefaultConfig returns the settings a local executor service listens on.
func DefaultConfig() Config {
	return Config{
		Addr:    "localhost:6379",
		Queue:   "emulator_tasks",
		Timeout: 30 * time.Second,
	}
}

// Client submits execution tasks to the queue and waits for their results.
// It implements tvm.Executor.
type Client struct {
	rdb     *redis.Client
	queue   string
	timeout time.Duration
	logger  *logz.Logger
}

var _ tvm.Executor = (*Client)(nil)

// New creates a queue-backed executor client.
func New(cfg Config) (*Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("executor queue address cannot be empty")
	}
	if cfg.Queue == "" {
		return nil, fmt.Errorf("executor queue name cannot be empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		rdb:     redis.NewClient(&redis.Options{Addr: cfg.Addr}),
		queue:   cfg.Queue,
		timeout: timeout,
		logger:  logz.New(logz.INFO, "redisexec"),
	}, nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// task is the wire form of one queued execution. Tags are part of the
// executor service protocol.
type task struct {
	ID               string `msgpack:"id"`
	BOC              string `msgpack:"boc"`
	IgnoreChksig     bool   `msgpack:"ignore_chksig"`
	AccountBOC       string `msgpack:"account_boc"`
	ConfigBOC        string `msgpack:"config_boc"`
	Placeholder      bool   `msgpack:"placeholder"`
	UnlimitedBalance bool   `msgpack:"unlimited_balance"`
	Addr             string `msgpack:"addr"`
	Now              uint32 `msgpack:"now"`
	Lt               uint64 `msgpack:"lt"`
	TraceLevel       int    `msgpack:"trace_level"`
}

// Run pushes the task and blocks until the executor publishes a result or
// the timeout elapses.
func (c *Client) Run(ctx context.Context, params tvm.RunParams) (*tvm.Result, error) {
	if len(params.MessageBOC) == 0 {
		return nil, fmt.Errorf("message BOC cannot be empty")
	}
	if params.Account.Placeholder && params.Account.Addr == "" {
		return nil, fmt.Errorf("placeholder account requires an address")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	taskID, err := generateTaskID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate task id: %w", err)
	}

	t := task{
		ID:               taskID,
		BOC:              base64.StdEncoding.EncodeToString(params.MessageBOC),
		IgnoreChksig:     params.IgnoreChksig,
		AccountBOC:       base64.StdEncoding.EncodeToString(params.Account.BOC),
		ConfigBOC:        base64.StdEncoding.EncodeToString(params.ConfigBOC),
		Placeholder:      params.Account.Placeholder,
		UnlimitedBalance: params.Account.UnlimitedBalance,
		Addr:             params.Account.Addr,
		Now:              params.Now,
		Lt:               params.LT,
		TraceLevel:       int(params.Trace),
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseArrayEncodedStructs(false)
	if err := enc.Encode(t); err != nil {
		return nil, fmt.Errorf("failed to serialize task: %w", err)
	}

	// Subscribe before pushing so a fast executor cannot publish into the
	// gap.
	pubsub := c.rdb.Subscribe(ctx, resultChannelPrefix+taskID)
	defer pubsub.Close()

	if err := c.rdb.LPush(ctx, c.queue, buf.Bytes()).Err(); err != nil {
		return nil, fmt.Errorf("failed to push task to queue: %w", err)
	}
	c.logger.Debug("task %s queued (%d bytes)", taskID, buf.Len())

	msg, err := pubsub.ReceiveMessage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to receive executor result: %w", err)
	}

	switch msg.Payload {
	case "success":
	case "error":
		errMsg, err := c.rdb.Get(ctx, errorChannelPrefix+taskID).Result()
		if err != nil {
			return nil, fmt.Errorf("executor reported an error but none could be read: %w", err)
		}
		return nil, fmt.Errorf("executor error: %s", errMsg)
	default:
		return nil, fmt.Errorf("unexpected executor reply: %s", msg.Payload)
	}

	hset, err := c.rdb.HGetAll(ctx, resultHsetPrefix+taskID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read executor result: %w", err)
	}

	return decodeResult(hset)
}

// decodeResult unpacks the result hash: the transaction under its root-node
// key and newline-free trace lines under numbered trace keys.
func decodeResult(hset map[string]string) (*tvm.Result, error) {
	rootKey, ok := hset["root_node"]
	if !ok {
		return nil, fmt.Errorf("executor result has no root node")
	}
	raw := []byte(hset[rootKey])
	if len(raw) == 0 {
		return nil, fmt.Errorf("executor result root node %q is empty", rootKey)
	}

	var node struct {
		Transaction tvm.Transaction `msgpack:"transaction"`
		Emulated    bool            `msgpack:"emulated"`
	}
	if err := msgpack.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("failed to unmarshal executor transaction: %w", err)
	}

	result := &tvm.Result{Transaction: &node.Transaction}

	for i := 0; ; i++ {
		line, ok := hset[fmt.Sprintf("trace_%d", i)]
		if !ok {
			break
		}
		result.TraceLines = append(result.TraceLines, line)
	}

	return result, nil
}

const taskIDLetters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

func generateTaskID() (string, error) {
	b := make([]byte, 10)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(taskIDLetters))))
		if err != nil {
			return "", err
		}
		b[i] = taskIDLetters[n.Int64()]
	}
	return string(b), nil
}
