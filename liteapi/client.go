// Package liteapi talks to the chain through liteservers: account and config
// snapshots, message submission, and confirmation tracking.
package liteapi

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton"
	"github.com/xssnick/tonutils-go/tvm/cell"
	"golang.org/x/time/rate"

	"github.com/tvmlabs/tonctl/internal/logz"
)

// Config holds the liteserver connection settings.
type Config struct {
	// GlobalConfigURL points at the network's global config JSON.
	GlobalConfigURL string
	Timeout         time.Duration
	MaxRetries      int
	// RateLimit caps outgoing liteserver queries per second. Zero disables
	// the limiter.
	RateLimit int
}

// DefaultConfig returns mainnet-ready settings.
func DefaultConfig() Config {
	return Config{
		GlobalConfigURL: "https://ton.org/global.config.json",
		Timeout:         30 * time.Second,
		MaxRetries:      3,
		RateLimit:       10,
	}
}

// AccountSnapshot is the pre-submission view of one account.
type AccountSnapshot struct {
	// BOC is the serialized account state, empty when the account does not
	// exist.
	BOC      []byte
	Exists   bool
	Active   bool
	LastLT   uint64
	LastHash []byte
	Balance  *big.Int
}

// ConfirmedTransaction is the on-chain result of a submitted message.
type ConfirmedTransaction struct {
	Hash     []byte
	LT       uint64
	ExitCode int32
	Aborted  bool
	// OutputBodies holds the bodies of outbound external messages, where
	// return values travel.
	OutputBodies [][]byte
}

// Client is a liteserver-backed node client.
type Client struct {
	api        ton.APIClientWrapped
	limiter    *rate.Limiter
	timeout    time.Duration
	maxRetries int
	logger     *logz.Logger
}

// New connects a liteserver pool from the global network config.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.GlobalConfigURL == "" {
		return nil, fmt.Errorf("global config URL cannot be empty")
	}

	pool := liteclient.NewConnectionPool()
	if err := pool.AddConnectionsFromConfigUrl(ctx, cfg.GlobalConfigURL); err != nil {
		return nil, fmt.Errorf("failed to connect to liteservers: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &Client{
		api:        ton.NewAPIClient(pool).WithRetry(),
		limiter:    limiter,
		timeout:    timeout,
		maxRetries: maxRetries,
		logger:     logz.New(logz.INFO, "liteapi"),
	}, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// withRetry runs fn up to maxRetries times with linear backoff.
func (c *Client) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := c.wait(ctx); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt < c.maxRetries {
			c.logger.Warn("%s failed (attempt %d/%d): %v", op, attempt, c.maxRetries, err)
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: %w", op, ctx.Err())
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, c.maxRetries, lastErr)
}

// AccountState fetches the current state of addr at the latest masterchain
// block.
func (c *Client) AccountState(ctx context.Context, addr *address.Address) (*AccountSnapshot, error) {
	var snapshot *AccountSnapshot
	err := c.withRetry(ctx, "account state", func(ctx context.Context) error {
		master, err := c.api.CurrentMasterchainInfo(ctx)
		if err != nil {
			return fmt.Errorf("failed to get masterchain info: %w", err)
		}
		acc, err := c.api.GetAccount(ctx, master, addr)
		if err != nil {
			return fmt.Errorf("failed to get account: %w", err)
		}

		snapshot = &AccountSnapshot{
			Exists:   acc.IsActive || acc.State != nil,
			Active:   acc.IsActive,
			LastLT:   acc.LastTxLT,
			LastHash: acc.LastTxHash,
			Balance:  big.NewInt(0),
		}
		if acc.State != nil {
			snapshot.Balance = acc.State.Balance.Nano()
			stateCell, err := tlb.ToCell(*acc.State)
			if err != nil {
				return fmt.Errorf("failed to serialize account state: %w", err)
			}
			snapshot.BOC = stateCell.ToBOC()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// configParamIDs is the parameter set packed into config snapshots: global
// identity, fee schedules, gas and size limits for both workchain groups.
var configParamIDs = []int32{0, 1, 2, 4, 18, 20, 21, 24, 25, 31, 34}

// ConfigState fetches the blockchain config and packs the relevant
// parameters into a single dictionary cell.
func (c *Client) ConfigState(ctx context.Context) ([]byte, error) {
	var boc []byte
	err := c.withRetry(ctx, "config state", func(ctx context.Context) error {
		master, err := c.api.CurrentMasterchainInfo(ctx)
		if err != nil {
			return fmt.Errorf("failed to get masterchain info: %w", err)
		}
		cfg, err := c.api.GetBlockchainConfig(ctx, master)
		if err != nil {
			return fmt.Errorf("failed to get blockchain config: %w", err)
		}

		dict := cell.NewDict(32)
		for _, id := range configParamIDs {
			param := cfg.Get(id)
			if param == nil {
				continue
			}
			if err := dict.SetIntKey(big.NewInt(int64(id)), param); err != nil {
				return fmt.Errorf("failed to pack config param %d: %w", id, err)
			}
		}

		root := cell.BeginCell()
		if err := root.StoreDict(dict); err != nil {
			return fmt.Errorf("failed to pack config dictionary: %w", err)
		}
		boc = root.EndCell().ToBOC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return boc, nil
}

// SendMessage submits a serialized external-inbound message.
func (c *Client) SendMessage(ctx context.Context, msgBOC []byte) error {
	ext, err := parseExternalMessage(msgBOC)
	if err != nil {
		return err
	}
	return c.withRetry(ctx, "send message", func(ctx context.Context) error {
		return c.api.SendExternalMessage(ctx, ext)
	})
}

// WaitTransaction polls the destination account until a transaction consuming
// the message appears, or the deadline passes. expireAt bounds the wait: once
// the chain time moves past it with no transaction, the message is dead.
func (c *Client) WaitTransaction(ctx context.Context, msgBOC []byte, sinceLT uint64, expireAt uint32) (*ConfirmedTransaction, error) {
	ext, err := parseExternalMessage(msgBOC)
	if err != nil {
		return nil, err
	}
	msgCell, err := tlb.ToCell(ext)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild message cell: %w", err)
	}
	wantHash := msgCell.Hash()
	addr := ext.DstAddr

	return waitConfirmation(ctx, 2*time.Second, sinceLT, expireAt,
		func(ctx context.Context) (*AccountSnapshot, error) {
			return c.AccountState(ctx, addr)
		},
		func(ctx context.Context, lt uint64, hash []byte, stopLT uint64) (*ConfirmedTransaction, error) {
			return c.findTransaction(ctx, addr, lt, hash, stopLT, wantHash)
		})
}

// waitConfirmation is the poll loop behind WaitTransaction. The expiry check
// runs on every tick: a busy destination keeps changing its last LT, and the
// wait must still give up once the message is past saving.
func waitConfirmation(ctx context.Context, interval time.Duration, sinceLT uint64, expireAt uint32,
	fetch func(ctx context.Context) (*AccountSnapshot, error),
	find func(ctx context.Context, lt uint64, hash []byte, stopLT uint64) (*ConfirmedTransaction, error),
) (*ConfirmedTransaction, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastLT := sinceLT
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("confirmation wait: %w", ctx.Err())
		case <-ticker.C:
		}

		if expireAt > 0 && uint32(time.Now().Unix()) > expireAt+30 {
			return nil, fmt.Errorf("message expired at %d without a transaction", expireAt)
		}

		snapshot, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if snapshot.LastLT == lastLT {
			continue
		}

		tx, err := find(ctx, snapshot.LastLT, snapshot.LastHash, lastLT)
		if err != nil {
			return nil, err
		}
		if tx != nil {
			return tx, nil
		}
		lastLT = snapshot.LastLT
	}
}

// findTransaction walks transactions backwards from (lt, hash) until
// reaching the pre-submission point, looking for one whose inbound message
// matches wantHash.
func (c *Client) findTransaction(ctx context.Context, addr *address.Address, lt uint64, hash []byte, stopLT uint64, wantHash []byte) (*ConfirmedTransaction, error) {
	for lt > stopLT {
		var batch []*tlb.Transaction
		err := c.withRetry(ctx, "list transactions", func(ctx context.Context) error {
			var err error
			batch, err = c.api.ListTransactions(ctx, addr, 16, lt, hash)
			return err
		})
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			return nil, nil
		}

		// ListTransactions returns oldest first.
		for i := len(batch) - 1; i >= 0; i-- {
			tx := batch[i]
			if tx.LT <= stopLT {
				return nil, nil
			}
			if tx.IO.In == nil || tx.IO.In.Msg == nil {
				continue
			}
			inCell, err := tlb.ToCell(tx.IO.In.Msg)
			if err != nil {
				continue
			}
			if bytes.Equal(inCell.Hash(), wantHash) {
				return confirmedFromTx(tx)
			}
		}

		oldest := batch[0]
		lt, hash = oldest.PrevTxLT, oldest.PrevTxHash
	}
	return nil, nil
}

func confirmedFromTx(tx *tlb.Transaction) (*ConfirmedTransaction, error) {
	confirmed := &ConfirmedTransaction{
		Hash: tx.Hash,
		LT:   tx.LT,
	}

	if ord, ok := tx.Description.Description.(tlb.TransactionDescriptionOrdinary); ok {
		confirmed.Aborted = ord.Aborted
		if vm, ok := ord.ComputePhase.Phase.(tlb.ComputePhaseVM); ok {
			confirmed.ExitCode = vm.Details.ExitCode
		}
	}

	if tx.IO.Out != nil {
		outs, err := tx.IO.Out.ToSlice()
		if err == nil {
			for _, out := range outs {
				if out.MsgType != tlb.MsgTypeExternalOut {
					continue
				}
				body := out.Msg.Payload()
				if body != nil {
					confirmed.OutputBodies = append(confirmed.OutputBodies, body.ToBOC())
				}
			}
		}
	}

	return confirmed, nil
}

func parseExternalMessage(msgBOC []byte) (*tlb.ExternalMessage, error) {
	msgCell, err := cell.FromBOC(msgBOC)
	if err != nil {
		return nil, fmt.Errorf("invalid message BoC: %w", err)
	}
	var ext tlb.ExternalMessage
	if err := tlb.LoadFromCell(&ext, msgCell.BeginParse()); err != nil {
		return nil, fmt.Errorf("message is not an external-inbound message: %w", err)
	}
	return &ext, nil
}
