package main

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tvmlabs/tonctl/abi"
	"github.com/tvmlabs/tonctl/governance"
	"github.com/tvmlabs/tonctl/internal/config"
	"github.com/tvmlabs/tonctl/internal/keys"
	"github.com/tvmlabs/tonctl/internal/logz"
	"github.com/tvmlabs/tonctl/internal/metrics"
	"github.com/tvmlabs/tonctl/internal/snapstore"
	"github.com/tvmlabs/tonctl/liteapi"
	"github.com/tvmlabs/tonctl/pipeline"
	"github.com/tvmlabs/tonctl/tvm/redisexec"
)

var (
	configPath  string
	jsonOutput  bool
	logLevel    string
	metricsAddr string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tonctl",
		Short: "Contract call pipeline for TON-style networks",
		Long:  "Prepare, emulate, submit and diagnose external contract calls",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if metricsAddr != "" {
				startMetricsServer(metricsAddr)
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Machine-readable output only")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve /debug/vars and /metrics on this address")

	rootCmd.AddCommand(
		callCommand(),
		feeCommand(),
		sendfileCommand(),
		configCommand(),
		keysCommand(),
		replayCommand(),
		snapshotsCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// startMetricsServer serves the expvar and prometheus endpoints in the
// background for the lifetime of the process.
func startMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/debug/vars", metrics.Handler())
	mux.Handle("/metrics", metrics.PrometheusHandler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logz.Warn("metrics server stopped: %v", err)
		}
	}()
}

// loadConfig reads the config file and applies global flag overrides.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}
	if jsonOutput {
		cfg.Call.IsJSON = true
	}
	if level, err := logz.ParseLevel(logLevel); err == nil {
		logz.Default().SetLevel(level)
	}
	if cfg.Call.IsJSON {
		metrics.SetOutputMode("json")
	} else {
		metrics.SetOutputMode("interactive")
	}
	return cfg, nil
}

// buildPipeline wires the network client, the executor and the optional
// snapshot archive.
func buildPipeline(ctx context.Context, cfg *config.Config) (*pipeline.Pipeline, func(), error) {
	node, err := liteapi.New(ctx, liteapi.Config{
		GlobalConfigURL: cfg.Network.GlobalConfigURL,
		Timeout:         cfg.NetworkTimeout(),
		MaxRetries:      cfg.Network.MaxRetries,
		RateLimit:       cfg.Network.RateLimit,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect: %v", err)
	}

	exec, err := redisexec.New(redisexec.Config{
		Addr:    cfg.Emulator.RedisAddr,
		Queue:   cfg.Emulator.Queue,
		Timeout: cfg.EmulatorTimeout(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to reach executor: %v", err)
	}

	var store *snapstore.Store
	if cfg.Debug.ArchivePath != "" {
		store, err = snapstore.Open(cfg.Debug.ArchivePath)
		if err != nil {
			exec.Close()
			return nil, nil, fmt.Errorf("failed to open snapshot archive: %v", err)
		}
	}

	pipe, err := pipeline.New(cfg, node, exec, pipeline.Options{
		Store: store,
		Sink:  pipeline.LogSink{Logger: logz.Default().WithPrefix("events")},
	})
	if err != nil {
		exec.Close()
		if store != nil {
			store.Close()
		}
		return nil, nil, err
	}

	cleanup := func() {
		exec.Close()
		if store != nil {
			store.Close()
		}
	}
	return pipe, cleanup, nil
}

// loadCallRequest assembles a CallRequest from the shared call/fee flags.
func loadCallRequest(addr, abiPath, method, keyFile string, params []string) (pipeline.CallRequest, error) {
	var req pipeline.CallRequest

	dest, err := parseAddress(addr)
	if err != nil {
		return req, err
	}
	contract, err := abi.LoadContractFile(abiPath)
	if err != nil {
		return req, err
	}

	var signer *keys.Keypair
	if keyFile != "" {
		signer, err = keys.LoadFromFile(keyFile)
		if err != nil {
			return req, fmt.Errorf("failed to load signing key: %v", err)
		}
	}

	return pipeline.CallRequest{
		Address:     dest,
		Contract:    contract,
		Method:      method,
		ParamTokens: params,
		Signer:      signer,
	}, nil
}

func parseAddress(s string) (*address.Address, error) {
	if s == "" {
		return nil, fmt.Errorf("--addr is required")
	}
	if a, err := address.ParseAddr(s); err == nil {
		return a, nil
	}
	a, err := address.ParseRawAddr(s)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %v", s, err)
	}
	return a, nil
}

func callCommand() *cobra.Command {
	var addr, abiPath, method, keyFile string
	var async, localRun bool

	cmd := &cobra.Command{
		Use:   "call [-- --name value ...]",
		Short: "Call a contract method on chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			if method == "" {
				return fmt.Errorf("--method is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if async {
				cfg.Call.AsyncCall = true
			}
			if localRun {
				cfg.Call.LocalRun = true
			}

			req, err := loadCallRequest(addr, abiPath, method, keyFile, args)
			if err != nil {
				return err
			}

			ctx := context.Background()
			pipe, cleanup, err := buildPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			mode := pipeline.ModeFromConfig(cfg)
			outcome := pipe.Call(ctx, mode, req)
			return finishOutcome(cfg, outcome)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Destination contract address (required)")
	cmd.Flags().StringVar(&abiPath, "abi", "", "Path to the contract ABI JSON (required)")
	cmd.Flags().StringVar(&method, "method", "", "Method to call (required)")
	cmd.Flags().StringVar(&keyFile, "sign", "", "Path to the signing key file")
	cmd.Flags().BoolVar(&async, "async", false, "Return after network acceptance")
	cmd.Flags().BoolVar(&localRun, "local", false, "Emulate locally before submitting")

	return cmd
}

func feeCommand() *cobra.Command {
	var addr, abiPath, method, keyFile string

	cmd := &cobra.Command{
		Use:   "fee [-- --name value ...]",
		Short: "Estimate the fees of a contract call without submitting it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if method == "" {
				return fmt.Errorf("--method is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			req, err := loadCallRequest(addr, abiPath, method, keyFile, args)
			if err != nil {
				return err
			}

			ctx := context.Background()
			pipe, cleanup, err := buildPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			mode := pipeline.ModeFromConfig(cfg)
			outcome := pipe.EstimateFees(ctx, mode, req)
			return finishOutcome(cfg, outcome)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Destination contract address (required)")
	cmd.Flags().StringVar(&abiPath, "abi", "", "Path to the contract ABI JSON (required)")
	cmd.Flags().StringVar(&method, "method", "", "Method to estimate (required)")
	cmd.Flags().StringVar(&keyFile, "sign", "", "Path to the signing key file")

	return cmd
}

func sendfileCommand() *cobra.Command {
	var bocPath, abiPath string

	cmd := &cobra.Command{
		Use:   "sendfile",
		Short: "Submit a pre-encoded message blob",
		RunE: func(cmd *cobra.Command, args []string) error {
			if bocPath == "" {
				return fmt.Errorf("--boc is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(bocPath)
			if err != nil {
				return fmt.Errorf("failed to read message file: %v", err)
			}

			if abiPath != "" {
				contract, err := abi.LoadContractFile(abiPath)
				if err != nil {
					return err
				}
				preview, err := decodeMessagePreview(contract, data)
				if err != nil {
					return fmt.Errorf("message does not match the ABI: %v", err)
				}
				prettyPrint(preview)
			}

			ctx := context.Background()
			pipe, cleanup, err := buildPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			mode := pipeline.ModeFromConfig(cfg)
			outcome := pipe.SendBOC(ctx, mode, data)
			return finishOutcome(cfg, outcome)
		},
	}

	cmd.Flags().StringVar(&bocPath, "boc", "", "Path to the serialized message (required)")
	cmd.Flags().StringVar(&abiPath, "abi", "", "Contract ABI, prints the decoded call before submitting")

	return cmd
}

// decodeMessagePreview opens an encoded external message and decodes its body
// against the contract's function table.
func decodeMessagePreview(contract *abi.Contract, msgBOC []byte) (map[string]interface{}, error) {
	msgCell, err := cell.FromBOC(msgBOC)
	if err != nil {
		return nil, fmt.Errorf("not a valid BoC: %v", err)
	}
	var ext tlb.ExternalMessage
	if err := tlb.LoadFromCell(&ext, msgCell.BeginParse()); err != nil {
		return nil, fmt.Errorf("not an external inbound message: %v", err)
	}
	method, params, err := abi.DecodeFunctionInput(contract, ext.Body.ToBOC())
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"method": method, "params": params}, nil
}

// configCommand builds and optionally submits config-update messages.
func configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Network configuration governance",
	}
	cmd.AddCommand(configUpdateCommand())
	return cmd
}

func configUpdateCommand() *cobra.Command {
	var paramJSON, paramFile, keyFile, outPath string
	var seqno uint32
	var submit bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Build a signed config-update message",
		Long:  "Build a signed external message updating one config parameter, given {\"pNN\": <value>} input",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			raw := []byte(paramJSON)
			if paramFile != "" {
				raw, err = os.ReadFile(paramFile)
				if err != nil {
					return fmt.Errorf("failed to read parameter file: %v", err)
				}
			}
			if len(raw) == 0 {
				return fmt.Errorf("--param or --param-file is required")
			}

			if keyFile == "" {
				keyFile = cfg.Governance.KeyFile
			}
			if keyFile == "" {
				return fmt.Errorf("--sign is required")
			}
			signer, err := keys.LoadFromFile(keyFile)
			if err != nil {
				return fmt.Errorf("failed to load governance key: %v", err)
			}

			configAddr, err := address.ParseRawAddr(cfg.Governance.ConfigAddress)
			if err != nil {
				return fmt.Errorf("invalid config-holder address: %v", err)
			}

			msg, err := governance.BuildUpdateMessage(governance.UpdateParams{
				ParamJSON:  raw,
				Seqno:      seqno,
				Signer:     signer,
				ConfigAddr: configAddr,
			})
			if err != nil {
				return err
			}
			metrics.IncrementConfigUpdates()

			if outPath != "" {
				if err := os.WriteFile(outPath, msg.BOC, 0o644); err != nil {
					return fmt.Errorf("failed to write message: %v", err)
				}
			}

			prettyPrint(map[string]interface{}{
				"message_id": hex.EncodeToString(msg.ID),
				"param":      fmt.Sprintf("p%d", msg.ParamNumber),
				"seqno":      seqno,
				"timestamp":  msg.Timestamp,
				"boc":        base64.StdEncoding.EncodeToString(msg.BOC),
			})

			if !submit {
				return nil
			}

			ctx := context.Background()
			pipe, cleanup, err := buildPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			mode := pipeline.ModeFromConfig(cfg)
			outcome := pipe.SendBOC(ctx, mode, msg.BOC)
			return finishOutcome(cfg, outcome)
		},
	}

	cmd.Flags().StringVar(&paramJSON, "param", "", "Parameter JSON, e.g. '{\"p15\": {...}}'")
	cmd.Flags().StringVar(&paramFile, "param-file", "", "Path to a parameter JSON file")
	cmd.Flags().Uint32Var(&seqno, "seqno", 0, "Target sequence number")
	cmd.Flags().StringVar(&keyFile, "sign", "", "Path to the governance key file")
	cmd.Flags().StringVar(&outPath, "out", "", "Write the message BoC to this path")
	cmd.Flags().BoolVar(&submit, "submit", false, "Submit the message after building it")

	return cmd
}

func keysCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Key management commands",
	}
	cmd.AddCommand(keysGenCommand(), keysShowCommand())
	return cmd
}

func keysGenCommand() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate a new ed25519 keypair",
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := keys.Generate()
			if err != nil {
				return fmt.Errorf("failed to generate keypair: %v", err)
			}

			if outPath != "" {
				if err := kp.SaveToFile(outPath); err != nil {
					return err
				}
			}

			out := map[string]interface{}{
				"public": kp.PublicHex(),
			}
			if outPath != "" {
				out["file"] = outPath
			} else {
				out["private"] = kp.PrivateHex()
			}
			prettyPrint(out)
			return nil
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", "Write the private key to this path (0600)")

	return cmd
}

func keysShowCommand() *cobra.Command {
	var keyFile string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the public key of a key file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if keyFile == "" {
				return fmt.Errorf("--file is required")
			}
			kp, err := keys.LoadFromFile(keyFile)
			if err != nil {
				return err
			}
			prettyPrint(map[string]interface{}{
				"public": kp.PublicHex(),
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&keyFile, "file", "", "Path to the key file (required)")

	return cmd
}

func replayCommand() *cobra.Command {
	var messageID string

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-run an archived snapshot under the tracing executor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if messageID == "" {
				return fmt.Errorf("--message is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Debug.ArchivePath == "" {
				return fmt.Errorf("no snapshot archive configured (debug.archivePath)")
			}

			ctx := context.Background()
			pipe, cleanup, err := buildPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			mode := pipeline.ModeFromConfig(cfg)
			tracePath, err := pipe.ReplayArchived(ctx, mode, messageID)
			if err != nil {
				return err
			}
			prettyPrint(map[string]interface{}{
				"message_id": messageID,
				"trace":      tracePath,
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&messageID, "message", "", "Message id of the archived snapshot (hex, required)")

	return cmd
}

func snapshotsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List archived replay snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Debug.ArchivePath == "" {
				return fmt.Errorf("no snapshot archive configured (debug.archivePath)")
			}

			store, err := snapstore.Open(cfg.Debug.ArchivePath)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(limit)
			if err != nil {
				return err
			}

			out := make([]map[string]interface{}, 0, len(records))
			for _, rec := range records {
				out = append(out, map[string]interface{}{
					"message_id": hex.EncodeToString(rec.MessageID),
					"address":    rec.Addr,
					"lt":         rec.LT,
					"created_at": rec.CreatedAt.Format(time.RFC3339),
				})
			}
			prettyPrint(out)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum snapshots to list, 0 for all")

	return cmd
}

// finishOutcome renders the terminal outcome and maps failures to a non-zero
// exit.
func finishOutcome(cfg *config.Config, outcome *pipeline.Outcome) error {
	if cfg.Call.IsJSON {
		render := map[string]interface{}{
			"status":     outcome.Status.String(),
			"message_id": outcome.MessageID,
			"result":     json.RawMessage(outcome.Result),
		}
		if outcome.TxHash != "" {
			render["transaction"] = outcome.TxHash
		}
		if outcome.Err != nil {
			render["error"] = outcome.Err.Error()
		}
		prettyPrint(render)
	}
	if outcome.Err != nil {
		return fmt.Errorf("%s", outcome.Err.Error())
	}
	return nil
}

func prettyPrint(data interface{}) {
	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		fmt.Printf("Error formatting output: %v\n", err)
		fmt.Printf("%+v\n", data)
		return
	}
	fmt.Println(string(jsonBytes))
}
