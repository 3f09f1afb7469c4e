package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dropbox/godropbox/time2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pastelnetwork/go-inference-client/internal/config"
	"github.com/pastelnetwork/go-inference-client/internal/consensus"
	"github.com/pastelnetwork/go-inference-client/internal/creditpack"
	"github.com/pastelnetwork/go-inference-client/internal/events"
	"github.com/pastelnetwork/go-inference-client/internal/identity"
	"github.com/pastelnetwork/go-inference-client/internal/inference"
	"github.com/pastelnetwork/go-inference-client/internal/ledger"
	"github.com/pastelnetwork/go-inference-client/internal/metrics"
	"github.com/pastelnetwork/go-inference-client/internal/routing"
	"github.com/pastelnetwork/go-inference-client/internal/storage"
	"github.com/pastelnetwork/go-inference-client/internal/supernode"
	"github.com/pastelnetwork/go-inference-client/internal/util"
)

// session bundles the explicitly-constructed component instances shared
// by the CLI commands. No component is a global singleton: everything is
// built once here and passed by reference.
type session struct {
	cfg       config.Client
	pastelID  string
	keyring   *identity.Keyring
	ledger    ledger.Service
	store     storage.Store
	factory   supernode.Factory
	validator *consensus.Validator
	health    *routing.HealthFilter
	metrics   *metrics.Service
	clock     time2.Clock
}

func newSession() (*session, error) {
	cfg := config.DefaultClientConfigFromEnv()
	clock := time2.DefaultClock

	pastelID := util.GetEnv("PASTELID", "")
	if pastelID == "" {
		return nil, fmt.Errorf("PASTELID must be set")
	}
	keyring := identity.NewKeyring()
	keyHex := util.GetEnv("PASTELID_PRIVATE_KEY_HEX", "")
	if keyHex != "" {
		keyBytes, err := hex.DecodeString(keyHex)
		if err != nil {
			return nil, fmt.Errorf("malformed PASTELID_PRIVATE_KEY_HEX: %w", err)
		}
		if err := keyring.Import(pastelID, keyBytes); err != nil {
			return nil, err
		}
	} else if _, err := keyring.Generate(pastelID); err != nil {
		return nil, err
	}

	lgr := ledger.NewRPCClient(
		util.GetEnv("PASTEL_RPC_URL", "http://localhost:9932"),
		util.GetEnv("PASTEL_RPC_USER", ""),
		util.GetEnv("PASTEL_RPC_PASSWORD", ""),
		util.GetEnvAsFloat("CREDIT_BASE_PRICE_PSL", 10),
	)

	store := storage.NewRedisStore(redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}))

	factory := supernode.NewFactory(keyring, pastelID)
	m := metrics.New(prometheus.DefaultRegisterer)

	return &session{
		cfg:       cfg,
		pastelID:  pastelID,
		keyring:   keyring,
		ledger:    lgr,
		store:     store,
		factory:   factory,
		validator: consensus.NewValidator(cfg.Validation, keyring, lgr, clock),
		health:    routing.NewHealthFilter(cfg.Routing, factory, clock, m),
		metrics:   m,
		clock:     clock,
	}, nil
}

func newPurchaseCmd() *cobra.Command {
	var credits int64
	var trackingAddress string
	var maxPerCredit, maxTotal float64
	var authorized []string

	cmd := &cobra.Command{
		Use:   "purchase",
		Short: "Buy a credit pack from the supernode network",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			proto := creditpack.NewProtocol(
				s.cfg.Purchase, s.keyring, s.ledger, s.store, s.factory,
				s.validator, s.health, s.clock, s.metrics,
			)

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			stream := events.NewStream(64)
			go logEvents(stream)

			result, err := proto.Purchase(ctx, creditpack.PurchaseParams{
				RequesterPastelID:   s.pastelID,
				RequestedCredits:    credits,
				TrackingAddress:     trackingAddress,
				MaxPerCreditPrice:   maxPerCredit,
				MaxTotalPrice:       maxTotal,
				AuthorizedPastelIDs: authorized,
			}, stream)
			stream.Close()
			if err != nil {
				return err
			}
			log.Info().
				Str("registration_txid", result.RegistrationTxID).
				Str("supernode", result.SupernodePastelID).
				Int("candidates_tried", result.CandidatesTried).
				Msg("credit pack purchased")
			return nil
		},
	}
	cmd.Flags().Int64Var(&credits, "credits", 100, "number of inference credits to buy")
	cmd.Flags().StringVar(&trackingAddress, "tracking-address", "", "PSL address funding the purchase")
	cmd.Flags().Float64Var(&maxPerCredit, "max-per-credit", 0, "ceiling price per credit in PSL")
	cmd.Flags().Float64Var(&maxTotal, "max-total", 0, "ceiling total price in PSL")
	cmd.Flags().StringSliceVar(&authorized, "authorized", nil, "additional PastelIDs allowed to spend the pack")
	_ = cmd.MarkFlagRequired("tracking-address")
	return cmd
}

func newInferCmd() *cobra.Command {
	var ticketTxID, trackingAddress, model, inferenceType, prompt string
	var maxCost float64
	var audit bool

	cmd := &cobra.Command{
		Use:   "infer",
		Short: "Run an inference job against a purchased credit pack",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			if audit {
				s.cfg.Inference.AuditEnabled = true
			}
			proto := inference.NewProtocol(
				s.cfg.Inference, s.keyring, s.ledger, s.store, s.factory,
				s.validator, s.health, s.clock, s.metrics,
			)

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			stream := events.NewStream(64)
			go logEvents(stream)

			result, err := proto.Request(ctx, inference.RequestParams{
				RequesterPastelID:    s.pastelID,
				CreditPackTicketTxID: ticketTxID,
				TrackingAddress:      trackingAddress,
				ModelName:            model,
				InferenceType:        inferenceType,
				InputData:            []byte(prompt),
				MaxCostInCredits:     maxCost,
			}, stream)
			stream.Close()
			if err != nil {
				return err
			}
			if result.Decoded.Text != "" {
				fmt.Println(result.Decoded.Text)
			} else {
				log.Info().
					Int("payload_bytes", len(result.Decoded.ImageData)+len(result.Decoded.ArchiveData)).
					Str("inference_type", result.Decoded.InferenceType).
					Msg("binary result received")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&ticketTxID, "ticket", "", "credit pack ticket txid")
	cmd.Flags().StringVar(&trackingAddress, "tracking-address", "", "PSL address funding the job")
	cmd.Flags().StringVar(&model, "model", "", "canonical model name")
	cmd.Flags().StringVar(&inferenceType, "type", "text_completion", "inference type string")
	cmd.Flags().StringVar(&prompt, "prompt", "", "input data")
	cmd.Flags().Float64Var(&maxCost, "max-cost", 0, "ceiling cost in credits (0 = no ceiling)")
	cmd.Flags().BoolVar(&audit, "audit", false, "cross-check the completed job against a supernode quorum")
	_ = cmd.MarkFlagRequired("ticket")
	_ = cmd.MarkFlagRequired("tracking-address")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func logEvents(stream *events.Stream) {
	for ev := range stream.Events() {
		log.Info().
			Str("stage", string(ev.Stage)).
			Str("supernode", ev.Supernode).
			Str("detail", ev.Message).
			Msg("protocol progress")
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if util.GetEnvAsBool("LOG_PRETTY", false) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	root := &cobra.Command{
		Use:          "pastel-inference",
		Short:        "Decentralized inference client for the supernode network",
		SilenceUsage: true,
	}
	root.AddCommand(newPurchaseCmd(), newInferCmd())

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
