// Command updown runs the recurring up-or-down market bot: every cycle it
// seeds the next round of each configured series with a fixed order pair,
// optionally polls the closing round for late threshold entries, and
// periodically claims settled positions.
package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"poly-updown/internal/claim"
	"poly-updown/internal/clob"
	"poly-updown/internal/dataapi"
	"poly-updown/internal/dotenv"
	"poly-updown/internal/gamma"
	"poly-updown/internal/jsonl"
	"poly-updown/internal/ledger"
	"poly-updown/internal/polygonutil"
	"poly-updown/internal/quotestream"
	"poly-updown/internal/updown"
)

const polygonChainID = 137

type appConfig struct {
	run updown.Config

	gammaHost string
	clobHost  string
	dataURL   string

	quoteSource     string // poll | stream
	ledgerPath      string
	ledgerRetention time.Duration
	outFile         string

	sizeThreshold float64

	signatureType int
	privateKeyHex string
	funder        common.Address

	apiKey        string
	apiSecret     string
	apiPassphrase string
}

func main() {
	log.SetFlags(0)

	if err := dotenv.Load(); err != nil {
		log.Printf("[warn] %v", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	pk, ephemeral, err := parseOrGeneratePrivateKey(cfg.privateKeyHex)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	if ephemeral {
		if cfg.run.EnableTrading {
			log.Fatalf("[fatal] live trading requires PRIVATE_KEY")
		}
		log.Printf("[info] no private key provided; using ephemeral key for dry-run")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gammaClient, err := gamma.NewClient(cfg.gammaHost)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	clobClient, err := clob.NewClient(cfg.clobHost, polygonChainID, pk, cfg.funder, cfg.signatureType)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	signer := clobClient.SignerAddress()
	funder := clobClient.FunderAddress()

	if cfg.run.EnableTrading {
		if cfg.apiKey != "" && cfg.apiSecret != "" && cfg.apiPassphrase != "" {
			clobClient.SetApiCreds(clob.ApiKeyCreds{Key: cfg.apiKey, Secret: cfg.apiSecret, Passphrase: cfg.apiPassphrase})
		} else {
			creds, err := clobClient.CreateOrDeriveApiKey(ctx, 0)
			if err != nil {
				log.Fatalf("[fatal] failed to create/derive api key: %v", err)
			}
			clobClient.SetApiCreds(creds)
			log.Printf("CLOB API creds ready (key=%s…)", safePrefix(creds.Key, 8))
		}
	}

	var quotes updown.QuoteSource = pollQuotes{clobClient}
	if cfg.quoteSource == "stream" {
		stream := quotestream.New("", quotestream.Options{})
		stream.Start(ctx, nil)
		quotes = layeredQuotes{stream: stream, poll: pollQuotes{clobClient}}
	}

	var claimer updown.Claimer
	if cfg.run.EnableClaims {
		dataClient, err := dataapi.NewClient(cfg.dataURL)
		if err != nil {
			log.Fatalf("[fatal] %v", err)
		}
		var rpcURL string
		if cfg.run.EnableTrading {
			rpcURL, err = polygonutil.RPCURLFromEnv()
			if err != nil {
				log.Fatalf("[fatal] claims: %v", err)
			}
		}
		cl, err := claim.New(dataClient, rpcURL, pk, funder, cfg.sizeThreshold, cfg.run.EnableTrading)
		if err != nil {
			log.Fatalf("[fatal] claims: %v", err)
		}
		claimer = cl
	}

	seeded, err := ledger.Open(cfg.ledgerPath, cfg.ledgerRetention)
	if err != nil {
		log.Fatalf("[fatal] open ledger %s: %v", cfg.ledgerPath, err)
	}

	tradeLog := jsonl.New(cfg.outFile)
	if tradeLog != nil {
		log.Printf("Trade log: %s (JSONL)", cfg.outFile)
		defer func() {
			if err := tradeLog.Close(); err != nil {
				log.Printf("[warn] trade log close: %v", err)
			}
		}()
	}

	log.Printf("Polymarket up-or-down bot")
	log.Printf("Series: %s", strings.Join(cfg.run.Series, ", "))
	log.Printf("Signer: %s", signer.Hex())
	log.Printf("Funder: %s", funder.Hex())
	log.Printf("Cycle: %s (poll=%s, quotes=%s)", cfg.run.CycleEvery, cfg.run.PollInterval, cfg.quoteSource)
	log.Printf("Seed: price=%.2f size=%v", cfg.run.SeedPrice, cfg.run.SeedSize)
	log.Printf("Ledger: %s (%d markets seeded)", cfg.ledgerPath, seeded.Len())
	log.Printf("Active trading: %v", cfg.run.ActiveTrading)
	log.Printf("Dry-run: %v", !cfg.run.EnableTrading)

	if rpcURL, err := polygonutil.RPCURLFromEnv(); err == nil {
		balCtx, balCancel := context.WithTimeout(ctx, 12*time.Second)
		if micros, err := polygonutil.USDCTokenBalanceMicros(balCtx, rpcURL, funder); err != nil {
			log.Printf("[warn] usdc balance: %v", err)
		} else {
			log.Printf("USDC balance: %s", polygonutil.FormatMicros(micros))
		}
		balCancel()
	}

	runner, err := updown.NewRunner(cfg.run, gammaClient, quotes, clobClient, claimer, seeded, tradeLog)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("[fatal] %v", err)
	}
	log.Printf("Shut down.")
}

// pollQuotes adapts the CLOB /prices endpoint to the runner's quote
// source.
type pollQuotes struct {
	c *clob.Client
}

func (p pollQuotes) Quotes(ctx context.Context, tokenIDs []string) (map[string]clob.Quote, error) {
	return p.c.Prices(ctx, tokenIDs)
}

// layeredQuotes keeps the stream subscribed to the tokens being quoted,
// prefers the websocket cache, and falls back to polling for tokens the
// stream has not quoted yet.
type layeredQuotes struct {
	stream *quotestream.Source
	poll   updown.QuoteSource
}

func (l layeredQuotes) Quotes(ctx context.Context, tokenIDs []string) (map[string]clob.Quote, error) {
	l.stream.Subscribe(tokenIDs)

	out, err := l.stream.Quotes(ctx, tokenIDs)
	if err != nil {
		return l.poll.Quotes(ctx, tokenIDs)
	}

	var missing []string
	for _, id := range tokenIDs {
		if q := out[id]; q.Buy == 0 && q.Sell == 0 {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	polled, err := l.poll.Quotes(ctx, missing)
	if err != nil {
		return out, nil
	}
	for id, q := range polled {
		out[id] = q
	}
	return out, nil
}

func loadConfig() (appConfig, error) {
	var cfg appConfig

	var (
		seriesFlag     string
		seriesFileFlag string
		pollFlag       string
		everyFlag      string
		ledgerFlag     string
		outFlag        string
		quotesFlag     string
		activeFlag     bool
		tradingFlag    bool
		claimsFlag     bool
	)

	flag.StringVar(&seriesFlag, "series", "", "Comma-separated series slugs (default from SERIES_* env or the crypto 15m set).")
	flag.StringVar(&seriesFileFlag, "series-file", "", "File with series slugs, one per line (default from SERIES_FILE).")
	flag.StringVar(&pollFlag, "poll", "", "Active-phase poll interval (default from POLL_INTERVAL or 5s).")
	flag.StringVar(&everyFlag, "every", "", "Seed cycle interval (default from CYCLE_EVERY or 15m).")
	flag.StringVar(&ledgerFlag, "ledger", "", "Seeded-markets ledger path (default from LEDGER_PATH or seeded.json).")
	flag.StringVar(&outFlag, "out", "", "JSONL trade log path (default from OUT_FILE; empty = disabled).")
	flag.StringVar(&quotesFlag, "quotes", "", "Quote source: poll or stream (default from QUOTE_SOURCE or poll).")
	flag.BoolVar(&activeFlag, "active", false, "Run the near-expiry trading phase (default from ACTIVE_TRADING).")
	flag.BoolVar(&tradingFlag, "enable-trading", false, "Submit real orders (default false; set ENABLE_TRADING).")
	flag.BoolVar(&claimsFlag, "enable-claims", false, "Claim settled positions each quarter hour (default from ENABLE_CLAIMS).")
	flag.Parse()

	series, err := resolveSeries(seriesFlag, seriesFileFlag)
	if err != nil {
		return cfg, err
	}

	pollInterval, err := durationConfig(pollFlag, "POLL_INTERVAL", 5*time.Second)
	if err != nil {
		return cfg, err
	}
	cycleEvery, err := durationConfig(everyFlag, "CYCLE_EVERY", 15*time.Minute)
	if err != nil {
		return cfg, err
	}
	ledgerRetention, err := durationConfig("", "LEDGER_RETENTION", 0)
	if err != nil {
		return cfg, err
	}

	seedPrice, err := floatEnv("SEED_PRICE", 0.49)
	if err != nil {
		return cfg, err
	}
	seedSize, err := floatEnv("SEED_SIZE", 5)
	if err != nil {
		return cfg, err
	}
	sizeThreshold, err := floatEnv("CLAIM_SIZE_THRESHOLD", 0)
	if err != nil {
		return cfg, err
	}

	active, err := boolConfig(activeFlag, "ACTIVE_TRADING")
	if err != nil {
		return cfg, err
	}
	trading, err := boolConfig(tradingFlag, "ENABLE_TRADING")
	if err != nil {
		return cfg, err
	}
	claims, err := boolConfig(claimsFlag, "ENABLE_CLAIMS")
	if err != nil {
		return cfg, err
	}

	quoteSource := strings.TrimSpace(firstNonEmpty(quotesFlag, os.Getenv("QUOTE_SOURCE"), "poll"))
	if quoteSource != "poll" && quoteSource != "stream" {
		return cfg, fmt.Errorf("quote source must be poll or stream, got %q", quoteSource)
	}

	ledgerPath := strings.TrimSpace(firstNonEmpty(ledgerFlag, os.Getenv("LEDGER_PATH"), "seeded.json"))
	outFile := strings.TrimSpace(firstNonEmpty(outFlag, os.Getenv("OUT_FILE")))

	signatureType := 1 // POLY_PROXY: orders are funded by the Polymarket proxy wallet
	if env := strings.TrimSpace(firstNonEmpty(os.Getenv("CLOB_SIGNATURE_TYPE"), os.Getenv("SIGNATURE_TYPE"))); env != "" {
		v, err := strconv.Atoi(env)
		if err != nil {
			return cfg, fmt.Errorf("invalid signature type env %q: %w", env, err)
		}
		signatureType = v
	}

	var funder common.Address
	if env := strings.TrimSpace(firstNonEmpty(os.Getenv("CLOB_FUNDER"), os.Getenv("FUNDER"), os.Getenv("PROXY_ADDRESS"))); env != "" {
		if !common.IsHexAddress(env) {
			return cfg, fmt.Errorf("invalid FUNDER/PROXY_ADDRESS %q", env)
		}
		funder = common.HexToAddress(env)
	}

	cfg = appConfig{
		run: updown.Config{
			Series:        series,
			PollInterval:  pollInterval,
			CycleEvery:    cycleEvery,
			SeedPrice:     seedPrice,
			SeedSize:      seedSize,
			ActiveTrading: active,
			EnableTrading: trading,
			EnableClaims:  claims,
		},
		gammaHost:       strings.TrimSpace(os.Getenv("GAMMA_HOST")),
		clobHost:        strings.TrimSpace(os.Getenv("CLOB_HOST")),
		dataURL:         strings.TrimSpace(os.Getenv("DATA_API_URL")),
		quoteSource:     quoteSource,
		ledgerPath:      ledgerPath,
		ledgerRetention: ledgerRetention,
		outFile:         outFile,
		sizeThreshold:   sizeThreshold,
		signatureType:   signatureType,
		privateKeyHex:   strings.TrimSpace(firstNonEmpty(os.Getenv("CLOB_PRIVATE_KEY"), os.Getenv("PRIVATE_KEY"))),
		funder:          funder,
		apiKey:          strings.TrimSpace(os.Getenv("CLOB_API_KEY")),
		apiSecret:       strings.TrimSpace(os.Getenv("CLOB_API_SECRET")),
		apiPassphrase:   strings.TrimSpace(os.Getenv("CLOB_API_PASSPHRASE")),
	}
	if err := cfg.run.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// resolveSeries builds the flattened visiting order: explicit flag, then
// series file, then the SERIES_* timeframe groups, then the default
// crypto 15m set.
func resolveSeries(seriesFlag, seriesFileFlag string) ([]string, error) {
	if s := updown.ParseSlugList(seriesFlag); len(s) > 0 {
		return s, nil
	}

	if path := strings.TrimSpace(firstNonEmpty(seriesFileFlag, os.Getenv("SERIES_FILE"))); path != "" {
		s, err := updown.ReadSeriesFile(path)
		if err != nil {
			return nil, fmt.Errorf("series file: %w", err)
		}
		if len(s) == 0 {
			return nil, fmt.Errorf("series file %s has no slugs", path)
		}
		return s, nil
	}

	groups := updown.SeriesGroups{
		Min15:  updown.ParseSlugList(os.Getenv("SERIES_15M")),
		Hourly: updown.ParseSlugList(os.Getenv("SERIES_1H")),
		Hour4:  updown.ParseSlugList(os.Getenv("SERIES_4H")),
		Daily:  updown.ParseSlugList(os.Getenv("SERIES_1D")),
	}
	if s := groups.All(); len(s) > 0 {
		return s, nil
	}
	return append([]string(nil), updown.DefaultSeries...), nil
}

func durationConfig(flagVal, envName string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(firstNonEmpty(flagVal, os.Getenv(envName)))
	if raw == "" {
		return def, nil
	}
	// Accept bare seconds for compatibility with plain numeric envs.
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envName, raw, err)
	}
	return d, nil
}

func floatEnv(name string, def float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return v, nil
}

func boolConfig(flagVal bool, envName string) (bool, error) {
	if flagVal {
		return true, nil
	}
	raw := strings.TrimSpace(os.Getenv(envName))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", envName, raw, err)
	}
	return v, nil
}

func parseOrGeneratePrivateKey(hexKey string) (*ecdsa.PrivateKey, bool, error) {
	hexKey = strings.TrimSpace(strings.TrimPrefix(hexKey, "0x"))
	if hexKey == "" {
		pk, err := crypto.GenerateKey()
		if err != nil {
			return nil, false, fmt.Errorf("generate ephemeral key: %w", err)
		}
		return pk, true, nil
	}
	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, false, fmt.Errorf("invalid PRIVATE_KEY: %w", err)
	}
	return pk, false, nil
}

func safePrefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
