// Command statecheck is the one CLI surface this repository exposes:
// an operator smoke-test tool that opens a store, reads a JSON block
// from a file (or stdin), and runs validate.Body against it, followed by
// connect.Body when -apply is set. It prints "block valid" (and "block
// connected") to stdout, or the first error to stderr; the fee total is
// not printed. It is not part of the consensus core and
// is not invoked by any block-processing collaborator.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/nchashch/hivemind-state/internal/connect"
	"github.com/nchashch/hivemind-state/internal/content"
	"github.com/nchashch/hivemind-state/internal/lmsr"
	"github.com/nchashch/hivemind-state/internal/stateerr"
	"github.com/nchashch/hivemind-state/internal/store"
	"github.com/nchashch/hivemind-state/internal/validate"
	"github.com/nchashch/hivemind-state/params"
	"github.com/nchashch/hivemind-state/pkg/util"
)

func main() {
	storePath := flag.String("store", "", "pebble store directory (defaults to params.LoadFromEnv)")
	blockPath := flag.String("block", "", "path to a JSON-encoded block body (defaults to stdin)")
	height := flag.Uint("height", 0, "block height to validate at")
	apply := flag.Bool("apply", false, "connect the block after it validates")
	logFile := flag.String("logfile", "", "also write structured logs to this file (in addition to stdout)")
	flag.Parse()

	cfg := params.LoadFromEnv("")
	if *storePath != "" {
		cfg.Store.Path = *storePath
	}

	var logger *zap.Logger
	var err error
	if *logFile != "" {
		logger, err = util.NewLoggerWithFile(*logFile)
	} else {
		logger, err = util.NewLogger()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	body, err := readBody(*blockPath)
	if err != nil {
		log.Fatalf("read block: %v", err)
	}

	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer s.Close()

	ctx := lmsr.NewContext()

	rtx := s.Begin()
	valErr := validate.Body(ctx, sugar, rtx, body, uint32(*height))
	rtx.Close()
	if valErr != nil {
		printErr(valErr)
		os.Exit(1)
	}
	fmt.Println("block valid")

	if *apply {
		if err := connect.Body(s, ctx, sugar, body); err != nil {
			printErr(err)
			os.Exit(1)
		}
		fmt.Println("block connected")
	}
}

func printErr(err error) {
	if se, ok := err.(*stateerr.Error); ok {
		fmt.Fprintf(os.Stderr, "rejected: %s\n", se.Error())
		return
	}
	fmt.Fprintf(os.Stderr, "rejected: %v\n", err)
}

func readBody(path string) (content.Body, error) {
	var r io.Reader = os.Stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return content.Body{}, err
		}
		defer f.Close()
		r = f
	}

	var wire wireBody
	if err := json.NewDecoder(r).Decode(&wire); err != nil {
		return content.Body{}, fmt.Errorf("decode block json: %w", err)
	}
	return wire.toBody()
}

// wire* types mirror content's tagged union for JSON decoding only;
// the consensus codec in internal/content never speaks JSON.

type wireOutPoint struct {
	Kind string `json:"kind"`
	Txid string `json:"txid"`
	Vout uint32 `json:"vout"`
}

func (w wireOutPoint) toOutPoint() content.OutPoint {
	kind := content.OutPointRegular
	if w.Kind == "coinbase" {
		kind = content.OutPointCoinbase
	}
	return content.OutPoint{Kind: kind, Txid: common.HexToHash(w.Txid), Vout: w.Vout}
}

type wireContent struct {
	Type             string         `json:"type"`
	Amount           uint64         `json:"amount,omitempty"`
	Query            string         `json:"query,omitempty"`
	Size             uint32         `json:"size,omitempty"`
	ResolvableHeight uint32         `json:"resolvable_height,omitempty"`
	Decision         *wireOutPoint  `json:"decision,omitempty"`
	Outcome          uint32         `json:"outcome,omitempty"`
	B                uint64         `json:"b,omitempty"`
	Decisions        []wireOutPoint `json:"decisions,omitempty"`
	Market           *wireOutPoint  `json:"market,omitempty"`
	Share            []uint32       `json:"share,omitempty"`
	Value            uint64         `json:"value,omitempty"`
}

func (w wireContent) toContent() (content.Content, error) {
	switch w.Type {
	case "value":
		return content.Value{Amount: w.Amount}, nil
	case "decision":
		return content.Decision{Query: common.HexToHash(w.Query), Size: w.Size, ResolvableHeight: w.ResolvableHeight}, nil
	case "resolution":
		if w.Decision == nil {
			return nil, fmt.Errorf("resolution output missing decision outpoint")
		}
		return content.Resolution{Decision: w.Decision.toOutPoint(), Outcome: w.Outcome}, nil
	case "market":
		decisions := make([]content.OutPoint, len(w.Decisions))
		for i, d := range w.Decisions {
			decisions[i] = d.toOutPoint()
		}
		return content.Market{B: w.B, Decisions: decisions}, nil
	case "position":
		if w.Market == nil {
			return nil, fmt.Errorf("position output missing market outpoint")
		}
		return content.Position{Market: w.Market.toOutPoint(), Share: w.Share, Value: w.Value}, nil
	default:
		return nil, fmt.Errorf("unknown content type %q", w.Type)
	}
}

type wireOutput struct {
	Address string      `json:"address"`
	Content wireContent `json:"content"`
}

func (w wireOutput) toOutput() (content.Output, error) {
	c, err := w.Content.toContent()
	if err != nil {
		return content.Output{}, err
	}
	return content.Output{Address: common.HexToAddress(w.Address), Content: c}, nil
}

type wireTransaction struct {
	Inputs  []wireOutPoint `json:"inputs"`
	Outputs []wireOutput   `json:"outputs"`
}

func (w wireTransaction) toTransaction() (content.Transaction, error) {
	inputs := make([]content.OutPoint, len(w.Inputs))
	for i, in := range w.Inputs {
		inputs[i] = in.toOutPoint()
	}
	outputs := make([]content.Output, len(w.Outputs))
	for i, out := range w.Outputs {
		o, err := out.toOutput()
		if err != nil {
			return content.Transaction{}, fmt.Errorf("output %d: %w", i, err)
		}
		outputs[i] = o
	}
	return content.Transaction{Inputs: inputs, Outputs: outputs}, nil
}

type wireBody struct {
	Coinbase     []wireOutput      `json:"coinbase"`
	Transactions []wireTransaction `json:"transactions"`
}

func (w wireBody) toBody() (content.Body, error) {
	coinbase := make([]content.Output, len(w.Coinbase))
	for i, out := range w.Coinbase {
		o, err := out.toOutput()
		if err != nil {
			return content.Body{}, fmt.Errorf("coinbase %d: %w", i, err)
		}
		coinbase[i] = o
	}
	txs := make([]content.Transaction, len(w.Transactions))
	for i, wt := range w.Transactions {
		t, err := wt.toTransaction()
		if err != nil {
			return content.Body{}, fmt.Errorf("transaction %d: %w", i, err)
		}
		txs[i] = t
	}
	return content.Body{Coinbase: coinbase, Transactions: txs}, nil
}
