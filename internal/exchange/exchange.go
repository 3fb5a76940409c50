package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"ammLedger/internal/bingo"
	"ammLedger/internal/event"
	"ammLedger/internal/factory"
	"ammLedger/internal/model"
	"ammLedger/internal/token"
)

var (
	ErrUnknownOperation = errors.New("unknown operation")
	ErrInvalidOperation = errors.New("invalid operation")
)

// Operation kinds accepted by Apply.
const (
	OpDeployToken   = "deploy_token"
	OpMint          = "mint"
	OpApprove       = "approve"
	OpTransfer      = "transfer"
	OpCreatePool    = "create_pool"
	OpDestroyPool   = "destroy_pool"
	OpStartPool     = "start_pool"
	OpAddToken      = "add_token"
	OpWithdrawToken = "withdraw_token"
	OpSwap          = "swap"
	OpAdvanceBlocks = "advance_blocks"
	OpGenerateCard  = "generate_card"
	OpStartGame     = "start_game"
	OpEndGame       = "end_game"
	OpCollectPrize  = "collect_prize"
)

// Config describes the accounts and parameters of a fresh exchange.
type Config struct {
	Admin            common.Address
	FactoryAddress   common.Address
	GameAddress      common.Address
	DefaultFee       *uint256.Int
	SweepOnDestroy   bool
	MaxPoolsPerOwner int
	CardPrice        *uint256.Int
	GameTimeout      uint64
	Seed             common.Hash
	StartBlock       uint64
}

// Result is the outcome of one applied operation.
type Result struct {
	Kind      string
	Events    []event.Event
	Address   common.Address
	AmountIn  *uint256.Int
	AmountOut *uint256.Int
	Card      *bingo.Card
}

// Exchange owns the token bank, the pool factory and the bingo game, and
// applies operations to them one at a time.
type Exchange struct {
	cfg     Config
	logger  *zap.Logger
	metrics *Metrics
	sink    event.Sink

	mu      sync.Mutex
	block   atomic.Uint64
	seq     *event.Sequencer
	pending []event.Event
	bank    *token.Bank
	factory *factory.Factory
	game    *bingo.Game
}

// New builds an exchange. Committed events are forwarded to sink after they
// are sequenced.
func New(cfg Config, sink event.Sink, metrics *Metrics, logger *zap.Logger) (*Exchange, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Exchange{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		sink:    event.Or(sink),
	}
	e.block.Store(cfg.StartBlock)
	e.seq = event.NewSequencer(event.SinkFunc(e.collect), e.BlockNumber)

	bank := token.NewBank()
	f, err := factory.New(e.factoryConfig(bank))
	if err != nil {
		return nil, fmt.Errorf("factory: %w", err)
	}
	g, err := bingo.New(e.gameConfig(bank))
	if err != nil {
		return nil, fmt.Errorf("bingo: %w", err)
	}
	e.bank, e.factory, e.game = bank, f, g
	return e, nil
}

func (e *Exchange) factoryConfig(bank *token.Bank) factory.Config {
	return factory.Config{
		Address:          e.cfg.FactoryAddress,
		Admin:            e.cfg.Admin,
		DefaultFee:       e.cfg.DefaultFee,
		SweepOnDestroy:   e.cfg.SweepOnDestroy,
		MaxPoolsPerOwner: e.cfg.MaxPoolsPerOwner,
		Tokens:           bank,
		Events:           e.seq,
	}
}

func (e *Exchange) gameConfig(bank *token.Bank) bingo.Config {
	return bingo.Config{
		Address: e.cfg.GameAddress,
		Price:   e.cfg.CardPrice,
		Timeout: e.cfg.GameTimeout,
		Seed:    e.cfg.Seed,
		Coin:    bank.Native(),
		Clock:   e,
		Events:  e.seq,
	}
}

// BlockNumber implements bingo.Clock.
func (e *Exchange) BlockNumber() uint64 { return e.block.Load() }

func (e *Exchange) Bank() *token.Bank {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bank
}

func (e *Exchange) Factory() *factory.Factory {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.factory
}

func (e *Exchange) Game() *bingo.Game {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.game
}

// LastSeq is the sequence number of the last committed event.
func (e *Exchange) LastSeq() uint64 { return e.seq.Last() }

// collect runs under e.mu while an operation is applied.
func (e *Exchange) collect(ev event.Event) {
	e.pending = append(e.pending, ev)
	e.sink.Publish(ev)
}

// Apply executes op atomically. A rejected operation leaves no state change
// and emits no events.
func (e *Exchange) Apply(ctx context.Context, op model.Operation) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	started := time.Now()
	e.pending = nil
	res, err := e.dispatch(op)
	e.metrics.observe(op.Kind, started, err)
	if err != nil {
		e.logger.Debug("operation rejected",
			zap.String("kind", op.Kind),
			zap.Uint64("line", op.Line),
			zap.String("caller", op.Caller),
			zap.Error(err),
		)
		return Result{Kind: op.Kind}, fmt.Errorf("%s: %w", op.Kind, err)
	}

	res.Kind = op.Kind
	res.Events = e.pending
	e.pending = nil
	e.logger.Debug("operation applied",
		zap.String("kind", op.Kind),
		zap.Uint64("line", op.Line),
		zap.Int("events", len(res.Events)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return res, nil
}

func (e *Exchange) dispatch(op model.Operation) (Result, error) {
	caller, err := parseAccount("caller", op.Caller)
	if err != nil && op.Kind != OpAdvanceBlocks {
		return Result{}, err
	}

	switch op.Kind {
	case OpDeployToken:
		return e.deployToken(caller, op)
	case OpMint:
		return e.mint(caller, op)
	case OpApprove:
		return e.approve(caller, op)
	case OpTransfer:
		return e.transfer(caller, op)
	case OpCreatePool:
		return e.createPool(caller, op)
	case OpDestroyPool:
		return e.destroyPool(caller, op)
	case OpStartPool:
		return e.startPool(caller, op)
	case OpAddToken:
		return e.addToken(caller, op)
	case OpWithdrawToken:
		return e.withdrawToken(caller, op)
	case OpSwap:
		return e.swap(caller, op)
	case OpAdvanceBlocks:
		return e.advanceBlocks(op)
	case OpGenerateCard:
		return e.generateCard(caller, op)
	case OpStartGame:
		return Result{}, e.game.StartGame(caller)
	case OpEndGame:
		return Result{}, e.game.EndGame(caller)
	case OpCollectPrize:
		prize, err := e.game.CollectPrize(caller)
		return Result{AmountOut: prize}, err
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownOperation, op.Kind)
	}
}
