package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/elys-network/fundmanager/internal/auth"
	"github.com/elys-network/fundmanager/internal/fund"
	"github.com/elys-network/fundmanager/internal/logger"
	"github.com/elys-network/fundmanager/internal/state"
	"github.com/elys-network/fundmanager/internal/types"
)

const (
	JobValuation = "valuation"
	JobCycle     = "cycle"
)

// Fund is the part of the fund manager driven by the bot.
type Fund interface {
	Snapshot() types.FundSnapshot
	ClaimIDs() []string
	UpdateDefiProtocolsValue(ctx context.Context, bot auth.BotCredential, names []string, proofs types.PriceProofs) error
	StartUnlockOwnerStakeUnits(ctx context.Context, bot auth.BotCredential, amount sdkmath.LegacyDec) error
	StartUnstake(ctx context.Context, bot auth.BotCredential) (string, error)
	FinishUnstake(ctx context.Context, bot auth.BotCredential, claimID string, proofs types.PriceProofs) error
	FundUnitsDistribution(ctx context.Context, bot auth.BotCredential, stakers []fund.StakerShare, more bool) error
}

// StakerSource returns the stakers owed the next distribution, with shares summing to at most 1.
type StakerSource interface {
	Stakers(ctx context.Context) ([]fund.StakerShare, error)
}

// ProofSource returns the signed prices attached to valuation and unstake calls.
type ProofSource interface {
	PriceProofs(ctx context.Context) (types.PriceProofs, error)
}

// Recorder persists the cycle counter and the end-of-cycle fund snapshot.
type Recorder interface {
	IncrementCycleNumber(ctx context.Context) (int, error)
	SaveFundSnapshot(ctx context.Context, cycleNumber int, snapshot types.FundSnapshot) (int64, error)
}

// PostgresRecorder records cycles in the global state database.
type PostgresRecorder struct{}

func (PostgresRecorder) IncrementCycleNumber(ctx context.Context) (int, error) {
	return state.IncrementCycleNumber(ctx)
}

func (PostgresRecorder) SaveFundSnapshot(ctx context.Context, cycleNumber int, snapshot types.FundSnapshot) (int64, error) {
	return state.SaveFundSnapshot(ctx, cycleNumber, snapshot)
}

// RunObserver is notified of every job run.
type RunObserver interface {
	ObserveBotRun(job string, err error)
}

// Config holds the configuration for creating a new Bot instance
type Config struct {
	Fund       Fund
	Credential auth.BotCredential
	Stakers    StakerSource
	Proofs     ProofSource  // Optional
	Recorder   Recorder     // Optional, cycles are not persisted when nil
	Observer   RunObserver  // Optional
	JobTimeout time.Duration

	UnlockAmount      sdkmath.LegacyDec // Owner stake units unlocked every cycle, zero disables unlocking
	DistributionChunk int               // Stakers per airdrop call

	ValuationCron string
	CycleCron     string
}

// Bot is the semi-trusted operator: it refreshes position values and walks the stake
// lifecycle on a schedule.
type Bot struct {
	logger zerolog.Logger
	cfg    Config
	cron   *cron.Cron

	// Jobs never overlap: a cycle and a valuation both mutate the fund.
	mu sync.Mutex

	// Accounts already paid from the batch being distributed. Cleared when the batch
	// closes or when the fund has nothing pending.
	paid map[string]struct{}
}

// New creates a new Bot instance
func New(cfg Config) (*Bot, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("bot configuration validation failed: %w", err)
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}

	b := &Bot{
		logger: logger.GetForComponent("bot"),
		cfg:    cfg,
		cron:   cron.New(cron.WithSeconds()),
		paid:   make(map[string]struct{}),
	}

	b.logger.Info().
		Str("valuationCron", cfg.ValuationCron).
		Str("cycleCron", cfg.CycleCron).
		Str("unlockAmount", cfg.UnlockAmount.String()).
		Int("distributionChunk", cfg.DistributionChunk).
		Bool("persistent", cfg.Recorder != nil).
		Msg("Bot instance created")

	return b, nil
}

func validateConfig(cfg Config) error {
	if cfg.Fund == nil {
		return errors.New("fund cannot be nil")
	}
	if cfg.Stakers == nil {
		return errors.New("staker source cannot be nil")
	}
	if cfg.Credential.IsZero() {
		return errors.New("bot credential cannot be empty")
	}
	if cfg.UnlockAmount.IsNil() || cfg.UnlockAmount.IsNegative() {
		return errors.New("unlock amount must be zero or positive")
	}
	if cfg.DistributionChunk <= 0 {
		return errors.New("distribution chunk must be positive")
	}
	return nil
}

// Register adds the valuation and cycle jobs to the scheduler.
func (b *Bot) Register() error {
	if b.cfg.ValuationCron != "" {
		if err := b.AddJob(JobValuation, b.cfg.ValuationCron, b.RunValuation); err != nil {
			return err
		}
	}
	if b.cfg.CycleCron != "" {
		if err := b.AddJob(JobCycle, b.cfg.CycleCron, b.RunCycle); err != nil {
			return err
		}
	}
	return nil
}

// AddJob schedules fn under name. Jobs run one at a time with a bounded context.
func (b *Bot) AddJob(name, spec string, fn func(ctx context.Context) error) error {
	_, err := b.cron.AddFunc(spec, func() {
		b.run(name, fn)
	})
	if err != nil {
		return fmt.Errorf("register %s job: %w", name, err)
	}
	return nil
}

func (b *Bot) run(name string, fn func(ctx context.Context) error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.JobTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	if b.cfg.Observer != nil {
		b.cfg.Observer.ObserveBotRun(name, err)
	}
	if err != nil {
		b.logger.Error().Err(err).Str("job", name).Dur("duration", time.Since(start)).Msg("Bot job failed")
		return
	}
	b.logger.Info().Str("job", name).Dur("duration", time.Since(start)).Msg("Bot job completed")
}

// Start starts the scheduler.
func (b *Bot) Start() {
	b.cron.Start()
	b.logger.Info().Int("jobs", len(b.cron.Entries())).Msg("Bot scheduler started")
}

// Stop stops the scheduler and waits for the running job.
func (b *Bot) Stop() {
	<-b.cron.Stop().Done()
	b.logger.Info().Msg("Bot scheduler stopped")
}

func (b *Bot) proofs(ctx context.Context) (types.PriceProofs, error) {
	if b.cfg.Proofs == nil {
		return types.PriceProofs{}, nil
	}
	proofs, err := b.cfg.Proofs.PriceProofs(ctx)
	if err != nil {
		return nil, fmt.Errorf("price proofs: %w", err)
	}
	return proofs, nil
}

// RunValuation refreshes the cached value of every position.
func (b *Bot) RunValuation(ctx context.Context) error {
	names := b.cfg.Fund.Snapshot().PositionNames()
	if len(names) == 0 {
		b.logger.Debug().Msg("No positions to value")
		return nil
	}
	proofs, err := b.proofs(ctx)
	if err != nil {
		return err
	}
	if err := b.cfg.Fund.UpdateDefiProtocolsValue(ctx, b.cfg.Credential, names, proofs); err != nil {
		return fmt.Errorf("update position values: %w", err)
	}

	snapshot := b.cfg.Fund.Snapshot()
	b.logger.Info().
		Int("positions", len(names)).
		Str("totalValue", snapshot.TotalValue.String()).
		Str("grossUnitValue", snapshot.GrossUnitValue.String()).
		Msg("Position values refreshed")
	return nil
}

// CycleReport summarizes what a cycle did.
type CycleReport struct {
	CycleNumber    int
	Distributed    int // Distributions completed
	FinishedClaims []string
	StartedClaim   string
	Unlocked       sdkmath.LegacyDec
}

// RunCycle walks the stake lifecycle one step for every stage: it completes a pending
// distribution, finishes the matured claims, unstakes the units unlocked by the previous
// cycle and starts a new unlock. Immature claims are retried on the next cycle.
func (b *Bot) RunCycle(ctx context.Context) error {
	_, err := b.Cycle(ctx)
	return err
}

// Cycle is RunCycle returning its report.
func (b *Bot) Cycle(ctx context.Context) (CycleReport, error) {
	cycleLogger := b.logger.With().Str("cycle_id", uuid.New().String()).Logger()
	cycleLogger.Info().Msg("--- Starting bot cycle ---")
	report := CycleReport{Unlocked: sdkmath.LegacyZeroDec()}

	// Step 1: a distribution left over by a failed cycle blocks FinishUnstake.
	if !b.distributionDue() {
		b.resetPaid()
	} else {
		if err := b.distribute(ctx); err != nil {
			return report, fmt.Errorf("pending distribution: %w", err)
		}
		report.Distributed++
	}

	// Step 2: matured claims.
	proofs, err := b.proofs(ctx)
	if err != nil {
		return report, err
	}
	for _, claimID := range b.cfg.Fund.ClaimIDs() {
		if err := b.cfg.Fund.FinishUnstake(ctx, b.cfg.Credential, claimID, proofs); err != nil {
			cycleLogger.Warn().Err(err).Str("claim", claimID).Msg("Claim not finished, retrying next cycle")
			continue
		}
		report.FinishedClaims = append(report.FinishedClaims, claimID)
		if err := b.distribute(ctx); err != nil {
			return report, fmt.Errorf("distribute claim %s: %w", claimID, err)
		}
		report.Distributed++
	}

	// Step 3: units unlocked by the previous cycle.
	claimID, err := b.cfg.Fund.StartUnstake(ctx, b.cfg.Credential)
	switch {
	case err == nil:
		report.StartedClaim = claimID
	case errors.Is(err, fund.ErrNoStakeUnits):
		cycleLogger.Debug().Msg("No unlocked stake units")
	default:
		return report, fmt.Errorf("start unstake: %w", err)
	}

	// Step 4: next unlock.
	if b.cfg.UnlockAmount.IsPositive() {
		if err := b.cfg.Fund.StartUnlockOwnerStakeUnits(ctx, b.cfg.Credential, b.cfg.UnlockAmount); err != nil {
			cycleLogger.Warn().Err(err).Str("amount", b.cfg.UnlockAmount.String()).Msg("Stake unit unlock not started")
		} else {
			report.Unlocked = b.cfg.UnlockAmount
		}
	}

	if b.cfg.Recorder != nil {
		cycleNumber, err := b.cfg.Recorder.IncrementCycleNumber(ctx)
		if err != nil {
			return report, fmt.Errorf("increment cycle number: %w", err)
		}
		report.CycleNumber = cycleNumber
		if _, err := b.cfg.Recorder.SaveFundSnapshot(ctx, cycleNumber, b.cfg.Fund.Snapshot()); err != nil {
			return report, fmt.Errorf("save fund snapshot: %w", err)
		}
	}

	cycleLogger.Info().
		Int("cycleNumber", report.CycleNumber).
		Int("distributions", report.Distributed).
		Strs("finishedClaims", report.FinishedClaims).
		Str("startedClaim", report.StartedClaim).
		Str("unlocked", report.Unlocked.String()).
		Msg("--- Bot cycle completed ---")
	return report, nil
}

func (b *Bot) distributionDue() bool {
	s := b.cfg.Fund.Snapshot()
	return s.PendingUnits.IsPositive() || s.UnitsToDistribute.IsPositive()
}

// distribute pays the pending units in chunks of DistributionChunk stakers. Stakers paid
// by an earlier, partially failed attempt are skipped so that a retry resumes the batch.
func (b *Bot) distribute(ctx context.Context) error {
	stakers, err := b.cfg.Stakers.Stakers(ctx)
	if err != nil {
		return fmt.Errorf("load stakers: %w", err)
	}

	unpaid := make([]fund.StakerShare, 0, len(stakers))
	for _, s := range stakers {
		if _, ok := b.paid[s.Account]; !ok {
			unpaid = append(unpaid, s)
		}
	}

	chunks := Chunk(unpaid, b.cfg.DistributionChunk)
	if len(chunks) == 0 {
		// Nobody left to pay: one empty final call burns the pending units.
		chunks = [][]fund.StakerShare{nil}
	}
	for i, chunk := range chunks {
		more := i < len(chunks)-1
		if err := b.cfg.Fund.FundUnitsDistribution(ctx, b.cfg.Credential, chunk, more); err != nil {
			b.logger.Warn().
				Err(err).
				Int("chunk", i+1).
				Int("chunks", len(chunks)).
				Int("paid", len(b.paid)).
				Msg("Distribution interrupted, resuming next cycle")
			return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		for _, s := range chunk {
			b.paid[s.Account] = struct{}{}
		}
	}
	b.logger.Info().
		Int("stakers", len(stakers)).
		Int("resumed", len(stakers)-len(unpaid)).
		Int("chunks", len(chunks)).
		Msg("Fund units distributed")
	b.resetPaid()
	return nil
}

func (b *Bot) resetPaid() {
	if len(b.paid) > 0 {
		b.paid = make(map[string]struct{})
	}
}

// Chunk splits stakers into slices of at most size entries.
func Chunk(stakers []fund.StakerShare, size int) [][]fund.StakerShare {
	var chunks [][]fund.StakerShare
	for start := 0; start < len(stakers); start += size {
		end := start + size
		if end > len(stakers) {
			end = len(stakers)
		}
		chunks = append(chunks, stakers[start:end])
	}
	return chunks
}
