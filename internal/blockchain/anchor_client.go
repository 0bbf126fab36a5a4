package blockchain

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"sports-prediction/internal/config"
	"sports-prediction/internal/models"
)

// PDA seeds of the pool program
var (
	seedConfig = []byte("config")
	seedPool   = []byte("pool")
	seedMatch  = []byte("match")
	seedVault  = []byte("vault")
	seedStake  = []byte("stake")
	seedClaim  = []byte("claim")
)

// Anchor account discriminators
var (
	poolAccountDiscriminator   = accountDiscriminator("Pool")
	configAccountDiscriminator = accountDiscriminator("GlobalConfig")
	stakeAccountDiscriminator  = accountDiscriminator("StakeReceipt")
)

// LedgerClient talks to the pool program through Solana RPC. It implements
// services.Ledger.
type LedgerClient struct {
	rpcClient    *rpc.Client
	rpcURL       string
	programID    solana.PublicKey
	authority    *solana.PrivateKey
	feeCollector *solana.PublicKey
	commitment   rpc.CommitmentType
	timeout      time.Duration
}

// GlobalConfig is the program's singleton config account
type GlobalConfig struct {
	Authority    solana.PublicKey
	FeeCollector solana.PublicKey
	PoolCount    uint64
	Bump         uint8
}

// PoolAccount is the on-chain layout of a staking pool
type PoolAccount struct {
	PoolNumber  uint64
	Creator     solana.PublicKey
	Authority   solana.PublicKey
	OptionA     string
	OptionB     string
	TotalA      uint64
	TotalB      uint64
	CloseTime   int64
	FeeBps      uint16
	Closed      bool
	ResultIndex *uint8
	Bump        uint8
}

// StakeAccount records one bettor's stake in a pool
type StakeAccount struct {
	Pool        solana.PublicKey
	Bettor      solana.PublicKey
	OptionIndex uint8
	Amount      uint64
	Bump        uint8
}

// NewLedgerClient creates a new pool program client
func NewLedgerClient(cfg config.LedgerConfig) (*LedgerClient, error) {
	programID, err := solana.PublicKeyFromBase58(cfg.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("invalid program ID: %w", err)
	}

	client := &LedgerClient{
		rpcClient:  rpc.New(cfg.RPCURL),
		rpcURL:     cfg.RPCURL,
		programID:  programID,
		commitment: parseCommitment(cfg.ConfirmCommitment),
		timeout:    cfg.RequestTimeout,
	}

	if cfg.AuthorityKey != "" {
		key, err := solana.PrivateKeyFromBase58(cfg.AuthorityKey)
		if err != nil {
			return nil, fmt.Errorf("invalid authority private key: %w", err)
		}
		client.authority = &key
		log.Printf("[Ledger] Authority loaded: %s", key.PublicKey())
	} else {
		log.Printf("[Ledger] Warning: no authority key configured, ledger writes are disabled")
	}

	if cfg.FeeCollector != "" {
		fc, err := solana.PublicKeyFromBase58(cfg.FeeCollector)
		if err != nil {
			return nil, fmt.Errorf("invalid fee collector: %w", err)
		}
		client.feeCollector = &fc
	}

	return client, nil
}

func parseCommitment(s string) rpc.CommitmentType {
	switch s {
	case "finalized":
		return rpc.CommitmentFinalized
	case "processed":
		return rpc.CommitmentProcessed
	default:
		return rpc.CommitmentConfirmed
	}
}

// GetProgramID returns the program ID
func (c *LedgerClient) GetProgramID() solana.PublicKey {
	return c.programID
}

// instructionDiscriminator is the first 8 bytes of sha256("global:<name>")
func instructionDiscriminator(name string) []byte {
	sum := sha256.Sum256([]byte("global:" + name))
	return sum[:8]
}

// accountDiscriminator is the first 8 bytes of sha256("account:<Name>")
func accountDiscriminator(name string) []byte {
	sum := sha256.Sum256([]byte("account:" + name))
	return sum[:8]
}

// GetConfigPDA derives the program config account
func (c *LedgerClient) GetConfigPDA() (solana.PublicKey, uint8, error) {
	pda, bump, err := solana.FindProgramAddress([][]byte{seedConfig}, c.programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("failed to derive config PDA: %w", err)
	}
	return pda, bump, nil
}

// GetPoolPDA derives the PDA for the n-th pool
func (c *LedgerClient) GetPoolPDA(poolNumber uint64) (solana.PublicKey, uint8, error) {
	numberBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(numberBytes, poolNumber)

	pda, bump, err := solana.FindProgramAddress([][]byte{seedPool, numberBytes}, c.programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("failed to derive pool PDA: %w", err)
	}
	return pda, bump, nil
}

// GetMatchPDA derives the match account that settles a pool
func (c *LedgerClient) GetMatchPDA(pool solana.PublicKey) (solana.PublicKey, uint8, error) {
	return c.derive("match", seedMatch, pool.Bytes())
}

// GetVaultPDA derives the account holding a pool's stakes
func (c *LedgerClient) GetVaultPDA(pool solana.PublicKey) (solana.PublicKey, uint8, error) {
	return c.derive("vault", seedVault, pool.Bytes())
}

// GetStakePDA derives a bettor's stake receipt
func (c *LedgerClient) GetStakePDA(pool, bettor solana.PublicKey) (solana.PublicKey, uint8, error) {
	return c.derive("stake", seedStake, pool.Bytes(), bettor.Bytes())
}

// GetClaimPDA derives the receipt written when a bettor claims
func (c *LedgerClient) GetClaimPDA(pool, bettor solana.PublicKey) (solana.PublicKey, uint8, error) {
	return c.derive("claim", seedClaim, pool.Bytes(), bettor.Bytes())
}

func (c *LedgerClient) derive(name string, seeds ...[]byte) (solana.PublicKey, uint8, error) {
	pda, bump, err := solana.FindProgramAddress(seeds, c.programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("failed to derive %s PDA: %w", name, err)
	}
	return pda, bump, nil
}

// fetchAccount returns the raw data of an account, or rpc.ErrNotFound
func (c *LedgerClient) fetchAccount(ctx context.Context, key solana.PublicKey) ([]byte, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	info, err := c.rpcClient.GetAccountInfoWithOpts(ctx, key, &rpc.GetAccountInfoOpts{
		Commitment: c.commitment,
	})
	if err != nil {
		return nil, err
	}
	if info == nil || info.Value == nil {
		return nil, rpc.ErrNotFound
	}
	return info.Value.Data.GetBinary(), nil
}

// GetConfig fetches the program config account
func (c *LedgerClient) GetConfig(ctx context.Context) (*GlobalConfig, error) {
	pda, _, err := c.GetConfigPDA()
	if err != nil {
		return nil, err
	}
	data, err := c.fetchAccount(ctx, pda)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch config account: %w", err)
	}
	return decodeGlobalConfig(data)
}

// GetPool implements services.Ledger
func (c *LedgerClient) GetPool(ctx context.Context, poolID string) (*models.Pool, error) {
	poolKey, err := solana.PublicKeyFromBase58(poolID)
	if err != nil {
		return nil, fmt.Errorf("invalid pool id %q: %w", poolID, err)
	}

	data, err := c.fetchAccount(ctx, poolKey)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pool account: %w", err)
	}

	acc, err := decodePoolAccount(data)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize pool: %w", err)
	}

	return acc.toModel(poolID, time.Now()), nil
}

// HasClaimed implements services.Ledger. A claim receipt exists once paid.
func (c *LedgerClient) HasClaimed(ctx context.Context, poolID, userAddress string) (bool, error) {
	poolKey, err := solana.PublicKeyFromBase58(poolID)
	if err != nil {
		return false, fmt.Errorf("invalid pool id %q: %w", poolID, err)
	}
	user, err := solana.PublicKeyFromBase58(userAddress)
	if err != nil {
		return false, fmt.Errorf("invalid user address: %w", err)
	}

	claimPDA, _, err := c.GetClaimPDA(poolKey, user)
	if err != nil {
		return false, err
	}

	_, err = c.fetchAccount(ctx, claimPDA)
	if errors.Is(err, rpc.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to fetch claim receipt: %w", err)
	}
	return true, nil
}

func (c *LedgerClient) getStake(ctx context.Context, pool, bettor solana.PublicKey) (*StakeAccount, error) {
	stakePDA, _, err := c.GetStakePDA(pool, bettor)
	if err != nil {
		return nil, err
	}
	data, err := c.fetchAccount(ctx, stakePDA)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stake receipt: %w", err)
	}
	return decodeStakeAccount(data)
}

func (c *LedgerClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (a *PoolAccount) toModel(poolID string, fetchedAt time.Time) *models.Pool {
	pool := &models.Pool{
		PoolID:       poolID,
		Creator:      a.Creator.String(),
		OptionLabels: [2]string{a.OptionA, a.OptionB},
		Totals:       [2]uint64{a.TotalA, a.TotalB},
		CloseTime:    time.Unix(a.CloseTime, 0).UTC(),
		FeeBps:       a.FeeBps,
		Closed:       a.Closed,
		FetchedAt:    fetchedAt,
	}
	if a.ResultIndex != nil {
		idx := int(*a.ResultIndex)
		pool.ResultIndex = &idx
	}
	return pool
}

// checkDiscriminator consumes and verifies the 8-byte account prefix
func checkDiscriminator(dec *bin.Decoder, want []byte, name string) error {
	got, err := dec.ReadNBytes(8)
	if err != nil {
		return fmt.Errorf("invalid %s data length", name)
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("account is not a %s", name)
	}
	return nil
}

func readPublicKey(dec *bin.Decoder) (solana.PublicKey, error) {
	raw, err := dec.ReadNBytes(32)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBytes(raw), nil
}

// readLabel reads a Borsh string (u32 length prefix)
func readLabel(dec *bin.Decoder) (string, error) {
	n, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return "", err
	}
	if int(n) > dec.Remaining() {
		return "", fmt.Errorf("string length %d exceeds data", n)
	}
	raw, err := dec.ReadNBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeGlobalConfig(data []byte) (*GlobalConfig, error) {
	dec := bin.NewBorshDecoder(data)
	if err := checkDiscriminator(dec, configAccountDiscriminator, "config"); err != nil {
		return nil, err
	}

	cfg := &GlobalConfig{}
	var err error
	if cfg.Authority, err = readPublicKey(dec); err != nil {
		return nil, fmt.Errorf("insufficient config data: %w", err)
	}
	if cfg.FeeCollector, err = readPublicKey(dec); err != nil {
		return nil, fmt.Errorf("insufficient config data: %w", err)
	}
	if cfg.PoolCount, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, fmt.Errorf("insufficient config data: %w", err)
	}
	if cfg.Bump, err = dec.ReadUint8(); err != nil {
		return nil, fmt.Errorf("insufficient config data: %w", err)
	}
	return cfg, nil
}

func decodePoolAccount(data []byte) (*PoolAccount, error) {
	dec := bin.NewBorshDecoder(data)
	if err := checkDiscriminator(dec, poolAccountDiscriminator, "pool"); err != nil {
		return nil, err
	}

	acc := &PoolAccount{}
	var err error
	fail := func(field string, err error) (*PoolAccount, error) {
		return nil, fmt.Errorf("insufficient pool data at %s: %w", field, err)
	}

	if acc.PoolNumber, err = dec.ReadUint64(bin.LE); err != nil {
		return fail("pool_number", err)
	}
	if acc.Creator, err = readPublicKey(dec); err != nil {
		return fail("creator", err)
	}
	if acc.Authority, err = readPublicKey(dec); err != nil {
		return fail("authority", err)
	}
	if acc.OptionA, err = readLabel(dec); err != nil {
		return fail("option_a", err)
	}
	if acc.OptionB, err = readLabel(dec); err != nil {
		return fail("option_b", err)
	}
	if acc.TotalA, err = dec.ReadUint64(bin.LE); err != nil {
		return fail("total_a", err)
	}
	if acc.TotalB, err = dec.ReadUint64(bin.LE); err != nil {
		return fail("total_b", err)
	}
	if acc.CloseTime, err = dec.ReadInt64(bin.LE); err != nil {
		return fail("close_time", err)
	}
	if acc.FeeBps, err = dec.ReadUint16(bin.LE); err != nil {
		return fail("fee_bps", err)
	}
	if acc.Closed, err = dec.ReadBool(); err != nil {
		return fail("closed", err)
	}

	// result: Option<u8>
	hasResult, err := dec.ReadUint8()
	if err != nil {
		return fail("result", err)
	}
	if hasResult == 1 {
		idx, err := dec.ReadUint8()
		if err != nil {
			return fail("result", err)
		}
		acc.ResultIndex = &idx
	}

	if acc.Bump, err = dec.ReadUint8(); err != nil {
		return fail("bump", err)
	}
	return acc, nil
}

func decodeStakeAccount(data []byte) (*StakeAccount, error) {
	dec := bin.NewBorshDecoder(data)
	if err := checkDiscriminator(dec, stakeAccountDiscriminator, "stake receipt"); err != nil {
		return nil, err
	}

	acc := &StakeAccount{}
	var err error
	if acc.Pool, err = readPublicKey(dec); err != nil {
		return nil, fmt.Errorf("insufficient stake data: %w", err)
	}
	if acc.Bettor, err = readPublicKey(dec); err != nil {
		return nil, fmt.Errorf("insufficient stake data: %w", err)
	}
	if acc.OptionIndex, err = dec.ReadUint8(); err != nil {
		return nil, fmt.Errorf("insufficient stake data: %w", err)
	}
	if acc.Amount, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, fmt.Errorf("insufficient stake data: %w", err)
	}
	if acc.Bump, err = dec.ReadUint8(); err != nil {
		return nil, fmt.Errorf("insufficient stake data: %w", err)
	}
	return acc, nil
}
