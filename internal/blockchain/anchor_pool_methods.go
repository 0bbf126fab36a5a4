package blockchain

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"math/big"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"sports-prediction/internal/services"
)

// Instruction discriminators of the pool program
var (
	createPoolDiscriminator = instructionDiscriminator("create_pool")
	placeStakeDiscriminator = instructionDiscriminator("place_stake")
	closePoolDiscriminator  = instructionDiscriminator("close_pool")
	postResultDiscriminator = instructionDiscriminator("post_result")
	claimDiscriminator      = instructionDiscriminator("claim")
)

// create_pool account order. LookupPool reads the pool and match keys back
// from a confirmed transaction by these positions.
const (
	createPoolAccountPool  = 1
	createPoolAccountMatch = 2
)

// place_stake account order
const (
	placeStakeAccountPool   = 0
	placeStakeAccountBettor = 3
)

func encodeCreatePool(labels [2]string, closeTime int64, feeBps uint16) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)

	if err := enc.WriteBytes(createPoolDiscriminator, false); err != nil {
		return nil, err
	}
	for _, label := range labels {
		if err := enc.WriteUint32(uint32(len(label)), bin.LE); err != nil {
			return nil, err
		}
		if err := enc.WriteBytes([]byte(label), false); err != nil {
			return nil, err
		}
	}
	if err := enc.WriteInt64(closeTime, bin.LE); err != nil {
		return nil, err
	}
	if err := enc.WriteUint16(feeBps, bin.LE); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodePlaceStake(optionIndex uint8, amount uint64) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)

	if err := enc.WriteBytes(placeStakeDiscriminator, false); err != nil {
		return nil, err
	}
	if err := enc.WriteUint8(optionIndex); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(amount, bin.LE); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodePlaceStake reads the arguments of a place_stake instruction
func decodePlaceStake(data []byte) (uint8, uint64, error) {
	dec := bin.NewBorshDecoder(data)
	if err := checkDiscriminator(dec, placeStakeDiscriminator, "place_stake instruction"); err != nil {
		return 0, 0, err
	}
	option, err := dec.ReadUint8()
	if err != nil {
		return 0, 0, fmt.Errorf("invalid place_stake data: %w", err)
	}
	amount, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid place_stake data: %w", err)
	}
	return option, amount, nil
}

func (c *LedgerClient) requireAuthority() (solana.PrivateKey, error) {
	if c.authority == nil {
		return nil, fmt.Errorf("SOLANA_AUTHORITY_PRIVATE_KEY not set")
	}
	return *c.authority, nil
}

// CreatePool implements services.Ledger. The pool identity is published by
// LookupPool once the transaction is visible.
func (c *LedgerClient) CreatePool(ctx context.Context, req services.CreatePoolRequest) (*services.CreatePoolResult, error) {
	authorityKey, err := c.requireAuthority()
	if err != nil {
		return nil, err
	}
	authority := authorityKey.PublicKey()

	creator, err := solana.PublicKeyFromBase58(req.Creator)
	if err != nil {
		return nil, fmt.Errorf("invalid creator address: %w", err)
	}

	cfg, err := c.GetConfig(ctx)
	if err != nil {
		return nil, err
	}

	configPDA, _, err := c.GetConfigPDA()
	if err != nil {
		return nil, err
	}
	poolPDA, _, err := c.GetPoolPDA(cfg.PoolCount)
	if err != nil {
		return nil, err
	}
	matchPDA, _, err := c.GetMatchPDA(poolPDA)
	if err != nil {
		return nil, err
	}

	data, err := encodeCreatePool(req.OptionLabels, req.CloseTime.Unix(), req.FeeBps)
	if err != nil {
		return nil, fmt.Errorf("failed to encode create_pool: %w", err)
	}

	accounts := []*solana.AccountMeta{
		{PublicKey: configPDA, IsWritable: true, IsSigner: false},               // config
		{PublicKey: poolPDA, IsWritable: true, IsSigner: false},                 // pool
		{PublicKey: matchPDA, IsWritable: true, IsSigner: false},                // match
		{PublicKey: creator, IsWritable: false, IsSigner: false},                // creator
		{PublicKey: authority, IsWritable: true, IsSigner: true},                // authority
		{PublicKey: solana.SystemProgramID, IsWritable: false, IsSigner: false}, // system_program
	}

	sig, err := c.signAndSend(ctx, authorityKey, solana.NewInstruction(c.programID, accounts, data))
	if err != nil {
		if sig == (solana.Signature{}) {
			return nil, err
		}
		return &services.CreatePoolResult{TxRef: sig.String()}, err
	}

	log.Printf("[Ledger] create_pool sent: tx=%s expected_pool=%s", sig, poolPDA)
	return &services.CreatePoolResult{TxRef: sig.String()}, nil
}

// PlaceStake implements services.Ledger. The authority funds the stake on
// behalf of the bettor.
func (c *LedgerClient) PlaceStake(ctx context.Context, req services.StakeRequest) (*services.TxResult, error) {
	authorityKey, err := c.requireAuthority()
	if err != nil {
		return nil, err
	}
	authority := authorityKey.PublicKey()

	pool, err := solana.PublicKeyFromBase58(req.PoolID)
	if err != nil {
		return nil, fmt.Errorf("invalid pool id: %w", err)
	}
	bettor, err := solana.PublicKeyFromBase58(req.Bettor)
	if err != nil {
		return nil, fmt.Errorf("invalid bettor address: %w", err)
	}
	if req.OptionIndex != 0 && req.OptionIndex != 1 {
		return nil, fmt.Errorf("invalid option index %d", req.OptionIndex)
	}

	vaultPDA, _, err := c.GetVaultPDA(pool)
	if err != nil {
		return nil, err
	}
	stakePDA, _, err := c.GetStakePDA(pool, bettor)
	if err != nil {
		return nil, err
	}

	data, err := encodePlaceStake(uint8(req.OptionIndex), req.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to encode place_stake: %w", err)
	}

	accounts := []*solana.AccountMeta{
		{PublicKey: pool, IsWritable: true, IsSigner: false},                    // pool
		{PublicKey: vaultPDA, IsWritable: true, IsSigner: false},                // vault
		{PublicKey: stakePDA, IsWritable: true, IsSigner: false},                // stake
		{PublicKey: bettor, IsWritable: false, IsSigner: false},                 // bettor
		{PublicKey: authority, IsWritable: true, IsSigner: true},                // payer
		{PublicKey: solana.SystemProgramID, IsWritable: false, IsSigner: false}, // system_program
	}

	txRef, err := c.sendAndConfirm(ctx, authorityKey, solana.NewInstruction(c.programID, accounts, data))
	if err != nil {
		return nil, err
	}
	return &services.TxResult{TxRef: txRef}, nil
}

// ClosePool implements services.Ledger
func (c *LedgerClient) ClosePool(ctx context.Context, poolID, matchRef string) (*services.TxResult, error) {
	return c.settle(ctx, "close_pool", poolID, matchRef, closePoolDiscriminator)
}

// PostResult implements services.Ledger
func (c *LedgerClient) PostResult(ctx context.Context, poolID, matchRef string, resultIndex int) (*services.TxResult, error) {
	if resultIndex != 0 && resultIndex != 1 {
		return nil, fmt.Errorf("invalid result index %d", resultIndex)
	}
	data := append(append([]byte{}, postResultDiscriminator...), uint8(resultIndex))
	return c.settle(ctx, "post_result", poolID, matchRef, data)
}

// settle sends an authority-only instruction over [pool, match, authority]
func (c *LedgerClient) settle(ctx context.Context, op, poolID, matchRef string, data []byte) (*services.TxResult, error) {
	authorityKey, err := c.requireAuthority()
	if err != nil {
		return nil, err
	}

	pool, err := solana.PublicKeyFromBase58(poolID)
	if err != nil {
		return nil, fmt.Errorf("invalid pool id: %w", err)
	}
	match, err := solana.PublicKeyFromBase58(matchRef)
	if err != nil {
		return nil, fmt.Errorf("invalid match ref: %w", err)
	}

	accounts := []*solana.AccountMeta{
		{PublicKey: pool, IsWritable: true, IsSigner: false},                     // pool
		{PublicKey: match, IsWritable: true, IsSigner: false},                    // match
		{PublicKey: authorityKey.PublicKey(), IsWritable: false, IsSigner: true}, // authority
	}

	txRef, err := c.sendAndConfirm(ctx, authorityKey, solana.NewInstruction(c.programID, accounts, data))
	if err != nil {
		return nil, err
	}
	log.Printf("[Ledger] %s confirmed for pool %s: tx=%s", op, poolID, txRef)
	return &services.TxResult{TxRef: txRef}, nil
}

// Claim implements services.Ledger. The payout is computed from the pool and
// stake receipt read before sending.
func (c *LedgerClient) Claim(ctx context.Context, poolID, userAddress string) (*services.ClaimResult, error) {
	authorityKey, err := c.requireAuthority()
	if err != nil {
		return nil, err
	}

	poolKey, err := solana.PublicKeyFromBase58(poolID)
	if err != nil {
		return nil, fmt.Errorf("invalid pool id: %w", err)
	}
	user, err := solana.PublicKeyFromBase58(userAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid user address: %w", err)
	}

	poolData, err := c.fetchAccount(ctx, poolKey)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pool account: %w", err)
	}
	poolAcc, err := decodePoolAccount(poolData)
	if err != nil {
		return nil, err
	}
	stake, err := c.getStake(ctx, poolKey, user)
	if err != nil {
		return nil, err
	}

	feeCollector := c.feeCollector
	if feeCollector == nil {
		cfg, err := c.GetConfig(ctx)
		if err != nil {
			return nil, err
		}
		feeCollector = &cfg.FeeCollector
	}

	vaultPDA, _, err := c.GetVaultPDA(poolKey)
	if err != nil {
		return nil, err
	}
	stakePDA, _, err := c.GetStakePDA(poolKey, user)
	if err != nil {
		return nil, err
	}
	claimPDA, _, err := c.GetClaimPDA(poolKey, user)
	if err != nil {
		return nil, err
	}

	accounts := []*solana.AccountMeta{
		{PublicKey: poolKey, IsWritable: true, IsSigner: false},                 // pool
		{PublicKey: vaultPDA, IsWritable: true, IsSigner: false},                // vault
		{PublicKey: stakePDA, IsWritable: false, IsSigner: false},               // stake
		{PublicKey: claimPDA, IsWritable: true, IsSigner: false},                // claim
		{PublicKey: user, IsWritable: true, IsSigner: false},                    // user
		{PublicKey: *feeCollector, IsWritable: true, IsSigner: false},           // fee_collector
		{PublicKey: authorityKey.PublicKey(), IsWritable: true, IsSigner: true}, // authority
		{PublicKey: solana.SystemProgramID, IsWritable: false, IsSigner: false}, // system_program
	}

	txRef, err := c.sendAndConfirm(ctx, authorityKey, solana.NewInstruction(c.programID, accounts, claimDiscriminator))
	if err != nil {
		return nil, err
	}

	return &services.ClaimResult{
		TxRef:  txRef,
		Payout: ExpectedPayout(poolAcc, stake),
	}, nil
}

// ExpectedPayout is the parimutuel share of a winning stake after the pool
// fee. Losing stakes and unresolved pools pay nothing.
func ExpectedPayout(pool *PoolAccount, stake *StakeAccount) uint64 {
	if pool.ResultIndex == nil || stake.OptionIndex != *pool.ResultIndex {
		return 0
	}

	winning := pool.TotalA
	if *pool.ResultIndex == 1 {
		winning = pool.TotalB
	}
	if winning == 0 {
		return 0
	}

	gross := new(big.Int).Add(new(big.Int).SetUint64(pool.TotalA), new(big.Int).SetUint64(pool.TotalB))
	fee := new(big.Int).Mul(gross, big.NewInt(int64(pool.FeeBps)))
	fee.Quo(fee, big.NewInt(10_000))
	net := new(big.Int).Sub(gross, fee)

	payout := new(big.Int).Mul(new(big.Int).SetUint64(stake.Amount), net)
	payout.Quo(payout, new(big.Int).SetUint64(winning))
	if !payout.IsUint64() {
		return ^uint64(0)
	}
	return payout.Uint64()
}
