package blockchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"sports-prediction/internal/models"
	"sports-prediction/internal/services"
)

const confirmPollInterval = 500 * time.Millisecond

var maxTransactionVersion uint64 = 0

// signAndSend signs ixs with the authority and submits them. The signature is
// returned even on failure so an ambiguous send can be traced later.
func (c *LedgerClient) signAndSend(
	ctx context.Context,
	authorityKey solana.PrivateKey,
	ixs ...solana.Instruction,
) (solana.Signature, error) {
	authority := authorityKey.PublicKey()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	recent, err := c.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to get recent blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(ixs, recent.Value.Blockhash, solana.TransactionPayer(authority))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to create transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(authority) {
			return &authorityKey
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	sig := tx.Signatures[0]

	_, err = c.rpcClient.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		if isTimeout(err) {
			return sig, fmt.Errorf("%w: send %s: %v", services.ErrOutcomeUnknown, sig, err)
		}
		// Preflight rejected the transaction, nothing was committed.
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	return sig, nil
}

// sendAndConfirm submits ixs and waits for the configured commitment
func (c *LedgerClient) sendAndConfirm(ctx context.Context, authorityKey solana.PrivateKey, ixs ...solana.Instruction) (string, error) {
	sig, err := c.signAndSend(ctx, authorityKey, ixs...)
	if err != nil {
		return "", err
	}
	if err := c.waitForConfirmation(ctx, sig); err != nil {
		return sig.String(), err
	}
	return sig.String(), nil
}

// waitForConfirmation polls the signature status until it reaches the
// configured commitment, fails, or the request timeout runs out.
func (c *LedgerClient) waitForConfirmation(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	ticker := time.NewTicker(confirmPollInterval)
	defer ticker.Stop()

	for {
		status, err := c.signatureStatus(ctx, sig)
		if err != nil && !isTimeout(err) {
			log.Printf("[Ledger] Warning: status check for %s failed: %v", sig, err)
		}
		if status != nil {
			if status.Err != nil {
				return fmt.Errorf("%w: %s: %v", services.ErrLedgerTxFailed, sig, status.Err)
			}
			if commitmentReached(status.ConfirmationStatus, c.commitment) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s not confirmed in time", services.ErrOutcomeUnknown, sig)
		case <-ticker.C:
		}
	}
}

func (c *LedgerClient) signatureStatus(ctx context.Context, sig solana.Signature) (*rpc.SignatureStatusesResult, error) {
	res, err := c.rpcClient.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return nil, err
	}
	if res == nil || len(res.Value) == 0 {
		return nil, nil
	}
	return res.Value[0], nil
}

func commitmentReached(got rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	switch want {
	case rpc.CommitmentFinalized:
		return got == rpc.ConfirmationStatusFinalized
	case rpc.CommitmentProcessed:
		return got != ""
	default:
		return got == rpc.ConfirmationStatusConfirmed || got == rpc.ConfirmationStatusFinalized
	}
}

// fetchTransaction returns a committed transaction, or nil while it is not
// yet visible at the configured commitment.
func (c *LedgerClient) fetchTransaction(ctx context.Context, txRef string) (*solana.Transaction, error) {
	sig, err := solana.SignatureFromBase58(txRef)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction reference %q: %w", txRef, err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	status, err := c.signatureStatus(ctx, sig)
	if err != nil {
		return nil, fmt.Errorf("failed to get signature status: %w", err)
	}
	if status == nil {
		return nil, nil
	}
	if status.Err != nil {
		return nil, fmt.Errorf("%w: %s: %v", services.ErrLedgerTxFailed, txRef, status.Err)
	}
	if !commitmentReached(status.ConfirmationStatus, c.commitment) {
		return nil, nil
	}

	result, err := c.rpcClient.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Commitment:                     c.commitment,
		MaxSupportedTransactionVersion: &maxTransactionVersion,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction details: %w", err)
	}
	if result.Meta != nil && result.Meta.Err != nil {
		return nil, fmt.Errorf("%w: %s: %v", services.ErrLedgerTxFailed, txRef, result.Meta.Err)
	}

	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	return tx, nil
}

// findProgramInstruction returns the account keys of the first instruction of
// this program whose data starts with discriminator, and its data.
func (c *LedgerClient) findProgramInstruction(tx *solana.Transaction, discriminator []byte) ([]solana.PublicKey, []byte, bool) {
	keys := tx.Message.AccountKeys
	for _, inst := range tx.Message.Instructions {
		if int(inst.ProgramIDIndex) >= len(keys) || !keys[inst.ProgramIDIndex].Equals(c.programID) {
			continue
		}
		if !bytes.HasPrefix(inst.Data, discriminator) {
			continue
		}

		accounts := make([]solana.PublicKey, 0, len(inst.Accounts))
		for _, idx := range inst.Accounts {
			if int(idx) >= len(keys) {
				return nil, nil, false
			}
			accounts = append(accounts, keys[idx])
		}
		return accounts, inst.Data, true
	}
	return nil, nil, false
}

// LookupPool implements services.Ledger
func (c *LedgerClient) LookupPool(ctx context.Context, txRef string) (*models.PoolRef, error) {
	tx, err := c.fetchTransaction(ctx, txRef)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, services.ErrPoolNotIndexed
	}

	accounts, _, ok := c.findProgramInstruction(tx, createPoolDiscriminator)
	if !ok || len(accounts) <= createPoolAccountMatch {
		return nil, fmt.Errorf("transaction %s has no create_pool instruction", txRef)
	}

	return &models.PoolRef{
		PoolID:   accounts[createPoolAccountPool].String(),
		MatchRef: accounts[createPoolAccountMatch].String(),
	}, nil
}

// ConfirmStake implements services.Ledger for stakes signed by a user wallet
func (c *LedgerClient) ConfirmStake(ctx context.Context, txRef string) (*services.StakeReceipt, error) {
	tx, err := c.fetchTransaction(ctx, txRef)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction %s is not confirmed yet", txRef)
	}

	accounts, data, ok := c.findProgramInstruction(tx, placeStakeDiscriminator)
	if !ok || len(accounts) <= placeStakeAccountBettor {
		return nil, fmt.Errorf("transaction %s has no place_stake instruction", txRef)
	}

	option, amount, err := decodePlaceStake(data)
	if err != nil {
		return nil, err
	}

	return &services.StakeReceipt{
		TxRef:       txRef,
		PoolID:      accounts[placeStakeAccountPool].String(),
		Bettor:      accounts[placeStakeAccountBettor].String(),
		OptionIndex: int(option),
		Amount:      amount,
	}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
