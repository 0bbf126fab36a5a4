package blockchain

import (
	"context"
	"log"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
)

// DiagnosticResult holds the result of a ledger connectivity diagnostic
type DiagnosticResult struct {
	RPCConnected      bool   `json:"rpc_connected"`
	RPCURL            string `json:"rpc_url"`
	RPCError          string `json:"rpc_error,omitempty"`
	LatestBlockhash   string `json:"latest_blockhash,omitempty"`
	AuthorityKeySet   bool   `json:"authority_key_set"`
	AuthorityPubkey   string `json:"authority_pubkey,omitempty"`
	ProgramID         string `json:"program_id"`
	ConfigPDA         string `json:"config_pda,omitempty"`
	PDAError          string `json:"pda_error,omitempty"`
	ConfigFound       bool   `json:"config_found"`
	ConfigError       string `json:"config_error,omitempty"`
	PoolCount         uint64 `json:"pool_count"`
	NextPoolPDA       string `json:"next_pool_pda,omitempty"`
	AuthorityMatches  bool   `json:"authority_matches"`
	PlatformWalletSet bool   `json:"platform_wallet_set"`
	PlatformWallet    string `json:"platform_wallet,omitempty"`
	Timestamp         string `json:"timestamp"`
}

// RunDiagnostics checks RPC connectivity, the authority key, PDA derivation
// and the program config account
func (c *LedgerClient) RunDiagnostics(ctx context.Context) *DiagnosticResult {
	result := &DiagnosticResult{
		Timestamp: time.Now().Format(time.RFC3339),
		ProgramID: c.programID.String(),
		RPCURL:    c.rpcURL,
	}

	// 1. RPC connectivity
	blockhash, err := c.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		result.RPCError = err.Error()
		log.Printf("[Diagnostics] RPC failed: %v", err)
	} else {
		result.RPCConnected = true
		result.LatestBlockhash = blockhash.Value.Blockhash.String()
	}

	// 2. Authority key
	if c.authority != nil {
		result.AuthorityKeySet = true
		result.AuthorityPubkey = c.authority.PublicKey().String()
	} else {
		log.Printf("[Diagnostics] SOLANA_AUTHORITY_PRIVATE_KEY not set")
	}

	// 3. PDA derivation
	configPDA, _, err := c.GetConfigPDA()
	if err != nil {
		result.PDAError = err.Error()
	} else {
		result.ConfigPDA = configPDA.String()
	}

	// 4. Config account and next pool address
	if result.RPCConnected && result.PDAError == "" {
		cfg, err := c.GetConfig(ctx)
		if err != nil {
			result.ConfigError = err.Error()
			log.Printf("[Diagnostics] Config account unavailable: %v", err)
		} else {
			result.ConfigFound = true
			result.PoolCount = cfg.PoolCount
			result.AuthorityMatches = c.authority != nil && cfg.Authority.Equals(c.authority.PublicKey())
			if next, _, err := c.GetPoolPDA(cfg.PoolCount); err == nil {
				result.NextPoolPDA = next.String()
			}
		}
	}

	// 5. Fee collector
	if c.feeCollector != nil {
		result.PlatformWalletSet = true
		result.PlatformWallet = c.feeCollector.String()
	}

	return result
}
