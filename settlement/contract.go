package settlement

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	log "github.com/sirupsen/logrus"
)

// hunterABI covers the single prize method the service calls
const hunterABI = `[{
	"type": "function",
	"name": "verifyAndAwardPrize",
	"stateMutability": "nonpayable",
	"inputs": [
		{"name": "huntId", "type": "string"},
		{"name": "winner", "type": "address"},
		{"name": "proof", "type": "bytes"}
	],
	"outputs": []
}]`

// ContractConfig holds the on-chain settlement settings
type ContractConfig struct {
	RPCURL     string
	Contract   string
	PrivateKey string
	ChainID    int64
}

// ContractNotifier calls verifyAndAwardPrize on the hunt contract
type ContractNotifier struct {
	client   *ethclient.Client
	contract *bind.BoundContract
	key      *ecdsa.PrivateKey
	chainID  *big.Int
}

// NewContractNotifier dials the RPC endpoint and binds the hunt contract
func NewContractNotifier(ctx context.Context, cfg ContractConfig) (*ContractNotifier, error) {
	if !common.IsHexAddress(cfg.Contract) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.Contract)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing settlement key: %w", err)
	}
	parsed, err := ParseHunterABI()
	if err != nil {
		return nil, err
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", cfg.RPCURL, err)
	}

	addr := common.HexToAddress(cfg.Contract)
	return &ContractNotifier{
		client:   client,
		contract: bind.NewBoundContract(addr, parsed, client, client, client),
		key:      key,
		chainID:  big.NewInt(cfg.ChainID),
	}, nil
}

// ParseHunterABI returns the parsed prize contract ABI
func ParseHunterABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(hunterABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parsing hunter ABI: %w", err)
	}
	return parsed, nil
}

// NotifyWin sends the award transaction and waits for it to be mined
func (c *ContractNotifier) NotifyWin(ctx context.Context, huntID, winner string, proof []byte) (bool, error) {
	if !common.IsHexAddress(winner) {
		return false, fmt.Errorf("invalid winner address %q", winner)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return false, fmt.Errorf("creating transactor: %w", err)
	}
	auth.Context = ctx

	tx, err := c.contract.Transact(auth, "verifyAndAwardPrize", huntID, common.HexToAddress(winner), proof)
	if err != nil {
		return false, fmt.Errorf("sending verifyAndAwardPrize: %w", err)
	}
	log.WithFields(log.Fields{"hunt_id": huntID, "tx": tx.Hash().Hex()}).Info("Submitted award transaction")

	receipt, err := bind.WaitMined(ctx, c.client, tx)
	if err != nil {
		return false, fmt.Errorf("waiting for %s: %w", tx.Hash().Hex(), err)
	}
	return receipt.Status == types.ReceiptStatusSuccessful, nil
}

// Close releases the RPC connection
func (c *ContractNotifier) Close() {
	c.client.Close()
}
