package token

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	carol = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func TestLedgerTransferFromConsumesAllowance(t *testing.T) {
	l := NewLedger(common.HexToAddress("0xaa"), "TKN")
	require.NoError(t, l.Mint(alice, uint256.NewInt(100)))
	require.NoError(t, l.Approve(alice, bob, uint256.NewInt(60)))

	require.NoError(t, l.TransferFrom(bob, alice, carol, uint256.NewInt(40)))
	assert.Equal(t, uint64(60), l.BalanceOf(alice).Uint64())
	assert.Equal(t, uint64(40), l.BalanceOf(carol).Uint64())
	assert.Equal(t, uint64(20), l.Allowance(alice, bob).Uint64())

	err := l.TransferFrom(bob, alice, carol, uint256.NewInt(21))
	assert.ErrorIs(t, err, ErrInsufficientAllowance)

	err = l.Transfer(carol, bob, uint256.NewInt(41))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, uint64(100), l.TotalSupply().Uint64())
}

func TestLedgerFailedTransferFromKeepsAllowance(t *testing.T) {
	l := NewLedger(common.HexToAddress("0xaa"), "TKN")
	require.NoError(t, l.Mint(alice, uint256.NewInt(10)))
	require.NoError(t, l.Approve(alice, bob, uint256.NewInt(50)))

	err := l.TransferFrom(bob, alice, carol, uint256.NewInt(20))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, uint64(50), l.Allowance(alice, bob).Uint64())
}

func TestLedgerRevertToSnapshot(t *testing.T) {
	l := NewLedger(common.HexToAddress("0xaa"), "TKN")
	require.NoError(t, l.Mint(alice, uint256.NewInt(100)))
	require.NoError(t, l.Approve(alice, bob, uint256.NewInt(100)))

	id := l.Snapshot()
	require.NoError(t, l.TransferFrom(bob, alice, carol, uint256.NewInt(30)))
	require.NoError(t, l.Mint(bob, uint256.NewInt(5)))
	l.RevertToSnapshot(id)

	assert.Equal(t, uint64(100), l.BalanceOf(alice).Uint64())
	assert.True(t, l.BalanceOf(carol).IsZero())
	assert.True(t, l.BalanceOf(bob).IsZero())
	assert.Equal(t, uint64(100), l.Allowance(alice, bob).Uint64())
	assert.Equal(t, uint64(100), l.TotalSupply().Uint64())

	id = l.Snapshot()
	require.NoError(t, l.Transfer(alice, carol, uint256.NewInt(1)))
	l.Release(id)
	assert.Equal(t, uint64(1), l.BalanceOf(carol).Uint64())
}

func TestLedgerFrozenAccount(t *testing.T) {
	l := NewLedger(common.HexToAddress("0xaa"), "TKN")
	require.NoError(t, l.Mint(alice, uint256.NewInt(10)))
	l.Freeze(bob)

	assert.ErrorIs(t, l.Transfer(alice, bob, uint256.NewInt(1)), ErrFrozen)
	l.Unfreeze(bob)
	assert.NoError(t, l.Transfer(alice, bob, uint256.NewInt(1)))
}

func TestBankDeployDerivesAddresses(t *testing.T) {
	bank := NewBank()
	first := bank.Deploy(alice, "ONE")
	second := bank.Deploy(alice, "TWO")

	assert.NotEqual(t, first.Address(), second.Address())
	assert.Equal(t, uint64(2), bank.Nonces()[alice])

	got, err := bank.Token(second.Address())
	require.NoError(t, err)
	assert.Same(t, second, got)

	_, err = bank.Token(bob)
	assert.ErrorIs(t, err, ErrUnknownToken)

	assert.Equal(t, NativeAddress, bank.Native().Address())
	assert.Len(t, bank.Ledgers(), 3)
}

func TestBankUndeployRestoresNonce(t *testing.T) {
	bank := NewBank()
	first := bank.Deploy(alice, "ONE")
	second := bank.Deploy(alice, "TWO")

	bank.Undeploy(alice, first.Address())
	assert.Len(t, bank.Ledgers(), 3)

	bank.Undeploy(alice, second.Address())
	assert.Len(t, bank.Ledgers(), 2)
	assert.Equal(t, uint64(1), bank.Nonces()[alice])

	again := bank.Deploy(alice, "TWO")
	assert.Equal(t, second.Address(), again.Address())

	bank.Undeploy(bob, first.Address())
	bank.Undeploy(alice, again.Address())
	bank.Undeploy(alice, first.Address())
	assert.Len(t, bank.Ledgers(), 1)
	_, ok := bank.Nonces()[alice]
	assert.False(t, ok)
}

func TestBankResolve(t *testing.T) {
	bank := NewBank()
	one := bank.Deploy(alice, "ONE")

	got, err := bank.Resolve("ONE")
	require.NoError(t, err)
	assert.Same(t, one, got)

	got, err = bank.Resolve(one.Address().Hex())
	require.NoError(t, err)
	assert.Same(t, one, got)

	got, err = bank.Resolve("ETH")
	require.NoError(t, err)
	assert.Equal(t, NativeAddress, got.Address())

	_, err = bank.Resolve("NONE")
	assert.ErrorIs(t, err, ErrUnknownToken)

	bank.Deploy(bob, "ONE")
	_, err = bank.Resolve("ONE")
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestLedgerFrozenList(t *testing.T) {
	l := NewLedger(common.HexToAddress("0xaa"), "TKN")
	l.Freeze(bob)
	l.Freeze(alice)
	assert.Len(t, l.Frozen(), 2)
	l.Unfreeze(bob)
	assert.Equal(t, []common.Address{alice}, l.Frozen())
}
