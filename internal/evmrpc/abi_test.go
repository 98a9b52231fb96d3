package evmrpc

import (
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"defi-revenue-lab/internal/domain"
)

func TestParseEventSpec_Topic0(t *testing.T) {
	spec, err := ParseEventSpec("event Transfer(address indexed from, address indexed to, uint256 value)")
	if err != nil {
		t.Fatalf("ParseEventSpec: %v", err)
	}

	if spec.Name != "Transfer" {
		t.Errorf("expected name Transfer, got %s", spec.Name)
	}
	if spec.Signature() != "Transfer(address,address,uint256)" {
		t.Errorf("unexpected signature %s", spec.Signature())
	}

	// The ERC-20 Transfer hash is a published constant.
	want := "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"
	if spec.Topic0() != want {
		t.Errorf("expected topic0 %s, got %s", want, spec.Topic0())
	}
}

func TestParseEventSpec_Malformed(t *testing.T) {
	cases := []string{
		"",
		"Transfer",
		"(address to)",
		"event Swap(string name)", // dynamic type
	}
	for _, abi := range cases {
		if _, err := ParseEventSpec(abi); err == nil {
			t.Errorf("expected error for %q", abi)
		}
	}
}

func TestParseFuncSpec_Selector(t *testing.T) {
	fee, err := ParseFuncSpec("function fee() view returns (uint256)")
	if err != nil {
		t.Fatalf("ParseFuncSpec: %v", err)
	}
	if got := hex.EncodeToString(fee.Selector()); got != "ddca3f43" {
		t.Errorf("expected fee() selector ddca3f43, got %s", got)
	}

	balanceOf, err := ParseFuncSpec("balanceOf(address owner) returns (uint256)")
	if err != nil {
		t.Fatalf("ParseFuncSpec: %v", err)
	}
	if got := hex.EncodeToString(balanceOf.Selector()); got != "70a08231" {
		t.Errorf("expected balanceOf(address) selector 70a08231, got %s", got)
	}
}

func TestEncodeCall(t *testing.T) {
	fn := MustFuncSpec("gaugeForPool(address pool) returns (address)")
	pool := domain.NormalizeAddress("0x2dA25E7446A70D7be65fd4c053948BEcAA6374c8")

	data, err := fn.EncodeCall(pool)
	if err != nil {
		t.Fatalf("EncodeCall: %v", err)
	}

	if len(data) != 4+32 {
		t.Fatalf("expected 36 bytes of calldata, got %d", len(data))
	}
	// Address is right-aligned in its word.
	if got := "0x" + hex.EncodeToString(data[16:36]); got != string(pool) {
		t.Errorf("expected encoded address %s, got %s", pool, got)
	}
	for _, b := range data[4:16] {
		if b != 0 {
			t.Fatal("expected zero padding before address")
		}
	}
}

func TestEncodeCall_WrongArity(t *testing.T) {
	fn := MustFuncSpec("fee() returns (uint256)")
	if _, err := fn.EncodeCall(big.NewInt(1)); err == nil {
		t.Error("expected error for extra parameter")
	}
}

func TestEncodeCall_NegativeInt(t *testing.T) {
	fn := MustFuncSpec("probe(int256 x)")

	data, err := fn.EncodeCall(big.NewInt(-1))
	if err != nil {
		t.Fatalf("EncodeCall: %v", err)
	}
	// Two's complement: -1 is all ones.
	for _, b := range data[4:] {
		if b != 0xff {
			t.Fatalf("expected 0xff word for -1, got %s", hex.EncodeToString(data[4:]))
		}
	}
}

func TestDecodeOutput(t *testing.T) {
	fn := MustFuncSpec("feeRates() returns (uint256 managementRate, uint256 performanceRate)")

	data := make([]byte, 64)
	data[31] = 200  // managementRate
	data[63] = 0x10 // performanceRate 16

	res, err := fn.DecodeOutput(data)
	if err != nil {
		t.Fatalf("DecodeOutput: %v", err)
	}
	if got := res.BigInt(0); got.Cmp(big.NewInt(200)) != 0 {
		t.Errorf("expected output 0 = 200, got %s", got)
	}
	if got := res.BigInt(1); got.Cmp(big.NewInt(16)) != 0 {
		t.Errorf("expected output 1 = 16, got %s", got)
	}
}

func TestDecodeOutput_Empty(t *testing.T) {
	fn := MustFuncSpec("fee() returns (uint256)")

	res, err := fn.DecodeOutput(nil)
	if err != nil {
		t.Fatalf("DecodeOutput: %v", err)
	}
	if res != nil {
		t.Errorf("expected nil result for empty payload, got %+v", res)
	}
}

func TestDecodeOutput_Short(t *testing.T) {
	fn := MustFuncSpec("feeRates() returns (uint256 m, uint256 p)")
	if _, err := fn.DecodeOutput(make([]byte, 32)); err == nil {
		t.Error("expected error for short output")
	}
}

func TestDecodeOutput_NegativeInt(t *testing.T) {
	fn := MustFuncSpec("delta() returns (int256)")

	word := make([]byte, 32)
	for i := range word {
		word[i] = 0xff
	}
	res, err := fn.DecodeOutput(word)
	if err != nil {
		t.Fatalf("DecodeOutput: %v", err)
	}
	if got := res.BigInt(0); got.Cmp(big.NewInt(-1)) != 0 {
		t.Errorf("expected -1, got %s", got)
	}
}

func TestDecodeLog(t *testing.T) {
	spec := MustEventSpec("event Swap(address indexed sender, uint256 amount0In, uint256 amount1Out)")

	sender := "000000000000000000000000aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	data := make([]byte, 64)
	data[31] = 0x05 // amount0In = 5
	data[63] = 0x09 // amount1Out = 9

	l := Log{
		Address:     "0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB",
		Topics:      []string{spec.Topic0(), "0x" + sender},
		Data:        "0x" + hex.EncodeToString(data),
		BlockNumber: "0x64",
	}

	ev, err := spec.DecodeLog(l)
	if err != nil {
		t.Fatalf("DecodeLog: %v", err)
	}

	if ev.Emitter != domain.NormalizeAddress(l.Address) {
		t.Errorf("expected normalized emitter, got %s", ev.Emitter)
	}
	if ev.Block != 100 {
		t.Errorf("expected block 100, got %d", ev.Block)
	}
	if got := ev.Address("sender"); !strings.HasSuffix(string(got), "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa") {
		t.Errorf("unexpected sender %s", got)
	}
	if got := ev.BigInt("amount0In"); got.Cmp(big.NewInt(5)) != 0 {
		t.Errorf("expected amount0In 5, got %s", got)
	}
	if got := ev.BigInt("amount1Out"); got.Cmp(big.NewInt(9)) != 0 {
		t.Errorf("expected amount1Out 9, got %s", got)
	}
}

func TestDecodeLog_MissingTopic(t *testing.T) {
	spec := MustEventSpec("event Ping(address indexed sender)")

	l := Log{
		Address:     "0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB",
		Topics:      []string{spec.Topic0()},
		Data:        "0x",
		BlockNumber: "0x1",
	}
	if _, err := spec.DecodeLog(l); err == nil {
		t.Error("expected error for missing indexed topic")
	}
}

func TestDecodeLog_ShortData(t *testing.T) {
	spec := MustEventSpec("event Ping(uint256 value)")

	l := Log{
		Address:     "0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB",
		Topics:      []string{spec.Topic0()},
		Data:        "0x00",
		BlockNumber: "0x1",
	}
	if _, err := spec.DecodeLog(l); err == nil {
		t.Error("expected error for short data payload")
	}
}
