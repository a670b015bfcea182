package gateway

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"net/url"
	"testing"
)

// 32 字节零种子的 base64，仅用于测试。
const testSeed = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="

func TestDecodeSigningKey(t *testing.T) {
	key, err := decodeSigningKey(testSeed)
	if err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if len(key) != ed25519.PrivateKeySize {
		t.Fatalf("unexpected key size %d", len(key))
	}

	if _, err := decodeSigningKey("not-base64!!"); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("want ErrConfiguration, got %v", err)
	}
	// 长度不对的种子同样拒绝
	short := base64.StdEncoding.EncodeToString([]byte("short"))
	if _, err := decodeSigningKey(short); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("want ErrConfiguration for short seed, got %v", err)
	}
}

func TestSignInstructionMessageLayout(t *testing.T) {
	key, err := decodeSigningKey(testSeed)
	if err != nil {
		t.Fatalf("decode err: %v", err)
	}
	params := url.Values{
		"symbol": {"SOL_USDC_PERP"},
		"side":   {"Bid"},
		"price":  {"100.5"},
	}
	sig := signInstruction(key, "orderExecute", params, 1700000000000, 5000)

	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		t.Fatalf("signature not base64: %v", err)
	}

	// 参数按 key 排序，指令在前、时间窗口在后
	msg := "instruction=orderExecute&price=100.5&side=Bid&symbol=SOL_USDC_PERP&timestamp=1700000000000&window=5000"
	pub := key.Public().(ed25519.PublicKey)
	if !ed25519.Verify(pub, []byte(msg), raw) {
		t.Fatalf("signature does not verify against expected message")
	}
}

func TestSignInstructionNoParams(t *testing.T) {
	key, _ := decodeSigningKey(testSeed)
	sig := signInstruction(key, "positionQuery", url.Values{}, 1700000000000, 5000)
	raw, _ := base64.StdEncoding.DecodeString(sig)

	msg := "instruction=positionQuery&timestamp=1700000000000&window=5000"
	pub := key.Public().(ed25519.PublicKey)
	if !ed25519.Verify(pub, []byte(msg), raw) {
		t.Fatalf("signature does not verify for empty params")
	}
}
