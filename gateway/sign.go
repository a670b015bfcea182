package gateway

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
)

// Backpack 的私有接口使用 ED25519 指令签名：按 key 排序的参数串
// 前置 instruction、后缀 timestamp/window，签名后 base64 编码放入头部。

// decodeSigningKey 从 base64 私钥种子构造签名密钥。
func decodeSigningKey(secret string) (ed25519.PrivateKey, error) {
	seed, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: decode api secret: %v", ErrConfiguration, err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: api secret must be a %d byte seed", ErrConfiguration, ed25519.SeedSize)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// signInstruction 构造并签名指令串。url.Values.Encode 已按 key 排序。
func signInstruction(key ed25519.PrivateKey, instruction string, params url.Values, tsMillis int64, windowMillis int) string {
	msg := "instruction=" + instruction
	if encoded := params.Encode(); encoded != "" {
		msg += "&" + encoded
	}
	msg += "&timestamp=" + strconv.FormatInt(tsMillis, 10)
	msg += "&window=" + strconv.Itoa(windowMillis)

	sig := ed25519.Sign(key, []byte(msg))
	return base64.StdEncoding.EncodeToString(sig)
}
