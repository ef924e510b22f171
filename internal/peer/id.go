// Package peer 对端传输层
//
// 以 52 字符的对端标识寻址，把每个转发单元映射为一条多路复用连接上的流。
// 载体（tcp / websocket / kcp / quic）通过注册表选择，连接按地址缓存在 Pool 中。
package peer

import (
	"encoding/base32"
	"strings"

	"github.com/google/uuid"

	coreerrors "peerbridge/internal/core/errors"
)

// IDLength 对端标识长度
const IDLength = 52

// URLScheme 桥接 URL 前缀
const URLScheme = "kulfi://"

var idEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// ValidateID 只校验长度
func ValidateID(id string) error {
	if len(id) != IDLength {
		return coreerrors.Newf(coreerrors.CodeInvalidPeerID, "peer id must be %d characters, got %d", IDLength, len(id))
	}
	return nil
}

// NewIdentity 生成随机的 52 字符标识（32 字节 base32 小写）
func NewIdentity() string {
	a, b := uuid.New(), uuid.New()
	raw := make([]byte, 0, 32)
	raw = append(raw, a[:]...)
	raw = append(raw, b[:]...)
	return strings.ToLower(idEncoding.EncodeToString(raw))
}

// ParseURL 解析 kulfi://<id52>/<path>，返回对端标识和路径
//
// 路径不含开头的 "/"；没有 "/" 时路径为空。
func ParseURL(raw string) (string, string, error) {
	prefix, rest, found := strings.Cut(raw, URLScheme)
	if !found {
		return "", "", coreerrors.Newf(coreerrors.CodeInvalidURL, "URL must start with %s", URLScheme)
	}
	if prefix != "" {
		return "", "", coreerrors.Newf(coreerrors.CodeInvalidURL,
			"URL must start with %s, got %s in the beginning", URLScheme, prefix)
	}

	id, path, _ := strings.Cut(rest, "/")
	if id == "" {
		return "", "", coreerrors.New(coreerrors.CodeInvalidURL, "URL has no peer id")
	}
	return id, path, nil
}
