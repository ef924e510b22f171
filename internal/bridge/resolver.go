package bridge

import (
	"strings"

	coreerrors "peerbridge/internal/core/errors"
	corelog "peerbridge/internal/core/log"
	"peerbridge/internal/peer"
)

// LoopbackLabel Host 首段为 127 时视为本机访问，转发到固定目标
const LoopbackLabel = "127"

// PeerIDFromHost 从 HTTP Host 头解析目标对端
//
// 取第一个 "." 之前的部分作为标签：
//   - 没有 Host 或 Host 中没有 "."：ErrMissingHost
//   - 标签为 127 且有固定目标：返回固定目标
//   - 没有固定目标且标签长度不是 52：ErrInvalidPeerID
//   - 有固定目标且标签与之不同：ErrPeerNotPermitted
//   - 否则返回标签
func PeerIDFromHost(host string, hasHost bool, proxyTarget string) (string, error) {
	label, _, found := strings.Cut(host, ".")
	if !hasHost || !found {
		corelog.Debugf("PeerResolver: request without usable Host header %q", host)
		return "", coreerrors.ErrMissingHost
	}

	hasTarget := proxyTarget != ""
	if label == LoopbackLabel && hasTarget {
		return proxyTarget, nil
	}

	if len(label) != peer.IDLength && !hasTarget {
		corelog.Debugf("PeerResolver: request received for invalid peer id %q", label)
		return "", coreerrors.ErrInvalidPeerID
	}

	if hasTarget && label != proxyTarget {
		corelog.Debugf("PeerResolver: request for peer %s is not allowed, fixed target %s", label, proxyTarget)
		return "", coreerrors.ErrPeerNotPermitted
	}

	return label, nil
}
