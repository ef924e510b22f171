package peer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"math/big"
	"net"
	"time"

	coreerrors "peerbridge/internal/core/errors"
)

// ALPN 名称
const nextProto = "peerbridge"

func clientTLSConfig(opts CarrierOptions) *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: opts.InsecureSkipVerify,
		ServerName:         opts.ServerName,
		NextProtos:         []string{nextProto},
		MinVersion:         tls.VersionTLS13,
	}
}

// serverTLSConfig 生成自签名证书的服务端 TLS 配置
func serverTLSConfig() (*tls.Config, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeInternal, "generate private key")
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeInternal, "generate serial")
	}
	template := x509.Certificate{
		SerialNumber: serial,
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		DNSNames:     []string{"localhost"},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeInternal, "create certificate")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
		NextProtos:   []string{nextProto},
		MinVersion:   tls.VersionTLS13,
	}, nil
}
