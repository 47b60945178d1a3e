package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	EnvPrivateKey           = "CHAINCTL_PRIVATE_KEY"
	EnvPrivateKeyFile       = "CHAINCTL_PRIVATE_KEY_FILE"
	EnvKeystorePath         = "CHAINCTL_KEYSTORE_PATH"
	EnvKeystorePassword     = "CHAINCTL_KEYSTORE_PASSWORD"
	EnvKeystorePasswordFile = "CHAINCTL_KEYSTORE_PASSWORD_FILE"
	EnvAccount              = "CHAINCTL_ACCOUNT"

	KeySourceAuto     = "auto"
	KeySourceEnv      = "env"
	KeySourceFile     = "file"
	KeySourceKeystore = "keystore"

	defaultPrivateKeyRelativePath = "chainctl/key.hex"
	defaultPrivateKeyHintPath     = "~/.config/chainctl/key.hex"
)

// LocalSigner holds a private key in memory. The key never leaves the process
// except as a signature.
type LocalSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}

func (s *LocalSigner) SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	if s == nil || s.privateKey == nil {
		return nil, errors.New("local signer is not initialized")
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.privateKey)
}

// SignMessage signs message with the EIP-191 personal-message prefix and
// returns a 65-byte signature with v in {27, 28}.
func (s *LocalSigner) SignMessage(message []byte) ([]byte, error) {
	if s == nil || s.privateKey == nil {
		return nil, errors.New("local signer is not initialized")
	}
	sig, err := crypto.Sign(accounts.TextHash(message), s.privateKey)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverMessageSigner returns the address that produced an EIP-191 signature
// over message. Both v encodings (0/1 and 27/28) are accepted.
func RecoverMessageSigner(message, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(signature))
	}
	sig := append([]byte(nil), signature...)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, fmt.Errorf("invalid signature recovery id %d", signature[crypto.RecoveryIDOffset])
	}
	pub, err := crypto.SigToPub(accounts.TextHash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyMessage reports whether signature over message was produced by address.
func VerifyMessage(message, signature []byte, address common.Address) (bool, error) {
	recovered, err := RecoverMessageSigner(message, signature)
	if err != nil {
		return false, err
	}
	return recovered == address, nil
}

func NewLocalSignerFromEnv(source string) (*LocalSigner, error) {
	return NewLocalSignerFromInputs(source, "")
}

// NewLocalSignerFromInputs resolves key material from the CHAINCTL_* environment
// according to source. A non-empty privateKeyOverride wins over every source.
func NewLocalSignerFromInputs(source, privateKeyOverride string) (*LocalSigner, error) {
	source = strings.ToLower(strings.TrimSpace(source))
	if source == "" {
		source = KeySourceAuto
	}
	cfg := LocalSignerConfig{
		PrivateKeyHex:        strings.TrimSpace(os.Getenv(EnvPrivateKey)),
		PrivateKeyFile:       strings.TrimSpace(os.Getenv(EnvPrivateKeyFile)),
		KeystorePath:         strings.TrimSpace(os.Getenv(EnvKeystorePath)),
		KeystorePassword:     strings.TrimSpace(os.Getenv(EnvKeystorePassword)),
		KeystorePasswordFile: strings.TrimSpace(os.Getenv(EnvKeystorePasswordFile)),
		ExpectedAddress:      strings.TrimSpace(os.Getenv(EnvAccount)),
	}
	if cfg.PrivateKeyFile == "" {
		cfg.PrivateKeyFile = discoverDefaultPrivateKeyFile()
	}

	switch source {
	case KeySourceAuto:
	case KeySourceEnv:
		cfg.PrivateKeyFile, cfg.KeystorePath = "", ""
	case KeySourceFile:
		cfg.PrivateKeyHex, cfg.KeystorePath = "", ""
	case KeySourceKeystore:
		cfg.PrivateKeyHex, cfg.PrivateKeyFile = "", ""
	default:
		return nil, fmt.Errorf("unsupported key source %q (expected %s|%s|%s|%s)", source, KeySourceAuto, KeySourceEnv, KeySourceFile, KeySourceKeystore)
	}
	if override := strings.TrimSpace(privateKeyOverride); override != "" {
		cfg.PrivateKeyHex = override
		cfg.PrivateKeyFile, cfg.KeystorePath = "", ""
	}
	return NewLocalSigner(cfg)
}

// LocalSignerConfig keeps key material and the account address strictly apart.
// ExpectedAddress is optional; when set it must match the address derived from the key.
type LocalSignerConfig struct {
	PrivateKeyHex        string
	PrivateKeyFile       string
	KeystorePath         string
	KeystorePassword     string
	KeystorePasswordFile string
	ExpectedAddress      string
}

func NewLocalSigner(cfg LocalSignerConfig) (*LocalSigner, error) {
	var expected common.Address
	if v := strings.TrimSpace(cfg.ExpectedAddress); v != "" {
		if !common.IsHexAddress(v) {
			return nil, fmt.Errorf("account %q is not a valid address", v)
		}
		expected = common.HexToAddress(v)
	}
	pk, err := loadPrivateKey(cfg)
	if err != nil {
		return nil, err
	}
	addr := crypto.PubkeyToAddress(pk.PublicKey)
	if expected != (common.Address{}) && expected != addr {
		return nil, fmt.Errorf("signing key belongs to %s, not configured account %s", addr.Hex(), expected.Hex())
	}
	return &LocalSigner{privateKey: pk, address: addr}, nil
}

func loadPrivateKey(cfg LocalSignerConfig) (*ecdsa.PrivateKey, error) {
	switch {
	case strings.TrimSpace(cfg.PrivateKeyHex) != "":
		return parseHexKey(cfg.PrivateKeyHex)
	case strings.TrimSpace(cfg.PrivateKeyFile) != "":
		buf, err := os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read private key file: %w", err)
		}
		return parseHexKey(string(buf))
	case strings.TrimSpace(cfg.KeystorePath) != "":
		return decryptKeystore(cfg)
	}
	return nil, fmt.Errorf("missing signing key: set %s, %s or %s, pass --private-key, or write the key to %s",
		EnvPrivateKey, EnvPrivateKeyFile, EnvKeystorePath, defaultPrivateKeyHintPath)
}

func decryptKeystore(cfg LocalSignerConfig) (*ecdsa.PrivateKey, error) {
	password := cfg.KeystorePassword
	if strings.TrimSpace(password) == "" && strings.TrimSpace(cfg.KeystorePasswordFile) != "" {
		buf, err := os.ReadFile(cfg.KeystorePasswordFile)
		if err != nil {
			return nil, fmt.Errorf("read keystore password file: %w", err)
		}
		password = strings.TrimSpace(string(buf))
	}
	if strings.TrimSpace(password) == "" {
		return nil, fmt.Errorf("keystore password is required")
	}
	buf, err := os.ReadFile(cfg.KeystorePath)
	if err != nil {
		return nil, fmt.Errorf("read keystore file: %w", err)
	}
	key, err := keystore.DecryptKey(buf, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore: %w", err)
	}
	return key.PrivateKey, nil
}

func parseHexKey(raw string) (*ecdsa.PrivateKey, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if clean == "" {
		return nil, fmt.Errorf("empty private key")
	}
	// A 40-character value is an address, not a key.
	if len(clean) == 2*common.AddressLength {
		return nil, fmt.Errorf("private key looks like an address")
	}
	pk, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return pk, nil
}

func defaultPrivateKeyPath() string {
	base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, defaultPrivateKeyRelativePath)
}

func discoverDefaultPrivateKeyFile() string {
	path := defaultPrivateKeyPath()
	if path == "" {
		return ""
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return ""
	}
	return path
}
