package custody

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/keyfold/wallet-custody-backend/interfaces"
)

// signingDigest computes the 32-byte digest for a validated sign request.
// Pre-hashed payloads pass through untouched; personal messages get the
// EIP-191 prefix; typed payloads are delegated to the configured codec.
func signingDigest(req *interfaces.SignRequest, codec interfaces.TransactionCodec) ([]byte, error) {
	switch req.Kind {
	case interfaces.PayloadHash:
		return req.Data, nil
	case interfaces.PayloadPersonal:
		return accounts.TextHash(req.Data), nil
	case interfaces.PayloadTyped:
		if codec == nil {
			return nil, fmt.Errorf("%w: no codec configured for typed payloads", interfaces.ErrCrypto)
		}
		digest, err := codec.Digest(req.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: typed payload digest failed: %v", interfaces.ErrCrypto, err)
		}
		return digest[:], nil
	default:
		return nil, fmt.Errorf("%w: unknown payload kind %q", interfaces.ErrCrypto, req.Kind)
	}
}

// signDigest signs a 32-byte digest with the raw secp256k1 private key and
// returns the 65-byte [R || S || V] signature plus the key's address. The
// parsed key is zeroed before returning; the caller owns wiping rawKey.
func signDigest(rawKey, digest []byte) ([]byte, common.Address, error) {
	priv, err := ethcrypto.ToECDSA(rawKey)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("%w: reconstructed key is invalid: %v", interfaces.ErrCrypto, err)
	}
	defer priv.D.SetInt64(0)

	address := ethcrypto.PubkeyToAddress(priv.PublicKey)

	signature, err := ethcrypto.Sign(digest, priv)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("%w: signing failed: %v", interfaces.ErrCrypto, err)
	}
	return signature, address, nil
}

// keyAddress derives the address for a raw private key without signing,
// used to validate reconstructed keys against the wallet record.
func keyAddress(rawKey []byte) (common.Address, error) {
	priv, err := ethcrypto.ToECDSA(rawKey)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: reconstructed key is invalid: %v", interfaces.ErrCrypto, err)
	}
	defer priv.D.SetInt64(0)

	return ethcrypto.PubkeyToAddress(priv.PublicKey), nil
}
