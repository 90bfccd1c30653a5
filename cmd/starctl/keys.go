package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/jmerrifield20/starregistry/internal/ownership"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// signer holds a local key and the address it proves ownership of.
type signer struct {
	address string
	sign    func(message string) (string, error)
}

// loadSigner builds a signer from exactly one of a WIF-encoded Bitcoin key or
// a hex ed25519 seed.
func loadSigner(wifStr, seedHex, networkName string, testAccount bool) (*signer, error) {
	switch {
	case wifStr != "" && seedHex != "":
		return nil, errors.New("--wif and --seed are mutually exclusive")

	case wifStr != "":
		params, err := ownership.NetworkParams(networkName)
		if err != nil {
			return nil, err
		}
		wif, err := btcutil.DecodeWIF(wifStr)
		if err != nil {
			return nil, fmt.Errorf("decode WIF: %w", err)
		}
		if !wif.IsForNet(params) {
			return nil, fmt.Errorf("WIF key is not for network %s", params.Name)
		}
		addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(wif.SerializePubKey()), params)
		if err != nil {
			return nil, fmt.Errorf("derive address: %w", err)
		}
		return &signer{
			address: addr.EncodeAddress(),
			sign: func(message string) (string, error) {
				return ownership.SignBitcoinMessage(wif, message)
			},
		}, nil

	case seedHex != "":
		seed, err := hex.DecodeString(seedHex)
		if err != nil {
			return nil, fmt.Errorf("decode seed: %w", err)
		}
		if len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
		}
		priv := ed25519.NewKeyFromSeed(seed)
		account := ownership.NewAccount(priv.Public().(ed25519.PublicKey), testAccount)
		return &signer{
			address: account.String(),
			sign: func(message string) (string, error) {
				return ownership.SignAccountMessage(priv, message), nil
			},
		}, nil

	default:
		return nil, errors.New("a key is required: pass --wif or --seed")
	}
}

// ── keygen ───────────────────────────────────────────────────────────────────

var (
	keygenBitcoin bool
	keygenTest    bool
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new signing key and print its address",
	Long: `keygen creates a fresh key for proving star ownership.

By default it creates an ed25519 account key and prints the hex seed to pass
as --seed. With --bitcoin it creates a compressed secp256k1 key and prints it
as WIF for --wif, together with its P2PKH address on --network.

Keys are printed, never stored. Keep the seed or WIF somewhere safe.`,
	RunE: runKeygen,
}

func init() {
	keygenCmd.Flags().BoolVar(&keygenBitcoin, "bitcoin", false, "generate a Bitcoin key instead of an ed25519 account")
	keygenCmd.Flags().BoolVar(&keygenTest, "test", false, "mark the ed25519 account as a test account")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	if keygenBitcoin {
		params, err := ownership.NetworkParams(network)
		if err != nil {
			return err
		}
		priv, err := btcec.NewPrivateKey()
		if err != nil {
			return fmt.Errorf("generate key: %w", err)
		}
		wif, err := btcutil.NewWIF(priv, params, true)
		if err != nil {
			return fmt.Errorf("encode WIF: %w", err)
		}
		s, err := loadSigner(wif.String(), "", network, false)
		if err != nil {
			return err
		}
		printKeyTable("bitcoin ("+params.Name+")", s.address, "wif", wif.String())
		return nil
	}

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	account := ownership.NewAccount(pub, keygenTest)
	printKeyTable("ed25519 account", account.String(), "seed", hex.EncodeToString(priv.Seed()))
	return nil
}

func printKeyTable(kind, address, secretName, secret string) {
	_ = pterm.DefaultTable.WithData(pterm.TableData{
		{"type", kind},
		{"address", address},
		{secretName, secret},
	}).Render()
	pterm.Warning.Printfln("The %s is the private key. Anyone holding it can register stars as %s.", secretName, address)
}

// ── sign ─────────────────────────────────────────────────────────────────────

var (
	signWIF  string
	signSeed string
	signTest bool
)

var signCmd = &cobra.Command{
	Use:   "sign <message>",
	Short: "Sign a challenge message locally",
	Long: `sign produces the signature a registry expects for a challenge.

With --wif the signature is a base64 Bitcoin signed-message signature; with
--seed it is a hex ed25519 signature.

  starctl sign --seed $SEED "$(starctl challenge <address> -q)"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSigner(signWIF, signSeed, network, signTest)
		if err != nil {
			return err
		}
		sig, err := s.sign(args[0])
		if err != nil {
			return err
		}
		pterm.Println(sig)
		return nil
	},
}

func addKeyFlags(cmd *cobra.Command, wif, seed *string, test *bool) {
	cmd.Flags().StringVar(wif, "wif", "", "Bitcoin private key in WIF")
	cmd.Flags().StringVar(seed, "seed", "", "ed25519 seed (hex)")
	cmd.Flags().BoolVar(test, "test", false, "treat --seed as a test account")
}

func init() {
	addKeyFlags(signCmd, &signWIF, &signSeed, &signTest)
}
