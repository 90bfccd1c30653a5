package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmerrifield20/starregistry/pkg/client"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newClient() (*client.Client, error) {
	return client.New(registryURL)
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// ── challenge ────────────────────────────────────────────────────────────────

var challengeQuiet bool

var challengeCmd = &cobra.Command{
	Use:   "challenge <address>",
	Short: "Request an ownership challenge for an address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		msg, err := c.RequestChallenge(ctx, args[0])
		if err != nil {
			return err
		}
		if challengeQuiet {
			pterm.Println(msg)
			return nil
		}
		pterm.Info.Printfln("Sign this message within 5 minutes:")
		pterm.Println(msg)
		return nil
	},
}

func init() {
	challengeCmd.Flags().BoolVarP(&challengeQuiet, "quiet", "q", false, "print only the message")
}

// ── submit ───────────────────────────────────────────────────────────────────

var (
	submitWIF       string
	submitSeed      string
	submitTest      bool
	submitStar      string
	submitRA        string
	submitDec       string
	submitStory     string
	submitAddress   string
	submitMessage   string
	submitSignature string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Register a star on the chain",
	Long: `submit registers a star owned by your address.

With --wif or --seed, submit requests a challenge, signs it locally and
submits in one step:

  starctl submit --seed $SEED --ra "16h 29m 1.0s" --dec "68° 52' 56.9" --story "Found it"

Without a key, pass a challenge you signed elsewhere:

  starctl submit --address 1A1z... --message "..." --signature "..." --star '{"ra":"..."}'`,
	RunE: runSubmit,
}

func init() {
	addKeyFlags(submitCmd, &submitWIF, &submitSeed, &submitTest)
	submitCmd.Flags().StringVar(&submitStar, "star", "", "star as a JSON object (overrides --ra/--dec/--story)")
	submitCmd.Flags().StringVar(&submitRA, "ra", "", "right ascension")
	submitCmd.Flags().StringVar(&submitDec, "dec", "", "declination")
	submitCmd.Flags().StringVar(&submitStory, "story", "", "story")
	submitCmd.Flags().StringVar(&submitAddress, "address", "", "owner address (when signing elsewhere)")
	submitCmd.Flags().StringVar(&submitMessage, "message", "", "signed challenge (when signing elsewhere)")
	submitCmd.Flags().StringVar(&submitSignature, "signature", "", "signature (when signing elsewhere)")
}

func starFromFlags() (any, error) {
	if submitStar != "" {
		var star any
		if err := json.Unmarshal([]byte(submitStar), &star); err != nil {
			return nil, fmt.Errorf("parse --star: %w", err)
		}
		return star, nil
	}
	if submitRA == "" && submitDec == "" && submitStory == "" {
		return nil, errors.New("a star is required: pass --star or --ra/--dec/--story")
	}
	return map[string]string{"ra": submitRA, "dec": submitDec, "story": submitStory}, nil
}

func runSubmit(cmd *cobra.Command, args []string) error {
	star, err := starFromFlags()
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	sub := client.Submission{
		Address:   submitAddress,
		Message:   submitMessage,
		Signature: submitSignature,
		Star:      star,
	}
	if submitWIF != "" || submitSeed != "" {
		s, err := loadSigner(submitWIF, submitSeed, network, submitTest)
		if err != nil {
			return err
		}
		msg, err := c.RequestChallenge(ctx, s.address)
		if err != nil {
			return fmt.Errorf("request challenge: %w", err)
		}
		sig, err := s.sign(msg)
		if err != nil {
			return fmt.Errorf("sign challenge: %w", err)
		}
		sub.Address, sub.Message, sub.Signature = s.address, msg, sig
	}

	spinner, _ := pterm.DefaultSpinner.Start("Submitting star...")
	b, err := c.SubmitStar(ctx, sub)
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.Reason != "" {
			spinner.Fail("Ownership proof rejected: " + apiErr.Reason)
		} else {
			spinner.Fail("Submit failed")
		}
		return err
	}
	spinner.Success(fmt.Sprintf("Star registered at height %d", b.Height))
	printBlock(b)
	if b.Receipt != "" {
		pterm.Info.Println("Receipt (keep this to prove registration later):")
		pterm.Println(b.Receipt)
	}
	return nil
}

// ── get ──────────────────────────────────────────────────────────────────────

var getCmd = &cobra.Command{
	Use:   "get <height|hash>",
	Short: "Show a block by height or hash",
	Long: `get prints one block. A decimal argument is read as a height, anything
else as a block hash.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		var b *client.Block
		if height, convErr := strconv.Atoi(args[0]); convErr == nil {
			b, err = c.BlockByHeight(ctx, height)
		} else {
			b, err = c.BlockByHash(ctx, args[0])
		}
		if errors.Is(err, client.ErrNotFound) {
			return fmt.Errorf("no block %s", args[0])
		}
		if err != nil {
			return err
		}
		printBlock(b)
		return nil
	},
}

// ── stars ────────────────────────────────────────────────────────────────────

var starsCmd = &cobra.Command{
	Use:   "stars <address>",
	Short: "List the stars registered by an address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		stars, err := c.StarsByOwner(ctx, args[0])
		if err != nil {
			return err
		}
		if len(stars) == 0 {
			pterm.Info.Printfln("No stars registered by %s", args[0])
			return nil
		}
		data := pterm.TableData{{"#", "star"}}
		for i, s := range stars {
			data = append(data, []string{strconv.Itoa(i + 1), string(s)})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

// ── validate ─────────────────────────────────────────────────────────────────

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Ask the registry to audit the whole chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		res, err := c.Validate(ctx)
		if err != nil {
			return err
		}
		if res.Valid {
			pterm.Success.Println("Chain is intact")
			return nil
		}
		data := pterm.TableData{{"height", "kind", "message"}}
		for _, f := range res.Faults {
			data = append(data, []string{strconv.Itoa(f.Height), f.Kind, f.Message})
		}
		pterm.Error.Printfln("Chain has %d integrity fault(s)", len(res.Faults))
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

// ── receipt ──────────────────────────────────────────────────────────────────

var receiptCmd = &cobra.Command{
	Use:   "receipt <token>",
	Short: "Verify a registration receipt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		st, err := c.VerifyReceipt(ctx, args[0])
		if err != nil {
			return err
		}
		_ = pterm.DefaultTable.WithData(pterm.TableData{
			{"owner", st.Owner},
			{"height", strconv.Itoa(st.Height)},
			{"block hash", st.BlockHash},
			{"issued", st.IssuedAt.Format(time.RFC3339)},
			{"expires", st.ExpiresAt.Format(time.RFC3339)},
		}).Render()
		if !st.OnChain {
			pterm.Warning.Println("Receipt is authentic but the block is no longer on this chain")
			return nil
		}
		pterm.Success.Println("Receipt verified; block is on the chain")
		return nil
	},
}

// ── output ───────────────────────────────────────────────────────────────────

func printBlock(b *client.Block) {
	prev := "(none)"
	if b.PreviousHash != nil {
		prev = *b.PreviousHash
	}
	_ = pterm.DefaultTable.WithData(pterm.TableData{
		{"height", strconv.Itoa(b.Height)},
		{"hash", b.Hash},
		{"previous", prev},
		{"time", time.Unix(b.Timestamp, 0).UTC().Format(time.RFC3339)},
		{"data", string(b.Data)},
	}).Render()
}
