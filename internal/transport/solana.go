package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/blocto/solana-go-sdk/client"
	"github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/program/associated_token_account"
	"github.com/blocto/solana-go-sdk/program/metaplex/token_metadata"
	"github.com/blocto/solana-go-sdk/program/system"
	"github.com/blocto/solana-go-sdk/program/token"
	"github.com/blocto/solana-go-sdk/rpc"
	"github.com/blocto/solana-go-sdk/types"

	"github.com/nftops/mintbatch/internal/identity"
	"github.com/nftops/mintbatch/internal/model"
)

// ResolveEndpoint maps the network aliases onto RPC URLs. Anything else
// is taken as a URL verbatim.
func ResolveEndpoint(network string) string {
	switch network {
	case "devnet":
		return rpc.DevnetRPCEndpoint
	case "testnet":
		return rpc.TestnetRPCEndpoint
	case "mainnet":
		return rpc.MainnetRPCEndpoint
	default:
		return network
	}
}

// Solana mints one NFT per call: a fresh mint account initialized with
// decimals 0, metadata and a max-supply-1 master edition, and a single
// token minted into the recipient's associated token account. The mint
// address is the assigned token identifier.
type Solana struct {
	client  *client.Client
	signer  *identity.Signer
	timeout time.Duration
}

func NewSolana(endpoint string, signer *identity.Signer, timeout time.Duration) *Solana {
	return &Solana{
		client:  client.NewClient(ResolveEndpoint(endpoint)),
		signer:  signer,
		timeout: timeout,
	}
}

// Preflight confirms the ledger is reachable and the minting authority
// holds a balance to pay fees and rent from. Runs once per batch.
func (s *Solana) Preflight(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	balance, err := s.client.GetBalance(ctx, s.signer.PublicKey())
	if err != nil {
		return fmt.Errorf("ledger unreachable: %w", err)
	}
	if balance == 0 {
		return fmt.Errorf("mint authority %s holds no balance to pay mint fees", s.signer.PublicKey())
	}
	return nil
}

// Call assembles, signs, and sends one mint transaction. Exactly one
// network round trip for the send; the preparatory reads (rent,
// blockhash) share the same per-call timeout.
func (s *Solana) Call(ctx context.Context, req model.MintRequest) model.CallOutcome {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	feePayer := s.signer.Account()
	owner := common.PublicKeyFromString(req.Recipient)
	nftMint := types.NewAccount()

	ata, _, err := common.FindAssociatedTokenAddress(owner, nftMint.PublicKey)
	if err != nil {
		return model.RemoteRejected(fmt.Sprintf("derive token account: %v", err))
	}
	metadataPubkey, err := token_metadata.GetTokenMetaPubkey(nftMint.PublicKey)
	if err != nil {
		return model.RemoteRejected(fmt.Sprintf("derive metadata account: %v", err))
	}
	masterEditionPubkey, err := token_metadata.GetMasterEdition(nftMint.PublicKey)
	if err != nil {
		return model.RemoteRejected(fmt.Sprintf("derive master edition: %v", err))
	}

	mintRent, err := s.client.GetMinimumBalanceForRentExemption(ctx, token.MintAccountSize)
	if err != nil {
		return classify(err)
	}
	recent, err := s.client.GetLatestBlockhash(ctx)
	if err != nil {
		return classify(err)
	}

	maxSupply := uint64(1)
	tx, err := types.NewTransaction(types.NewTransactionParam{
		Signers: []types.Account{nftMint, feePayer},
		Message: types.NewMessage(types.NewMessageParam{
			FeePayer:        feePayer.PublicKey,
			RecentBlockhash: recent.Blockhash,
			Instructions: []types.Instruction{
				system.CreateAccount(system.CreateAccountParam{
					From:     feePayer.PublicKey,
					New:      nftMint.PublicKey,
					Owner:    common.TokenProgramID,
					Lamports: mintRent,
					Space:    token.MintAccountSize,
				}),
				token.InitializeMint(token.InitializeMintParam{
					Decimals:   0,
					Mint:       nftMint.PublicKey,
					MintAuth:   feePayer.PublicKey,
					FreezeAuth: &feePayer.PublicKey,
				}),
				token_metadata.CreateMetadataAccountV3(token_metadata.CreateMetadataAccountV3Param{
					Metadata:                metadataPubkey,
					Mint:                    nftMint.PublicKey,
					MintAuthority:           feePayer.PublicKey,
					UpdateAuthority:         feePayer.PublicKey,
					Payer:                   feePayer.PublicKey,
					UpdateAuthorityIsSigner: true,
					IsMutable:               true,
					Data: token_metadata.DataV2{
						Name:                 req.Name,
						Symbol:               req.Symbol,
						Uri:                  req.MetadataURI,
						SellerFeeBasisPoints: req.SellerFeeBasisPoints,
						Creators: &[]token_metadata.Creator{
							{
								Address:  feePayer.PublicKey,
								Verified: true,
								Share:    100,
							},
						},
					},
					CollectionDetails: nil,
				}),
				associated_token_account.CreateAssociatedTokenAccount(
					associated_token_account.CreateAssociatedTokenAccountParam{
						Funder:                 feePayer.PublicKey,
						Owner:                  owner,
						Mint:                   nftMint.PublicKey,
						AssociatedTokenAccount: ata,
					},
				),
				token.MintTo(token.MintToParam{
					Mint:   nftMint.PublicKey,
					To:     ata,
					Auth:   feePayer.PublicKey,
					Amount: 1,
				}),
				token_metadata.CreateMasterEditionV3(token_metadata.CreateMasterEditionParam{
					Edition:         masterEditionPubkey,
					Mint:            nftMint.PublicKey,
					UpdateAuthority: feePayer.PublicKey,
					MintAuthority:   feePayer.PublicKey,
					Metadata:        metadataPubkey,
					Payer:           feePayer.PublicKey,
					MaxSupply:       &maxSupply,
				}),
			},
		}),
	})
	if err != nil {
		// Assembly failures are local and not retryable.
		return model.RemoteRejected(fmt.Sprintf("assemble transaction: %v", err))
	}

	sig, err := s.client.SendTransaction(ctx, tx)
	if err != nil {
		return classify(err)
	}

	return model.Success(nftMint.PublicKey.ToBase58(), sig)
}
